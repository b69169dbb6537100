package session

import (
	"net/http"
	"strings"
)

const (
	// AccessCookie is the cookie carrying the access token. It takes
	// precedence over the Authorization header.
	AccessCookie = "accessToken"
	// RefreshCookie is the cookie carrying the refresh token.
	RefreshCookie = "refreshToken"

	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// TokenFromRequest extracts the access token from the request: the
// accessToken cookie is checked first, then the bearer header.
func TokenFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// RefreshTokenFromRequest extracts the refresh token cookie.
func RefreshTokenFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

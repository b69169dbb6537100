package httpapi

import (
	"net/http"
	"strings"

	"tasknest.org/internal/session"
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/forgot-password",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}
var publicPrefixes = []string{
	"/v1/auth/verify-account/",
	"/v1/auth/reset-password/",
}

// withAuth resolves the session for every protected path. The websocket
// handshake authenticates inside its own handler because the token arrives
// as a query parameter.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.guard == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		raw, _ := session.TokenFromRequest(r)
		principal, err := a.guard.Authenticate(r.Context(), raw)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		ctx := session.ContextWithPrincipal(r.Context(), principal)
		ctx = session.ContextWithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

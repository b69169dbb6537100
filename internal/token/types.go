package token

import "time"

// RefreshCredential is a persisted refresh token with the request metadata
// captured at issue time. Several may exist per principal; login reuses the
// newest unexpired one instead of minting a new token.
type RefreshCredential struct {
	Token       string    `json:"-"`
	PrincipalID string    `json:"principalId"`
	UserAgent   string    `json:"userAgent,omitempty"`
	IPAddress   string    `json:"ipAddress,omitempty"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RequestMeta carries the client metadata recorded on a freshly minted
// refresh credential.
type RequestMeta struct {
	UserAgent string
	IPAddress string
}

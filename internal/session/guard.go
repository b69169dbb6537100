package session

import (
	"context"
	"errors"

	"tasknest.org/internal/identity"
	"tasknest.org/internal/obs"
	"tasknest.org/internal/token"
)

// ErrAuthentication is the single error surfaced for every rejection:
// missing, malformed, expired or blacklisted tokens, unknown or inactive
// principals, and stale-after-password-change tokens all look identical to
// callers. The distinct causes are logged and counted internally only.
var ErrAuthentication = errors.New("session: authentication required")

// Guard resolves a request or handshake token to a principal. It is the sole
// gate before any authorization check.
type Guard struct {
	tokens     *token.Authority
	principals identity.PrincipalStore
}

// NewGuard constructs the session guard.
func NewGuard(tokens *token.Authority, principals identity.PrincipalStore) (*Guard, error) {
	if tokens == nil || principals == nil {
		return nil, errors.New("session: token authority and principal store are required")
	}
	return &Guard{tokens: tokens, principals: principals}, nil
}

// Authenticate runs the ordered checks: revocation, signature, principal
// status, password staleness. The order is fixed so failures never leak
// account information to revoked or unauthenticated callers.
func (g *Guard) Authenticate(ctx context.Context, rawToken string) (*identity.Principal, error) {
	if rawToken == "" {
		return nil, g.reject("missing_token", nil)
	}

	revoked, err := g.tokens.Revoked(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, g.reject("blacklisted_token", nil)
	}

	claims, err := g.tokens.VerifyAccess(rawToken)
	if err != nil {
		cause := "invalid_token"
		if errors.Is(err, token.ErrExpiredToken) {
			cause = "expired_token"
		}
		return nil, g.reject(cause, nil)
	}

	p, err := g.principals.Find(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, g.reject("unknown_principal", map[string]any{"principal_id": claims.PrincipalID})
		}
		return nil, err
	}
	if !p.CanAuthenticate() {
		return nil, g.reject("inactive_principal", map[string]any{
			"principal_id": p.ID,
			"status":       string(p.Status),
		})
	}

	// Force re-authentication after a password change even for a still
	// valid, non-blacklisted token. Compared at second granularity.
	if p.PasswordChangedAt != nil && p.PasswordChangedAt.Unix() > claims.IssuedAt.Unix() {
		return nil, g.reject("stale_password", map[string]any{"principal_id": p.ID})
	}

	return p, nil
}

func (g *Guard) reject(cause string, fields map[string]any) error {
	obs.IncAuthRejection(cause)
	entry := map[string]any{"cause": cause}
	for k, v := range fields {
		entry[k] = v
	}
	obs.Warn("authentication rejected", entry)
	return ErrAuthentication
}

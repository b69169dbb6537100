package token

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("token: not found")
)

// RefreshCredentialStore manages refresh credential lifecycle.
type RefreshCredentialStore interface {
	Create(ctx context.Context, cred *RefreshCredential) error
	// Find returns the credential for the exact token string.
	Find(ctx context.Context, token string) (*RefreshCredential, error)
	// FindLatest returns the newest credential for the principal whose
	// expiry is after now, or ErrNotFound.
	FindLatest(ctx context.Context, principalID string, now time.Time) (*RefreshCredential, error)
	Delete(ctx context.Context, token string) error
	DeleteByPrincipal(ctx context.Context, principalID string) error
}

// RevokedTokenStore is the access-token revocation list. Entries expire with
// the token's own expiry, after which the signature check rejects it anyway.
type RevokedTokenStore interface {
	Add(ctx context.Context, token string, expiresAt time.Time) error
	Contains(ctx context.Context, token string) (bool, error)
}

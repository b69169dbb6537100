package identity

import (
	"context"
	"time"
)

// PrincipalStore describes persistence operations for user accounts.
type PrincipalStore interface {
	Create(ctx context.Context, p *Principal) error
	Find(ctx context.Context, id string) (*Principal, error)
	Exists(ctx context.Context, id string) (bool, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByVerificationToken(ctx context.Context, tokenHash string) (*Principal, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*Principal, error)

	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	SetStatus(ctx context.Context, id string, status Status) error
	SetVerified(ctx context.Context, id string) error

	// tokenHash=="" clears the pending token.
	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error

	SetPresence(ctx context.Context, id string, online bool, seen time.Time) error
}

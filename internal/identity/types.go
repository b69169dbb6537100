package identity

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("identity: not found")
	ErrConflict     = errors.New("identity: already exists")
	ErrForbidden    = errors.New("identity: forbidden")
	ErrInvalidInput = errors.New("identity: invalid input")
	ErrNotifier     = errors.New("identity: notifier unavailable")
)

// Status is the account lifecycle state. Only active principals may
// authenticate.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending-verification"
)

// AccountRole is the global account role, distinct from scope membership
// roles. Admin self-registration is gated by an email allowlist.
type AccountRole string

const (
	AccountUser  AccountRole = "user"
	AccountAdmin AccountRole = "admin"
)

// Principal is an authenticated user account.
type Principal struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	DisplayName  string      `json:"displayName"`
	Role         AccountRole `json:"role"`
	PasswordHash string      `json:"-"`
	Status       Status      `json:"status"`

	// Set on every password change; tokens issued before it are stale.
	PasswordChangedAt *time.Time `json:"-"`

	IsVerified            bool       `json:"isVerified"`
	VerificationTokenHash string     `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetTokenHash        string     `json:"-"`
	ResetExpiresAt        *time.Time `json:"-"`

	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanAuthenticate reports whether the account status permits a session.
func (p *Principal) CanAuthenticate() bool {
	return p.Status == StatusActive
}

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasknest.org/internal/ids"
	"tasknest.org/internal/mail"
	"tasknest.org/internal/obs"
)

// ErrBadCredentials covers both unknown email and wrong password so login
// failures are indistinguishable to the caller.
var ErrBadCredentials = errors.New("identity: invalid credentials")

const linkTokenTTL = 10 * time.Minute

// Service implements the principal lifecycle: registration, credential
// checks, verification and password-reset flows.
type Service struct {
	store     PrincipalStore
	notifier  mail.Sender
	allowlist map[string]struct{}
	now       func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAdminAllowlist sets the emails permitted to self-register as admin.
func WithAdminAllowlist(emails []string) ServiceOption {
	return func(s *Service) {
		for _, e := range emails {
			e = strings.TrimSpace(strings.ToLower(e))
			if e != "" {
				s.allowlist[e] = struct{}{}
			}
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the identity service.
func NewService(store PrincipalStore, notifier mail.Sender, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: principal store is required")
	}
	svc := &Service{
		store:     store,
		notifier:  notifier,
		allowlist: make(map[string]struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates a new principal. Admin role requires the email to be on
// the configured allowlist.
func (s *Service) Register(ctx context.Context, email, displayName, password string, role AccountRole) (*Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	displayName = strings.TrimSpace(displayName)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if role == "" {
		role = AccountUser
	}
	if role != AccountUser && role != AccountAdmin {
		return nil, fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, role)
	}
	if role == AccountAdmin {
		if _, ok := s.allowlist[email]; !ok {
			obs.Warn("admin registration outside allowlist", map[string]any{"email": email})
			return nil, fmt.Errorf("%w: cannot register as admin", ErrForbidden)
		}
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Principal{
		ID:           ids.New(),
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: hash,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Authenticate checks email/password credentials for login.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	p, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(p.PasswordHash, password); err != nil {
		return nil, ErrBadCredentials
	}
	if !p.CanAuthenticate() {
		return nil, ErrBadCredentials
	}
	return p, nil
}

// RequestVerification stores a hashed verification token and mails the raw
// one to the principal. A send failure rolls the token back so no unusable
// pending token is left behind.
func (s *Service) RequestVerification(ctx context.Context, principalID, linkBase string) error {
	p, err := s.store.Find(ctx, principalID)
	if err != nil {
		return err
	}
	if p.IsVerified {
		return fmt.Errorf("%w: account already verified", ErrConflict)
	}

	raw, err := ids.NewSecret()
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(linkTokenTTL)
	if err := s.store.SetVerificationToken(ctx, p.ID, HashToken(raw), &expires); err != nil {
		return err
	}

	html, text := mail.VerificationEmail(joinLink(linkBase, raw))
	if err := s.notifier.Send(p.Email, "Account Verification", html, text); err != nil {
		if rbErr := s.store.SetVerificationToken(ctx, p.ID, "", nil); rbErr != nil {
			obs.Error("verification token rollback failed", map[string]any{"principal_id": p.ID, "error": rbErr.Error()})
		}
		return fmt.Errorf("%w: %v", ErrNotifier, err)
	}
	return nil
}

// VerifyAccount consumes a raw verification token.
func (s *Service) VerifyAccount(ctx context.Context, rawToken string) (*Principal, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	p, err := s.store.FindByVerificationToken(ctx, HashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if p.VerificationExpiresAt == nil || s.now().After(*p.VerificationExpiresAt) {
		return nil, fmt.Errorf("%w: verification token expired", ErrInvalidInput)
	}
	if err := s.store.SetVerified(ctx, p.ID); err != nil {
		return nil, err
	}
	if err := s.store.SetVerificationToken(ctx, p.ID, "", nil); err != nil {
		return nil, err
	}
	p.IsVerified = true
	return p, nil
}

// ForgotPassword stores a hashed reset token and mails the raw one to the
// account email, with the same rollback-on-send-failure contract as
// RequestVerification.
func (s *Service) ForgotPassword(ctx context.Context, email, linkBase string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	p, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	raw, err := ids.NewSecret()
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(linkTokenTTL)
	if err := s.store.SetResetToken(ctx, p.ID, HashToken(raw), &expires); err != nil {
		return err
	}

	html, text := mail.ResetEmail(joinLink(linkBase, raw))
	if err := s.notifier.Send(p.Email, "Password Reset Request", html, text); err != nil {
		if rbErr := s.store.SetResetToken(ctx, p.ID, "", nil); rbErr != nil {
			obs.Error("reset token rollback failed", map[string]any{"principal_id": p.ID, "error": rbErr.Error()})
		}
		return fmt.Errorf("%w: %v", ErrNotifier, err)
	}
	return nil
}

// ResetPassword consumes a raw reset token and installs the new password,
// bumping PasswordChangedAt so outstanding access tokens go stale.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	p, err := s.store.FindByResetToken(ctx, HashToken(rawToken))
	if err != nil {
		return err
	}
	if p.ResetExpiresAt == nil || s.now().After(*p.ResetExpiresAt) {
		return fmt.Errorf("%w: reset token expired", ErrInvalidInput)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, p.ID, hash, s.now().UTC()); err != nil {
		return err
	}
	return s.store.SetResetToken(ctx, p.ID, "", nil)
}

// ChangePassword verifies the current password before installing a new one.
func (s *Service) ChangePassword(ctx context.Context, principalID, current, next string) error {
	p, err := s.store.Find(ctx, principalID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(p.PasswordHash, current); err != nil {
		return ErrBadCredentials
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, p.ID, hash, s.now().UTC())
}

// Deactivate disables the account; subsequent session checks fail.
func (s *Service) Deactivate(ctx context.Context, principalID string) error {
	return s.store.SetStatus(ctx, principalID, StatusInactive)
}

func joinLink(base, token string) string {
	return strings.TrimRight(base, "/") + "/" + token
}

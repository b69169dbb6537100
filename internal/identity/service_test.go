package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSender struct {
	fail  bool
	sent  int
	to    string
	html  string
	text  string
	title string
}

func (f *fakeSender) Send(to, subject, html, text string) error {
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent++
	f.to = to
	f.title = subject
	f.html = html
	f.text = text
	return nil
}

func newTestService(t *testing.T, sender *fakeSender, opts ...ServiceOption) (*Service, *InMemory) {
	t.Helper()
	store := NewInMemory()
	svc, err := NewService(store, sender, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t, &fakeSender{})
	ctx := context.Background()

	p, err := svc.Register(ctx, "Alice@Example.com", "alice", "correct-horse", AccountUser)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", p.Email)
	}
	if p.Status != StatusActive {
		t.Fatalf("unexpected status: %s", p.Status)
	}

	if _, err := svc.Register(ctx, "alice@example.com", "alice2", "correct-horse", AccountUser); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected bad credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown email must look like bad credentials, got %v", err)
	}
}

func TestRegisterAdminRequiresAllowlist(t *testing.T) {
	svc, _ := newTestService(t, &fakeSender{}, WithAdminAllowlist([]string{"root@example.com"}))
	ctx := context.Background()

	if _, err := svc.Register(ctx, "mallory@example.com", "mallory", "password123", AccountAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Register(ctx, "root@example.com", "root", "password123", AccountAdmin); err != nil {
		t.Fatalf("allowlisted admin registration failed: %v", err)
	}
}

func TestVerificationFlowRollsBackOnSendFailure(t *testing.T) {
	sender := &fakeSender{fail: true}
	svc, store := newTestService(t, sender)
	ctx := context.Background()

	p, err := svc.Register(ctx, "bob@example.com", "bob", "password123", AccountUser)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	err = svc.RequestVerification(ctx, p.ID, "https://app.tasknest.org/verify")
	if !errors.Is(err, ErrNotifier) {
		t.Fatalf("expected notifier error, got %v", err)
	}
	got, _ := store.Find(ctx, p.ID)
	if got.VerificationTokenHash != "" || got.VerificationExpiresAt != nil {
		t.Fatal("verification token was not rolled back after send failure")
	}
}

func TestVerificationFlowEndToEnd(t *testing.T) {
	sender := &fakeSender{}
	svc, store := newTestService(t, sender)
	ctx := context.Background()

	p, _ := svc.Register(ctx, "carol@example.com", "carol", "password123", AccountUser)
	if err := svc.RequestVerification(ctx, p.ID, "https://app.tasknest.org/verify"); err != nil {
		t.Fatalf("RequestVerification: %v", err)
	}
	if sender.sent != 1 || sender.to != "carol@example.com" {
		t.Fatalf("verification email not sent: %+v", sender)
	}

	// The raw token is only inside the mailed link.
	idx := strings.LastIndex(sender.text, "/verify/")
	if idx < 0 {
		t.Fatalf("link missing from email body: %s", sender.text)
	}
	raw := sender.text[idx+len("/verify/"):]
	raw = strings.Fields(raw)[0]

	verified, err := svc.VerifyAccount(ctx, raw)
	if err != nil {
		t.Fatalf("VerifyAccount: %v", err)
	}
	if !verified.IsVerified {
		t.Fatal("principal not marked verified")
	}
	got, _ := store.Find(ctx, p.ID)
	if got.VerificationTokenHash != "" {
		t.Fatal("verification token not cleared after use")
	}
	if _, err := svc.VerifyAccount(ctx, raw); !errors.Is(err, ErrNotFound) {
		t.Fatalf("token must be single-use, got %v", err)
	}
}

func TestResetPasswordBumpsPasswordChangedAt(t *testing.T) {
	sender := &fakeSender{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc, store := newTestService(t, sender, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	p, _ := svc.Register(ctx, "dave@example.com", "dave", "password123", AccountUser)
	if err := svc.ForgotPassword(ctx, "dave@example.com", "https://app.tasknest.org/reset"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	idx := strings.LastIndex(sender.text, "/reset/")
	raw := strings.Fields(sender.text[idx+len("/reset/"):])[0]

	current = base.Add(5 * time.Minute)
	if err := svc.ResetPassword(ctx, raw, "new-password-1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	got, _ := store.Find(ctx, p.ID)
	if got.PasswordChangedAt == nil || !got.PasswordChangedAt.Equal(current) {
		t.Fatalf("PasswordChangedAt not bumped: %v", got.PasswordChangedAt)
	}
	if got.ResetTokenHash != "" {
		t.Fatal("reset token not cleared")
	}
	if _, err := svc.Authenticate(ctx, "dave@example.com", "new-password-1"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestResetTokenExpires(t *testing.T) {
	sender := &fakeSender{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc, _ := newTestService(t, sender, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	_, _ = svc.Register(ctx, "erin@example.com", "erin", "password123", AccountUser)
	_ = svc.ForgotPassword(ctx, "erin@example.com", "https://app.tasknest.org/reset")

	idx := strings.LastIndex(sender.text, "/reset/")
	raw := strings.Fields(sender.text[idx+len("/reset/"):])[0]

	current = base.Add(11 * time.Minute)
	if err := svc.ResetPassword(ctx, raw, "new-password-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

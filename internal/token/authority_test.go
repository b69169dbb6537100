package token

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestAuthority(t *testing.T, opts ...Option) (*Authority, *MemoryRefresh, *MemoryRevoked) {
	t.Helper()
	refresh := NewMemoryRefresh()
	revoked := NewMemoryRevoked()
	a, err := NewAuthority("access-secret", "refresh-secret", refresh, revoked, opts...)
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	return a, refresh, revoked
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	a, _, _ := newTestAuthority(t)

	tok, err := a.IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	claims, err := a.VerifyAccess(tok)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.PrincipalID != "user-1" {
		t.Fatalf("unexpected principal: %s", claims.PrincipalID)
	}
	if claims.Subject != "accessApi" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	a, _, _ := newTestAuthority(t)

	access, _ := a.IssueAccessToken("user-1")
	refresh, _ := a.IssueRefreshToken("user-1")

	if _, err := a.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := a.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _, _ := newTestAuthority(t, WithAccessTTL(time.Minute), WithClock(func() time.Time { return current }))

	tok, _ := a.IssueAccessToken("user-1")
	current = current.Add(2 * time.Minute)

	if _, err := a.VerifyAccess(tok); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestLoginReusesLatestRefreshCredential(t *testing.T) {
	a, _, _ := newTestAuthority(t)
	ctx := context.Background()

	_, first, err := a.Login(ctx, "user-1", RequestMeta{UserAgent: "cli", IPAddress: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, second, err := a.Login(ctx, "user-1", RequestMeta{})
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if first != second {
		t.Fatal("expected identical refresh token on second login within validity window")
	}
}

func TestLoginMintsAfterExpiry(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _, _ := newTestAuthority(t, WithRefreshTTL(time.Hour), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	_, first, _ := a.Login(ctx, "user-1", RequestMeta{})
	current = current.Add(2 * time.Hour)
	_, second, err := a.Login(ctx, "user-1", RequestMeta{})
	if err != nil {
		t.Fatalf("Login after expiry: %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh refresh token once the old one expired")
	}
}

func TestRefreshRemainingTracksReusedCredential(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _, _ := newTestAuthority(t, WithRefreshTTL(48*time.Hour), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	_, first, err := a.Login(ctx, "user-1", RequestMeta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	current = current.Add(24 * time.Hour)
	_, reused, err := a.Login(ctx, "user-1", RequestMeta{})
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if reused != first {
		t.Fatal("expected the first credential to be reused")
	}

	remaining, err := a.RefreshRemaining(reused)
	if err != nil {
		t.Fatalf("RefreshRemaining: %v", err)
	}
	if remaining != 24*time.Hour {
		t.Fatalf("expected 24h remaining on the reused credential, got %v", remaining)
	}
}

func TestLogoutBlacklistsExactAccessToken(t *testing.T) {
	a, refresh, _ := newTestAuthority(t)
	ctx := context.Background()

	access, refreshToken, _ := a.Login(ctx, "user-1", RequestMeta{})

	if err := a.Logout(ctx, access, refreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// Signature verification alone still succeeds.
	if _, err := a.VerifyAccess(access); err != nil {
		t.Fatalf("token should still verify structurally: %v", err)
	}
	revoked, err := a.Revoked(ctx, access)
	if err != nil || !revoked {
		t.Fatalf("expected token on revocation list, revoked=%v err=%v", revoked, err)
	}

	if _, err := refresh.Find(ctx, refreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("refresh credential should be deleted, got %v", err)
	}

	other, _ := a.IssueAccessToken("user-1")
	if revoked, _ := a.Revoked(ctx, other); revoked {
		t.Fatal("revocation must apply to the exact token string only")
	}
}

func TestRefreshRequiresPersistedCredential(t *testing.T) {
	a, _, _ := newTestAuthority(t)
	ctx := context.Background()

	// Signed but never persisted (e.g. deleted at logout).
	orphan, _ := a.IssueRefreshToken("user-1")
	if _, err := a.Refresh(ctx, orphan); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	_, refreshToken, _ := a.Login(ctx, "user-1", RequestMeta{})
	access, err := a.Refresh(ctx, refreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := a.VerifyAccess(access); err != nil {
		t.Fatalf("refreshed access token invalid: %v", err)
	}
}

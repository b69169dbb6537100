package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tasknest.org/internal/obs"
)

const (
	issuer         = "tasknest"
	subjectAccess  = "accessApi"
	subjectRefresh = "refreshToken"

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidToken indicates the token failed signature or structural
	// validation.
	ErrInvalidToken = errors.New("token: invalid")
	// ErrExpiredToken indicates a structurally valid token past its expiry.
	ErrExpiredToken = errors.New("token: expired")
)

// Claims are the JWT claims carried by both token kinds. The principal id
// travels in a dedicated claim; the registered subject distinguishes access
// from refresh tokens.
type Claims struct {
	PrincipalID string `json:"userId"`
	jwt.RegisteredClaims
}

// Authority issues and verifies access and refresh tokens and owns the
// revocation list. Access and refresh tokens are signed with independent
// secrets so one kind can never stand in for the other.
type Authority struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	refresh RefreshCredentialStore
	revoked RevokedTokenStore
	now     func() time.Time
}

// Option configures Authority behavior.
type Option func(*Authority)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(a *Authority) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAuthority constructs the token authority.
func NewAuthority(accessSecret, refreshSecret string, refresh RefreshCredentialStore, revoked RevokedTokenStore, opts ...Option) (*Authority, error) {
	if strings.TrimSpace(accessSecret) == "" || strings.TrimSpace(refreshSecret) == "" {
		return nil, errors.New("token: both signing secrets are required")
	}
	if refresh == nil || revoked == nil {
		return nil, errors.New("token: refresh and revocation stores are required")
	}
	a := &Authority{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		refresh:       refresh,
		revoked:       revoked,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AccessTTL returns the configured access token lifetime.
func (a *Authority) AccessTTL() time.Duration { return a.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (a *Authority) RefreshTTL() time.Duration { return a.refreshTTL }

// IssueAccessToken signs a short-lived access token for the principal.
func (a *Authority) IssueAccessToken(principalID string) (string, error) {
	return a.sign(principalID, subjectAccess, a.accessSecret, a.accessTTL)
}

// IssueRefreshToken signs a refresh token for the principal. Persistence as
// a RefreshCredential happens in Login.
func (a *Authority) IssueRefreshToken(principalID string) (string, error) {
	return a.sign(principalID, subjectRefresh, a.refreshSecret, a.refreshTTL)
}

func (a *Authority) sign(principalID, subject string, secret []byte, ttl time.Duration) (string, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", errors.New("token: principal id is required")
	}
	now := a.now().UTC()
	claims := Claims{
		PrincipalID: principalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token's signature and claims.
func (a *Authority) VerifyAccess(token string) (*Claims, error) {
	return a.verify(token, subjectAccess, a.accessSecret)
}

// VerifyRefresh validates a refresh token's signature and claims.
func (a *Authority) VerifyRefresh(token string) (*Claims, error) {
	return a.verify(token, subjectRefresh, a.refreshSecret)
}

func (a *Authority) verify(token, subject string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return a.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != issuer || claims.Subject != subject {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.PrincipalID) == "" {
		return nil, ErrInvalidToken
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Login issues an access token and resolves the refresh token per the reuse
// policy: the newest unexpired credential is reused verbatim; otherwise a new
// one is minted and persisted with the request metadata.
func (a *Authority) Login(ctx context.Context, principalID string, meta RequestMeta) (accessToken, refreshToken string, err error) {
	accessToken, err = a.IssueAccessToken(principalID)
	if err != nil {
		return "", "", err
	}

	now := a.now().UTC()
	existing, err := a.refresh.FindLatest(ctx, principalID, now)
	switch {
	case err == nil:
		obs.Info("reusing refresh credential", map[string]any{"principal_id": principalID})
		return accessToken, existing.Token, nil
	case errors.Is(err, ErrNotFound):
		// fall through to mint
	default:
		return "", "", err
	}

	refreshToken, err = a.IssueRefreshToken(principalID)
	if err != nil {
		return "", "", err
	}
	cred := &RefreshCredential{
		Token:       refreshToken,
		PrincipalID: principalID,
		UserAgent:   meta.UserAgent,
		IPAddress:   meta.IPAddress,
		IssuedAt:    now,
		ExpiresAt:   now.Add(a.refreshTTL),
	}
	if err := a.refresh.Create(ctx, cred); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Refresh validates a presented refresh token against both its signature and
// its persisted credential, then issues a fresh access token.
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := a.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	cred, err := a.refresh.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	if a.now().After(cred.ExpiresAt) {
		return "", ErrExpiredToken
	}
	return a.IssueAccessToken(claims.PrincipalID)
}

// RefreshRemaining reports how long the presented refresh token stays valid.
// Login can hand back an older, still-valid credential, so cookie lifetimes
// must follow the token's own expiry, not the configured window.
func (a *Authority) RefreshRemaining(refreshToken string) (time.Duration, error) {
	claims, err := a.VerifyRefresh(refreshToken)
	if err != nil {
		return 0, err
	}
	return claims.ExpiresAt.Time.Sub(a.now().UTC()), nil
}

// Logout deletes the presented refresh credential and blacklists the
// presented access token under its decoded expiry so it cannot be replayed
// before natural expiry.
func (a *Authority) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if refreshToken != "" {
		if err := a.refresh.Delete(ctx, refreshToken); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if accessToken == "" {
		return nil
	}
	claims, err := a.VerifyAccess(accessToken)
	if err != nil {
		// Nothing to blacklist: the token is already unusable.
		return nil
	}
	return a.revoked.Add(ctx, accessToken, claims.ExpiresAt.Time)
}

// Revoked reports whether the exact token string is on the revocation list.
func (a *Authority) Revoked(ctx context.Context, token string) (bool, error) {
	return a.revoked.Contains(ctx, token)
}

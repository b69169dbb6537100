package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tasknest.org/internal/obs"
	"tasknest.org/internal/token"
)

// Tokens covers the refresh_credentials and revoked_access_tokens tables.
type Tokens struct {
	db *sql.DB
}

var (
	_ token.RefreshCredentialStore = (*Tokens)(nil)
	_ token.RevokedTokenStore      = (*Tokens)(nil)
)

func (s *Tokens) Create(ctx context.Context, cred *token.RefreshCredential) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_credentials(token, principal_id, user_agent, ip_address, issued_at, expires_at)
		values ($1,$2,$3,$4,$5,$6)
	`, cred.Token, cred.PrincipalID, cred.UserAgent, cred.IPAddress, cred.IssuedAt, cred.ExpiresAt)
	return err
}

func (s *Tokens) Find(ctx context.Context, tok string) (*token.RefreshCredential, error) {
	return scanCredential(s.db.QueryRowContext(ctx, `
		select token, principal_id, user_agent, ip_address, issued_at, expires_at
		from refresh_credentials where token=$1
	`, tok))
}

func (s *Tokens) FindLatest(ctx context.Context, principalID string, now time.Time) (*token.RefreshCredential, error) {
	return scanCredential(s.db.QueryRowContext(ctx, `
		select token, principal_id, user_agent, ip_address, issued_at, expires_at
		from refresh_credentials
		where principal_id=$1 and expires_at > $2
		order by issued_at desc
		limit 1
	`, principalID, now))
}

func (s *Tokens) Delete(ctx context.Context, tok string) error {
	res, err := s.db.ExecContext(ctx, `delete from refresh_credentials where token=$1`, tok)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return token.ErrNotFound
	}
	return nil
}

func (s *Tokens) DeleteByPrincipal(ctx context.Context, principalID string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_credentials where principal_id=$1`, principalID)
	return err
}

func (s *Tokens) Add(ctx context.Context, tok string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_access_tokens(token, expires_at)
		values ($1,$2)
		on conflict (token) do nothing
	`, tok, expiresAt)
	return err
}

func (s *Tokens) Contains(ctx context.Context, tok string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		select 1 from revoked_access_tokens where token=$1 and expires_at > now()
	`, tok).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PurgeExpired deletes refresh credentials and revocation entries that are
// past their expiry. Returns the number of rows removed.
func (s *Tokens) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	res, err := s.db.ExecContext(ctx, `delete from refresh_credentials where expires_at <= $1`, now)
	if err != nil {
		return total, err
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	res, err = s.db.ExecContext(ctx, `delete from revoked_access_tokens where expires_at <= $1`, now)
	if err != nil {
		return total, err
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}

// RunPurge calls PurgeExpired on a fixed period until the context ends.
func (s *Tokens) RunPurge(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				obs.Error("token purge failed", map[string]any{"error": err.Error()})
				continue
			}
			if n > 0 {
				obs.Info("token purge", map[string]any{"rows": n})
			}
		}
	}
}

func scanCredential(row *sql.Row) (*token.RefreshCredential, error) {
	var cred token.RefreshCredential
	err := row.Scan(&cred.Token, &cred.PrincipalID, &cred.UserAgent, &cred.IPAddress, &cred.IssuedAt, &cred.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, token.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

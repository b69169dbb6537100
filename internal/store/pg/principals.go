package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"tasknest.org/internal/identity"
)

// Principals is the principals table.
type Principals struct {
	db *sql.DB
}

var _ identity.PrincipalStore = (*Principals)(nil)

const principalColumns = `
	id, email, display_name, role, password_hash, status,
	password_changed_at,
	is_verified, coalesce(verification_token_hash,''), verification_expires_at,
	coalesce(reset_token_hash,''), reset_expires_at,
	is_online, last_seen, created_at, updated_at`

func (s *Principals) Create(ctx context.Context, p *identity.Principal) error {
	_, err := s.db.ExecContext(ctx, `
		insert into principals(
			id, email, display_name, role, password_hash, status,
			is_verified, created_at, updated_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.Email, p.DisplayName, string(p.Role), p.PasswordHash, string(p.Status),
		p.IsVerified, p.CreatedAt, p.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return identity.ErrConflict
	}
	return err
}

func (s *Principals) Find(ctx context.Context, id string) (*identity.Principal, error) {
	return s.scanPrincipal(s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id=$1`, id))
}

func (s *Principals) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `select 1 from principals where id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Principals) FindByEmail(ctx context.Context, email string) (*identity.Principal, error) {
	return s.scanPrincipal(s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where email=$1`, email))
}

func (s *Principals) FindByVerificationToken(ctx context.Context, tokenHash string) (*identity.Principal, error) {
	return s.scanPrincipal(s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where verification_token_hash=$1`, tokenHash))
}

func (s *Principals) FindByResetToken(ctx context.Context, tokenHash string) (*identity.Principal, error) {
	return s.scanPrincipal(s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where reset_token_hash=$1`, tokenHash))
}

func (s *Principals) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return s.execOne(ctx, `
		update principals
		set password_hash=$2, password_changed_at=$3, updated_at=now()
		where id=$1
	`, id, passwordHash, changedAt)
}

func (s *Principals) SetStatus(ctx context.Context, id string, status identity.Status) error {
	return s.execOne(ctx, `
		update principals set status=$2, updated_at=now() where id=$1
	`, id, string(status))
}

func (s *Principals) SetVerified(ctx context.Context, id string) error {
	return s.execOne(ctx, `
		update principals set is_verified=true, updated_at=now() where id=$1
	`, id)
}

func (s *Principals) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error {
	return s.execOne(ctx, `
		update principals
		set verification_token_hash=nullif($2,''), verification_expires_at=$3, updated_at=now()
		where id=$1
	`, id, tokenHash, expiresAt)
}

func (s *Principals) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error {
	return s.execOne(ctx, `
		update principals
		set reset_token_hash=nullif($2,''), reset_expires_at=$3, updated_at=now()
		where id=$1
	`, id, tokenHash, expiresAt)
}

func (s *Principals) SetPresence(ctx context.Context, id string, online bool, seen time.Time) error {
	return s.execOne(ctx, `
		update principals set is_online=$2, last_seen=$3, updated_at=now() where id=$1
	`, id, online, seen)
}

func (s *Principals) scanPrincipal(row *sql.Row) (*identity.Principal, error) {
	var p identity.Principal
	var role, status string
	err := row.Scan(
		&p.ID, &p.Email, &p.DisplayName, &role, &p.PasswordHash, &status,
		&p.PasswordChangedAt,
		&p.IsVerified, &p.VerificationTokenHash, &p.VerificationExpiresAt,
		&p.ResetTokenHash, &p.ResetExpiresAt,
		&p.IsOnline, &p.LastSeen, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Role = identity.AccountRole(role)
	p.Status = identity.Status(status)
	return &p, nil
}

func (s *Principals) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

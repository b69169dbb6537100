package identity

import (
	"context"
	"sync"
	"time"
)

// InMemory implements PrincipalStore with in-process concurrency safety.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[string]*Principal
	byEmail map[string]string
}

var _ PrincipalStore = (*InMemory)(nil)

// NewInMemory creates an empty principal store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[string]*Principal),
		byEmail: make(map[string]string),
	}
}

func (s *InMemory) Create(ctx context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[p.Email]; ok {
		return ErrConflict
	}
	cp := *p
	s.byID[p.ID] = &cp
	s.byEmail[p.Email] = p.ID
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok, nil
}

func (s *InMemory) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemory) FindByVerificationToken(ctx context.Context, tokenHash string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if tokenHash != "" && p.VerificationTokenHash == tokenHash {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) FindByResetToken(ctx context.Context, tokenHash string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if tokenHash != "" && p.ResetTokenHash == tokenHash {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.PasswordHash = passwordHash
	ts := changedAt
	p.PasswordChangedAt = &ts
	p.UpdatedAt = changedAt
	return nil
}

func (s *InMemory) SetStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (s *InMemory) SetVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.IsVerified = true
	return nil
}

func (s *InMemory) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.VerificationTokenHash = tokenHash
	p.VerificationExpiresAt = expiresAt
	return nil
}

func (s *InMemory) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.ResetTokenHash = tokenHash
	p.ResetExpiresAt = expiresAt
	return nil
}

func (s *InMemory) SetPresence(ctx context.Context, id string, online bool, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.IsOnline = online
	ts := seen
	p.LastSeen = &ts
	return nil
}

package token

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryRevoked is a TTL-expiring in-memory revocation list. Entries purge
// themselves once the blacklisted token would have expired anyway.
type MemoryRevoked struct {
	c *gocache.Cache
}

var _ RevokedTokenStore = (*MemoryRevoked)(nil)

// NewMemoryRevoked creates the in-memory revocation list.
func NewMemoryRevoked() *MemoryRevoked {
	return &MemoryRevoked{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *MemoryRevoked) Add(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	m.c.Set(token, struct{}{}, ttl)
	return nil
}

func (m *MemoryRevoked) Contains(ctx context.Context, token string) (bool, error) {
	_, ok := m.c.Get(token)
	return ok, nil
}

// MemoryRefresh implements RefreshCredentialStore with in-process
// concurrency safety.
type MemoryRefresh struct {
	mu    sync.RWMutex
	creds map[string]*RefreshCredential // token -> credential
}

var _ RefreshCredentialStore = (*MemoryRefresh)(nil)

// NewMemoryRefresh creates an empty refresh credential store.
func NewMemoryRefresh() *MemoryRefresh {
	return &MemoryRefresh{creds: make(map[string]*RefreshCredential)}
}

func (m *MemoryRefresh) Create(ctx context.Context, cred *RefreshCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cred
	m.creds[cred.Token] = &cp
	return nil
}

func (m *MemoryRefresh) Find(ctx context.Context, token string) (*RefreshCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.creds[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (m *MemoryRefresh) FindLatest(ctx context.Context, principalID string, now time.Time) (*RefreshCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *RefreshCredential
	for _, cred := range m.creds {
		if cred.PrincipalID != principalID || !cred.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || cred.IssuedAt.After(latest.IssuedAt) {
			latest = cred
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryRefresh) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[token]; !ok {
		return ErrNotFound
	}
	delete(m.creds, token)
	return nil
}

func (m *MemoryRefresh) DeleteByPrincipal(ctx context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, cred := range m.creds {
		if cred.PrincipalID == principalID {
			delete(m.creds, token)
		}
	}
	return nil
}

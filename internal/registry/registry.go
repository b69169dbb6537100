// Package registry maintains the table of authenticated realtime
// connections and the heartbeat loop that reaps dead ones.
package registry

import (
	"context"
	"sync"
	"time"

	"tasknest.org/internal/obs"
)

// Socket is the minimal connection surface the registry needs. The transport
// adapter (websocket upgrade) and the test fakes both implement it.
type Socket interface {
	WriteJSON(v any) error
	Ping() error
	Close() error
}

// PresenceStore records online/offline transitions with a last-seen stamp.
type PresenceStore interface {
	SetPresence(ctx context.Context, principalID string, online bool, seen time.Time) error
}

// Envelope is the push message format.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type connection struct {
	socket  Socket
	isAlive bool
}

// Registry keys live connections by principal id. A second connection for
// the same principal replaces the first; the replaced socket is closed
// immediately rather than waiting for the heartbeat reaper.
type Registry struct {
	mu       sync.Mutex
	conns    map[string]*connection
	presence PresenceStore
	now      func() time.Time
}

// Option configures optional registry behavior.
type Option func(*Registry)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New constructs an empty registry. presence may be nil when no store should
// track online state.
func New(presence PresenceStore, opts ...Option) *Registry {
	r := &Registry{
		conns:    make(map[string]*connection),
		presence: presence,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an authenticated connection, replacing any prior one for the
// same principal.
func (r *Registry) Register(ctx context.Context, principalID string, s Socket) {
	r.mu.Lock()
	prior := r.conns[principalID]
	r.conns[principalID] = &connection{socket: s, isAlive: true}
	n := len(r.conns)
	r.mu.Unlock()

	if prior != nil {
		prior.socket.Close()
	}
	r.setPresence(ctx, principalID, true)
	obs.SetWSConnections(n)
	obs.Info("ws connected", map[string]any{"principal_id": principalID, "connections": n})
}

// Unregister removes the connection if it is still the registered one for the
// principal. A socket replaced by a newer connection is a no-op here so the
// replacement's presence is not clobbered.
func (r *Registry) Unregister(ctx context.Context, principalID string, s Socket) {
	r.mu.Lock()
	c, ok := r.conns[principalID]
	if !ok || c.socket != s {
		r.mu.Unlock()
		return
	}
	delete(r.conns, principalID)
	n := len(r.conns)
	r.mu.Unlock()

	s.Close()
	r.setPresence(ctx, principalID, false)
	obs.SetWSConnections(n)
	obs.Info("ws disconnected", map[string]any{"principal_id": principalID, "connections": n})
}

// MarkAlive records that the principal's connection answered the last ping.
func (r *Registry) MarkAlive(principalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[principalID]; ok {
		c.isAlive = true
	}
}

// Run drives the heartbeat until the context ends. Each tick terminates
// every connection that did not answer the previous ping, then pings the
// rest.
func (r *Registry) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// Sweep runs one heartbeat pass. Exposed for tests; Run calls it on a timer.
func (r *Registry) Sweep(ctx context.Context) { r.sweep(ctx) }

func (r *Registry) sweep(ctx context.Context) {
	r.mu.Lock()
	dead := make(map[string]Socket)
	live := make(map[string]Socket)
	for id, c := range r.conns {
		if !c.isAlive {
			dead[id] = c.socket
			continue
		}
		c.isAlive = false
		live[id] = c.socket
	}
	for id := range dead {
		delete(r.conns, id)
	}
	n := len(r.conns)
	r.mu.Unlock()

	for id, s := range dead {
		s.Close()
		r.setPresence(ctx, id, false)
		obs.Warn("ws reaped", map[string]any{"principal_id": id})
	}
	if len(dead) > 0 {
		obs.SetWSConnections(n)
	}
	// Ping outside the lock. A failed write is left for the next sweep:
	// the connection never answers, so it gets reaped then.
	for id, s := range live {
		if err := s.Ping(); err != nil {
			obs.Warn("ws ping failed", map[string]any{"principal_id": id})
		}
	}
}

// SendToUser delivers the envelope to the principal's live connection.
// Offline principals are a silent no-op: no queueing, no retry.
func (r *Registry) SendToUser(principalID string, env Envelope) {
	r.mu.Lock()
	c, ok := r.conns[principalID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = r.now().UTC()
	}
	if err := c.socket.WriteJSON(env); err != nil {
		obs.Warn("ws write failed", map[string]any{"principal_id": principalID, "type": env.Type})
	}
}

// SendToUsers delivers independently per principal; partial delivery is
// expected and not an error.
func (r *Registry) SendToUsers(principalIDs []string, env Envelope) {
	for _, id := range principalIDs {
		r.SendToUser(id, env)
	}
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Online reports whether the principal has a live connection.
func (r *Registry) Online(principalID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[principalID]
	return ok
}

func (r *Registry) setPresence(ctx context.Context, principalID string, online bool) {
	if r.presence == nil {
		return
	}
	if err := r.presence.SetPresence(ctx, principalID, online, r.now().UTC()); err != nil {
		obs.Warn("presence update failed", map[string]any{"principal_id": principalID, "error": err.Error()})
	}
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tasknest.org/internal/obs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalOrigin(origin)
	},
}

const wsWriteWait = 10 * time.Second

// wsSocket adapts a gorilla connection to the registry's socket interface.
// Gorilla permits one concurrent writer, so every write takes the mutex.
type wsSocket struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSocket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSocket) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}

type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// handleWS upgrades an authenticated realtime connection. The token arrives
// as a query parameter and goes through the full session policy before the
// upgrade.
func (a *API) handleWS(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	principal, err := a.guard.Authenticate(r.Context(), raw)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		obs.Warn("ws upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	sock := &wsSocket{conn: conn}
	ctx := r.Context()
	a.registry.Register(ctx, principal.ID, sock)
	defer a.registry.Unregister(ctx, principal.ID, sock)

	conn.SetPongHandler(func(string) error {
		a.registry.MarkAlive(principal.ID)
		return nil
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		a.registry.MarkAlive(principal.ID)
		if msg.Type == "ping" {
			_ = sock.WriteJSON(map[string]any{
				"type":      "pong",
				"timeStamp": time.Now().UTC(),
			})
		}
	}
}

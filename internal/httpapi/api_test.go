package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tasknest.org/internal/events"
	"tasknest.org/internal/identity"
	"tasknest.org/internal/membership"
	"tasknest.org/internal/registry"
	"tasknest.org/internal/session"
	"tasknest.org/internal/token"
)

type noopSender struct{}

func (noopSender) Send(to, subject, html, text string) error { return nil }

func newTestAPI(t *testing.T) (*API, http.Handler) {
	t.Helper()
	principals := identity.NewInMemory()
	idsvc, err := identity.NewService(principals, noopSender{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	authority, err := token.NewAuthority("access-secret", "refresh-secret",
		token.NewMemoryRefresh(), token.NewMemoryRevoked())
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	guard, err := session.NewGuard(authority, principals)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	ledger, err := membership.NewLedger(membership.NewInMemory(), principals)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	api := New(ReadyProbe{}, "test", guard, authority, idsvc, ledger,
		registry.New(principals), events.NewBus(), "http://localhost:8080")
	return api, api.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doJSONWithHeader(t *testing.T, h http.Handler, method, path, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", authorization)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, h http.Handler, email, name string) (string, []*http.Cookie) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/register", map[string]string{
		"email":       email,
		"displayName": name,
		"password":    "correct-horse",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": "correct-horse",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	return created.ID, rec.Result().Cookies()
}

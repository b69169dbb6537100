package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"tasknest.org/internal/events"
	"tasknest.org/internal/identity"
	"tasknest.org/internal/membership"
	"tasknest.org/internal/registry"
	"tasknest.org/internal/session"
	"tasknest.org/internal/token"
)

func TestProtectedPathWithoutTokenIsUnauthorized(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/v1/auth/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != authFailedMsg {
		t.Fatalf("expected generic auth message, got %q", body.Error)
	}
}

func TestLoginSetsHTTPOnlyCookiesAndMeWorks(t *testing.T) {
	_, h := newTestAPI(t)
	id, cookies := registerAndLogin(t, h, "ana@example.com", "Ana")

	var access, refresh bool
	for _, c := range cookies {
		switch c.Name {
		case "accessToken":
			access = true
		case "refreshToken":
			refresh = true
		}
		if !c.HttpOnly {
			t.Fatalf("cookie %s is not http-only", c.Name)
		}
	}
	if !access || !refresh {
		t.Fatalf("missing auth cookies: access=%v refresh=%v", access, refresh)
	}

	rec := doJSON(t, h, http.MethodGet, "/v1/auth/me", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d body %s", rec.Code, rec.Body.String())
	}
	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.ID != id || me.Email != "ana@example.com" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestLogoutInvalidatesPresentedToken(t *testing.T) {
	_, h := newTestAPI(t)
	_, cookies := registerAndLogin(t, h, "bo@example.com", "Bo")

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/logout", nil, cookies)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d body %s", rec.Code, rec.Body.String())
	}

	// Same cookie jar is now rejected by the blacklist.
	rec = doJSON(t, h, http.MethodGet, "/v1/auth/me", nil, cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	_, h := newTestAPI(t)
	_, cookies := registerAndLogin(t, h, "cy@example.com", "Cy")

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatal("empty access token")
	}

	// Refresh without the cookie fails.
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/refresh", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBadCredentialsAreIndistinguishable(t *testing.T) {
	_, h := newTestAPI(t)
	registerAndLogin(t, h, "dee@example.com", "Dee")

	wrongPassword := doJSON(t, h, http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "dee@example.com",
		"password": "wrong-password",
	}, nil)
	unknownEmail := doJSON(t, h, http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "wrong-password",
	}, nil)

	if wrongPassword.Code != http.StatusUnauthorized || unknownEmail.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongPassword.Code, unknownEmail.Code)
	}
	var a, b struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(wrongPassword.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(unknownEmail.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Error != b.Error {
		t.Fatal("login failure messages must not differ")
	}
}

func TestReusedRefreshCookieExpiresWithCredential(t *testing.T) {
	principals := identity.NewInMemory()
	idsvc, err := identity.NewService(principals, noopSender{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	current := time.Now().UTC().Truncate(time.Second)
	authority, err := token.NewAuthority("access-secret", "refresh-secret",
		token.NewMemoryRefresh(), token.NewMemoryRevoked(),
		token.WithRefreshTTL(48*time.Hour),
		token.WithClock(func() time.Time { return current }))
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
	h := api.Handler()

	creds := map[string]string{"email": "fay@example.com", "password": "correct-horse"}
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": creds["email"], "displayName": "Fay", "password": creds["password"],
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/auth/login", creds, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := refreshCookie(t, rec.Result().Cookies()).MaxAge; got != int((48 * time.Hour).Seconds()) {
		t.Fatalf("fresh credential cookie max-age: %d", got)
	}

	// Halfway through the credential's life, login reuses it; the new
	// cookie must not outlive it.
	current = current.Add(24 * time.Hour)
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/login", creds, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second login: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := refreshCookie(t, rec.Result().Cookies()).MaxAge; got != int((24 * time.Hour).Seconds()) {
		t.Fatalf("reused credential cookie max-age: %d", got)
	}
}

func refreshCookie(t *testing.T, cookies []*http.Cookie) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == session.RefreshCookie {
			return c
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

func TestBearerHeaderIsAcceptedWithoutCookie(t *testing.T) {
	api, h := newTestAPI(t)
	id, _ := registerAndLogin(t, h, "eli@example.com", "Eli")

	tok, err := api.authority.IssueAccessToken(id)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	req := doJSONWithHeader(t, h, http.MethodGet, "/v1/auth/me", "Bearer "+tok)
	if req.Code != http.StatusOK {
		t.Fatalf("bearer auth: status %d body %s", req.Code, req.Body.String())
	}
}

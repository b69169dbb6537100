package httpapi

import (
	"net/http"
	"strings"
	"time"

	"tasknest.org/internal/audit"
	"tasknest.org/internal/identity"
	"tasknest.org/internal/session"
	"tasknest.org/internal/token"
)

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.identity.Register(r.Context(), req.Email, req.DisplayName, req.Password, identity.AccountRole(req.Role))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// Every account starts with a personal workspace.
	if _, err := a.ledger.CreateWorkspace(r.Context(), p.ID, p.DisplayName+"'s Workspace", ""); err != nil {
		handleServiceError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"principal_id": p.ID,
		"email":        p.Email,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	access, refresh, err := a.authority.Login(r.Context(), p.ID, token.RequestMeta{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.setAuthCookies(w, access, refresh)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"principal_id": p.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        p,
		"accessToken": access,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	access, _ := session.TokenFromContext(r.Context())
	refresh, _ := session.RefreshTokenFromRequest(r)
	if err := a.authority.Logout(r.Context(), access, refresh); err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.clearAuthCookies(w)
	if pid, ok := session.PrincipalIDFromContext(r.Context()); ok {
		_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"principal_id": pid})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	refresh, ok := session.RefreshTokenFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
		return
	}
	access, err := a.authority.Refresh(r.Context(), refresh)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, a.authCookie(session.AccessCookie, access, a.authority.AccessTTL()))
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": access})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := session.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	pid, ok := session.PrincipalIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
		return
	}
	if err := a.identity.RequestVerification(r.Context(), pid, a.publicURL+"/v1/auth/verify-account"); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "verification email sent"})
}

func (a *API) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/verify-account/"), "/")
	p, err := a.identity.VerifyAccount(r.Context(), raw)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.verified", map[string]any{"principal_id": p.ID})
	writeJSON(w, http.StatusOK, map[string]any{"status": "account verified"})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.identity.ForgotPassword(r.Context(), req.Email, a.publicURL+"/v1/auth/reset-password"); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset email sent"})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/reset-password/"), "/")
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.identity.ResetPassword(r.Context(), raw, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password reset"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	pid, ok := session.PrincipalIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.identity.ChangePassword(r.Context(), pid, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_changed", map[string]any{"principal_id": pid})
	writeJSON(w, http.StatusOK, map[string]any{"status": "password changed"})
}

// --- cookies ---

func (a *API) setAuthCookies(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, a.authCookie(session.AccessCookie, access, a.authority.AccessTTL()))
	refreshTTL := a.authority.RefreshTTL()
	// Login may hand back a reused, older credential; the cookie must expire
	// with the credential, not a full window later.
	if remaining, err := a.authority.RefreshRemaining(refresh); err == nil && remaining < refreshTTL {
		refreshTTL = remaining
	}
	http.SetCookie(w, a.authCookie(session.RefreshCookie, refresh, refreshTTL))
}

func (a *API) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, a.authCookie(session.AccessCookie, "", -1))
	http.SetCookie(w, a.authCookie(session.RefreshCookie, "", -1))
}

func (a *API) authCookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}

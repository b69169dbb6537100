package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"tasknest.org/internal/events"
	"tasknest.org/internal/identity"
	"tasknest.org/internal/membership"
	"tasknest.org/internal/obs"
	"tasknest.org/internal/registry"
	"tasknest.org/internal/session"
	"tasknest.org/internal/token"
)

// ReadyProbe — readiness check (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	guard     *session.Guard
	authority *token.Authority
	identity  *identity.Service
	ledger    *membership.Ledger
	registry  *registry.Registry
	bus       *events.Bus

	// Prefix for the links mailed by verification/reset flows.
	publicURL string
}

func New(rp ReadyProbe, version string, guard *session.Guard, authority *token.Authority,
	idsvc *identity.Service, ledger *membership.Ledger, reg *registry.Registry,
	bus *events.Bus, publicURL string) *API {

	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		guard:      guard,
		authority:  authority,
		identity:   idsvc,
		ledger:     ledger,
		registry:   reg,
		bus:        bus,
		publicURL:  publicURL,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth flows
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/request-verification", a.handleRequestVerification)
	a.mux.HandleFunc("/v1/auth/verify-account/", a.handleVerifyAccount)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password/", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/change-password", a.handleChangePassword)

	// membership
	a.mux.HandleFunc("/v1/workspaces", a.handleWorkspaces)
	a.mux.HandleFunc("/v1/workspaces/", a.handleWorkspaceScoped)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectScoped)

	// realtime
	a.mux.HandleFunc("/ws", a.handleWS)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 40, 20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = Logging(h)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tasknest-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "tasknest-api",
		"time":        time.Now().UTC().Format(time.RFC3339),
		"version":     a.version,
		"connections": a.registry.Len(),
	})
}

package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"opticore.org/internal/audit"
	"opticore.org/internal/auth"
	"opticore.org/internal/obs"
	"opticore.org/internal/perm"
	"opticore.org/internal/store/pg"
	"opticore.org/internal/twofactor"
)

// ReadyProbe reports readiness (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the collaborators the HTTP layer wires together.
type Deps struct {
	Auth       *auth.Service
	AuthStore  auth.Store
	Perms      *perm.Engine
	PermStore  perm.Store
	TwoFactor  *twofactor.Service
	Gate       *twofactor.Gate
	Audit      *audit.Pipeline
	AuditStore audit.Store
	Records    *pg.RecordStore
	ReadyProbe ReadyProbe
	Version    string
	BcryptCost int
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	deps Deps
}

func New(deps Deps) *API {
	a := &API{
		mux:  http.NewServeMux(),
		deps: deps,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout-all", a.handleLogoutAll)

	// two-factor enrollment and step-up
	a.mux.HandleFunc("/v1/auth/2fa/setup", a.handleTwoFactorSetup)
	a.mux.HandleFunc("/v1/auth/2fa/confirm", a.handleTwoFactorConfirm)
	a.mux.HandleFunc("/v1/auth/2fa/verify", a.handleTwoFactorVerify)

	// caller introspection
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)

	// administration
	a.mux.HandleFunc("/v1/accounts", a.handleAccounts)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)
	a.mux.HandleFunc("/v1/tenants", a.handleTenants)
	a.mux.HandleFunc("/v1/tenants/", a.handleTenantResource)
	a.mux.HandleFunc("/v1/audit", a.handleAuditList)

	// sample tenant-scoped clinical records
	a.mux.HandleFunc("/v1/records", a.handleRecordsCollection)
	a.mux.HandleFunc("/v1/records/", a.handleRecordResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "opticore-api",
		"version": a.deps.Version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.ReadyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "opticore-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}

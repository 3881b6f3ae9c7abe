// Package httpapi is the HTTP surface of the auth service: the token
// endpoints, the account lifecycle endpoints and the role management API,
// behind a shared middleware chain.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/vertyll/fastprod-auth/internal/audit"
	"github.com/vertyll/fastprod-auth/internal/auth"
	"github.com/vertyll/fastprod-auth/internal/obs"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the wiring for the HTTP layer.
type Options struct {
	Tokens     *auth.TokenService
	Resolver   *auth.Resolver
	Accounts   *auth.AccountService
	Resets     *auth.ResetOrchestrator
	Admin      *auth.Admin
	Audit      audit.Sink
	Ready      ReadyProbe
	Version    string
	MaxBody    int64
	RateRPS    float64
	RateBurst  int
	EnableCORS bool
}

// API routes requests to the auth services.
type API struct {
	mux      *http.ServeMux
	tokens   *auth.TokenService
	resolver *auth.Resolver
	accounts *auth.AccountService
	resets   *auth.ResetOrchestrator
	admin    *auth.Admin
	sink     audit.Sink

	readyProbe ReadyProbe
	version    string
	opts       Options
}

// New builds the API and registers all routes.
func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		tokens:     opts.Tokens,
		resolver:   opts.Resolver,
		accounts:   opts.Accounts,
		resets:     opts.Resets,
		admin:      opts.Admin,
		sink:       opts.Audit,
		readyProbe: opts.Ready,
		version:    opts.Version,
		opts:       opts,
	}
	if a.sink == nil {
		a.sink = audit.NopSink{}
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout-all", a.handleLogoutAll)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/verify", a.handleVerify)
	a.mux.HandleFunc("/v1/auth/resend-verification", a.handleResendVerification)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/password-reset/request", a.handleResetRequest)
	a.mux.HandleFunc("/v1/auth/password-reset/confirm", a.handleResetConfirm)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/sessions", a.handleSessions)

	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/identities/", a.handleIdentityResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})

	return a
}

// Handler assembles the middleware chain around the mux. Order matters:
// request id first so every later stage can correlate, rate limiting before
// authentication so credential stuffing cannot grind bcrypt.
func (a *API) Handler() http.Handler {
	maxBody := a.opts.MaxBody
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	rps, burst := a.opts.RateRPS, a.opts.RateBurst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}

	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, rps, burst)
	h = MaxBodyBytes(h, maxBody)
	h = SecurityHeaders(h)
	if a.opts.EnableCORS {
		h = CORS(h)
	}
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) recordAudit(ctx context.Context, event audit.Event) {
	_ = a.sink.Record(ctx, event)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fastprod-auth",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
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
		"name":    "fastprod-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// Package httpapi is the access gateway: every request passes rate limiting,
// bearer authentication, and the moat/guard layers before anything reaches
// the database, and everything security-relevant lands in the audit trail.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"moatgate.org/internal/audit"
	"moatgate.org/internal/auth"
	"moatgate.org/internal/guard"
	"moatgate.org/internal/moat"
	"moatgate.org/internal/obs"
	"moatgate.org/internal/ratelimit"
)

// Error kinds of the response envelope. Each maps to exactly one status code
// so clients can dispatch on either.
const (
	kindBlocked      = "blocked"
	kindGuardrail    = "guardrail"
	kindValidation   = "validation"
	kindAuth         = "auth"
	kindRateLimit    = "rate_limit"
	kindNotConnected = "not_connected"
	kindInternal     = "internal"
)

// QueryExecutor is the guarded execution surface the gateway needs.
type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string, args ...any) (*guard.Result, error)
	TableColumns(ctx context.Context, table string) ([]guard.Column, error)
	Ping(ctx context.Context) error
}

// Options carries the collaborators the API composes. All fields are
// required except Searcher, which falls back to the registry searcher.
type Options struct {
	Log      zerolog.Logger
	Metrics  *obs.Metrics
	Auth     *auth.Service
	Executor QueryExecutor
	Filter   *moat.Filter
	Registry *moat.Registry
	Searcher moat.Searcher
	Limiter  *ratelimit.Limiter
	Audit    *audit.Logger

	MaxBodyBytes   int64
	BurstPerSecond int
	Version        string
}

// API is the HTTP layer.
type API struct {
	log      zerolog.Logger
	metrics  *obs.Metrics
	auth     *auth.Service
	executor QueryExecutor
	filter   *moat.Filter
	registry *moat.Registry
	searcher moat.Searcher
	limiter  *ratelimit.Limiter
	audit    *audit.Logger

	maxBodyBytes int64
	burst        int
	version      string
}

func New(opts Options) *API {
	if opts.Searcher == nil {
		opts.Searcher = moat.NewRegistrySearcher(opts.Registry)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &API{
		log:          opts.Log,
		metrics:      opts.Metrics,
		auth:         opts.Auth,
		executor:     opts.Executor,
		filter:       opts.Filter,
		registry:     opts.Registry,
		searcher:     opts.Searcher,
		limiter:      opts.Limiter,
		audit:        opts.Audit,
		maxBodyBytes: opts.MaxBodyBytes,
		burst:        opts.BurstPerSecond,
		version:      opts.Version,
	}
}

// Handler builds the router. Middleware order matters: logging and metrics
// wrap everything, the burst brake runs before any work, and the sliding
// window runs after authentication so authenticated callers are keyed by
// subject instead of source address.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.requestLogger)
	r.Use(securityHeaders)
	r.Use(maxBodyBytes(a.maxBodyBytes))
	if a.burst > 0 {
		r.Use(a.burstBrake(a.burst))
	}

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(a.rateLimitAuth)
			r.Post("/login", a.handleLogin)
			r.Post("/logout", a.handleLogout)
			r.Post("/refresh", a.handleRefresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Use(a.rateLimit)
			r.Post("/query", a.handleQuery)
			r.Get("/schema/tables/{name}", a.handleTableSchema)
			r.Get("/audit/events", a.handleAuditEvents)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.optionalAuth)
			r.Use(a.rateLimit)
			r.Get("/schema/search", a.handleSchemaSearch)
		})
	})

	return a.metrics.Instrument(r)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]string{
			"kind":    kind,
			"message": message,
		},
	})
}

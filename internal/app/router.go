package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/gatekeep/gatekeep/internal/acl"
	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/observability"
	"github.com/gatekeep/gatekeep/internal/platform/httpx"
	"github.com/gatekeep/gatekeep/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Access         acl.Middleware
	AuthHandler    *auth.Handler
	ACLHandler     *acl.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Gatekeep defaults. Every
// route, including the catch-all, sits behind the access middleware;
// what is reachable without authentication is decided by the graph's
// public role, never by route ordering.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Access:         params.Access,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, r.Method)
	})

	loginLimit := 10
	if params.Config != nil && params.Config.LoginRateLimitPerMinute > 0 {
		loginLimit = params.Config.LoginRateLimitPerMinute
	}
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		gr.Post("/login", params.AuthHandler.HandleLogin)
	})
	params.AuthHandler.MountRoutes(r)
	params.ACLHandler.MountRoutes(r)

	// Unmatched routes echo back request details. They are reachable
	// only for identities whose roles grant the standing wildcard
	// permission; the access middleware already decided that.
	catchAll := func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
	r.NotFound(catchAll)
	r.MethodNotAllowed(catchAll)

	return r
}

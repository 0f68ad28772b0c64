package acl

import (
	"log/slog"
	"net/http"

	"github.com/gatekeep/gatekeep/internal/identity"
	"github.com/gatekeep/gatekeep/internal/platform/httpx"
	"github.com/gatekeep/gatekeep/internal/shared"
)

// DecisionRecorder counts authorization outcomes for observability.
type DecisionRecorder interface {
	RecordDecision(allowed bool)
}

// Middleware authorizes every inbound request before any route handler
// executes. Reachability of login, logout and registration is granted
// through public-role permissions in the dataset, not through bypasses
// here: the graph stays the single source of truth.
type Middleware struct {
	Resolver *identity.Resolver
	Graph    *Graph
	Logger   *slog.Logger
	Metrics  DecisionRecorder
}

// Authorize resolves the request identity, derives (resource, action)
// from path and method, and short-circuits with 403 on deny. On allow
// the identity is attached read-only to the request context.
func (m Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		id := m.Resolver.Resolve(r.Context(), sess)

		resource := r.URL.Path
		action := ActionForMethod(r.Method)
		allowed := m.Graph.Authorize(id, resource, action)
		if m.Metrics != nil {
			m.Metrics.RecordDecision(allowed)
		}
		if !allowed {
			if m.Logger != nil {
				m.Logger.Debug("access denied",
					slog.String("resource", resource),
					slog.String("action", string(action)),
					slog.String("user_id", id.UserID),
					slog.Bool("authenticated", id.IsAuthenticated()))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
			return
		}
		ctx := identity.ContextWithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

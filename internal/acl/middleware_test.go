package acl_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/internal/acl"
	"github.com/gatekeep/gatekeep/internal/identity"
	"github.com/gatekeep/gatekeep/internal/shared"
)

type stubDirectory struct {
	users map[string]identity.User
}

func (s *stubDirectory) FindByID(ctx context.Context, userID string) (identity.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return identity.User{}, shared.ErrUserNotFound
	}
	return user, nil
}

type countingRecorder struct {
	allows int
	denies int
}

func (c *countingRecorder) RecordDecision(allowed bool) {
	if allowed {
		c.allows++
	} else {
		c.denies++
	}
}

func newAccessMiddleware(t *testing.T) (acl.Middleware, *acl.Graph, *countingRecorder) {
	t.Helper()
	graph := acl.NewGraph("public")
	require.NoError(t, graph.Replace(adminDataset()))
	dir := &stubDirectory{users: map[string]identity.User{
		"7": {ID: "7", Email: "admin@example.com", Name: "Admin"},
	}}
	metrics := &countingRecorder{}
	mw := acl.Middleware{
		Resolver: identity.NewResolver(dir, graph, nil),
		Graph:    graph,
		Metrics:  metrics,
	}
	return mw, graph, metrics
}

func requestWithSession(method, target string, sess *shared.Session) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	return req
}

func TestMiddlewareAllowsPublicRoute(t *testing.T) {
	mw, _, metrics := newAccessMiddleware(t)

	var sawIdentity identity.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIdentity = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	res := httptest.NewRecorder()
	mw.Authorize(next).ServeHTTP(res, requestWithSession(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.True(t, sawIdentity.IsAnonymous())
	assert.Equal(t, 1, metrics.allows)
}

func TestMiddlewareDeniesAnonymous(t *testing.T) {
	mw, _, metrics := newAccessMiddleware(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on deny")
	})

	res := httptest.NewRecorder()
	mw.Authorize(next).ServeHTTP(res, requestWithSession(http.MethodPut, "/admin/settings", nil))

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, 1, metrics.denies)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &problem))
	assert.Equal(t, "Forbidden", problem["title"])
}

func TestMiddlewareAllowsAuthenticatedAdmin(t *testing.T) {
	mw, _, _ := newAccessMiddleware(t)

	sess := &shared.Session{ID: "tok-1"}
	sess.Login("7")

	var sawIdentity identity.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIdentity = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	res := httptest.NewRecorder()
	mw.Authorize(next).ServeHTTP(res, requestWithSession(http.MethodPut, "/admin/settings", sess))

	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.True(t, sawIdentity.IsAuthenticated())
	assert.Equal(t, "7", sawIdentity.UserID)
	assert.Contains(t, sawIdentity.Roles, "admin")
}

func TestMiddlewareLoggedOutSessionIsAnonymous(t *testing.T) {
	mw, _, _ := newAccessMiddleware(t)

	sess := &shared.Session{ID: "tok-2"}
	sess.Login("7")
	sess.Logout()

	res := httptest.NewRecorder()
	mw.Authorize(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on deny")
	})).ServeHTTP(res, requestWithSession(http.MethodPut, "/admin/settings", sess))

	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestMiddlewareDeletedUserIsAnonymous(t *testing.T) {
	mw, _, _ := newAccessMiddleware(t)

	sess := &shared.Session{ID: "tok-3"}
	sess.Login("404")

	res := httptest.NewRecorder()
	mw.Authorize(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on deny")
	})).ServeHTTP(res, requestWithSession(http.MethodPut, "/admin/settings", sess))

	assert.Equal(t, http.StatusForbidden, res.Code)
}

package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gatekeep/gatekeep/internal/identity"
	"github.com/gatekeep/gatekeep/internal/shared"
)

type stubDirectory struct {
	users map[string]identity.User
	err   error
}

func (s *stubDirectory) FindByID(ctx context.Context, userID string) (identity.User, error) {
	if s.err != nil {
		return identity.User{}, s.err
	}
	user, ok := s.users[userID]
	if !ok {
		return identity.User{}, shared.ErrUserNotFound
	}
	return user, nil
}

type stubRoles struct {
	roles map[string][]string
}

func (s *stubRoles) RolesFor(userID string) []string {
	return s.roles[userID]
}

func loggedInSession(userID string) *shared.Session {
	sess := &shared.Session{ID: "tok"}
	sess.Login(userID)
	return sess
}

func TestResolveNilSession(t *testing.T) {
	r := identity.NewResolver(&stubDirectory{}, &stubRoles{}, nil)

	if id := r.Resolve(context.Background(), nil); !id.IsAnonymous() {
		t.Fatalf("expected anonymous identity for nil session")
	}
}

func TestResolveLoggedOutSession(t *testing.T) {
	dir := &stubDirectory{users: map[string]identity.User{"5": {ID: "5"}}}
	r := identity.NewResolver(dir, &stubRoles{}, nil)

	// Logout keeps the userID on the session, so the resolver must key
	// off the login flag alone.
	sess := loggedInSession("5")
	sess.Logout()

	if id := r.Resolve(context.Background(), sess); !id.IsAnonymous() {
		t.Fatalf("expected anonymous identity after logout, got user %q", id.UserID)
	}
}

func TestResolveAuthenticated(t *testing.T) {
	dir := &stubDirectory{users: map[string]identity.User{"5": {ID: "5", Email: "a@example.com"}}}
	roles := &stubRoles{roles: map[string][]string{"5": {"user"}}}
	r := identity.NewResolver(dir, roles, nil)

	id := r.Resolve(context.Background(), loggedInSession("5"))
	if !id.IsAuthenticated() {
		t.Fatalf("expected authenticated identity")
	}
	if id.UserID != "5" {
		t.Fatalf("expected user 5, got %q", id.UserID)
	}
	if len(id.Roles) != 1 || id.Roles[0] != "user" {
		t.Fatalf("expected roles [user], got %v", id.Roles)
	}
}

func TestResolveDeletedUser(t *testing.T) {
	r := identity.NewResolver(&stubDirectory{users: map[string]identity.User{}}, &stubRoles{}, nil)

	if id := r.Resolve(context.Background(), loggedInSession("404")); !id.IsAnonymous() {
		t.Fatalf("expected anonymous identity for deleted user")
	}
}

func TestResolveDirectoryErrorFailsClosed(t *testing.T) {
	r := identity.NewResolver(&stubDirectory{err: errors.New("pg down")}, &stubRoles{}, nil)

	if id := r.Resolve(context.Background(), loggedInSession("5")); !id.IsAnonymous() {
		t.Fatalf("expected anonymous identity when the directory is unavailable")
	}
}

func TestResolveReadsRolesFresh(t *testing.T) {
	dir := &stubDirectory{users: map[string]identity.User{"5": {ID: "5"}}}
	roles := &stubRoles{roles: map[string][]string{"5": {"admin"}}}
	r := identity.NewResolver(dir, roles, nil)

	sess := loggedInSession("5")
	if id := r.Resolve(context.Background(), sess); len(id.Roles) != 1 || id.Roles[0] != "admin" {
		t.Fatalf("expected roles [admin], got %v", id.Roles)
	}

	// Revocation takes effect on the next resolution, not at session expiry.
	roles.roles["5"] = nil
	if id := r.Resolve(context.Background(), sess); len(id.Roles) != 0 {
		t.Fatalf("expected no roles after revocation, got %v", id.Roles)
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := identity.FromContext(ctx); !id.IsAnonymous() {
		t.Fatalf("expected anonymous identity from empty context")
	}

	ctx = identity.ContextWithIdentity(ctx, identity.Authenticated("5", []string{"user"}))
	id := identity.FromContext(ctx)
	if !id.IsAuthenticated() || id.UserID != "5" {
		t.Fatalf("expected stored identity back, got %+v", id)
	}
}

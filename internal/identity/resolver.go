package identity

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/gatekeep/gatekeep/internal/shared"
)

// User is the directory projection the resolver needs.
type User struct {
	ID    string
	Email string
	Name  string
}

// UserDirectory is the external collaborator providing user lookups.
type UserDirectory interface {
	FindByID(ctx context.Context, userID string) (User, error)
}

// RoleSource answers which roles a user currently holds. Roles are read
// fresh on every resolution so a revocation takes effect on the next
// request, not on session expiry.
type RoleSource interface {
	RolesFor(userID string) []string
}

// Resolver turns a session into an Identity. Any ambiguity about the
// session or the user resolves to Anonymous, never to an error.
type Resolver struct {
	users  UserDirectory
	roles  RoleSource
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver constructs a Resolver.
func NewResolver(users UserDirectory, roles RoleSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{users: users, roles: roles, logger: logger}
}

// Resolve produces the identity for the given session.
func (r *Resolver) Resolve(ctx context.Context, sess *shared.Session) Identity {
	if sess == nil {
		return Anonymous()
	}
	if !sess.LoggedIn() || sess.User() == "" {
		return Anonymous()
	}
	userID := sess.User()

	// Concurrent requests for the same user share one directory lookup.
	v, err, _ := r.group.Do(userID, func() (any, error) {
		return r.users.FindByID(ctx, userID)
	})
	if err != nil {
		if !errors.Is(err, shared.ErrUserNotFound) && !errors.Is(err, shared.ErrNotFound) {
			r.logger.Warn("identity lookup failed, treating as anonymous",
				slog.String("user_id", userID), slog.Any("error", err))
		}
		return Anonymous()
	}
	user, ok := v.(User)
	if !ok {
		return Anonymous()
	}
	return Authenticated(user.ID, r.roles.RolesFor(user.ID))
}

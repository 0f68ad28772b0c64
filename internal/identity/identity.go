// Package identity resolves the authentication state of a request from
// its session and the user directory.
package identity

// Identity is the resolved authentication state of a request: either
// anonymous or authenticated with the roles held at resolution time.
type Identity struct {
	UserID        string
	Roles         []string
	authenticated bool
}

// Anonymous returns the unauthenticated identity.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns an identity for the given user and roles.
func Authenticated(userID string, roles []string) Identity {
	return Identity{UserID: userID, Roles: roles, authenticated: true}
}

// IsAuthenticated reports whether the identity belongs to a known user.
func (id Identity) IsAuthenticated() bool {
	return id.authenticated
}

// IsAnonymous reports whether the identity is unauthenticated.
func (id Identity) IsAnonymous() bool {
	return !id.authenticated
}

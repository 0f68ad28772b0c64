package acl

import (
	"sort"
	"sync/atomic"

	"github.com/gatekeep/gatekeep/internal/identity"
)

// snapshot is one immutable authorization epoch. Readers pick up the
// pointer once per call, so an in-flight Authorize completes against a
// single consistent graph even while Replace swaps in a new one.
type snapshot struct {
	roles       map[string]Role
	permissions map[string]Permission
	rolePerms   map[string][]string
	userRoles   map[string][]string
}

func emptySnapshot() *snapshot {
	return &snapshot{
		roles:       map[string]Role{},
		permissions: map[string]Permission{},
		rolePerms:   map[string][]string{},
		userRoles:   map[string][]string{},
	}
}

// Graph answers authorization queries against the current snapshot.
type Graph struct {
	current    atomic.Pointer[snapshot]
	publicRole string
}

// NewGraph constructs an empty graph. publicRole names the role whose
// permissions apply to every identity including Anonymous; empty means
// anonymous requests are always denied.
func NewGraph(publicRole string) *Graph {
	g := &Graph{publicRole: publicRole}
	g.current.Store(emptySnapshot())
	return g
}

// Replace validates ds and atomically swaps it in as the new epoch. On
// any error the previous snapshot stays active.
func (g *Graph) Replace(ds Dataset) error {
	snap, err := buildSnapshot(ds)
	if err != nil {
		return err
	}
	g.current.Store(snap)
	return nil
}

// Authorize decides whether id may perform action on resource. Denies
// unless at least one held role, or the public role, grants a matching
// permission.
func (g *Graph) Authorize(id identity.Identity, resource string, action Action) bool {
	snap := g.current.Load()
	if g.publicRole != "" && snap.roleGrants(g.publicRole, resource, action) {
		return true
	}
	if id.IsAnonymous() {
		return false
	}
	for _, roleID := range id.Roles {
		if snap.roleGrants(roleID, resource, action) {
			return true
		}
	}
	return false
}

// RolesFor returns the role IDs currently bound to userID.
func (g *Graph) RolesFor(userID string) []string {
	snap := g.current.Load()
	bound := snap.userRoles[userID]
	if len(bound) == 0 {
		return nil
	}
	roles := make([]string, len(bound))
	copy(roles, bound)
	return roles
}

// Roles lists the roles of the active snapshot ordered by ID.
func (g *Graph) Roles() []Role {
	snap := g.current.Load()
	roles := make([]Role, 0, len(snap.roles))
	for _, role := range snap.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles
}

// Permissions lists the permissions of the active snapshot ordered by ID.
func (g *Graph) Permissions() []Permission {
	snap := g.current.Load()
	perms := make([]Permission, 0, len(snap.permissions))
	for _, perm := range snap.permissions {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms
}

// PublicRole returns the designated public role ID.
func (g *Graph) PublicRole() string {
	return g.publicRole
}

func (s *snapshot) roleGrants(roleID, resource string, action Action) bool {
	for _, permID := range s.rolePerms[roleID] {
		perm, ok := s.permissions[permID]
		if !ok {
			continue
		}
		if matchAction(Action(perm.Action), action) && MatchResource(perm.ResourcePattern, resource) {
			return true
		}
	}
	return false
}

func buildSnapshot(ds Dataset) (*snapshot, error) {
	snap := emptySnapshot()
	for _, role := range ds.Roles {
		snap.roles[role.ID] = role
	}
	for _, perm := range ds.Permissions {
		snap.permissions[perm.ID] = perm
	}
	for _, rp := range ds.RolePermissions {
		if _, ok := snap.roles[rp.RoleID]; !ok {
			return nil, referentialFailure("rolePermissions references undefined role %q", rp.RoleID)
		}
		if _, ok := snap.permissions[rp.PermissionID]; !ok {
			return nil, referentialFailure("role %q references undefined permission %q", rp.RoleID, rp.PermissionID)
		}
		snap.rolePerms[rp.RoleID] = append(snap.rolePerms[rp.RoleID], rp.PermissionID)
	}
	for _, ur := range ds.UserRoles {
		if _, ok := snap.roles[ur.RoleID]; !ok {
			return nil, referentialFailure("userRoles references undefined role %q", ur.RoleID)
		}
		snap.userRoles[ur.UserID] = append(snap.userRoles[ur.UserID], ur.RoleID)
	}
	return snap, nil
}

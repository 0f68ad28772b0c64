// Package acl implements the role and permission graph that decides
// whether an identity may perform an action on a resource, plus the
// bulk importer that replaces the graph from a JSON dataset.
package acl

import "strings"

// Action is one of the closed set of verbs a permission can grant.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	// ActionAny grants every action on the matched resource. It is only
	// valid inside a permission, requests always carry a concrete verb.
	ActionAny Action = "*"
)

// ParseAction validates an action string from an import dataset.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.TrimSpace(strings.ToLower(s))) {
	case ActionRead:
		return ActionRead, true
	case ActionCreate:
		return ActionCreate, true
	case ActionWrite:
		return ActionWrite, true
	case ActionDelete:
		return ActionDelete, true
	case ActionAny:
		return ActionAny, true
	default:
		return "", false
	}
}

// ActionForMethod maps an HTTP method onto the closed action set. The
// mapping is total: methods outside the usual verbs map to ActionWrite
// so every request yields exactly one verdict.
func ActionForMethod(method string) Action {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return ActionRead
	case "POST":
		return ActionCreate
	case "PUT", "PATCH":
		return ActionWrite
	case "DELETE":
		return ActionDelete
	default:
		return ActionWrite
	}
}

// Role is a named bundle of permissions.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Permission grants an action on a resource pattern.
type Permission struct {
	ID              string `json:"id"`
	ResourcePattern string `json:"resourcePattern"`
	Action          string `json:"action"`
}

// RolePermission attaches a permission to a role.
type RolePermission struct {
	RoleID       string `json:"roleId"`
	PermissionID string `json:"permissionId"`
}

// UserRole binds a user to a role. Users acquire permissions only
// through roles, the model is a strict two-level graph.
type UserRole struct {
	UserID string `json:"userId"`
	RoleID string `json:"roleId"`
}

// Dataset is the external import format. Unknown fields are ignored.
type Dataset struct {
	Roles           []Role           `json:"roles"`
	Permissions     []Permission     `json:"permissions"`
	RolePermissions []RolePermission `json:"rolePermissions"`
	UserRoles       []UserRole       `json:"userRoles"`
}

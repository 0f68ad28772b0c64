package acl

import "strings"

// MatchResource reports whether pattern covers resource. Three pattern
// forms exist: "*" matches everything, a pattern ending in "/*" matches
// the path itself and everything below it, anything else is an exact
// match. The function is deterministic and total.
func MatchResource(pattern, resource string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		base := strings.TrimSuffix(pattern, "/*")
		if resource == base {
			return true
		}
		return strings.HasPrefix(resource, base+"/")
	}
	return pattern == resource
}

// matchAction reports whether granted covers requested.
func matchAction(granted, requested Action) bool {
	return granted == ActionAny || granted == requested
}

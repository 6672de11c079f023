package rbac

import "strings"

// Checker answers permission questions against a role table. Patterns may
// end in "*" to grant a whole namespace.
type Checker struct {
	roles map[string][]string
}

// NewChecker uses RolePermissions when table is nil.
func NewChecker(table map[string][]string) *Checker {
	if table == nil {
		table = RolePermissions
	}
	return &Checker{roles: table}
}

func (c *Checker) Has(role, perm string) bool {
	for _, p := range c.roles[role] {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func (c *Checker) All(role string, perms ...string) bool {
	for _, p := range perms {
		if !c.Has(role, p) {
			return false
		}
	}
	return len(perms) > 0
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	prefix, ok := strings.CutSuffix(pattern, "*")
	return ok && strings.HasPrefix(perm, prefix)
}

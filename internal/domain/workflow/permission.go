package workflow

import (
	"strings"
)

// Permission is a single review capability
type Permission uint8

const (
	PermissionChecking Permission = 1 << iota
	PermissionRecommending
	PermissionApproving
	PermissionRequireResubmit
)

// PermissionNone means the transition needs no capability from the table
const PermissionNone Permission = 0

var permissionNames = map[Permission]string{
	PermissionChecking:        "checking",
	PermissionRecommending:    "recommending",
	PermissionApproving:       "approving",
	PermissionRequireResubmit: "requireResubmit",
}

// permissionTokens maps normalized tokens to capabilities. Tokens are
// lowercased with underscores, dashes and an "application" prefix removed,
// which folds "Application_require_resubmit" and "requireResubmit" together.
var permissionTokens = map[string]Permission{
	"checking":        PermissionChecking,
	"recommending":    PermissionRecommending,
	"approving":       PermissionApproving,
	"requireresubmit": PermissionRequireResubmit,
}

// String returns the canonical token of the permission
func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	if p == PermissionNone {
		return "none"
	}
	return "unknown"
}

// PermissionSet is the capability set presented by an actor
type PermissionSet uint8

// NewPermissionSet builds a set from individual permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s |= PermissionSet(p)
	}
	return s
}

// ParsePermissions converts permission tokens into a set. Tokens that do not
// name a review capability are ignored.
func ParsePermissions(tokens []string) PermissionSet {
	var s PermissionSet
	for _, token := range tokens {
		if p, ok := permissionTokens[normalizeToken(token)]; ok {
			s |= PermissionSet(p)
		}
	}
	return s
}

// Has reports whether the set grants p. PermissionNone is always granted.
func (s PermissionSet) Has(p Permission) bool {
	return PermissionSet(p)&s == PermissionSet(p)
}

// Strings returns the canonical tokens in the set
func (s PermissionSet) Strings() []string {
	result := make([]string, 0, 4)
	for _, p := range []Permission{PermissionChecking, PermissionRecommending, PermissionApproving, PermissionRequireResubmit} {
		if s.Has(p) {
			result = append(result, p.String())
		}
	}
	return result
}

// String returns a comma separated list of the permissions in the set
func (s PermissionSet) String() string {
	return strings.Join(s.Strings(), ",")
}

func normalizeToken(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.NewReplacer("_", "", "-", "", " ", "").Replace(t)
	return strings.TrimPrefix(t, "application")
}

// Actor is the principal performing a request
type Actor struct {
	ID          string
	Permissions PermissionSet
}

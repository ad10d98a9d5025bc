// Package moat enforces classification-based access control over schema
// metadata. It sits between the semantic schema search collaborator and any
// downstream SQL generation, so objects above a caller's clearance are never
// surfaced at all.
package moat

import "strings"

// Classification is the closed, totally ordered sensitivity scale. Ordering
// is by declaration; all comparisons go through the integer values, never
// through string matching at call sites.
type Classification int

const (
	Public Classification = iota
	Internal
	Restricted
	Secret
	TopSecret
)

// NoClearance sorts below every classification. It is the clearance of
// unknown or absent roles: such callers see nothing, not even PUBLIC objects.
const NoClearance Classification = -1

var classificationNames = map[Classification]string{
	Public:     "PUBLIC",
	Internal:   "INTERNAL",
	Restricted: "RESTRICTED",
	Secret:     "SECRET",
	TopSecret:  "TOP_SECRET",
}

func (c Classification) String() string {
	if name, ok := classificationNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseClassification maps a label to its level, case-insensitively.
func ParseClassification(s string) (Classification, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PUBLIC":
		return Public, true
	case "INTERNAL":
		return Internal, true
	case "RESTRICTED":
		return Restricted, true
	case "SECRET":
		return Secret, true
	case "TOP_SECRET":
		return TopSecret, true
	default:
		return NoClearance, false
	}
}

// Role is the closed ordered set of caller roles.
type Role int

const (
	RoleViewer Role = iota
	RoleAnalyst
	RoleService
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleViewer:  "viewer",
	RoleAnalyst: "analyst",
	RoleService: "service",
	RoleAdmin:   "admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRole maps a role label, case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "viewer":
		return RoleViewer, true
	case "analyst":
		return RoleAnalyst, true
	case "service":
		return RoleService, true
	case "admin":
		return RoleAdmin, true
	default:
		return Role(-1), false
	}
}

// Clearance returns the highest classification the role may see.
func (r Role) Clearance() Classification {
	switch r {
	case RoleViewer:
		return Internal
	case RoleAnalyst:
		return Restricted
	case RoleService:
		return Secret
	case RoleAdmin:
		return TopSecret
	default:
		return NoClearance
	}
}

// ClearanceFor resolves a role label to a clearance. Unknown or empty labels
// resolve to NoClearance; anonymous callers must never inherit an elevated
// default.
func ClearanceFor(role string) Classification {
	parsed, ok := ParseRole(role)
	if !ok {
		return NoClearance
	}
	return parsed.Clearance()
}

package auth

import "strings"

// Role is the access level carried in a token.
type Role string

const (
	// RoleViewer reads telemetry, alerts and reports.
	RoleViewer Role = "viewer"
	// RoleOperator also changes alert state and uploads telemetry.
	RoleOperator Role = "operator"
	// RoleAdmin also deletes data and alerts and edits AI settings.
	RoleAdmin Role = "admin"
)

// NormalizeRole validates a role string, ignoring case and surrounding space.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleViewer, RoleOperator, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// RoleAtLeast reports whether role satisfies required.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

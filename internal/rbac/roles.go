package rbac

// Role names carried in admin tokens. Keep these stable; issued tokens depend on them.
const (
	// RoleAdmin may provision and delete call records.
	RoleAdmin = "admin"
	// RoleOperator may inspect records and trigger reconciliation.
	RoleOperator = "operator"
	// RoleViewer is read-only.
	RoleViewer = "viewer"
)

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}

package auth

const (
	PermEmployeesRead  = "employees.read"
	PermEmployeesWrite = "employees.write"
	PermLeaveRead      = "leave.read"
	PermLeaveWrite     = "leave.write"
	PermLeaveApprove   = "leave.approve"
	PermReportsRead    = "reports.read"
	PermAuditRead      = "audit.read"
)

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermEmployeesRead,
		PermLeaveRead,
		PermLeaveWrite,
	},
	RoleManager: {
		PermEmployeesRead,
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
		PermReportsRead,
	},
	RoleHR: {
		PermEmployeesRead,
		PermEmployeesWrite,
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
		PermReportsRead,
		PermAuditRead,
	},
}

// HasPermission resolves role permissions statically; roles are small and
// fixed per tenant.
func HasPermission(roleName, perm string) bool {
	for _, candidate := range RolePermissions[roleName] {
		if candidate == perm {
			return true
		}
	}
	return false
}

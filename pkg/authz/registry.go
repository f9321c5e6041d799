package authz

const (
	RoleTenantAdmin   = "tenant-admin"
	RoleTenantManager = "tenant-manager"
	RoleEmployee      = "employee"
	RoleAnonymous     = "anonymous"
)

const (
	ActionRead  = "read"
	ActionAdmin = "admin"
	ActionWrite = "write"
)

const (
	ObjectPolicyPolicies      = "policy.policies"
	ObjectPolicyAssignments   = "policy.assignments"
	ObjectPolicyResolution    = "policy.resolution"
	ObjectOrgDirectory        = "org.directory"
	ObjectOrgUsers            = "org.users"
	ObjectAttendancePunches   = "attendance.punches"
	ObjectLeaveRequests       = "leave.requests"
)

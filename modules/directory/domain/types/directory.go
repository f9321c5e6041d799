package types

type Branch struct {
	ID       string `json:"branch_uuid"`
	TenantID string `json:"tenant_uuid"`
	Name     string `json:"name"`
}

type Department struct {
	ID       string `json:"department_uuid"`
	TenantID string `json:"tenant_uuid"`
	Name     string `json:"name"`
	BranchID string `json:"branch_uuid,omitempty"`
}

type Client struct {
	ID       string `json:"client_uuid"`
	TenantID string `json:"tenant_uuid"`
	Name     string `json:"name"`
}

type Project struct {
	ID       string `json:"project_uuid"`
	TenantID string `json:"tenant_uuid"`
	ClientID string `json:"client_uuid,omitempty"`
	Name     string `json:"name"`
}

type User struct {
	ID           string `json:"user_uuid"`
	TenantID     string `json:"tenant_uuid"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	RoleSlug     string `json:"role_slug"`
	DepartmentID string `json:"department_uuid,omitempty"`
	ClientID     string `json:"client_uuid,omitempty"`
	ProjectID    string `json:"project_uuid,omitempty"`
	IsActive     bool   `json:"is_active"`
}

package ports

import (
	"context"

	"github.com/lumenhr/lumenhr/modules/directory/domain/types"
	policytypes "github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

type CreateUserParams struct {
	Email        string
	FullName     string
	RoleSlug     string
	DepartmentID string
	ClientID     string
	ProjectID    string
}

type DirectoryStore interface {
	CreateBranch(ctx context.Context, tenantID string, name string) (types.Branch, error)
	ListBranches(ctx context.Context, tenantID string, limit int) ([]types.Branch, error)

	CreateDepartment(ctx context.Context, tenantID string, name string, branchID string) (types.Department, error)
	ListDepartments(ctx context.Context, tenantID string, limit int) ([]types.Department, error)

	CreateClient(ctx context.Context, tenantID string, name string) (types.Client, error)
	ListClients(ctx context.Context, tenantID string, limit int) ([]types.Client, error)

	CreateProject(ctx context.Context, tenantID string, clientID string, name string) (types.Project, error)
	ListProjects(ctx context.Context, tenantID string, limit int) ([]types.Project, error)

	CreateUser(ctx context.Context, tenantID string, p CreateUserParams) (types.User, error)
	ListUsers(ctx context.Context, tenantID string, limit int) ([]types.User, error)
	GetUser(ctx context.Context, tenantID string, userID string) (types.User, bool, error)

	// ResolveUserScopes follows user → department → branch and user →
	// client/project foreign keys. A department without a branch leaves
	// BranchID empty; it is never an error.
	ResolveUserScopes(ctx context.Context, tenantID string, userID string) (policytypes.UserScopes, bool, error)
}

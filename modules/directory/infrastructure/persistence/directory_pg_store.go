package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lumenhr/lumenhr/modules/directory/domain/ports"
	"github.com/lumenhr/lumenhr/modules/directory/domain/types"
	policytypes "github.com/lumenhr/lumenhr/modules/policy/domain/types"
	"github.com/lumenhr/lumenhr/pkg/uuidv7"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type DirectoryPGStore struct {
	pool pgBeginner
}

func NewDirectoryPGStore(pool pgBeginner) ports.DirectoryStore {
	return &DirectoryPGStore{pool: pool}
}

func (s *DirectoryPGStore) begin(ctx context.Context, tenantID string) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, err
	}
	return tx, nil
}

func clampLimit(limit int, def int, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (s *DirectoryPGStore) CreateBranch(ctx context.Context, tenantID string, name string) (types.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Branch{}, errors.New("name is required")
	}
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Branch{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	id, err := uuidv7.NewString()
	if err != nil {
		return types.Branch{}, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO org.branches (branch_uuid, tenant_id, name)
VALUES ($1::uuid, $2::uuid, $3)
`, id, tenantID, name); err != nil {
		return types.Branch{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Branch{}, err
	}
	return types.Branch{ID: id, TenantID: tenantID, Name: name}, nil
}

func (s *DirectoryPGStore) ListBranches(ctx context.Context, tenantID string, limit int) ([]types.Branch, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT branch_uuid::text, name
FROM org.branches
WHERE tenant_id = $1::uuid
ORDER BY name ASC
LIMIT $2
`, tenantID, clampLimit(limit, 200, 2000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Branch
	for rows.Next() {
		b := types.Branch{TenantID: tenantID}
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DirectoryPGStore) CreateDepartment(ctx context.Context, tenantID string, name string, branchID string) (types.Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Department{}, errors.New("name is required")
	}
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Department{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	id, err := uuidv7.NewString()
	if err != nil {
		return types.Department{}, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO org.departments (department_uuid, tenant_id, name, branch_uuid)
VALUES ($1::uuid, $2::uuid, $3, NULLIF($4, '')::uuid)
`, id, tenantID, name, strings.TrimSpace(branchID)); err != nil {
		return types.Department{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Department{}, err
	}
	return types.Department{ID: id, TenantID: tenantID, Name: name, BranchID: strings.TrimSpace(branchID)}, nil
}

func (s *DirectoryPGStore) ListDepartments(ctx context.Context, tenantID string, limit int) ([]types.Department, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT department_uuid::text, name, COALESCE(branch_uuid::text, '')
FROM org.departments
WHERE tenant_id = $1::uuid
ORDER BY name ASC
LIMIT $2
`, tenantID, clampLimit(limit, 200, 2000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Department
	for rows.Next() {
		d := types.Department{TenantID: tenantID}
		if err := rows.Scan(&d.ID, &d.Name, &d.BranchID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DirectoryPGStore) CreateClient(ctx context.Context, tenantID string, name string) (types.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Client{}, errors.New("name is required")
	}
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Client{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	id, err := uuidv7.NewString()
	if err != nil {
		return types.Client{}, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO org.clients (client_uuid, tenant_id, name)
VALUES ($1::uuid, $2::uuid, $3)
`, id, tenantID, name); err != nil {
		return types.Client{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Client{}, err
	}
	return types.Client{ID: id, TenantID: tenantID, Name: name}, nil
}

func (s *DirectoryPGStore) ListClients(ctx context.Context, tenantID string, limit int) ([]types.Client, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT client_uuid::text, name
FROM org.clients
WHERE tenant_id = $1::uuid
ORDER BY name ASC
LIMIT $2
`, tenantID, clampLimit(limit, 200, 2000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Client
	for rows.Next() {
		c := types.Client{TenantID: tenantID}
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DirectoryPGStore) CreateProject(ctx context.Context, tenantID string, clientID string, name string) (types.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Project{}, errors.New("name is required")
	}
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Project{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	id, err := uuidv7.NewString()
	if err != nil {
		return types.Project{}, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO org.projects (project_uuid, tenant_id, client_uuid, name)
VALUES ($1::uuid, $2::uuid, NULLIF($3, '')::uuid, $4)
`, id, tenantID, strings.TrimSpace(clientID), name); err != nil {
		return types.Project{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Project{}, err
	}
	return types.Project{ID: id, TenantID: tenantID, ClientID: strings.TrimSpace(clientID), Name: name}, nil
}

func (s *DirectoryPGStore) ListProjects(ctx context.Context, tenantID string, limit int) ([]types.Project, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT project_uuid::text, COALESCE(client_uuid::text, ''), name
FROM org.projects
WHERE tenant_id = $1::uuid
ORDER BY name ASC
LIMIT $2
`, tenantID, clampLimit(limit, 200, 2000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Project
	for rows.Next() {
		p := types.Project{TenantID: tenantID}
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DirectoryPGStore) CreateUser(ctx context.Context, tenantID string, p ports.CreateUserParams) (types.User, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return types.User{}, errors.New("email is required")
	}
	roleSlug := strings.ToLower(strings.TrimSpace(p.RoleSlug))
	if roleSlug == "" {
		roleSlug = "employee"
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.User{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	id, err := uuidv7.NewString()
	if err != nil {
		return types.User{}, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO org.users (user_uuid, tenant_id, email, full_name, role_slug, department_uuid, client_uuid, project_uuid, is_active)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid, NULLIF($8, '')::uuid, TRUE)
`, id, tenantID, email, strings.TrimSpace(p.FullName), roleSlug,
		strings.TrimSpace(p.DepartmentID), strings.TrimSpace(p.ClientID), strings.TrimSpace(p.ProjectID)); err != nil {
		return types.User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.User{}, err
	}
	return types.User{
		ID:           id,
		TenantID:     tenantID,
		Email:        email,
		FullName:     strings.TrimSpace(p.FullName),
		RoleSlug:     roleSlug,
		DepartmentID: strings.TrimSpace(p.DepartmentID),
		ClientID:     strings.TrimSpace(p.ClientID),
		ProjectID:    strings.TrimSpace(p.ProjectID),
		IsActive:     true,
	}, nil
}

func (s *DirectoryPGStore) ListUsers(ctx context.Context, tenantID string, limit int) ([]types.User, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT user_uuid::text, email, full_name, role_slug,
       COALESCE(department_uuid::text, ''), COALESCE(client_uuid::text, ''), COALESCE(project_uuid::text, ''),
       is_active
FROM org.users
WHERE tenant_id = $1::uuid
ORDER BY email ASC
LIMIT $2
`, tenantID, clampLimit(limit, 200, 2000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.User
	for rows.Next() {
		u := types.User{TenantID: tenantID}
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.RoleSlug, &u.DepartmentID, &u.ClientID, &u.ProjectID, &u.IsActive); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DirectoryPGStore) GetUser(ctx context.Context, tenantID string, userID string) (types.User, bool, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.User{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	u := types.User{TenantID: tenantID}
	err = tx.QueryRow(ctx, `
SELECT user_uuid::text, email, full_name, role_slug,
       COALESCE(department_uuid::text, ''), COALESCE(client_uuid::text, ''), COALESCE(project_uuid::text, ''),
       is_active
FROM org.users
WHERE tenant_id = $1::uuid AND user_uuid = $2::uuid
`, tenantID, userID).Scan(&u.ID, &u.Email, &u.FullName, &u.RoleSlug, &u.DepartmentID, &u.ClientID, &u.ProjectID, &u.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return types.User{}, false, err
			}
			return types.User{}, false, nil
		}
		return types.User{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.User{}, false, err
	}
	return u, true, nil
}

func (s *DirectoryPGStore) ResolveUserScopes(ctx context.Context, tenantID string, userID string) (policytypes.UserScopes, bool, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return policytypes.UserScopes{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var out policytypes.UserScopes
	err = tx.QueryRow(ctx, `
SELECT u.user_uuid::text,
       COALESCE(u.department_uuid::text, ''),
       COALESCE(d.branch_uuid::text, ''),
       COALESCE(u.client_uuid::text, ''),
       COALESCE(u.project_uuid::text, '')
FROM org.users u
LEFT JOIN org.departments d
  ON d.tenant_id = u.tenant_id AND d.department_uuid = u.department_uuid
WHERE u.tenant_id = $1::uuid AND u.user_uuid = $2::uuid
`, tenantID, userID).Scan(&out.UserID, &out.DepartmentID, &out.BranchID, &out.ClientID, &out.ProjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return policytypes.UserScopes{}, false, err
			}
			return policytypes.UserScopes{}, false, nil
		}
		return policytypes.UserScopes{}, false, err
	}
	out.TenantID = tenantID
	if err := tx.Commit(ctx); err != nil {
		return policytypes.UserScopes{}, false, err
	}
	return out, true, nil
}

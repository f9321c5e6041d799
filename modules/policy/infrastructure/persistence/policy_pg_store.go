package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lumenhr/lumenhr/modules/policy/domain/ports"
	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
	"github.com/lumenhr/lumenhr/pkg/uuidv7"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PolicyPGStore struct {
	pool pgBeginner
}

func NewPolicyPGStore(pool pgBeginner) ports.PolicyStore {
	return &PolicyPGStore{pool: pool}
}

func (s *PolicyPGStore) begin(ctx context.Context, tenantID string) (pgx.Tx, error) {
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

const policyColumns = `
  p.policy_uuid::text,
  p.name,
  p.type,
  p.level,
  p.rules,
  p.is_active,
  p.created_at,
  p.updated_at`

func scanPolicy(row pgx.Row, tenantID string) (types.Policy, error) {
	p := types.Policy{TenantID: tenantID}
	var rules []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Level, &rules, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return types.Policy{}, err
	}
	p.Rules = rules
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *PolicyPGStore) ListPolicies(ctx context.Context, tenantID string, policyType types.PolicyType, limit int) ([]types.Policy, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}

	rows, err := tx.Query(ctx, `
SELECT`+policyColumns+`
FROM policy.policies p
WHERE p.tenant_id = $1::uuid
  AND ($2 = '' OR p.type = $2)
ORDER BY p.created_at DESC, p.policy_uuid DESC
LIMIT $3
`, tenantID, string(policyType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Policy
	for rows.Next() {
		p, err := scanPolicy(rows, tenantID)
		if err != nil {
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

func (s *PolicyPGStore) GetPolicy(ctx context.Context, tenantID string, policyID string) (types.Policy, bool, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Policy{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	p, err := scanPolicy(tx.QueryRow(ctx, `
SELECT`+policyColumns+`
FROM policy.policies p
WHERE p.tenant_id = $1::uuid AND p.policy_uuid = $2::uuid
`, tenantID, policyID), tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return types.Policy{}, false, err
			}
			return types.Policy{}, false, nil
		}
		return types.Policy{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Policy{}, false, err
	}
	return p, true, nil
}

func (s *PolicyPGStore) CreatePolicy(ctx context.Context, tenantID string, params ports.CreatePolicyParams) (types.Policy, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return types.Policy{}, errors.New("name is required")
	}
	if params.Type == "" {
		return types.Policy{}, errors.New("type is required")
	}
	rules := params.Rules
	if len(rules) == 0 {
		rules = []byte(`{}`)
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Policy{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	id, err := uuidv7.NewString()
	if err != nil {
		return types.Policy{}, err
	}
	p, err := scanPolicy(tx.QueryRow(ctx, `
INSERT INTO policy.policies (policy_uuid, tenant_id, name, type, level, rules, is_active)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6::jsonb, $7)
RETURNING policy_uuid::text, name, type, level, rules, is_active, created_at, updated_at
`, id, tenantID, name, string(params.Type), string(params.Level), []byte(rules), params.IsActive), tenantID)
	if err != nil {
		return types.Policy{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Policy{}, err
	}
	return p, nil
}

func (s *PolicyPGStore) DeactivatePolicy(ctx context.Context, tenantID string, policyID string) error {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
UPDATE policy.policies
SET is_active = FALSE, updated_at = now()
WHERE tenant_id = $1::uuid AND policy_uuid = $2::uuid
`, tenantID, policyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrPolicyNotFound
	}
	return tx.Commit(ctx)
}

func (s *PolicyPGStore) ListAssignments(ctx context.Context, tenantID string, policyID string, limit int) ([]types.Assignment, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}

	rows, err := tx.Query(ctx, `
SELECT assignment_uuid::text, policy_uuid::text,
       COALESCE(branch_uuid::text, ''), COALESCE(department_uuid::text, ''), COALESCE(user_uuid::text, ''),
       COALESCE(client_uuid::text, ''), COALESCE(project_uuid::text, '')
FROM policy.policy_assignments
WHERE tenant_id = $1::uuid
  AND ($2 = '' OR policy_uuid = $2::uuid)
ORDER BY assignment_uuid ASC
LIMIT $3
`, tenantID, strings.TrimSpace(policyID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Assignment
	for rows.Next() {
		a := types.Assignment{TenantID: tenantID}
		if err := rows.Scan(&a.ID, &a.PolicyID, &a.BranchID, &a.DepartmentID, &a.UserID, &a.ClientID, &a.ProjectID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PolicyPGStore) CreateAssignment(ctx context.Context, tenantID string, params ports.CreateAssignmentParams) (types.Assignment, error) {
	policyID := strings.TrimSpace(params.PolicyID)
	if policyID == "" {
		return types.Assignment{}, errors.New("policy_uuid is required")
	}

	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return types.Assignment{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	// The referenced policy must live in the same tenant.
	var exists bool
	if err := tx.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM policy.policies WHERE tenant_id = $1::uuid AND policy_uuid = $2::uuid);
`, tenantID, policyID).Scan(&exists); err != nil {
		return types.Assignment{}, err
	}
	if !exists {
		return types.Assignment{}, ports.ErrPolicyNotFound
	}

	id, err := uuidv7.NewString()
	if err != nil {
		return types.Assignment{}, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO policy.policy_assignments (assignment_uuid, tenant_id, policy_uuid, branch_uuid, department_uuid, user_uuid, client_uuid, project_uuid)
VALUES ($1::uuid, $2::uuid, $3::uuid,
        NULLIF($4, '')::uuid, NULLIF($5, '')::uuid, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid, NULLIF($8, '')::uuid)
`, id, tenantID, policyID,
		strings.TrimSpace(params.BranchID), strings.TrimSpace(params.DepartmentID), strings.TrimSpace(params.UserID),
		strings.TrimSpace(params.ClientID), strings.TrimSpace(params.ProjectID)); err != nil {
		return types.Assignment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Assignment{}, err
	}
	return types.Assignment{
		ID:           id,
		TenantID:     tenantID,
		PolicyID:     policyID,
		BranchID:     strings.TrimSpace(params.BranchID),
		DepartmentID: strings.TrimSpace(params.DepartmentID),
		UserID:       strings.TrimSpace(params.UserID),
		ClientID:     strings.TrimSpace(params.ClientID),
		ProjectID:    strings.TrimSpace(params.ProjectID),
	}, nil
}

func (s *PolicyPGStore) DeleteAssignment(ctx context.Context, tenantID string, assignmentID string) error {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
DELETE FROM policy.policy_assignments
WHERE tenant_id = $1::uuid AND assignment_uuid = $2::uuid
`, tenantID, assignmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrAssignmentNotFound
	}
	return tx.Commit(ctx)
}

// LoadResolutionSnapshot reads the user's scopes and all active candidates
// of the requested type inside one transaction, so one resolution observes
// a consistent cut of policy + assignment + hierarchy data. Scope matching
// itself happens in the engine by exact per-field equality, not in SQL.
func (s *PolicyPGStore) LoadResolutionSnapshot(ctx context.Context, tenantID string, userID string, policyType types.PolicyType) (ports.ResolutionSnapshot, bool, error) {
	tx, err := s.begin(ctx, tenantID)
	if err != nil {
		return ports.ResolutionSnapshot{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var snap ports.ResolutionSnapshot
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
`, tenantID, userID).Scan(&snap.User.UserID, &snap.User.DepartmentID, &snap.User.BranchID, &snap.User.ClientID, &snap.User.ProjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return ports.ResolutionSnapshot{}, false, err
			}
			return ports.ResolutionSnapshot{}, false, nil
		}
		return ports.ResolutionSnapshot{}, false, err
	}
	snap.User.TenantID = tenantID

	rows, err := tx.Query(ctx, `
SELECT a.assignment_uuid::text,
       COALESCE(a.branch_uuid::text, ''), COALESCE(a.department_uuid::text, ''), COALESCE(a.user_uuid::text, ''),
       COALESCE(a.client_uuid::text, ''), COALESCE(a.project_uuid::text, ''),
       `+policyColumns+`
FROM policy.policy_assignments a
JOIN policy.policies p
  ON p.tenant_id = a.tenant_id AND p.policy_uuid = a.policy_uuid
WHERE a.tenant_id = $1::uuid
  AND p.type = $2
  AND p.is_active
`, tenantID, string(policyType))
	if err != nil {
		return ports.ResolutionSnapshot{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var c types.Candidate
		c.Assignment.TenantID = tenantID
		c.Policy.TenantID = tenantID
		var rules []byte
		if err := rows.Scan(
			&c.Assignment.ID,
			&c.Assignment.BranchID, &c.Assignment.DepartmentID, &c.Assignment.UserID,
			&c.Assignment.ClientID, &c.Assignment.ProjectID,
			&c.Policy.ID, &c.Policy.Name, &c.Policy.Type, &c.Policy.Level, &rules,
			&c.Policy.IsActive, &c.Policy.CreatedAt, &c.Policy.UpdatedAt,
		); err != nil {
			return ports.ResolutionSnapshot{}, false, err
		}
		c.Policy.Rules = rules
		c.Policy.CreatedAt = c.Policy.CreatedAt.UTC()
		c.Policy.UpdatedAt = c.Policy.UpdatedAt.UTC()
		c.Assignment.PolicyID = c.Policy.ID
		snap.Candidates = append(snap.Candidates, c)
	}
	if err := rows.Err(); err != nil {
		return ports.ResolutionSnapshot{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ports.ResolutionSnapshot{}, false, err
	}
	return snap, true, nil
}

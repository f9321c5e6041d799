package ports

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

var (
	ErrPolicyNotFound     = errors.New("policy not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
)

type CreatePolicyParams struct {
	Name     string
	Type     types.PolicyType
	Level    types.PolicyLevel
	Rules    json.RawMessage
	IsActive bool
}

type CreateAssignmentParams struct {
	PolicyID     string
	BranchID     string
	DepartmentID string
	UserID       string
	ClientID     string
	ProjectID    string
}

/// ResolutionSnapshot is everything one select_effective_policy call reads:
// the user's resolved scopes and the active candidates of the requested
// type. PG stores load both inside a single read transaction so a policy
// deactivated mid-resolution cannot be observed in a torn state.
type ResolutionSnapshot struct {
	User       types.UserScopes
	Candidates []types.Candidate
}

type PolicyStore interface {
	ListPolicies(ctx context.Context, tenantID string, policyType types.PolicyType, limit int) ([]types.Policy, error)
	GetPolicy(ctx context.Context, tenantID string, policyID string) (types.Policy, bool, error)
	CreatePolicy(ctx context.Context, tenantID string, p CreatePolicyParams) (types.Policy, error)
	DeactivatePolicy(ctx context.Context, tenantID string, policyID string) error

	ListAssignments(ctx context.Context, tenantID string, policyID string, limit int) ([]types.Assignment, error)
	CreateAssignment(ctx context.Context, tenantID string, a CreateAssignmentParams) (types.Assignment, error)
	DeleteAssignment(ctx context.Context, tenantID string, assignmentID string) error

	// LoadResolutionSnapshot returns ok=false when the user does not exist
	// in the tenant. An existing user with no candidates is ok=true with an
	// empty candidate list.
	LoadResolutionSnapshot(ctx context.Context, tenantID string, userID string, policyType types.PolicyType) (ResolutionSnapshot, bool, error)
}

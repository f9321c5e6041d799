package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lumenhr/lumenhr/modules/policy/domain/ports"
	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

// UserScopesFunc lets the memory store borrow scope resolution from the
// directory store; the PG store does the same join inside its snapshot tx.
type UserScopesFunc func(ctx context.Context, tenantID string, userID string) (types.UserScopes, bool, error)

// PolicyMemoryStore mirrors the PG store for tests and DB-less runs.
type PolicyMemoryStore struct {
	mu          sync.RWMutex
	seq         int
	now         func() time.Time
	scopes      UserScopesFunc
	policies    map[string][]types.Policy
	assignments map[string][]types.Assignment
}

func NewPolicyMemoryStore(scopes UserScopesFunc) *PolicyMemoryStore {
	return &PolicyMemoryStore{
		now:         func() time.Time { return time.Now().UTC() },
		scopes:      scopes,
		policies:    make(map[string][]types.Policy),
		assignments: make(map[string][]types.Assignment),
	}
}

var _ ports.PolicyStore = (*PolicyMemoryStore)(nil)

// SetClock overrides the creation timestamp source. Tests use it to force
// created_at ordering without sleeping.
func (s *PolicyMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *PolicyMemoryStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *PolicyMemoryStore) ListPolicies(_ context.Context, tenantID string, policyType types.PolicyType, limit int) ([]types.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Policy
	for _, p := range s.policies[tenantID] {
		if policyType != "" && p.Type != policyType {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *PolicyMemoryStore) GetPolicy(_ context.Context, tenantID string, policyID string) (types.Policy, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies[tenantID] {
		if p.ID == policyID {
			return p, true, nil
		}
	}
	return types.Policy{}, false, nil
}

func (s *PolicyMemoryStore) CreatePolicy(_ context.Context, tenantID string, params ports.CreatePolicyParams) (types.Policy, error) {
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
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	p := types.Policy{
		ID:        s.nextID("policy"),
		TenantID:  tenantID,
		Name:      name,
		Type:      params.Type,
		Level:     params.Level,
		Rules:     rules,
		IsActive:  params.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.policies[tenantID] = append(s.policies[tenantID], p)
	return p, nil
}

func (s *PolicyMemoryStore) DeactivatePolicy(_ context.Context, tenantID string, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.policies[tenantID] {
		if p.ID == policyID {
			s.policies[tenantID][i].IsActive = false
			s.policies[tenantID][i].UpdatedAt = s.now()
			return nil
		}
	}
	return ports.ErrPolicyNotFound
}

func (s *PolicyMemoryStore) ListAssignments(_ context.Context, tenantID string, policyID string, limit int) ([]types.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policyID = strings.TrimSpace(policyID)
	var out []types.Assignment
	for _, a := range s.assignments[tenantID] {
		if policyID != "" && a.PolicyID != policyID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *PolicyMemoryStore) CreateAssignment(_ context.Context, tenantID string, params ports.CreateAssignmentParams) (types.Assignment, error) {
	policyID := strings.TrimSpace(params.PolicyID)
	if policyID == "" {
		return types.Assignment{}, errors.New("policy_uuid is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, p := range s.policies[tenantID] {
		if p.ID == policyID {
			found = true
			break
		}
	}
	if !found {
		return types.Assignment{}, ports.ErrPolicyNotFound
	}
	a := types.Assignment{
		ID:           s.nextID("assign"),
		TenantID:     tenantID,
		PolicyID:     policyID,
		BranchID:     strings.TrimSpace(params.BranchID),
		DepartmentID: strings.TrimSpace(params.DepartmentID),
		UserID:       strings.TrimSpace(params.UserID),
		ClientID:     strings.TrimSpace(params.ClientID),
		ProjectID:    strings.TrimSpace(params.ProjectID),
	}
	s.assignments[tenantID] = append(s.assignments[tenantID], a)
	return a, nil
}

func (s *PolicyMemoryStore) DeleteAssignment(_ context.Context, tenantID string, assignmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.assignments[tenantID]
	for i, a := range list {
		if a.ID == assignmentID {
			s.assignments[tenantID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ports.ErrAssignmentNotFound
}

func (s *PolicyMemoryStore) LoadResolutionSnapshot(ctx context.Context, tenantID string, userID string, policyType types.PolicyType) (ports.ResolutionSnapshot, bool, error) {
	user, ok, err := s.scopes(ctx, tenantID, userID)
	if err != nil || !ok {
		return ports.ResolutionSnapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := ports.ResolutionSnapshot{User: user}
	for _, a := range s.assignments[tenantID] {
		for _, p := range s.policies[tenantID] {
			if p.ID != a.PolicyID {
				continue
			}
			if p.Type == policyType && p.IsActive {
				snap.Candidates = append(snap.Candidates, types.Candidate{Assignment: a, Policy: p})
			}
			break
		}
	}
	return snap, true, nil
}

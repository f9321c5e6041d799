package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lumenhr/lumenhr/modules/policy/domain/ports"
	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
	"github.com/lumenhr/lumenhr/modules/policy/engine"
	"github.com/lumenhr/lumenhr/modules/policy/infrastructure/cache"
)

var (
	ErrUnknownUser        = errors.New("user not found in tenant")
	ErrNoApplicablePolicy = errors.New("no applicable policy")
)

// ResolutionService is the single entry point for effective-policy questions.
// It owns the snapshot → scope chain → selection pipeline and the selection
// cache; writes go through it too so the cache never serves stale selections
// past its TTL after a policy change.
type ResolutionService struct {
	store  ports.PolicyStore
	cache  *cache.SelectionCache
	logger *zap.Logger
}

func NewResolutionService(store ports.PolicyStore, selCache *cache.SelectionCache, logger *zap.Logger) *ResolutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolutionService{store: store, cache: selCache, logger: logger}
}

// SelectEffectivePolicy resolves the one policy of the given type governing
// the user right now. ErrUnknownUser when the user is not in the tenant,
// ErrNoApplicablePolicy when nothing applies. An ambiguous selection is still
// returned; the anomaly is logged here and flagged on the Selection.
func (s *ResolutionService) SelectEffectivePolicy(ctx context.Context, tenantID string, userID string, policyType types.PolicyType) (types.Selection, error) {
	if s.cache != nil {
		if sel, ok := s.cache.Get(ctx, tenantID, userID, policyType); ok {
			return sel, nil
		}
	}

	snap, ok, err := s.store.LoadResolutionSnapshot(ctx, tenantID, userID, policyType)
	if err != nil {
		return types.Selection{}, err
	}
	if !ok {
		return types.Selection{}, ErrUnknownUser
	}

	chain := engine.ResolveScopeChain(snap.User)
	sel, ok := engine.SelectEffective(chain, snap.Candidates)
	if !ok {
		return types.Selection{}, ErrNoApplicablePolicy
	}

	if sel.Ambiguous() {
		s.logger.Warn("ambiguous policy selection",
			zap.String("tenant_id", tenantID),
			zap.String("user_id", userID),
			zap.String("policy_type", string(policyType)),
			zap.String("selected_policy_id", sel.Policy.ID),
			zap.Strings("contender_policy_ids", sel.Contenders),
		)
	} else if s.cache != nil {
		if err := s.cache.Put(ctx, tenantID, userID, policyType, sel); err != nil {
			s.logger.Warn("selection cache write failed", zap.Error(err))
		}
	}
	return sel, nil
}

// Evaluation pairs a selection with the outcome of classifying one action
// under it. Governed=false means no policy applied; Outcome carries
// UNGOVERNED and Selection is zero.
type Evaluation struct {
	Governed  bool            `json:"governed"`
	Selection types.Selection `json:"selection"`
	Outcome   types.Outcome   `json:"outcome"`
}

// EvaluateAction resolves the effective policy for the action's type and
// classifies the action under it in the tenant's time zone. An ungoverned
// user is not an error: callers apply their own defaults.
func (s *ResolutionService) EvaluateAction(ctx context.Context, tenantID string, userID string, policyType types.PolicyType, actx types.ActionContext, loc *time.Location) (Evaluation, error) {
	sel, err := s.SelectEffectivePolicy(ctx, tenantID, userID, policyType)
	if err != nil {
		if errors.Is(err, ErrNoApplicablePolicy) {
			return Evaluation{
				Outcome: types.Outcome{Status: types.OutcomeUngoverned, Detail: "no " + string(policyType) + " policy governs this user"},
			}, nil
		}
		return Evaluation{}, err
	}
	return Evaluation{
		Governed:  true,
		Selection: sel,
		Outcome:   engine.Evaluate(sel.Policy, actx, loc),
	}, nil
}

func (s *ResolutionService) ListPolicies(ctx context.Context, tenantID string, policyType types.PolicyType, limit int) ([]types.Policy, error) {
	return s.store.ListPolicies(ctx, tenantID, policyType, limit)
}

func (s *ResolutionService) GetPolicy(ctx context.Context, tenantID string, policyID string) (types.Policy, bool, error) {
	return s.store.GetPolicy(ctx, tenantID, policyID)
}

func (s *ResolutionService) CreatePolicy(ctx context.Context, tenantID string, p ports.CreatePolicyParams) (types.Policy, error) {
	created, err := s.store.CreatePolicy(ctx, tenantID, p)
	if err != nil {
		return types.Policy{}, err
	}
	s.invalidate(ctx, tenantID)
	return created, nil
}

func (s *ResolutionService) DeactivatePolicy(ctx context.Context, tenantID string, policyID string) error {
	if err := s.store.DeactivatePolicy(ctx, tenantID, policyID); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)
	return nil
}

func (s *ResolutionService) ListAssignments(ctx context.Context, tenantID string, policyID string, limit int) ([]types.Assignment, error) {
	return s.store.ListAssignments(ctx, tenantID, policyID, limit)
}

func (s *ResolutionService) CreateAssignment(ctx context.Context, tenantID string, a ports.CreateAssignmentParams) (types.Assignment, error) {
	created, err := s.store.CreateAssignment(ctx, tenantID, a)
	if err != nil {
		return types.Assignment{}, err
	}
	s.invalidate(ctx, tenantID)
	return created, nil
}

func (s *ResolutionService) DeleteAssignment(ctx context.Context, tenantID string, assignmentID string) error {
	if err := s.store.DeleteAssignment(ctx, tenantID, assignmentID); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)
	return nil
}

func (s *ResolutionService) invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTenant(ctx, tenantID); err != nil {
		s.logger.Warn("selection cache invalidation failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

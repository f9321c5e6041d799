package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lumenhr/lumenhr/modules/policy/domain/ports"
	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
	"github.com/lumenhr/lumenhr/modules/policy/infrastructure/cache"
	"github.com/lumenhr/lumenhr/modules/policy/infrastructure/persistence"
)

const testTenant = "11111111-1111-1111-1111-111111111111"

func newFixture(t *testing.T) (*ResolutionService, *persistence.PolicyMemoryStore, *observer.ObservedLogs) {
	t.Helper()
	user := types.UserScopes{UserID: "u-1", TenantID: testTenant, DepartmentID: "d-1", BranchID: "b-1"}
	store := persistence.NewPolicyMemoryStore(func(_ context.Context, _ string, userID string) (types.UserScopes, bool, error) {
		if userID != user.UserID {
			return types.UserScopes{}, false, nil
		}
		return user, true, nil
	})
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	core, logs := observer.New(zap.WarnLevel)
	svc := NewResolutionService(store, cache.NewSelectionCache(cache.NewMemoryKV(), time.Minute), zap.New(core))
	return svc, store, logs
}

func mustPolicy(t *testing.T, svc *ResolutionService, name string, ptype types.PolicyType, rules string) types.Policy {
	t.Helper()
	p, err := svc.CreatePolicy(context.Background(), testTenant, ports.CreatePolicyParams{
		Name: name, Type: ptype, Rules: []byte(rules), IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreatePolicy %s: %v", name, err)
	}
	return p
}

func TestSelectEffectivePolicyPrecedence(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	orgWide := mustPolicy(t, svc, "org", types.PolicyTypeTime, `{"start_time":"09:00","end_time":"18:00"}`)
	deptOnly := mustPolicy(t, svc, "dept", types.PolicyTypeTime, `{"start_time":"10:00","end_time":"19:00"}`)
	if _, err := svc.CreateAssignment(ctx, testTenant, ports.CreateAssignmentParams{PolicyID: orgWide.ID}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if _, err := svc.CreateAssignment(ctx, testTenant, ports.CreateAssignmentParams{PolicyID: deptOnly.ID, DepartmentID: "d-1"}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}

	sel, err := svc.SelectEffectivePolicy(ctx, testTenant, "u-1", types.PolicyTypeTime)
	if err != nil {
		t.Fatalf("SelectEffectivePolicy: %v", err)
	}
	if sel.Policy.ID != deptOnly.ID {
		t.Fatalf("department scope should beat org-wide, got %s", sel.Policy.Name)
	}
	if sel.Scope.Kind != types.ScopeDepartment || sel.Scope.ID != "d-1" {
		t.Fatalf("unexpected winning scope %+v", sel.Scope)
	}
}

func TestSelectEffectivePolicyErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	if _, err := svc.SelectEffectivePolicy(ctx, testTenant, "ghost", types.PolicyTypeTime); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("want ErrUnknownUser, got %v", err)
	}
	if _, err := svc.SelectEffectivePolicy(ctx, testTenant, "u-1", types.PolicyTypeTime); !errors.Is(err, ErrNoApplicablePolicy) {
		t.Fatalf("want ErrNoApplicablePolicy, got %v", err)
	}
}

func TestSelectEffectivePolicyLogsAmbiguity(t *testing.T) {
	ctx := context.Background()
	svc, store, logs := newFixture(t)

	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })
	a := mustPolicy(t, svc, "a", types.PolicyTypeTime, `{}`)
	b := mustPolicy(t, svc, "b", types.PolicyTypeTime, `{}`)
	for _, p := range []types.Policy{a, b} {
		if _, err := svc.CreateAssignment(ctx, testTenant, ports.CreateAssignmentParams{PolicyID: p.ID, DepartmentID: "d-1"}); err != nil {
			t.Fatalf("CreateAssignment: %v", err)
		}
	}

	sel, err := svc.SelectEffectivePolicy(ctx, testTenant, "u-1", types.PolicyTypeTime)
	if err != nil {
		t.Fatalf("SelectEffectivePolicy: %v", err)
	}
	if !sel.Ambiguous() {
		t.Fatal("same-scope same-created_at policies should be flagged ambiguous")
	}
	// Equal created_at, so the lexically greater policy ID wins.
	if sel.Policy.ID != b.ID || sel.Contenders[0] != a.ID {
		t.Fatalf("tie-break wrong: won=%s contenders=%v", sel.Policy.ID, sel.Contenders)
	}
	entries := logs.FilterMessage("ambiguous policy selection").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 ambiguity warning, got %d", len(entries))
	}

	// Second resolution must warn again: ambiguous selections bypass the cache.
	if _, err := svc.SelectEffectivePolicy(ctx, testTenant, "u-1", types.PolicyTypeTime); err != nil {
		t.Fatalf("SelectEffectivePolicy: %v", err)
	}
	if got := len(logs.FilterMessage("ambiguous policy selection").All()); got != 2 {
		t.Fatalf("ambiguous selection should not be cached, warnings=%d", got)
	}
}

func TestSelectEffectivePolicyCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	first := mustPolicy(t, svc, "first", types.PolicyTypeTime, `{}`)
	if _, err := svc.CreateAssignment(ctx, testTenant, ports.CreateAssignmentParams{PolicyID: first.ID}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	sel, err := svc.SelectEffectivePolicy(ctx, testTenant, "u-1", types.PolicyTypeTime)
	if err != nil || sel.Policy.ID != first.ID {
		t.Fatalf("first resolution: sel=%+v err=%v", sel, err)
	}

	// A more specific policy created later must win immediately, not after TTL.
	second := mustPolicy(t, svc, "second", types.PolicyTypeTime, `{}`)
	if _, err := svc.CreateAssignment(ctx, testTenant, ports.CreateAssignmentParams{PolicyID: second.ID, UserID: "u-1"}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	sel, err = svc.SelectEffectivePolicy(ctx, testTenant, "u-1", types.PolicyTypeTime)
	if err != nil {
		t.Fatalf("second resolution: %v", err)
	}
	if sel.Policy.ID != second.ID {
		t.Fatalf("stale cache served after assignment write: got %s", sel.Policy.Name)
	}

	if err := svc.DeactivatePolicy(ctx, testTenant, second.ID); err != nil {
		t.Fatalf("DeactivatePolicy: %v", err)
	}
	sel, err = svc.SelectEffectivePolicy(ctx, testTenant, "u-1", types.PolicyTypeTime)
	if err != nil || sel.Policy.ID != first.ID {
		t.Fatalf("deactivation not visible: sel=%+v err=%v", sel, err)
	}
}

func TestEvaluateAction(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	p := mustPolicy(t, svc, "core-hours", types.PolicyTypeTime, `{"start_time":"10:00","end_time":"19:00","grace_period_minutes":10}`)
	if _, err := svc.CreateAssignment(ctx, testTenant, ports.CreateAssignmentParams{PolicyID: p.ID}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}

	shanghai, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	// 02:12 UTC is 10:12 in Shanghai: 12 minutes past start, beyond grace.
	ev, err := svc.EvaluateAction(ctx, testTenant, "u-1", types.PolicyTypeTime, types.ActionContext{
		Action:    types.ActionClockIn,
		Timestamp: time.Date(2026, 3, 2, 2, 12, 0, 0, time.UTC),
	}, shanghai)
	if err != nil {
		t.Fatalf("EvaluateAction: %v", err)
	}
	if !ev.Governed || ev.Outcome.Status != types.OutcomeLate || ev.Outcome.DeviationMinutes != 12 {
		t.Fatalf("unexpected evaluation: %+v", ev)
	}

	// No leave policy exists: ungoverned, not an error.
	ev, err = svc.EvaluateAction(ctx, testTenant, "u-1", types.PolicyTypeLeave, types.ActionContext{
		Action:    types.ActionLeaveDay,
		Timestamp: time.Now().UTC(),
	}, shanghai)
	if err != nil {
		t.Fatalf("EvaluateAction (ungoverned): %v", err)
	}
	if ev.Governed || ev.Outcome.Status != types.OutcomeUngoverned {
		t.Fatalf("unexpected ungoverned evaluation: %+v", ev)
	}

	if _, err := svc.EvaluateAction(ctx, testTenant, "ghost", types.PolicyTypeTime, types.ActionContext{}, nil); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("want ErrUnknownUser, got %v", err)
	}
}

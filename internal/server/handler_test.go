package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	directorytypes "github.com/lumenhr/lumenhr/modules/directory/domain/types"
	directorypersistence "github.com/lumenhr/lumenhr/modules/directory/infrastructure/persistence"
	policytypes "github.com/lumenhr/lumenhr/modules/policy/domain/types"
	policycache "github.com/lumenhr/lumenhr/modules/policy/infrastructure/cache"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	t.Setenv("AUTHZ_MODE", "enforce")

	h, err := NewHandlerWithOptions(HandlerOptions{
		TenancyResolver: newStaticTenancyResolver(map[string]Tenant{
			"localhost": handlerTestTenant(),
		}),
		DirectoryStore: directorypersistence.NewDirectoryMemoryStore(),
		PunchStore:     newPunchMemoryStore(),
		LeaveStore:     newLeaveMemoryStore(),
		SelectionKV:    policycache.NewMemoryKV(),
		JWTSecret:      testJWTSecret,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func tenantToken(t *testing.T, role string, userID string) string {
	t.Helper()
	return signTestToken(t, testJWTSecret, principalClaims{
		TenantID: handlerTestTenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
}

func doJSON(t *testing.T, h http.Handler, method string, target string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, target, body)
	r.Host = "localhost"
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode: %v body=%s", err, rec.Body.String())
	}
}

func TestHandler_HealthIsOpen(t *testing.T) {
	h := newTestHandler(t)

	for _, path := range []string{"/health", "/healthz"} {
		rec := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", path, rec.Code)
		}
	}
}

func TestHandler_RequiresAuth(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/policy/api/policies", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rec.Code)
	}
	var env struct {
		Code string `json:"code"`
	}
	decodeInto(t, rec, &env)
	if env.Code != "unauthorized" {
		t.Fatalf("code=%q", env.Code)
	}
}

func TestHandler_UnknownTenantHost(t *testing.T) {
	h := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, "/policy/api/policies", nil)
	r.Host = "nobody.example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
	var env struct {
		Code string `json:"code"`
	}
	decodeInto(t, rec, &env)
	if env.Code != "tenant_not_found" {
		t.Fatalf("code=%q", env.Code)
	}
}

func TestHandler_EmployeeCannotManagePolicies(t *testing.T) {
	h := newTestHandler(t)
	employee := tenantToken(t, "employee", "u-1")

	rec := doJSON(t, h, http.MethodPost, "/policy/api/policies", employee, map[string]any{
		"name":  "sneaky",
		"type":  "time",
		"rules": map[string]any{},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	// The catalog itself is admin territory too.
	rec = doJSON(t, h, http.MethodGet, "/policy/api/policies", employee, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	// Resolution queries stay open to employees: authz passes and the
	// controller answers (404 here, the user is not in the directory).
	rec = doJSON(t, h, http.MethodGet, "/policy/api/policies:effective?user_uuid=u-1&type=time", employee, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var env struct {
		Code string `json:"code"`
	}
	decodeInto(t, rec, &env)
	if env.Code != "unknown_user" {
		t.Fatalf("code=%q", env.Code)
	}
}

// TestHandler_EndToEnd drives the whole pipeline over HTTP: build the org
// tree, create a policy, assign it to the department, then resolve and
// evaluate for a user in that department.
func TestHandler_EndToEnd(t *testing.T) {
	h := newTestHandler(t)
	admin := tenantToken(t, "tenant-admin", "admin-1")

	rec := doJSON(t, h, http.MethodPost, "/org/api/branches", admin, map[string]any{"name": "HQ"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("branch: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var branch directorytypes.Branch
	decodeInto(t, rec, &branch)

	rec = doJSON(t, h, http.MethodPost, "/org/api/departments", admin, map[string]any{
		"name":        "Engineering",
		"branch_uuid": branch.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("department: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var dept directorytypes.Department
	decodeInto(t, rec, &dept)

	rec = doJSON(t, h, http.MethodPost, "/org/api/users", admin, map[string]any{
		"email":           "ada@example.com",
		"full_name":       "Ada",
		"department_uuid": dept.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("user: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var user directorytypes.User
	decodeInto(t, rec, &user)

	rec = doJSON(t, h, http.MethodGet, "/org/api/users:scopes?user_uuid="+user.ID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scopes: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var scopes struct {
		DepartmentUUID string `json:"department_uuid"`
		BranchUUID     string `json:"branch_uuid"`
	}
	decodeInto(t, rec, &scopes)
	if scopes.DepartmentUUID != dept.ID || scopes.BranchUUID != branch.ID {
		t.Fatalf("scopes=%+v", scopes)
	}

	rec = doJSON(t, h, http.MethodPost, "/policy/api/policies", admin, map[string]any{
		"name":  "core hours",
		"type":  "time",
		"rules": json.RawMessage(`{"start_time":"09:00","end_time":"18:00","grace_period_minutes":15}`),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("policy: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var policy policytypes.Policy
	decodeInto(t, rec, &policy)

	rec = doJSON(t, h, http.MethodPost, "/policy/api/assignments", admin, map[string]any{
		"policy_uuid":     policy.ID,
		"department_uuid": dept.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assignment: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/policy/api/policies:effective?user_uuid="+user.ID+"&type=time", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("effective: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var effective struct {
		Policy    policytypes.Policy   `json:"policy"`
		Scope     policytypes.ScopeRef `json:"scope"`
		Ambiguous bool                 `json:"ambiguous"`
	}
	decodeInto(t, rec, &effective)
	if effective.Policy.ID != policy.ID {
		t.Fatalf("policy=%q want %q", effective.Policy.ID, policy.ID)
	}
	if effective.Scope.Kind != policytypes.ScopeDepartment || effective.Scope.ID != dept.ID {
		t.Fatalf("scope=%+v", effective.Scope)
	}
	if effective.Ambiguous {
		t.Fatal("unexpected ambiguity")
	}

	// 01:40 UTC is 09:40 in Shanghai: past the 15 minute grace.
	rec = doJSON(t, h, http.MethodPost, "/policy/api/evaluate", admin, map[string]any{
		"user_uuid": user.ID,
		"type":      "time",
		"action":    "CLOCK_IN",
		"timestamp": "2026-03-02T01:40:00Z",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var evaluation struct {
		Governed   bool                `json:"governed"`
		Outcome    policytypes.Outcome `json:"outcome"`
		PolicyUUID string              `json:"policy_uuid"`
	}
	decodeInto(t, rec, &evaluation)
	if !evaluation.Governed || evaluation.PolicyUUID != policy.ID {
		t.Fatalf("evaluation=%+v", evaluation)
	}
	if evaluation.Outcome.Status != policytypes.OutcomeLate || evaluation.Outcome.DeviationMinutes != 40 {
		t.Fatalf("outcome=%+v", evaluation.Outcome)
	}

	// The same policy governs the punch endpoint.
	userToken := tenantToken(t, "employee", user.ID)
	rec = doJSON(t, h, http.MethodPost, "/attendance/api/punches", userToken, map[string]any{
		"punch_type": "IN",
		"timestamp":  "2026-03-02T01:05:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("punch: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var punch PunchEvent
	decodeInto(t, rec, &punch)
	if punch.OutcomeStatus != "ON_TIME" || punch.PolicyID != policy.ID {
		t.Fatalf("punch=%+v", punch)
	}
}

func TestHandler_EffectiveForUngovernedUser(t *testing.T) {
	h := newTestHandler(t)
	admin := tenantToken(t, "tenant-admin", "admin-1")

	rec := doJSON(t, h, http.MethodPost, "/org/api/users", admin, map[string]any{"email": "solo@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("user: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var user directorytypes.User
	decodeInto(t, rec, &user)

	rec = doJSON(t, h, http.MethodGet, "/policy/api/policies:effective?user_uuid="+user.ID+"&type=leave", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var env struct {
		Code string `json:"code"`
	}
	decodeInto(t, rec, &env)
	if env.Code != "no_applicable_policy" {
		t.Fatalf("code=%q", env.Code)
	}
}

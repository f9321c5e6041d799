package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lumenhr/lumenhr/modules/policy/domain/ports"
	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
	"github.com/lumenhr/lumenhr/modules/policy/services"
)

type TenantIDGetter func(ctx context.Context) (tenantID string, ok bool)

// TenantLocationGetter returns the tenant's configured time zone. UTC when
// the tenant has none.
type TenantLocationGetter func(ctx context.Context) *time.Location

type PoliciesController struct {
	TenantID TenantIDGetter
	Location TenantLocationGetter
	NowUTC   func() time.Time
	Service  *services.ResolutionService
}

type createPolicyAPIRequest struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Level    string          `json:"level"`
	Rules    json.RawMessage `json:"rules"`
	IsActive *bool           `json:"is_active"`
}

type createAssignmentAPIRequest struct {
	PolicyUUID     string `json:"policy_uuid"`
	BranchUUID     string `json:"branch_uuid"`
	DepartmentUUID string `json:"department_uuid"`
	UserUUID       string `json:"user_uuid"`
	ClientUUID     string `json:"client_uuid"`
	ProjectUUID    string `json:"project_uuid"`
}

type evaluateAPIRequest struct {
	UserUUID  string            `json:"user_uuid"`
	Type      string            `json:"type"`
	Action    string            `json:"action"`
	Timestamp string            `json:"timestamp"`
	Meta      map[string]string `json:"meta"`
}

var knownPolicyTypes = map[types.PolicyType]bool{
	types.PolicyTypeAttendance: true,
	types.PolicyTypeLeave:      true,
	types.PolicyTypeCalendar:   true,
	types.PolicyTypeTime:       true,
	types.PolicyTypePenalty:    true,
	types.PolicyTypeCustom:     true,
}

func parseLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (c PoliciesController) HandlePoliciesAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		ptype := types.PolicyType(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))))
		if ptype != "" && !knownPolicyTypes[ptype] {
			writeError(w, r, http.StatusBadRequest, "invalid_type", "invalid type")
			return
		}
		policies, err := c.Service.ListPolicies(r.Context(), tenantID, ptype, parseLimit(r))
		if err != nil {
			writeStoreError(w, r, err, "list failed")
			return
		}
		if policies == nil {
			policies = make([]types.Policy, 0)
		}
		writeJSON(w, map[string]any{
			"tenant":   tenantID,
			"policies": policies,
		})
		return

	case http.MethodPost:
		var req createPolicyAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		ptype := types.PolicyType(strings.ToLower(strings.TrimSpace(req.Type)))
		if !knownPolicyTypes[ptype] {
			writeError(w, r, http.StatusBadRequest, "invalid_type", "invalid type")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "missing_name", "name is required")
			return
		}
		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}
		p, err := c.Service.CreatePolicy(r.Context(), tenantID, ports.CreatePolicyParams{
			Name:     req.Name,
			Type:     ptype,
			Level:    types.PolicyLevel(strings.ToLower(strings.TrimSpace(req.Level))),
			Rules:    req.Rules,
			IsActive: isActive,
		})
		if err != nil {
			writeStoreError(w, r, err, "create failed")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(p)
		return

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
}

func (c PoliciesController) HandlePolicyDeactivateAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req struct {
		PolicyUUID string `json:"policy_uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.PolicyUUID = strings.TrimSpace(req.PolicyUUID)
	if req.PolicyUUID == "" {
		writeError(w, r, http.StatusBadRequest, "missing_policy_uuid", "policy_uuid is required")
		return
	}

	if err := c.Service.DeactivatePolicy(r.Context(), tenantID, req.PolicyUUID); err != nil {
		writeStoreError(w, r, err, "deactivate failed")
		return
	}
	writeJSON(w, map[string]any{
		"policy_uuid": req.PolicyUUID,
		"is_active":   false,
	})
}

func (c PoliciesController) HandlePolicyAssignmentsAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		assigns, err := c.Service.ListAssignments(r.Context(), tenantID, r.URL.Query().Get("policy_uuid"), parseLimit(r))
		if err != nil {
			writeStoreError(w, r, err, "list failed")
			return
		}
		if assigns == nil {
			assigns = make([]types.Assignment, 0)
		}
		writeJSON(w, map[string]any{
			"tenant":      tenantID,
			"assignments": assigns,
		})
		return

	case http.MethodPost:
		var req createAssignmentAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		if strings.TrimSpace(req.PolicyUUID) == "" {
			writeError(w, r, http.StatusBadRequest, "missing_policy_uuid", "policy_uuid is required")
			return
		}
		a, err := c.Service.CreateAssignment(r.Context(), tenantID, ports.CreateAssignmentParams{
			PolicyID:     req.PolicyUUID,
			BranchID:     req.BranchUUID,
			DepartmentID: req.DepartmentUUID,
			UserID:       req.UserUUID,
			ClientID:     req.ClientUUID,
			ProjectID:    req.ProjectUUID,
		})
		if err != nil {
			writeStoreError(w, r, err, "create failed")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(a)
		return

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
}

func (c PoliciesController) HandleAssignmentDeleteAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req struct {
		AssignmentUUID string `json:"assignment_uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.AssignmentUUID = strings.TrimSpace(req.AssignmentUUID)
	if req.AssignmentUUID == "" {
		writeError(w, r, http.StatusBadRequest, "missing_assignment_uuid", "assignment_uuid is required")
		return
	}

	if err := c.Service.DeleteAssignment(r.Context(), tenantID, req.AssignmentUUID); err != nil {
		writeStoreError(w, r, err, "delete failed")
		return
	}
	writeJSON(w, map[string]any{
		"assignment_uuid": req.AssignmentUUID,
		"deleted":         true,
	})
}

func (c PoliciesController) HandleEffectivePolicyAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	userUUID := strings.TrimSpace(r.URL.Query().Get("user_uuid"))
	if userUUID == "" {
		writeError(w, r, http.StatusBadRequest, "missing_user_uuid", "user_uuid is required")
		return
	}
	ptype := types.PolicyType(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))))
	if !knownPolicyTypes[ptype] {
		writeError(w, r, http.StatusBadRequest, "invalid_type", "invalid type")
		return
	}

	sel, err := c.Service.SelectEffectivePolicy(r.Context(), tenantID, userUUID, ptype)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownUser):
			writeError(w, r, http.StatusNotFound, "unknown_user", "user not found")
		case errors.Is(err, services.ErrNoApplicablePolicy):
			writeError(w, r, http.StatusNotFound, "no_applicable_policy", "no applicable policy")
		default:
			writeStoreError(w, r, err, "resolution failed")
		}
		return
	}
	writeJSON(w, map[string]any{
		"user_uuid": userUUID,
		"policy":    sel.Policy,
		"scope":     sel.Scope,
		"ambiguous": sel.Ambiguous(),
	})
}

func (c PoliciesController) HandleEvaluateAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req evaluateAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.UserUUID = strings.TrimSpace(req.UserUUID)
	if req.UserUUID == "" {
		writeError(w, r, http.StatusBadRequest, "missing_user_uuid", "user_uuid is required")
		return
	}
	ptype := types.PolicyType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !knownPolicyTypes[ptype] {
		writeError(w, r, http.StatusBadRequest, "invalid_type", "invalid type")
		return
	}
	action := types.ActionKind(strings.ToUpper(strings.TrimSpace(req.Action)))
	if action == "" {
		writeError(w, r, http.StatusBadRequest, "missing_action", "action is required")
		return
	}

	ts := time.Now().UTC()
	if c.NowUTC != nil {
		ts = c.NowUTC()
	}
	if strings.TrimSpace(req.Timestamp) != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_timestamp", "timestamp must be RFC 3339")
			return
		}
		ts = parsed.UTC()
	}

	var loc *time.Location
	if c.Location != nil {
		loc = c.Location(r.Context())
	}
	ev, err := c.Service.EvaluateAction(r.Context(), tenantID, req.UserUUID, ptype, types.ActionContext{
		Action:    action,
		Timestamp: ts,
		Meta:      req.Meta,
	}, loc)
	if err != nil {
		if errors.Is(err, services.ErrUnknownUser) {
			writeError(w, r, http.StatusNotFound, "unknown_user", "user not found")
			return
		}
		writeStoreError(w, r, err, "evaluation failed")
		return
	}

	resp := map[string]any{
		"user_uuid": req.UserUUID,
		"type":      string(ptype),
		"governed":  ev.Governed,
		"outcome":   ev.Outcome,
	}
	if ev.Governed {
		resp["policy_uuid"] = ev.Selection.Policy.ID
		resp["policy_name"] = ev.Selection.Policy.Name
		resp["scope"] = ev.Selection.Scope
		resp["ambiguous"] = ev.Selection.Ambiguous()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ports.ErrPolicyNotFound), errors.Is(err, ports.ErrAssignmentNotFound):
		status = http.StatusNotFound
	case isPgInvalidInput(err):
		status = http.StatusBadRequest
	}
	code := "store_error"
	if status == http.StatusNotFound {
		code = "not_found"
	} else if status == http.StatusBadRequest {
		code = "invalid_input"
	}
	writeError(w, r, status, code, message)
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    errorEnvelopeMeta `json:"meta"`
}

type errorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:    code,
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta: errorEnvelopeMeta{
			Path:   r.URL.Path,
			Method: r.Method,
		},
	})
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if ok := errors.As(err, &pgErr); ok && pgErr != nil {
		return strings.TrimSpace(pgErr.Code)
	}
	return ""
}

func isPgInvalidInput(err error) bool {
	switch pgErrorCode(err) {
	case "22P02", "22003", "22007", "22008":
		return true
	default:
		return false
	}
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}

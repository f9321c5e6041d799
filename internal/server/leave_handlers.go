package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lumenhr/lumenhr/internal/routing"
	policytypes "github.com/lumenhr/lumenhr/modules/policy/domain/types"
	policyservices "github.com/lumenhr/lumenhr/modules/policy/services"
	"github.com/lumenhr/lumenhr/pkg/authz"
)

type leaveAPIRequest struct {
	UserUUID  string `json:"user_uuid"`
	StartDate string `json:"start_date"`
	Days      int    `json:"days"`
	HalfDay   bool   `json:"half_day"`
	Reason    string `json:"reason"`
}

// handleLeaveRequestsAPI submits and lists leave requests. Each submission is
// decided by the actor's effective leave policy; requests the engine cannot
// decide stay PENDING.
func handleLeaveRequestsAPI(w http.ResponseWriter, r *http.Request, store LeaveStore, resolution *policyservices.ResolutionService) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	principal, ok := currentPrincipal(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		userUUID := strings.TrimSpace(r.URL.Query().Get("user_uuid"))
		if principal.RoleSlug == authz.RoleEmployee {
			if userUUID != "" && userUUID != principal.UserID {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusForbidden, "forbidden", "employees may only read their own requests")
				return
			}
			userUUID = principal.UserID
		}

		requests, err := store.ListLeaveRequests(r.Context(), tenant.ID, userUUID, leaveLimit(r))
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "store_error", "list failed")
			return
		}
		if requests == nil {
			requests = make([]LeaveRequest, 0)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tenant":   tenant.ID,
			"requests": requests,
		})
		return

	case http.MethodPost:
		var req leaveAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_json", "bad json")
			return
		}

		userUUID := strings.TrimSpace(req.UserUUID)
		if userUUID == "" {
			userUUID = principal.UserID
		}
		if userUUID != principal.UserID && principal.RoleSlug == authz.RoleEmployee {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusForbidden, "forbidden", "employees may only request leave for themselves")
			return
		}

		req.StartDate = strings.TrimSpace(req.StartDate)
		startDate, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}
		if req.Days <= 0 {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_days", "days must be positive")
			return
		}

		meta := map[string]string{
			"start_date": req.StartDate,
			"days":       strconv.Itoa(req.Days),
		}
		if req.HalfDay {
			meta["half_day"] = "1"
		}

		// The request timestamp anchors notice-period math; the start date
		// itself travels in meta.
		now := time.Now().UTC()
		ev, err := resolution.EvaluateAction(r.Context(), tenant.ID, userUUID, policytypes.PolicyTypeLeave, policytypes.ActionContext{
			Action:    policytypes.ActionLeaveDay,
			Timestamp: now,
			Meta:      meta,
		}, tenant.Location())
		if err != nil {
			if errors.Is(err, policyservices.ErrUnknownUser) {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusNotFound, "unknown_user", "user not found")
				return
			}
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "resolution_error", "policy resolution failed")
			return
		}

		policyID := ""
		if ev.Governed {
			policyID = ev.Selection.Policy.ID
		}
		lr, err := store.SubmitLeaveRequest(r.Context(), tenant.ID, submitLeaveParams{
			UserID:    userUUID,
			StartDate: startDate.Format("2006-01-02"),
			Days:      req.Days,
			HalfDay:   req.HalfDay,
			Reason:    req.Reason,
			Outcome:   ev.Outcome,
			PolicyID:  policyID,
		})
		if err != nil {
			if isBadRequestError(err) || isPgInvalidInput(err) {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_input", err.Error())
				return
			}
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "store_error", "submit failed")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(lr)
		return

	default:
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
}

func leaveLimit(r *http.Request) int {
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

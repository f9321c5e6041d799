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

type punchAPIRequest struct {
	UserUUID  string `json:"user_uuid"`
	PunchType string `json:"punch_type"`
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"device_id"`
	Location  string `json:"location"`
}

func punchAction(punchType string) (policytypes.ActionKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(punchType)) {
	case "IN":
		return policytypes.ActionClockIn, true
	case "OUT":
		return policytypes.ActionClockOut, true
	default:
		return "", false
	}
}

// handlePunchesAPI records clock events. The punch is classified under the
// actor's effective time policy at submission; an ungoverned actor still
// punches, the event just carries UNGOVERNED.
func handlePunchesAPI(w http.ResponseWriter, r *http.Request, store PunchStore, resolution *policyservices.ResolutionService) {
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
		if userUUID == "" {
			userUUID = principal.UserID
		}
		if userUUID != principal.UserID && principal.RoleSlug == authz.RoleEmployee {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusForbidden, "forbidden", "employees may only read their own punches")
			return
		}

		from, to, err := punchWindow(r)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_window", err.Error())
			return
		}
		punches, err := store.ListPunches(r.Context(), tenant.ID, userUUID, from, to, punchLimit(r))
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "store_error", "list failed")
			return
		}
		if punches == nil {
			punches = make([]PunchEvent, 0)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tenant":    tenant.ID,
			"user_uuid": userUUID,
			"punches":   punches,
		})
		return

	case http.MethodPost:
		var req punchAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_json", "bad json")
			return
		}

		userUUID := strings.TrimSpace(req.UserUUID)
		if userUUID == "" {
			userUUID = principal.UserID
		}
		if userUUID != principal.UserID && principal.RoleSlug == authz.RoleEmployee {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusForbidden, "forbidden", "employees may only punch for themselves")
			return
		}

		action, ok := punchAction(req.PunchType)
		if !ok {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_punch_type", "punch_type must be IN or OUT")
			return
		}

		ts := time.Now().UTC()
		if strings.TrimSpace(req.Timestamp) != "" {
			parsed, err := time.Parse(time.RFC3339, req.Timestamp)
			if err != nil {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_timestamp", "timestamp must be RFC 3339")
				return
			}
			ts = parsed.UTC()
		}

		meta := map[string]string{}
		if v := strings.TrimSpace(req.DeviceID); v != "" {
			meta["device_id"] = v
		}
		if v := strings.TrimSpace(req.Location); v != "" {
			meta["location"] = v
		}

		ev, err := resolution.EvaluateAction(r.Context(), tenant.ID, userUUID, policytypes.PolicyTypeTime, policytypes.ActionContext{
			Action:    action,
			Timestamp: ts,
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
		punch, err := store.SubmitPunch(r.Context(), tenant.ID, submitPunchParams{
			UserID:    userUUID,
			PunchTime: ts,
			PunchType: strings.ToUpper(strings.TrimSpace(req.PunchType)),
			DeviceID:  req.DeviceID,
			Location:  req.Location,
			Outcome:   ev.Outcome,
			PolicyID:  policyID,
		})
		if err != nil {
			if isBadRequestError(err) || isPgInvalidInput(err) {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_input", err.Error())
				return
			}
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "store_error", "punch failed")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(punch)
		return

	default:
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
}

// punchWindow parses from_date/to_date (inclusive, UTC days). Defaults to
// the last 31 days.
func punchWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -31).Truncate(24 * time.Hour)
	to := now.Add(24 * time.Hour)

	if raw := strings.TrimSpace(r.URL.Query().Get("from_date")); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from_date")
		}
		from = d
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to_date")); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to_date")
		}
		to = d.AddDate(0, 0, 1)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to_date must be >= from_date")
	}
	return from, to, nil
}

func punchLimit(r *http.Request) int {
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

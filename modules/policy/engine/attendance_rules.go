package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

type attendanceRules struct {
	AllowedActions   []string `json:"allowed_actions"`
	RequireDevice    bool     `json:"require_device"`
	AllowedLocations []string `json:"allowed_locations"`
}

// evaluateAttendanceRules gates punch submission: which actions a user may
// record, whether a device id must be present, and from which locations.
// Empty lists mean "no restriction".
func evaluateAttendanceRules(rules json.RawMessage, actx types.ActionContext, _ *time.Location) types.Outcome {
	var r attendanceRules
	if err := json.Unmarshal(rules, &r); err != nil {
		return malformed("attendance rules: " + err.Error())
	}

	if len(r.AllowedActions) > 0 {
		allowed := false
		for _, a := range r.AllowedActions {
			if strings.EqualFold(strings.TrimSpace(a), string(actx.Action)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return types.Outcome{Status: types.OutcomeRejectedType, Detail: "action " + string(actx.Action) + " not allowed"}
		}
	}

	if r.RequireDevice && strings.TrimSpace(actx.Meta["device_id"]) == "" {
		return types.Outcome{Status: types.OutcomeRejectedDevice, Detail: "device_id required"}
	}

	if len(r.AllowedLocations) > 0 {
		loc := strings.TrimSpace(actx.Meta["location"])
		ok := false
		for _, l := range r.AllowedLocations {
			if strings.EqualFold(strings.TrimSpace(l), loc) {
				ok = true
				break
			}
		}
		if !ok {
			return types.Outcome{Status: types.OutcomeRejectedLocation, Detail: "location not allowed"}
		}
	}

	return types.Outcome{Status: types.OutcomeAccepted}
}

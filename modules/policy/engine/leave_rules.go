package engine

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

type leaveRules struct {
	MinNoticeDays      int      `json:"min_notice_days"`
	MaxConsecutiveDays int      `json:"max_consecutive_days"`
	AllowHalfDay       bool     `json:"allow_half_day"`
	BlackoutDates      []string `json:"blackout_dates"`
}

// evaluateLeaveRules validates a leave request. The action context meta
// carries "start_date" (2006-01-02, organization-local) and "days"; "half_day"
// may be "1" for a half-day request.
func evaluateLeaveRules(rules json.RawMessage, actx types.ActionContext, loc *time.Location) types.Outcome {
	var r leaveRules
	if err := json.Unmarshal(rules, &r); err != nil {
		return malformed("leave rules: " + err.Error())
	}
	if r.MinNoticeDays < 0 || r.MaxConsecutiveDays < 0 {
		return malformed("leave rules: negative day counts")
	}

	startRaw := strings.TrimSpace(actx.Meta["start_date"])
	start, err := time.ParseInLocation("2006-01-02", startRaw, loc)
	if err != nil {
		return malformed("leave request: invalid start_date")
	}
	days := 1
	if raw := strings.TrimSpace(actx.Meta["days"]); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 {
			return malformed("leave request: invalid days")
		}
	}
	if actx.Meta["half_day"] == "1" && !r.AllowHalfDay {
		return types.Outcome{Status: types.OutcomeDeniedDuration, Detail: "half-day leave not allowed"}
	}

	if r.MaxConsecutiveDays > 0 && days > r.MaxConsecutiveDays {
		return types.Outcome{Status: types.OutcomeDeniedDuration, DeviationMinutes: 0, Detail: "exceeds max consecutive days"}
	}

	today := actx.Timestamp.In(loc)
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	notice := int(start.Sub(todayDate).Hours() / 24)
	if notice < r.MinNoticeDays {
		return types.Outcome{Status: types.OutcomeDeniedNotice, Detail: "insufficient notice"}
	}

	if len(r.BlackoutDates) > 0 {
		blackout := make(map[string]bool, len(r.BlackoutDates))
		for _, d := range r.BlackoutDates {
			blackout[strings.TrimSpace(d)] = true
		}
		for i := 0; i < days; i++ {
			day := start.AddDate(0, 0, i).Format("2006-01-02")
			if blackout[day] {
				return types.Outcome{Status: types.OutcomeDeniedBlackout, Detail: day + " is blacked out"}
			}
		}
	}

	return types.Outcome{Status: types.OutcomeAllowed}
}

package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

type timeRules struct {
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	GracePeriodMinutes int    `json:"grace_period_minutes"`
	Flexible           bool   `json:"flexible"`
}

// evaluateTimeRules classifies clock events against a daily shift window.
// Times in the payload are organization-local; the punch timestamp is UTC
// and converted with the tenant's zone before comparing.
func evaluateTimeRules(rules json.RawMessage, actx types.ActionContext, loc *time.Location) types.Outcome {
	var r timeRules
	if err := json.Unmarshal(rules, &r); err != nil {
		return malformed("time rules: " + err.Error())
	}
	start, err := minutesOfDay(r.StartTime)
	if err != nil {
		return malformed("time rules: invalid start_time")
	}
	end, err := minutesOfDay(r.EndTime)
	if err != nil {
		return malformed("time rules: invalid end_time")
	}
	if r.GracePeriodMinutes < 0 {
		return malformed("time rules: negative grace_period_minutes")
	}

	local := actx.Timestamp.In(loc)
	m := local.Hour()*60 + local.Minute()

	switch actx.Action {
	case types.ActionClockIn:
		if m > end {
			return types.Outcome{Status: types.OutcomeOutOfWindow, Detail: "clock-in after shift end", DeviationMinutes: m - end}
		}
		if r.Flexible {
			return types.Outcome{Status: types.OutcomeOnTime}
		}
		switch {
		case m < start:
			return types.Outcome{Status: types.OutcomeEarly, DeviationMinutes: start - m}
		case m-start <= r.GracePeriodMinutes:
			return types.Outcome{Status: types.OutcomeOnTime, DeviationMinutes: m - start}
		default:
			return types.Outcome{Status: types.OutcomeLate, DeviationMinutes: m - start}
		}
	case types.ActionClockOut:
		if m < start {
			return types.Outcome{Status: types.OutcomeOutOfWindow, Detail: "clock-out before shift start", DeviationMinutes: start - m}
		}
		if r.Flexible || m >= end {
			return types.Outcome{Status: types.OutcomeOnTime}
		}
		if end-m <= r.GracePeriodMinutes {
			return types.Outcome{Status: types.OutcomeOnTime, DeviationMinutes: end - m}
		}
		return types.Outcome{Status: types.OutcomeEarly, DeviationMinutes: end - m}
	default:
		return types.Outcome{Status: types.OutcomeUnsupported, Detail: fmt.Sprintf("time rules do not cover action %s", actx.Action)}
	}
}

func minutesOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

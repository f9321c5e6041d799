package engine

import (
	"encoding/json"
	"time"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

// Interpreter classifies an action under one policy type's rule shape. It
// must return a typed outcome for every input: a payload that does not match
// the expected shape yields MALFORMED_RULES, never an error or a panic.
type Interpreter func(rules json.RawMessage, actx types.ActionContext, loc *time.Location) types.Outcome

var interpreters = map[types.PolicyType]Interpreter{
	types.PolicyTypeTime:       evaluateTimeRules,
	types.PolicyTypeCalendar:   evaluateCalendarRules,
	types.PolicyTypeLeave:      evaluateLeaveRules,
	types.PolicyTypeAttendance: evaluateAttendanceRules,
	types.PolicyTypeCustom:     evaluateCustomRules,
}

// Evaluate dispatches on the policy type. loc is the tenant's configured
// time zone; nil falls back to UTC. A type with no registered interpreter
// yields UNSUPPORTED and the caller decides whether to block the action.
func Evaluate(p types.Policy, actx types.ActionContext, loc *time.Location) types.Outcome {
	if loc == nil {
		loc = time.UTC
	}
	interp, ok := interpreters[p.Type]
	if !ok {
		return types.Outcome{Status: types.OutcomeUnsupported, Detail: "no interpreter for policy type " + string(p.Type)}
	}
	return interp(p.Rules, actx, loc)
}

func malformed(detail string) types.Outcome {
	return types.Outcome{Status: types.OutcomeMalformedRules, Detail: detail}
}

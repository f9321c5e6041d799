package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

type calendarRules struct {
	Workdays []string `json:"workdays"`
	Holidays []string `json:"holidays"`
}

var weekdayTokens = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// evaluateCalendarRules answers "is this day a workday". Workdays default to
// Monday through Friday when the payload omits them; holiday dates override
// the weekday check.
func evaluateCalendarRules(rules json.RawMessage, actx types.ActionContext, loc *time.Location) types.Outcome {
	var r calendarRules
	if err := json.Unmarshal(rules, &r); err != nil {
		return malformed("calendar rules: " + err.Error())
	}

	workdays := make(map[time.Weekday]bool, 7)
	if len(r.Workdays) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			workdays[d] = true
		}
	} else {
		for _, tok := range r.Workdays {
			d, ok := weekdayTokens[strings.ToLower(strings.TrimSpace(tok))]
			if !ok {
				return malformed("calendar rules: unknown workday " + tok)
			}
			workdays[d] = true
		}
	}

	local := actx.Timestamp.In(loc)
	day := local.Format("2006-01-02")
	for _, h := range r.Holidays {
		if strings.TrimSpace(h) == day {
			return types.Outcome{Status: types.OutcomeHoliday, Detail: day}
		}
	}
	if workdays[local.Weekday()] {
		return types.Outcome{Status: types.OutcomeWorkday}
	}
	return types.Outcome{Status: types.OutcomeOffDay}
}

package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestEvaluateUnsupportedTypeNeverErrors(t *testing.T) {
	p := types.Policy{Type: types.PolicyTypePenalty, Rules: json.RawMessage(`{"anything":true}`)}
	out := Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: time.Now()}, nil)
	if out.Status != types.OutcomeUnsupported {
		t.Fatalf("status = %s, want UNSUPPORTED", out.Status)
	}
}

func TestEvaluateMalformedRules(t *testing.T) {
	cases := []struct {
		name  string
		ptype types.PolicyType
		rules string
	}{
		{name: "not json", ptype: types.PolicyTypeTime, rules: `{`},
		{name: "bad start", ptype: types.PolicyTypeTime, rules: `{"start_time":"9am","end_time":"18:00"}`},
		{name: "negative grace", ptype: types.PolicyTypeTime, rules: `{"start_time":"09:00","end_time":"18:00","grace_period_minutes":-5}`},
		{name: "bad workday", ptype: types.PolicyTypeCalendar, rules: `{"workdays":["funday"]}`},
		{name: "missing decision", ptype: types.PolicyTypeCustom, rules: `{}`},
		{name: "bad cel", ptype: types.PolicyTypeCustom, rules: `{"decision_expr":"ctx[["}`},
	}
	for _, tc := range cases {
		p := types.Policy{Type: tc.ptype, Rules: json.RawMessage(tc.rules)}
		out := Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: time.Now()}, nil)
		if out.Status != types.OutcomeMalformedRules {
			t.Fatalf("%s: status = %s, want MALFORMED_RULES", tc.name, out.Status)
		}
	}
}

func TestTimeRulesClockIn(t *testing.T) {
	rules := json.RawMessage(`{"start_time":"10:00","end_time":"19:00","grace_period_minutes":10}`)
	p := types.Policy{Type: types.PolicyTypeTime, Rules: rules}
	loc := mustLocation(t, "Asia/Shanghai")

	cases := []struct {
		name   string
		local  string
		want   types.OutcomeStatus
		devMin int
	}{
		{name: "at start", local: "2026-03-02T10:00:00", want: types.OutcomeOnTime, devMin: 0},
		{name: "last grace minute", local: "2026-03-02T10:10:00", want: types.OutcomeOnTime, devMin: 10},
		{name: "past grace", local: "2026-03-02T10:12:00", want: types.OutcomeLate, devMin: 12},
		{name: "before start", local: "2026-03-02T09:40:00", want: types.OutcomeEarly, devMin: 20},
		{name: "after shift end", local: "2026-03-02T19:30:00", want: types.OutcomeOutOfWindow, devMin: 30},
	}
	for _, tc := range cases {
		local, err := time.ParseInLocation("2006-01-02T15:04:05", tc.local, loc)
		if err != nil {
			t.Fatal(err)
		}
		out := Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: local.UTC()}, loc)
		if out.Status != tc.want || out.DeviationMinutes != tc.devMin {
			t.Fatalf("%s: out = %+v, want %s dev=%d", tc.name, out, tc.want, tc.devMin)
		}
	}
}

func TestTimeRulesClockOut(t *testing.T) {
	rules := json.RawMessage(`{"start_time":"09:00","end_time":"18:00","grace_period_minutes":15}`)
	p := types.Policy{Type: types.PolicyTypeTime, Rules: rules}

	cases := []struct {
		name string
		utc  string
		want types.OutcomeStatus
	}{
		{name: "after end", utc: "2026-03-02T18:05:00Z", want: types.OutcomeOnTime},
		{name: "within leave grace", utc: "2026-03-02T17:50:00Z", want: types.OutcomeOnTime},
		{name: "too early", utc: "2026-03-02T16:00:00Z", want: types.OutcomeEarly},
		{name: "before shift", utc: "2026-03-02T08:00:00Z", want: types.OutcomeOutOfWindow},
	}
	for _, tc := range cases {
		ts, _ := time.Parse(time.RFC3339, tc.utc)
		out := Evaluate(p, types.ActionContext{Action: types.ActionClockOut, Timestamp: ts}, time.UTC)
		if out.Status != tc.want {
			t.Fatalf("%s: out = %+v, want %s", tc.name, out, tc.want)
		}
	}
}

func TestTimeRulesFlexible(t *testing.T) {
	rules := json.RawMessage(`{"start_time":"09:00","end_time":"18:00","grace_period_minutes":0,"flexible":true}`)
	p := types.Policy{Type: types.PolicyTypeTime, Rules: rules}
	ts, _ := time.Parse(time.RFC3339, "2026-03-02T11:30:00Z")
	out := Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: ts}, time.UTC)
	if out.Status != types.OutcomeOnTime {
		t.Fatalf("out = %+v, want ON_TIME", out)
	}
}

func TestTimeRulesTenantTimezone(t *testing.T) {
	// 01:30 UTC is 09:30 in Shanghai; a 09:00 start with 15 minutes grace
	// is late in UTC terms but on time locally.
	rules := json.RawMessage(`{"start_time":"09:00","end_time":"18:00","grace_period_minutes":45}`)
	p := types.Policy{Type: types.PolicyTypeTime, Rules: rules}
	ts, _ := time.Parse(time.RFC3339, "2026-03-02T01:30:00Z")
	out := Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: ts}, mustLocation(t, "Asia/Shanghai"))
	if out.Status != types.OutcomeOnTime || out.DeviationMinutes != 30 {
		t.Fatalf("out = %+v, want ON_TIME dev=30", out)
	}
}

func TestCalendarRules(t *testing.T) {
	rules := json.RawMessage(`{"workdays":["mon","tue","wed","thu","fri"],"holidays":["2026-05-01"]}`)
	p := types.Policy{Type: types.PolicyTypeCalendar, Rules: rules}

	cases := []struct {
		utc  string
		want types.OutcomeStatus
	}{
		{utc: "2026-03-02T10:00:00Z", want: types.OutcomeWorkday}, // Monday
		{utc: "2026-03-07T10:00:00Z", want: types.OutcomeOffDay},  // Saturday
		{utc: "2026-05-01T10:00:00Z", want: types.OutcomeHoliday}, // Labour day
	}
	for _, tc := range cases {
		ts, _ := time.Parse(time.RFC3339, tc.utc)
		out := Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: ts}, time.UTC)
		if out.Status != tc.want {
			t.Fatalf("%s: out = %+v, want %s", tc.utc, out, tc.want)
		}
	}
}

func TestLeaveRules(t *testing.T) {
	rules := json.RawMessage(`{"min_notice_days":3,"max_consecutive_days":10,"allow_half_day":false,"blackout_dates":["2026-06-10"]}`)
	p := types.Policy{Type: types.PolicyTypeLeave, Rules: rules}
	now, _ := time.Parse(time.RFC3339, "2026-06-01T09:00:00Z")

	cases := []struct {
		name string
		meta map[string]string
		want types.OutcomeStatus
	}{
		{name: "ok", meta: map[string]string{"start_date": "2026-06-05", "days": "2"}, want: types.OutcomeAllowed},
		{name: "short notice", meta: map[string]string{"start_date": "2026-06-02", "days": "1"}, want: types.OutcomeDeniedNotice},
		{name: "too long", meta: map[string]string{"start_date": "2026-06-05", "days": "11"}, want: types.OutcomeDeniedDuration},
		{name: "hits blackout", meta: map[string]string{"start_date": "2026-06-08", "days": "4"}, want: types.OutcomeDeniedBlackout},
		{name: "half day rejected", meta: map[string]string{"start_date": "2026-06-05", "days": "1", "half_day": "1"}, want: types.OutcomeDeniedDuration},
		{name: "bad start date", meta: map[string]string{"start_date": "whenever"}, want: types.OutcomeMalformedRules},
	}
	for _, tc := range cases {
		out := Evaluate(p, types.ActionContext{Action: types.ActionLeaveDay, Timestamp: now, Meta: tc.meta}, time.UTC)
		if out.Status != tc.want {
			t.Fatalf("%s: out = %+v, want %s", tc.name, out, tc.want)
		}
	}
}

func TestAttendanceRules(t *testing.T) {
	rules := json.RawMessage(`{"allowed_actions":["CLOCK_IN","CLOCK_OUT"],"require_device":true,"allowed_locations":["HQ"]}`)
	p := types.Policy{Type: types.PolicyTypeAttendance, Rules: rules}
	now := time.Now().UTC()

	cases := []struct {
		name   string
		action types.ActionKind
		meta   map[string]string
		want   types.OutcomeStatus
	}{
		{name: "accepted", action: types.ActionClockIn, meta: map[string]string{"device_id": "dev-1", "location": "HQ"}, want: types.OutcomeAccepted},
		{name: "wrong action", action: types.ActionLeaveDay, meta: map[string]string{"device_id": "dev-1", "location": "HQ"}, want: types.OutcomeRejectedType},
		{name: "no device", action: types.ActionClockIn, meta: map[string]string{"location": "HQ"}, want: types.OutcomeRejectedDevice},
		{name: "bad location", action: types.ActionClockIn, meta: map[string]string{"device_id": "dev-1", "location": "Remote"}, want: types.OutcomeRejectedLocation},
	}
	for _, tc := range cases {
		out := Evaluate(p, types.ActionContext{Action: tc.action, Timestamp: now, Meta: tc.meta}, time.UTC)
		if out.Status != tc.want {
			t.Fatalf("%s: out = %+v, want %s", tc.name, out, tc.want)
		}
	}
}

func TestCustomRulesCEL(t *testing.T) {
	p := types.Policy{
		Type:  types.PolicyTypeCustom,
		Rules: json.RawMessage(`{"eligibility_expr":"ctx[\"action\"] == \"CLOCK_IN\"","decision_expr":"ctx[\"weekday\"] == \"sat\" ? \"deny\" : \"allow\""}`),
	}

	monday, _ := time.Parse(time.RFC3339, "2026-03-02T10:00:00Z")
	saturday, _ := time.Parse(time.RFC3339, "2026-03-07T10:00:00Z")

	out := Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: monday}, time.UTC)
	if out.Status != types.OutcomeAllow {
		t.Fatalf("monday clock-in: out = %+v, want ALLOW", out)
	}
	out = Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: saturday}, time.UTC)
	if out.Status != types.OutcomeDeny {
		t.Fatalf("saturday clock-in: out = %+v, want DENY", out)
	}
	out = Evaluate(p, types.ActionContext{Action: types.ActionClockOut, Timestamp: monday}, time.UTC)
	if out.Status != types.OutcomeDeny || out.Detail != "eligibility not met" {
		t.Fatalf("ineligible action: out = %+v, want DENY eligibility", out)
	}
}

func TestCustomRulesProgramCacheReuse(t *testing.T) {
	p := types.Policy{
		Type:  types.PolicyTypeCustom,
		Rules: json.RawMessage(`{"decision_expr":"\"allow\""}`),
	}
	ts := time.Now().UTC()
	for i := 0; i < 3; i++ {
		out := Evaluate(p, types.ActionContext{Action: types.ActionClockIn, Timestamp: ts}, time.UTC)
		if out.Status != types.OutcomeAllow {
			t.Fatalf("out = %+v, want ALLOW", out)
		}
	}
}

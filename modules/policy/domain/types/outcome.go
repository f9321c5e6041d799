package types

import "time"

// ActionKind names the user action being classified.
type ActionKind string

const (
	ActionClockIn  ActionKind = "CLOCK_IN"
	ActionClockOut ActionKind = "CLOCK_OUT"
	ActionLeaveDay ActionKind = "LEAVE_DAY"
)

// ActionContext carries the minimal point-in-time facts an interpreter needs.
// Timestamp is UTC; interpreters convert to the tenant's local time themselves.
type ActionContext struct {
	Action    ActionKind        `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Meta      map[string]string `json:"meta,omitempty"`
}

type OutcomeStatus string

const (
	// time
	OutcomeOnTime      OutcomeStatus = "ON_TIME"
	OutcomeLate        OutcomeStatus = "LATE"
	OutcomeEarly       OutcomeStatus = "EARLY"
	OutcomeOutOfWindow OutcomeStatus = "OUT_OF_WINDOW"

	// calendar
	OutcomeWorkday OutcomeStatus = "WORKDAY"
	OutcomeOffDay  OutcomeStatus = "OFF_DAY"
	OutcomeHoliday OutcomeStatus = "HOLIDAY"

	// leave
	OutcomeAllowed        OutcomeStatus = "ALLOWED"
	OutcomeDeniedNotice   OutcomeStatus = "DENIED_NOTICE"
	OutcomeDeniedDuration OutcomeStatus = "DENIED_DURATION"
	OutcomeDeniedBlackout OutcomeStatus = "DENIED_BLACKOUT"

	// attendance
	OutcomeAccepted         OutcomeStatus = "ACCEPTED"
	OutcomeRejectedType     OutcomeStatus = "REJECTED_PUNCH_TYPE"
	OutcomeRejectedDevice   OutcomeStatus = "REJECTED_DEVICE"
	OutcomeRejectedLocation OutcomeStatus = "REJECTED_LOCATION"

	// custom (CEL)
	OutcomeAllow OutcomeStatus = "ALLOW"
	OutcomeDeny  OutcomeStatus = "DENY"

	// failure modes, always returned as typed results
	OutcomeUnsupported    OutcomeStatus = "UNSUPPORTED"
	OutcomeMalformedRules OutcomeStatus = "MALFORMED_RULES"

	// no policy governs this action; caller applies system defaults
	OutcomeUngoverned OutcomeStatus = "UNGOVERNED"
)

// Outcome classifies an action under a policy's rules. DeviationMinutes is
// interpreter-specific (e.g. minutes late for a clock-in) and zero when not
// meaningful.
type Outcome struct {
	Status           OutcomeStatus `json:"status"`
	Detail           string        `json:"detail,omitempty"`
	DeviationMinutes int           `json:"deviation_minutes,omitempty"`
}

package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	policytypes "github.com/lumenhr/lumenhr/modules/policy/domain/types"
	"github.com/lumenhr/lumenhr/pkg/uuidv7"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PunchEvent is one recorded clock action together with the outcome the
// effective time policy assigned to it at submission time. The outcome is
// denormalized on purpose: later policy edits must not rewrite history.
type PunchEvent struct {
	EventID          string    `json:"event_uuid"`
	UserID           string    `json:"user_uuid"`
	PunchTime        time.Time `json:"punch_time"`
	PunchType        string    `json:"punch_type"`
	DeviceID         string    `json:"device_id,omitempty"`
	Location         string    `json:"location,omitempty"`
	OutcomeStatus    string    `json:"outcome_status"`
	OutcomeDetail    string    `json:"outcome_detail,omitempty"`
	DeviationMinutes int       `json:"deviation_minutes,omitempty"`
	PolicyID         string    `json:"policy_uuid,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
}

type submitPunchParams struct {
	UserID    string
	PunchTime time.Time
	PunchType string
	DeviceID  string
	Location  string
	Outcome   policytypes.Outcome
	PolicyID  string
}

type PunchStore interface {
	ListPunches(ctx context.Context, tenantID string, userID string, fromUTC time.Time, toUTC time.Time, limit int) ([]PunchEvent, error)
	SubmitPunch(ctx context.Context, tenantID string, p submitPunchParams) (PunchEvent, error)
}

type punchPGStore struct {
	pool pgBeginner
}

func newPunchPGStore(pool pgBeginner) *punchPGStore {
	return &punchPGStore{pool: pool}
}

func (s *punchPGStore) ListPunches(ctx context.Context, tenantID string, userID string, fromUTC time.Time, toUTC time.Time, limit int) ([]PunchEvent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}

	rows, err := tx.Query(ctx, `
SELECT
  event_uuid::text,
  user_uuid::text,
  punch_time,
  punch_type,
  COALESCE(device_id, ''),
  COALESCE(location, ''),
  outcome_status,
  COALESCE(outcome_detail, ''),
  deviation_minutes,
  COALESCE(policy_uuid::text, ''),
  recorded_at
FROM attendance.punch_events
WHERE tenant_id = $1::uuid
  AND user_uuid = $2::uuid
  AND punch_time >= $3
  AND punch_time < $4
ORDER BY punch_time DESC, event_uuid DESC
LIMIT $5
`, tenantID, userID, fromUTC, toUTC, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PunchEvent
	for rows.Next() {
		var p PunchEvent
		if err := rows.Scan(&p.EventID, &p.UserID, &p.PunchTime, &p.PunchType, &p.DeviceID, &p.Location,
			&p.OutcomeStatus, &p.OutcomeDetail, &p.DeviationMinutes, &p.PolicyID, &p.RecordedAt); err != nil {
			return nil, err
		}
		p.PunchTime = p.PunchTime.UTC()
		p.RecordedAt = p.RecordedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *punchPGStore) SubmitPunch(ctx context.Context, tenantID string, p submitPunchParams) (PunchEvent, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return PunchEvent{}, newBadRequestError("user_uuid is required")
	}
	p.PunchType = strings.ToUpper(strings.TrimSpace(p.PunchType))
	if p.PunchType == "" {
		return PunchEvent{}, newBadRequestError("punch_type is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PunchEvent{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return PunchEvent{}, err
	}

	eventID, err := uuidv7.NewString()
	if err != nil {
		return PunchEvent{}, err
	}

	var out PunchEvent
	if err := tx.QueryRow(ctx, `
INSERT INTO attendance.punch_events
  (event_uuid, tenant_id, user_uuid, punch_time, punch_type, device_id, location,
   outcome_status, outcome_detail, deviation_minutes, policy_uuid)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4::timestamptz, $5, NULLIF($6, ''), NULLIF($7, ''),
        $8, NULLIF($9, ''), $10, NULLIF($11, '')::uuid)
RETURNING event_uuid::text, user_uuid::text, punch_time, punch_type,
          COALESCE(device_id, ''), COALESCE(location, ''),
          outcome_status, COALESCE(outcome_detail, ''), deviation_minutes,
          COALESCE(policy_uuid::text, ''), recorded_at
`, eventID, tenantID, p.UserID, p.PunchTime.UTC(), p.PunchType, strings.TrimSpace(p.DeviceID), strings.TrimSpace(p.Location),
		string(p.Outcome.Status), p.Outcome.Detail, p.Outcome.DeviationMinutes, strings.TrimSpace(p.PolicyID),
	).Scan(&out.EventID, &out.UserID, &out.PunchTime, &out.PunchType, &out.DeviceID, &out.Location,
		&out.OutcomeStatus, &out.OutcomeDetail, &out.DeviationMinutes, &out.PolicyID, &out.RecordedAt); err != nil {
		return PunchEvent{}, err
	}
	out.PunchTime = out.PunchTime.UTC()
	out.RecordedAt = out.RecordedAt.UTC()

	if err := tx.Commit(ctx); err != nil {
		return PunchEvent{}, err
	}
	return out, nil
}

type punchMemoryStore struct {
	punches map[string]map[string][]PunchEvent
	seq     int
}

func newPunchMemoryStore() *punchMemoryStore {
	return &punchMemoryStore{punches: make(map[string]map[string][]PunchEvent)}
}

func (s *punchMemoryStore) ListPunches(_ context.Context, tenantID string, userID string, fromUTC time.Time, toUTC time.Time, limit int) ([]PunchEvent, error) {
	byUser := s.punches[tenantID]
	if byUser == nil {
		return nil, nil
	}
	all := byUser[userID]
	if len(all) == 0 {
		return nil, nil
	}

	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}

	out := make([]PunchEvent, 0, limit)
	for _, p := range all {
		if p.PunchTime.Before(fromUTC) || !p.PunchTime.Before(toUTC) {
			continue
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *punchMemoryStore) SubmitPunch(_ context.Context, tenantID string, p submitPunchParams) (PunchEvent, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return PunchEvent{}, newBadRequestError("user_uuid is required")
	}
	p.PunchType = strings.ToUpper(strings.TrimSpace(p.PunchType))
	if p.PunchType == "" {
		return PunchEvent{}, newBadRequestError("punch_type is required")
	}

	s.seq++
	out := PunchEvent{
		EventID:          fmt.Sprintf("punch-%04d", s.seq),
		UserID:           p.UserID,
		PunchTime:        p.PunchTime.UTC(),
		PunchType:        p.PunchType,
		DeviceID:         strings.TrimSpace(p.DeviceID),
		Location:         strings.TrimSpace(p.Location),
		OutcomeStatus:    string(p.Outcome.Status),
		OutcomeDetail:    p.Outcome.Detail,
		DeviationMinutes: p.Outcome.DeviationMinutes,
		PolicyID:         strings.TrimSpace(p.PolicyID),
		RecordedAt:       time.Now().UTC(),
	}

	if s.punches[tenantID] == nil {
		s.punches[tenantID] = make(map[string][]PunchEvent)
	}
	s.punches[tenantID][p.UserID] = append([]PunchEvent{out}, s.punches[tenantID][p.UserID]...)
	return out, nil
}

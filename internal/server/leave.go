package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	policytypes "github.com/lumenhr/lumenhr/modules/policy/domain/types"
	"github.com/lumenhr/lumenhr/pkg/uuidv7"
)

const (
	leaveStatusApproved = "APPROVED"
	leaveStatusRejected = "REJECTED"
	leaveStatusPending  = "PENDING"
)

// LeaveRequest is a submitted leave request and the decision the effective
// leave policy produced for it. Requests the policy engine could not decide
// (ungoverned user, unsupported type, malformed rules) stay PENDING for a
// human to pick up.
type LeaveRequest struct {
	RequestID     string    `json:"request_uuid"`
	UserID        string    `json:"user_uuid"`
	StartDate     string    `json:"start_date"`
	Days          int       `json:"days"`
	HalfDay       bool      `json:"half_day,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Status        string    `json:"status"`
	OutcomeStatus string    `json:"outcome_status"`
	OutcomeDetail string    `json:"outcome_detail,omitempty"`
	PolicyID      string    `json:"policy_uuid,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type submitLeaveParams struct {
	UserID    string
	StartDate string
	Days      int
	HalfDay   bool
	Reason    string
	Outcome   policytypes.Outcome
	PolicyID  string
}

type LeaveStore interface {
	ListLeaveRequests(ctx context.Context, tenantID string, userID string, limit int) ([]LeaveRequest, error)
	SubmitLeaveRequest(ctx context.Context, tenantID string, p submitLeaveParams) (LeaveRequest, error)
}

// leaveStatusForOutcome folds the policy outcome into the request lifecycle.
func leaveStatusForOutcome(o policytypes.Outcome) string {
	switch o.Status {
	case policytypes.OutcomeAllowed, policytypes.OutcomeAllow:
		return leaveStatusApproved
	case policytypes.OutcomeDeniedNotice, policytypes.OutcomeDeniedDuration, policytypes.OutcomeDeniedBlackout, policytypes.OutcomeDeny:
		return leaveStatusRejected
	default:
		return leaveStatusPending
	}
}

type leavePGStore struct {
	pool pgBeginner
}

func newLeavePGStore(pool pgBeginner) *leavePGStore {
	return &leavePGStore{pool: pool}
}

func (s *leavePGStore) ListLeaveRequests(ctx context.Context, tenantID string, userID string, limit int) ([]LeaveRequest, error) {
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
  request_uuid::text,
  user_uuid::text,
  to_char(start_date, 'YYYY-MM-DD'),
  days,
  half_day,
  COALESCE(reason, ''),
  status,
  outcome_status,
  COALESCE(outcome_detail, ''),
  COALESCE(policy_uuid::text, ''),
  submitted_at
FROM leave.leave_requests
WHERE tenant_id = $1::uuid
  AND ($2 = '' OR user_uuid = $2::uuid)
ORDER BY submitted_at DESC, request_uuid DESC
LIMIT $3
`, tenantID, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaveRequest
	for rows.Next() {
		var lr LeaveRequest
		if err := rows.Scan(&lr.RequestID, &lr.UserID, &lr.StartDate, &lr.Days, &lr.HalfDay, &lr.Reason,
			&lr.Status, &lr.OutcomeStatus, &lr.OutcomeDetail, &lr.PolicyID, &lr.SubmittedAt); err != nil {
			return nil, err
		}
		lr.SubmittedAt = lr.SubmittedAt.UTC()
		out = append(out, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *leavePGStore) SubmitLeaveRequest(ctx context.Context, tenantID string, p submitLeaveParams) (LeaveRequest, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return LeaveRequest{}, newBadRequestError("user_uuid is required")
	}
	if _, err := time.Parse("2006-01-02", p.StartDate); err != nil {
		return LeaveRequest{}, newBadRequestError("invalid start_date")
	}
	if p.Days <= 0 {
		return LeaveRequest{}, newBadRequestError("days must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return LeaveRequest{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return LeaveRequest{}, err
	}

	requestID, err := uuidv7.NewString()
	if err != nil {
		return LeaveRequest{}, err
	}

	var out LeaveRequest
	if err := tx.QueryRow(ctx, `
INSERT INTO leave.leave_requests
  (request_uuid, tenant_id, user_uuid, start_date, days, half_day, reason,
   status, outcome_status, outcome_detail, policy_uuid)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4::date, $5, $6, NULLIF($7, ''),
        $8, $9, NULLIF($10, ''), NULLIF($11, '')::uuid)
RETURNING request_uuid::text, user_uuid::text, to_char(start_date, 'YYYY-MM-DD'),
          days, half_day, COALESCE(reason, ''), status,
          outcome_status, COALESCE(outcome_detail, ''),
          COALESCE(policy_uuid::text, ''), submitted_at
`, requestID, tenantID, p.UserID, p.StartDate, p.Days, p.HalfDay, strings.TrimSpace(p.Reason),
		leaveStatusForOutcome(p.Outcome), string(p.Outcome.Status), p.Outcome.Detail, strings.TrimSpace(p.PolicyID),
	).Scan(&out.RequestID, &out.UserID, &out.StartDate, &out.Days, &out.HalfDay, &out.Reason, &out.Status,
		&out.OutcomeStatus, &out.OutcomeDetail, &out.PolicyID, &out.SubmittedAt); err != nil {
		return LeaveRequest{}, err
	}
	out.SubmittedAt = out.SubmittedAt.UTC()

	if err := tx.Commit(ctx); err != nil {
		return LeaveRequest{}, err
	}
	return out, nil
}

type leaveMemoryStore struct {
	requests map[string][]LeaveRequest
	seq      int
}

func newLeaveMemoryStore() *leaveMemoryStore {
	return &leaveMemoryStore{requests: make(map[string][]LeaveRequest)}
}

func (s *leaveMemoryStore) ListLeaveRequests(_ context.Context, tenantID string, userID string, limit int) ([]LeaveRequest, error) {
	userID = strings.TrimSpace(userID)
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}

	var out []LeaveRequest
	for _, lr := range s.requests[tenantID] {
		if userID != "" && lr.UserID != userID {
			continue
		}
		out = append(out, lr)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *leaveMemoryStore) SubmitLeaveRequest(_ context.Context, tenantID string, p submitLeaveParams) (LeaveRequest, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return LeaveRequest{}, newBadRequestError("user_uuid is required")
	}
	if _, err := time.Parse("2006-01-02", p.StartDate); err != nil {
		return LeaveRequest{}, newBadRequestError("invalid start_date")
	}
	if p.Days <= 0 {
		return LeaveRequest{}, newBadRequestError("days must be positive")
	}

	s.seq++
	out := LeaveRequest{
		RequestID:     fmt.Sprintf("leave-%04d", s.seq),
		UserID:        p.UserID,
		StartDate:     p.StartDate,
		Days:          p.Days,
		HalfDay:       p.HalfDay,
		Reason:        strings.TrimSpace(p.Reason),
		Status:        leaveStatusForOutcome(p.Outcome),
		OutcomeStatus: string(p.Outcome.Status),
		OutcomeDetail: p.Outcome.Detail,
		PolicyID:      strings.TrimSpace(p.PolicyID),
		SubmittedAt:   time.Now().UTC(),
	}
	s.requests[tenantID] = append([]LeaveRequest{out}, s.requests[tenantID]...)
	return out, nil
}

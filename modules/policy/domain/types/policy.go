package types

import (
	"encoding/json"
	"time"
)

type PolicyType string

const (
	PolicyTypeAttendance PolicyType = "attendance"
	PolicyTypeLeave      PolicyType = "leave"
	PolicyTypeCalendar   PolicyType = "calendar"
	PolicyTypeTime       PolicyType = "time"
	PolicyTypePenalty    PolicyType = "penalty"
	PolicyTypeCustom     PolicyType = "custom"
)

// PolicyLevel is advisory metadata describing the intended assignment scope.
// Selection never consults it.
type PolicyLevel string

const (
	PolicyLevelOrg        PolicyLevel = "org"
	PolicyLevelBranch     PolicyLevel = "branch"
	PolicyLevelDepartment PolicyLevel = "department"
	PolicyLevelUser       PolicyLevel = "user"
)

type Policy struct {
	ID        string          `json:"policy_uuid"`
	TenantID  string          `json:"tenant_uuid"`
	Name      string          `json:"name"`
	Type      PolicyType      `json:"type"`
	Level     PolicyLevel     `json:"level"`
	Rules     json.RawMessage `json:"rules"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Assignment binds a policy to zero or more scope identifiers. Any subset of
// the scope fields may be set; all empty means tenant-wide.
type Assignment struct {
	ID           string `json:"assignment_uuid"`
	TenantID     string `json:"tenant_uuid"`
	PolicyID     string `json:"policy_uuid"`
	BranchID     string `json:"branch_uuid,omitempty"`
	DepartmentID string `json:"department_uuid,omitempty"`
	UserID       string `json:"user_uuid,omitempty"`
	ClientID     string `json:"client_uuid,omitempty"`
	ProjectID    string `json:"project_uuid,omitempty"`
}

func (a Assignment) IsTenantWide() bool {
	return a.BranchID == "" && a.DepartmentID == "" && a.UserID == "" && a.ClientID == "" && a.ProjectID == ""
}

type ScopeKind string

const (
	ScopeUser       ScopeKind = "user"
	ScopeDepartment ScopeKind = "department"
	ScopeBranch     ScopeKind = "branch"
	ScopeClient     ScopeKind = "client"
	ScopeProject    ScopeKind = "project"
	ScopeOrg        ScopeKind = "org"
)

type ScopeRef struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

// UserScopes is the fully-loaded view of a user the resolver needs. BranchID
// is the branch of the user's department, already traversed by the store;
// empty when the department has no branch (fail-soft, never an error).
type UserScopes struct {
	UserID       string
	TenantID     string
	DepartmentID string
	BranchID     string
	ClientID     string
	ProjectID    string
}

// Candidate is an assignment joined to its policy, pre-filtered by the store
// to the requested type and is_active = true.
type Candidate struct {
	Assignment Assignment
	Policy     Policy
}

// Selection is the result of effective-policy resolution: the winning policy,
// the scope it was bound through, and any same-specificity contender policy
// IDs (a data anomaly the caller should log).
type Selection struct {
	Policy     Policy   `json:"policy"`
	Scope      ScopeRef `json:"scope"`
	Contenders []string `json:"contenders,omitempty"`
}

func (s Selection) Ambiguous() bool { return len(s.Contenders) > 0 }

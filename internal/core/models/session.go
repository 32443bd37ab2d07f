package models

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an agent session
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRunning         Status = "running"
	StatusPendingApproval Status = "pending_approval"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)

// Terminal reports whether the session can make no further progress
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether s is one of the known lifecycle states
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPendingApproval, StatusCompleted, StatusError:
		return true
	}
	return false
}

// ControlMode governs how often the backend pauses for human approval.
// It is owned by the backend; the client only round-trips it.
type ControlMode string

const (
	ModeFullAuto ControlMode = "full_auto"
	ModeSemiAuto ControlMode = "semi_auto"
	ModeGuided   ControlMode = "guided"
)

// Valid reports whether m is a known control mode
func (m ControlMode) Valid() bool {
	switch m {
	case ModeFullAuto, ModeSemiAuto, ModeGuided:
		return true
	}
	return false
}

// Phase is one stage of the backend's reasoning cycle. Entries are not
// required to visit every phase and the same phase may recur.
type Phase string

const (
	PhaseObserve     Phase = "observe"
	PhaseHypothesize Phase = "hypothesize"
	PhaseExplore     Phase = "explore"
	PhaseVerify      Phase = "verify"
	PhaseSynthesize  Phase = "synthesize"
)

// LogEntry is one step of the agent's reasoning trace
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Phase      Phase     `json:"phase"`
	Thought    string    `json:"thought"`
	Action     string    `json:"action,omitempty"`
	Result     string    `json:"result,omitempty"`
	Confidence float64   `json:"confidence"`
}

// Insight is a structured finding produced by the agent, typically in the
// synthesize phase
type Insight struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Evidence        []string `json:"evidence"`
	GroundingScore  float64  `json:"grounding_score"`
	Recommendations []string `json:"recommendations"`
}

// ApprovalRequest is the set of candidate hypotheses the backend wants
// confirmed before proceeding to exploration
type ApprovalRequest struct {
	Message    string   `json:"message"`
	Hypotheses []string `json:"hypotheses"`
}

// Validate checks the request carries at least one hypothesis
func (r *ApprovalRequest) Validate() error {
	if len(r.Hypotheses) == 0 {
		return errors.New("approval request has no hypotheses")
	}
	return nil
}

// PipelineResult is the outcome of a pipeline-mode run
type PipelineResult struct {
	ReportID    string `json:"report_id,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	JobCount    int    `json:"job_count"`
}

// SavedSessionSummary is the lightweight record used to list archived
// sessions without fetching their full logs
type SavedSessionSummary struct {
	ID           string    `json:"id"`
	DatasetID    string    `json:"dataset_id"`
	Objective    string    `json:"objective"`
	Status       Status    `json:"status"`
	InsightCount int       `json:"insight_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is the unit of work: one remote agent run tracked by the client.
// It is mutated exclusively by applying server responses; interface code
// never sets Status directly.
type Session struct {
	SessionID       string           `json:"session_id"`
	DatasetID       string           `json:"dataset_id"`
	Objective       string           `json:"objective"`
	ControlMode     ControlMode      `json:"control_mode"`
	Status          Status           `json:"status"`
	LogEntries      []LogEntry       `json:"log_entries"`
	Insights        []Insight        `json:"insights"`
	PendingApproval *ApprovalRequest `json:"pending_approval,omitempty"`
	PipelineResult  *PipelineResult  `json:"pipeline_result,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Validate checks the session's structural invariants: a known status, and
// the approval payload present iff the status is pending_approval
func (s *Session) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if s.Status == StatusPendingApproval && s.PendingApproval == nil {
		return errors.New("pending_approval status without approval payload")
	}
	if s.Status != StatusPendingApproval && s.PendingApproval != nil {
		return fmt.Errorf("approval payload present in status %q", s.Status)
	}
	return nil
}

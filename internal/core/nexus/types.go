package nexus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexustext/nxagent/internal/core/models"
)

// Snapshot is one server-reported view of a session: the fields the client
// overwrites atomically on every applied response. Log and insight lists are
// full replacements, not diffs.
type Snapshot struct {
	SessionID       string
	Status          models.Status
	LogEntries      []models.LogEntry
	Insights        []models.Insight
	PendingApproval *models.ApprovalRequest
}

// PipelineOutcome is the result of a pipeline-mode run
type PipelineOutcome struct {
	SessionID  string
	Insights   []models.Insight
	LogEntries []models.LogEntry
	Result     models.PipelineResult
}

type logEntryWire struct {
	Timestamp  time.Time `json:"timestamp"`
	Phase      string    `json:"phase"`
	Thought    string    `json:"thought"`
	Action     string    `json:"action"`
	Result     string    `json:"result"`
	Confidence float64   `json:"confidence"`
}

type insightWire struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Evidence        []string `json:"evidence"`
	GroundingScore  float64  `json:"grounding_score"`
	Recommendations []string `json:"recommendations"`
}

type approvalWire struct {
	Message    string   `json:"message"`
	Hypotheses []string `json:"hypotheses"`
	Phase      string   `json:"phase"`
}

type statusWire struct {
	AgentID         string          `json:"agent_id"`
	State           string          `json:"state"`
	Logs            []logEntryWire  `json:"logs"`
	Insights        []insightWire   `json:"insights"`
	PendingApproval json.RawMessage `json:"pending_approval"`
}

type pipelineWire struct {
	AgentID           string         `json:"agent_id"`
	Insights          []insightWire  `json:"insights"`
	Logs              []logEntryWire `json:"logs"`
	ReportID          string         `json:"report_id"`
	ReportDownloadURL string         `json:"report_download_url"`
	AnalysisJobs      []string       `json:"analysis_jobs"`
}

type savedSummaryWire struct {
	ID           string    `json:"id"`
	DatasetID    string    `json:"dataset_id"`
	Objective    string    `json:"objective"`
	Status       string    `json:"status"`
	InsightCount int       `json:"insight_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type savedSessionWire struct {
	ID          string          `json:"id"`
	DatasetID   string          `json:"dataset_id"`
	Objective   string          `json:"objective"`
	ControlMode string          `json:"hitl_mode"`
	State       string          `json:"state"`
	Logs        []logEntryWire  `json:"logs"`
	Insights    []insightWire   `json:"insights"`
	CreatedAt   time.Time       `json:"created_at"`
	Pipeline    json.RawMessage `json:"pipeline_result"`
}

// normalizeStatus maps wire state strings to the client vocabulary. The
// backend's enum spells the approval wait "awaiting_approval"; the client
// vocabulary uses "pending_approval".
func normalizeStatus(state string) (models.Status, error) {
	if state == "awaiting_approval" {
		return models.StatusPendingApproval, nil
	}
	s := models.Status(state)
	if !s.Valid() {
		return "", fmt.Errorf("unknown session state %q", state)
	}
	return s, nil
}

func normalizeLogs(wire []logEntryWire) []models.LogEntry {
	entries := make([]models.LogEntry, 0, len(wire))
	for _, w := range wire {
		entries = append(entries, models.LogEntry{
			Timestamp:  w.Timestamp,
			Phase:      models.Phase(w.Phase),
			Thought:    w.Thought,
			Action:     w.Action,
			Result:     w.Result,
			Confidence: w.Confidence,
		})
	}
	return entries
}

func normalizeInsights(wire []insightWire) []models.Insight {
	insights := make([]models.Insight, 0, len(wire))
	for _, w := range wire {
		score := w.GroundingScore
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		insights = append(insights, models.Insight{
			Title:           w.Title,
			Description:     w.Description,
			Evidence:        w.Evidence,
			GroundingScore:  score,
			Recommendations: w.Recommendations,
		})
	}
	return insights
}

// normalizeApproval validates the untrusted pending-approval object. A
// malformed payload is rejected here rather than trusted at use time.
func normalizeApproval(raw json.RawMessage) (*models.ApprovalRequest, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var w approvalWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("malformed approval payload: %w", err)
	}
	req := &models.ApprovalRequest{Message: w.Message, Hypotheses: w.Hypotheses}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("malformed approval payload: %w", err)
	}
	return req, nil
}

func (w *statusWire) normalize() (*Snapshot, error) {
	status, err := normalizeStatus(w.State)
	if err != nil {
		return nil, err
	}
	approval, err := normalizeApproval(w.PendingApproval)
	if err != nil {
		return nil, err
	}
	if status == models.StatusPendingApproval && approval == nil {
		return nil, fmt.Errorf("state %q without approval payload", w.State)
	}
	if status != models.StatusPendingApproval {
		// A stale approval object outside the pending state is dropped so the
		// status/approval coupling invariant holds for every applied snapshot.
		approval = nil
	}
	return &Snapshot{
		SessionID:       w.AgentID,
		Status:          status,
		LogEntries:      normalizeLogs(w.Logs),
		Insights:        normalizeInsights(w.Insights),
		PendingApproval: approval,
	}, nil
}

func (w *pipelineWire) normalize() (*PipelineOutcome, error) {
	return &PipelineOutcome{
		SessionID:  w.AgentID,
		Insights:   normalizeInsights(w.Insights),
		LogEntries: normalizeLogs(w.Logs),
		Result: models.PipelineResult{
			ReportID:    w.ReportID,
			DownloadURL: w.ReportDownloadURL,
			JobCount:    len(w.AnalysisJobs),
		},
	}, nil
}

func (w *savedSummaryWire) normalize() models.SavedSessionSummary {
	status, err := normalizeStatus(w.Status)
	if err != nil {
		status = models.StatusCompleted
	}
	return models.SavedSessionSummary{
		ID:           w.ID,
		DatasetID:    w.DatasetID,
		Objective:    w.Objective,
		Status:       status,
		InsightCount: w.InsightCount,
		CreatedAt:    w.CreatedAt,
	}
}

func (w *savedSessionWire) normalize() (*models.Session, error) {
	status, err := normalizeStatus(w.State)
	if err != nil {
		return nil, err
	}
	mode := models.ControlMode(w.ControlMode)
	if !mode.Valid() {
		mode = models.ModeSemiAuto
	}
	session := &models.Session{
		SessionID:   w.ID,
		DatasetID:   w.DatasetID,
		Objective:   w.Objective,
		ControlMode: mode,
		Status:      status,
		LogEntries:  normalizeLogs(w.Logs),
		Insights:    normalizeInsights(w.Insights),
		StartedAt:   w.CreatedAt,
		UpdatedAt:   w.CreatedAt,
	}
	if len(w.Pipeline) > 0 && string(w.Pipeline) != "null" {
		var pr models.PipelineResult
		if err := json.Unmarshal(w.Pipeline, &pr); err == nil {
			session.PipelineResult = &pr
		}
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("archived session %s: %w", w.ID, err)
	}
	return session, nil
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nexustext/nxagent/internal/core/models"
	"github.com/nexustext/nxagent/internal/core/nexus"
)

// fakeBackend scripts snapshot responses and counts calls
type fakeBackend struct {
	mu sync.Mutex

	startSnap *nexus.Snapshot
	startErr  error

	// status snapshots handed out in order; the last one repeats
	statusSnaps []*nexus.Snapshot
	statusErr   error
	statusCalls int

	approveSnap *nexus.Snapshot
	approveErr  error
	approved    []string

	pipelineOut *nexus.PipelineOutcome
	pipelineErr error
}

func (f *fakeBackend) StartAnalysis(ctx context.Context, req nexus.StartRequest) (*nexus.Snapshot, error) {
	return f.startSnap, f.startErr
}

func (f *fakeBackend) SessionStatus(ctx context.Context, sessionID string) (*nexus.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	idx := f.statusCalls - 1
	if idx >= len(f.statusSnaps) {
		idx = len(f.statusSnaps) - 1
	}
	return f.statusSnaps[idx], nil
}

func (f *fakeBackend) Approve(ctx context.Context, sessionID string, hypotheses []string) (*nexus.Snapshot, error) {
	f.mu.Lock()
	f.approved = hypotheses
	f.mu.Unlock()
	return f.approveSnap, f.approveErr
}

func (f *fakeBackend) RunPipeline(ctx context.Context, req nexus.PipelineRequest) (*nexus.PipelineOutcome, error) {
	return f.pipelineOut, f.pipelineErr
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func newTestController(backend *fakeBackend) *Controller {
	c := NewController(backend, NewPipelineCoordinator(backend, nil))
	c.scheduler.interval = 5 * time.Millisecond
	return c
}

func runningSnap(id string) *nexus.Snapshot {
	return &nexus.Snapshot{SessionID: id, Status: models.StatusRunning}
}

func pendingSnap(id string) *nexus.Snapshot {
	return &nexus.Snapshot{
		SessionID: id,
		Status:    models.StatusPendingApproval,
		PendingApproval: &models.ApprovalRequest{
			Message:    "Confirm?",
			Hypotheses: []string{"H1", "H2"},
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStartValidation(t *testing.T) {
	c := newTestController(&fakeBackend{})
	defer c.Teardown()

	_, err := c.Start(context.Background(), StartOptions{DatasetID: ""})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if c.Session().Status != models.StatusIdle {
		t.Errorf("status = %s, want idle (no state change on validation failure)", c.Session().Status)
	}
	if c.Polling() {
		t.Error("validation failure must not schedule polling")
	}

	_, err = c.Start(context.Background(), StartOptions{DatasetID: "ds1", ControlMode: "manual"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for unknown control mode", err)
	}
}

func TestStartSchedulesPolling(t *testing.T) {
	backend := &fakeBackend{
		startSnap:   runningSnap("a1"),
		statusSnaps: []*nexus.Snapshot{runningSnap("a1")},
	}
	c := newTestController(backend)
	defer c.Teardown()

	sess, err := c.Start(context.Background(), StartOptions{
		DatasetID:   "ds1",
		Objective:   "find churn drivers",
		ControlMode: models.ModeSemiAuto,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sess.Status != models.StatusRunning || sess.SessionID != "a1" {
		t.Errorf("session = %s/%s, want a1/running", sess.SessionID, sess.Status)
	}
	if !c.Polling() {
		t.Error("expected a poll loop after a non-terminal start response")
	}
	waitFor(t, func() bool { return backend.calls() >= 1 })
}

func TestStartTransportFailure(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("connection refused")}
	c := newTestController(backend)
	defer c.Teardown()

	_, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if c.Session().Status != models.StatusError {
		t.Errorf("status = %s, want error", c.Session().Status)
	}
	if c.Polling() {
		t.Error("no polling after a failed start")
	}
}

func TestStartSynchronousCompletion(t *testing.T) {
	backend := &fakeBackend{
		startSnap: &nexus.Snapshot{
			SessionID: "a1",
			Status:    models.StatusCompleted,
			Insights:  []models.Insight{{Title: "trivial dataset"}},
		},
	}
	c := newTestController(backend)
	defer c.Teardown()

	sess, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", sess.Status)
	}
	if c.Polling() {
		t.Error("a synchronously terminal start must never schedule polling")
	}
}

func TestTickAppliesPendingApproval(t *testing.T) {
	backend := &fakeBackend{
		startSnap:   runningSnap("a1"),
		statusSnaps: []*nexus.Snapshot{pendingSnap("a1")},
	}
	c := newTestController(backend)
	defer c.Teardown()

	if _, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return c.Session().Status == models.StatusPendingApproval })

	sess := c.Session()
	if sess.PendingApproval == nil || len(sess.PendingApproval.Hypotheses) != 2 {
		t.Fatalf("pending approval = %+v, want 2 hypotheses", sess.PendingApproval)
	}
	// The scheduler keeps ticking through an approval wait; only the
	// interpretation gates on it.
	before := backend.calls()
	waitFor(t, func() bool { return backend.calls() > before })
	if got := c.Gate().Present(c.Session()); got == nil {
		t.Error("gate should project the pending request")
	}
}

func TestResumeApprovalCompletes(t *testing.T) {
	backend := &fakeBackend{
		startSnap:   runningSnap("a1"),
		statusSnaps: []*nexus.Snapshot{pendingSnap("a1")},
		approveSnap: &nexus.Snapshot{
			SessionID: "a1",
			Status:    models.StatusCompleted,
			Insights:  []models.Insight{{Title: "churn driven by pricing", GroundingScore: 0.9}},
		},
	}
	c := newTestController(backend)
	defer c.Teardown()

	if _, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.Session().Status == models.StatusPendingApproval })

	sess, err := c.Resume(context.Background(), []string{"H1"})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if sess.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", sess.Status)
	}
	if sess.PendingApproval != nil {
		t.Error("pending approval must be cleared by the applied snapshot")
	}
	if len(backend.approved) != 1 || backend.approved[0] != "H1" {
		t.Errorf("approved = %v, want [H1]", backend.approved)
	}
	if c.Polling() {
		t.Error("terminal approval response must stop polling")
	}

	// No further ticks after terminal (allow the old loop a grace period to
	// observe cancellation)
	calls := backend.calls()
	time.Sleep(30 * time.Millisecond)
	if backend.calls() > calls {
		t.Errorf("ticks continued after terminal state: %d -> %d", calls, backend.calls())
	}
}

func TestResumeOutsidePendingApproval(t *testing.T) {
	backend := &fakeBackend{startSnap: runningSnap("a1"), statusSnaps: []*nexus.Snapshot{runningSnap("a1")}}
	c := newTestController(backend)
	defer c.Teardown()

	if _, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Resume(context.Background(), nil); !errors.Is(err, ErrNotPending) {
		t.Errorf("error = %v, want ErrNotPending", err)
	}
}

func TestTerminalTickStopsPolling(t *testing.T) {
	backend := &fakeBackend{
		startSnap: runningSnap("a1"),
		statusSnaps: []*nexus.Snapshot{
			runningSnap("a1"),
			{SessionID: "a1", Status: models.StatusCompleted},
		},
	}
	c := newTestController(backend)
	defer c.Teardown()

	if _, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.Session().Status == models.StatusCompleted })
	waitFor(t, func() bool { return !c.Polling() })

	calls := backend.calls()
	time.Sleep(30 * time.Millisecond)
	if backend.calls() > calls {
		t.Error("poll loop survived a terminal tick")
	}
}

func TestSingleActiveScheduler(t *testing.T) {
	backend := &fakeBackend{
		startSnap:   runningSnap("a1"),
		statusSnaps: []*nexus.Snapshot{runningSnap("a1")},
	}
	c := newTestController(backend)
	defer c.Teardown()

	for i := 0; i < 3; i++ {
		if _, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"}); err != nil {
			t.Fatal(err)
		}
	}
	c.Restore(models.Session{SessionID: "a2", Status: models.StatusRunning})

	// Let all loops that could exist tick a few times, then measure the
	// rate: one live loop at 5ms produces roughly one call per interval.
	time.Sleep(20 * time.Millisecond)
	before := backend.calls()
	time.Sleep(50 * time.Millisecond)
	got := backend.calls() - before
	if got > 15 {
		t.Errorf("%d ticks in 50ms suggests more than one live scheduler", got)
	}
}

func TestRestoreNonTerminalResumesPolling(t *testing.T) {
	backend := &fakeBackend{statusSnaps: []*nexus.Snapshot{runningSnap("a1")}}
	c := newTestController(backend)
	defer c.Teardown()

	c.Restore(models.Session{
		SessionID:   "a1",
		DatasetID:   "ds1",
		Status:      models.StatusRunning,
		ControlMode: models.ModeGuided,
	})
	if !c.Polling() {
		t.Fatal("restoring a non-terminal snapshot must resume polling")
	}
	waitFor(t, func() bool { return backend.calls() >= 1 })
}

func TestRestoreTerminalDoesNotPoll(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend)
	defer c.Teardown()

	c.Restore(models.Session{SessionID: "a1", Status: models.StatusCompleted})
	if c.Polling() {
		t.Error("restoring a completed session must not poll")
	}
	if backend.calls() != 0 {
		t.Error("restore must not contact the backend")
	}
}

func TestRestoreThenTeardownLeavesNoTimer(t *testing.T) {
	for _, status := range []models.Status{models.StatusRunning, models.StatusCompleted, models.StatusError} {
		backend := &fakeBackend{statusSnaps: []*nexus.Snapshot{runningSnap("a1")}}
		c := newTestController(backend)
		snapshot := models.Session{SessionID: "a1", Status: status}
		if status == models.StatusPendingApproval {
			snapshot.PendingApproval = &models.ApprovalRequest{Hypotheses: []string{"H1"}}
		}
		c.Restore(snapshot)
		c.Teardown()
		if c.Polling() {
			t.Errorf("timer still active after restore(%s)+teardown", status)
		}
	}
}

func TestTeardownIdempotent(t *testing.T) {
	c := newTestController(&fakeBackend{})
	c.Teardown()
	c.Teardown()
	if c.Polling() {
		t.Error("teardown left a timer")
	}
}

func TestPipelineBypassesPollingAndApproval(t *testing.T) {
	backend := &fakeBackend{
		pipelineOut: &nexus.PipelineOutcome{
			SessionID: "a1",
			Insights:  []models.Insight{{Title: "summary"}},
			Result:    models.PipelineResult{ReportID: "r1", DownloadURL: "/reports/r1/download", JobCount: 4},
		},
	}
	c := newTestController(backend)
	defer c.Teardown()

	statuses := []models.Status{}
	c.Store().OnChange(func(s models.Session) { statuses = append(statuses, s.Status) })

	sess, err := c.Start(context.Background(), StartOptions{
		DatasetID: "ds1",
		Objective: "quarterly report",
		Pipeline:  &PipelineOptions{OutputFormat: "pdf"},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sess.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", sess.Status)
	}
	if sess.PipelineResult == nil || sess.PipelineResult.JobCount != 4 {
		t.Errorf("pipeline result = %+v", sess.PipelineResult)
	}
	if c.Polling() || backend.calls() != 0 {
		t.Error("pipeline mode must never start a poll loop")
	}
	for _, s := range statuses {
		if s == models.StatusPendingApproval {
			t.Error("pipeline mode must never pass through pending_approval")
		}
	}
}

func TestPipelineFailureSetsError(t *testing.T) {
	backend := &fakeBackend{pipelineErr: errors.New("report generation failed")}
	c := newTestController(backend)
	defer c.Teardown()

	_, err := c.Start(context.Background(), StartOptions{
		DatasetID: "ds1",
		Pipeline:  &PipelineOptions{OutputFormat: "pdf"},
	})
	if err == nil {
		t.Fatal("expected pipeline error")
	}
	if c.Session().Status != models.StatusError {
		t.Errorf("status = %s, want error", c.Session().Status)
	}
}

func TestApprovalCouplingInvariant(t *testing.T) {
	backend := &fakeBackend{
		startSnap: runningSnap("a1"),
		statusSnaps: []*nexus.Snapshot{
			pendingSnap("a1"),
			runningSnap("a1"),
			{SessionID: "a1", Status: models.StatusCompleted},
		},
	}
	c := newTestController(backend)
	defer c.Teardown()

	var mu sync.Mutex
	var violation bool
	c.Store().OnChange(func(s models.Session) {
		mu.Lock()
		defer mu.Unlock()
		pending := s.Status == models.StatusPendingApproval
		if pending != (s.PendingApproval != nil) {
			violation = true
		}
	})

	if _, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.Session().Status == models.StatusCompleted })

	mu.Lock()
	defer mu.Unlock()
	if violation {
		t.Error("observed a state where pendingApproval presence disagreed with status")
	}
}

func TestDismissApprovalIsLocalOnly(t *testing.T) {
	backend := &fakeBackend{
		startSnap:   runningSnap("a1"),
		statusSnaps: []*nexus.Snapshot{pendingSnap("a1")},
	}
	c := newTestController(backend)
	defer c.Teardown()

	if _, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.Session().Status == models.StatusPendingApproval })

	c.DismissApproval()
	if !c.ApprovalDismissed() {
		t.Error("dismiss flag not set")
	}
	// The backend was never told: status stays pending_approval and the
	// approval payload survives.
	sess := c.Session()
	if sess.Status != models.StatusPendingApproval || sess.PendingApproval == nil {
		t.Errorf("dismiss must not mutate session state, got %s", sess.Status)
	}
	if backend.approved != nil {
		t.Error("dismiss must not call the backend")
	}
}

func TestStartClearsPreviousSession(t *testing.T) {
	backend := &fakeBackend{
		startSnap:   runningSnap("a2"),
		statusSnaps: []*nexus.Snapshot{runningSnap("a2")},
	}
	c := newTestController(backend)
	defer c.Teardown()

	c.Restore(models.Session{
		SessionID: "a1",
		Status:    models.StatusCompleted,
		Insights:  []models.Insight{{Title: "old"}},
		LogEntries: []models.LogEntry{
			{Phase: models.PhaseSynthesize, Thought: "done"},
		},
	})

	sess, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.SessionID != "a2" {
		t.Errorf("session id = %s, want a2", sess.SessionID)
	}
	if len(sess.Insights) != 0 || len(sess.LogEntries) != 0 {
		t.Error("starting a new session must clear prior logs and insights")
	}
}

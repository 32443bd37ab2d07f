package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nexustext/nxagent/internal/core/models"
	"github.com/nexustext/nxagent/internal/core/nexus"
)

// Backend is the slice of the NexusText API the controller drives. It is
// satisfied by *nexus.Client; tests substitute fakes.
type Backend interface {
	StartAnalysis(ctx context.Context, req nexus.StartRequest) (*nexus.Snapshot, error)
	SessionStatus(ctx context.Context, sessionID string) (*nexus.Snapshot, error)
	Approve(ctx context.Context, sessionID string, hypotheses []string) (*nexus.Snapshot, error)
	RunPipeline(ctx context.Context, req nexus.PipelineRequest) (*nexus.PipelineOutcome, error)
}

var (
	// ErrValidation marks input rejected before any network call. It is
	// surfaced to the user, never retried.
	ErrValidation = errors.New("invalid input")

	// ErrNotPending is returned when an approval operation is attempted on a
	// session that is not awaiting approval.
	ErrNotPending = errors.New("session is not awaiting approval")
)

// PipelineOptions selects pipeline mode for a start call
type PipelineOptions struct {
	OutputFormat string
}

// StartOptions describes a new run
type StartOptions struct {
	DatasetID   string
	Objective   string
	ControlMode models.ControlMode
	Pipeline    *PipelineOptions
}

// Controller owns the single live session: it starts runs, applies incoming
// server snapshots, stops polling on terminal states, and exposes the
// restore entry point. Exactly one session is active at a time; starting a
// new one discards polling on the previous one.
type Controller struct {
	backend   Backend
	store     *Store
	scheduler *Scheduler
	gate      *ApprovalGate
	pipeline  *PipelineCoordinator

	mu sync.Mutex
	// gen increments on every superseding operation (start, resume, restore,
	// teardown). A snapshot produced under an older generation is discarded,
	// which is what makes applied snapshots monotonic in issue order.
	gen uint64
	// approvalDismissed is a local-only flag: the user closed the approval
	// panel without deciding. The backend is still waiting; the next applied
	// snapshot resets it.
	approvalDismissed bool
}

// NewController creates a controller over the given backend
func NewController(backend Backend, pipeline *PipelineCoordinator) *Controller {
	c := &Controller{
		backend:  backend,
		store:    NewStore(),
		gate:     NewApprovalGate(backend),
		pipeline: pipeline,
	}
	c.scheduler = NewScheduler(backend.SessionStatus)
	return c
}

// Store exposes the session store for read access and change hooks
func (c *Controller) Store() *Store {
	return c.store
}

// Session returns a copy of the current session
func (c *Controller) Session() models.Session {
	return c.store.Session()
}

// Gate exposes the approval gate's projection
func (c *Controller) Gate() *ApprovalGate {
	return c.gate
}

// Start begins a new run. Any previous session's polling is discarded and
// its logs, insights, and pending approval are cleared before the backend
// call is issued. With Pipeline options present the run is delegated to the
// pipeline coordinator and no polling ever starts.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (models.Session, error) {
	if opts.DatasetID == "" {
		return c.store.Session(), fmt.Errorf("%w: dataset id is required", ErrValidation)
	}
	mode := opts.ControlMode
	if mode == "" {
		mode = models.ModeSemiAuto
	}
	if !mode.Valid() {
		return c.store.Session(), fmt.Errorf("%w: unknown control mode %q", ErrValidation, opts.ControlMode)
	}

	gen := c.supersede()
	c.store.replace(models.Session{
		DatasetID:   opts.DatasetID,
		Objective:   opts.Objective,
		ControlMode: mode,
		Status:      models.StatusRunning,
		StartedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})

	if opts.Pipeline != nil {
		return c.startPipeline(ctx, gen, opts)
	}

	snap, err := c.backend.StartAnalysis(ctx, nexus.StartRequest{
		DatasetID:   opts.DatasetID,
		Objective:   opts.Objective,
		ControlMode: mode,
	})
	if err != nil {
		c.fail(gen, err)
		return c.store.Session(), fmt.Errorf("start analysis: %w", err)
	}

	c.apply(gen, snap)
	c.pollIfLive(gen, snap)
	return c.store.Session(), nil
}

func (c *Controller) startPipeline(ctx context.Context, gen uint64, opts StartOptions) (models.Session, error) {
	out, err := c.pipeline.Run(ctx, opts.DatasetID, opts.Objective, opts.Pipeline.OutputFormat)
	if err != nil {
		c.fail(gen, err)
		return c.store.Session(), err
	}

	c.mu.Lock()
	if gen == c.gen {
		result := out.Result
		c.store.update(func(s *models.Session) {
			s.SessionID = out.SessionID
			s.Status = models.StatusCompleted
			s.LogEntries = out.LogEntries
			s.Insights = out.Insights
			s.PendingApproval = nil
			s.PipelineResult = &result
			s.UpdatedAt = time.Now()
		})
	}
	c.mu.Unlock()
	return c.store.Session(), nil
}

// Resume resolves a pending approval with the given hypothesis subset and
// re-attaches polling if the backend's answer is non-terminal. Valid only
// while the session is pending_approval.
func (c *Controller) Resume(ctx context.Context, approved []string) (models.Session, error) {
	cur := c.store.Session()
	if cur.Status != models.StatusPendingApproval {
		return cur, fmt.Errorf("%w (status %s)", ErrNotPending, cur.Status)
	}

	gen := c.supersede()
	snap, err := c.gate.Approve(ctx, cur.SessionID, approved)
	if err != nil {
		c.fail(gen, err)
		return c.store.Session(), err
	}

	c.apply(gen, snap)
	c.pollIfLive(gen, snap)
	return c.store.Session(), nil
}

// DismissApproval hides the pending approval locally without contacting the
// backend. The backend is still waiting; the session stays stalled in
// pending_approval. This is a panel-dismiss affordance, not a cancellation.
func (c *Controller) DismissApproval() {
	c.mu.Lock()
	c.approvalDismissed = true
	c.mu.Unlock()
}

// ApprovalDismissed reports whether the user dismissed the current pending
// approval
func (c *Controller) ApprovalDismissed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approvalDismissed
}

// Restore rehydrates the controller from a persisted snapshot without
// contacting the backend. A non-terminal snapshot immediately resumes
// polling under its session ID; this is how an in-flight session survives a
// process restart.
func (c *Controller) Restore(snapshot models.Session) {
	gen := c.supersede()
	c.store.replace(snapshot)

	if !snapshot.Status.Terminal() && snapshot.SessionID != "" {
		c.scheduler.Start(snapshot.SessionID, c.tickFunc(gen))
	}
}

// Teardown cancels any in-flight polling. Idempotent; call it when the
// owning view goes away so no timer outlives the session.
func (c *Controller) Teardown() {
	c.supersede()
}

// Polling reports whether a poll loop is active (test and status surface)
func (c *Controller) Polling() bool {
	return c.scheduler.Active()
}

// supersede invalidates every outstanding operation and stops polling
func (c *Controller) supersede() uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.approvalDismissed = false
	c.mu.Unlock()
	c.scheduler.Stop()
	return gen
}

// apply is the single funnel for server snapshots: status, logs, insights,
// and the pending approval are overwritten together, never partially. Stale
// results (an older generation) are discarded.
func (c *Controller) apply(gen uint64, snap *nexus.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.approvalDismissed = false
	c.store.update(func(s *models.Session) {
		if snap.SessionID != "" {
			s.SessionID = snap.SessionID
		}
		s.Status = snap.Status
		s.LogEntries = snap.LogEntries
		s.Insights = snap.Insights
		s.PendingApproval = snap.PendingApproval
		s.UpdatedAt = time.Now()
	})
	return true
}

// fail marks the session errored unless a newer operation superseded us
func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	log.Printf("session moved to error state: %v", err)
	c.store.update(func(s *models.Session) {
		s.Status = models.StatusError
		s.PendingApproval = nil
		s.UpdatedAt = time.Now()
	})
}

// pollIfLive schedules the poll loop for a non-terminal snapshot
func (c *Controller) pollIfLive(gen uint64, snap *nexus.Snapshot) {
	if snap.Status.Terminal() || snap.SessionID == "" {
		return
	}
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}
	c.scheduler.Start(snap.SessionID, c.tickFunc(gen))
}

func (c *Controller) tickFunc(gen uint64) func(*nexus.Snapshot) {
	return func(snap *nexus.Snapshot) {
		c.apply(gen, snap)
	}
}

package session

import (
	"context"
	"fmt"

	"github.com/nexustext/nxagent/internal/core/models"
	"github.com/nexustext/nxagent/internal/core/nexus"
)

// ApprovalGate resolves the pending-approval interrupt: the backend has
// paused mid-run and wants a subset of its candidate hypotheses confirmed
// before it proceeds to exploration.
type ApprovalGate struct {
	backend Backend
}

// NewApprovalGate creates a gate over the given backend
func NewApprovalGate(backend Backend) *ApprovalGate {
	return &ApprovalGate{backend: backend}
}

// Present projects the pending request out of a session without side
// effects. Returns nil when nothing is awaiting approval.
func (g *ApprovalGate) Present(sess models.Session) *models.ApprovalRequest {
	if sess.Status != models.StatusPendingApproval {
		return nil
	}
	return sess.PendingApproval
}

// Approve sends the approved hypothesis subset and returns the snapshot the
// backend reaches afterwards, which may be running, another approval wait,
// or terminal. An empty subset is valid: it means "approve nothing", which
// the backend may treat as a soft rejection.
func (g *ApprovalGate) Approve(ctx context.Context, sessionID string, hypotheses []string) (*nexus.Snapshot, error) {
	snap, err := g.backend.Approve(ctx, sessionID, hypotheses)
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}
	return snap, nil
}

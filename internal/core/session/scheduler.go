package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nexustext/nxagent/internal/core/nexus"
)

// PollInterval is the fixed delay between status fetches. It bounds both
// staleness and request volume; the backend exposes only request/response
// endpoints, so the client polls rather than streams.
const PollInterval = 3 * time.Second

// fetchFunc fetches the latest status snapshot for a session
type fetchFunc func(ctx context.Context, sessionID string) (*nexus.Snapshot, error)

// Scheduler repeatedly fetches session status while a session is
// non-terminal, with at most one fetch in flight at a time. Starting it
// cancels any previous loop, so a controller never has two poll loops alive.
type Scheduler struct {
	fetch    fetchFunc
	interval time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler polling at the standard interval
func NewScheduler(fetch fetchFunc) *Scheduler {
	return &Scheduler{fetch: fetch, interval: PollInterval}
}

// Start begins polling sessionID, delivering each successful snapshot to
// onTick. An already-running loop is cancelled first. The loop terminates
// itself the moment a snapshot reports a terminal status, independent of
// the caller.
func (s *Scheduler) Start(sessionID string, onTick func(*nexus.Snapshot)) {
	s.mu.Lock()
	s.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel
	s.mu.Unlock()

	go s.loop(ctx, sessionID, onTick)
}

// Stop cancels the poll loop. Safe to call repeatedly and when nothing is
// running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

// Active reports whether a poll loop is currently scheduled
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.ctx, s.cancel = nil, nil
	}
}

func (s *Scheduler) loop(ctx context.Context, sessionID string, onTick func(*nexus.Snapshot)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := s.fetch(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A failed tick is transient: a network blip must not abort a
			// long-running session. The loop just keeps going.
			log.Printf("poll tick for %s failed, will retry: %v", sessionID, err)
			continue
		}

		// Discard the result if this loop was cancelled while the fetch was
		// in flight; a newer operation owns the session now.
		if ctx.Err() != nil {
			return
		}
		onTick(snap)

		if snap.Status.Terminal() {
			s.mu.Lock()
			// Only tear down our own loop; a concurrent Start may already
			// own a newer context.
			if s.ctx == ctx {
				s.stopLocked()
			}
			s.mu.Unlock()
			return
		}
	}
}

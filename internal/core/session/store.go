package session

import (
	"sync"

	"github.com/nexustext/nxagent/internal/core/models"
)

// Store holds the single live session. It is a pure data container: no
// network calls, no timers. All writes come through the controller's apply
// routine, which keeps partial updates from ever being observable.
type Store struct {
	mu       sync.RWMutex
	session  models.Session
	onChange []func(models.Session)
}

// NewStore creates an empty store in the idle state
func NewStore() *Store {
	return &Store{session: models.Session{Status: models.StatusIdle}}
}

// OnChange registers a hook invoked (outside the store lock) with a copy of
// the session after every mutation. Hooks accumulate: ephemeral autosave
// and the watch view each register their own.
func (s *Store) OnChange(fn func(models.Session)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Session returns a copy of the current session. Slices are copied so the
// caller can never alias the store's internal state.
func (s *Store) Session() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// update applies a mutation atomically and notifies the change hooks
func (s *Store) update(mutate func(*models.Session)) {
	s.mu.Lock()
	mutate(&s.session)
	snapshot := copySession(s.session)
	hooks := s.onChange
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(snapshot)
	}
}

// replace swaps in a whole session (restore path)
func (s *Store) replace(sess models.Session) {
	s.update(func(cur *models.Session) { *cur = copySession(sess) })
}

func copySession(sess models.Session) models.Session {
	out := sess
	if sess.LogEntries != nil {
		out.LogEntries = make([]models.LogEntry, len(sess.LogEntries))
		copy(out.LogEntries, sess.LogEntries)
	}
	if sess.Insights != nil {
		out.Insights = make([]models.Insight, len(sess.Insights))
		copy(out.Insights, sess.Insights)
	}
	if sess.PendingApproval != nil {
		approval := *sess.PendingApproval
		approval.Hypotheses = append([]string(nil), sess.PendingApproval.Hypotheses...)
		out.PendingApproval = &approval
	}
	if sess.PipelineResult != nil {
		result := *sess.PipelineResult
		out.PipelineResult = &result
	}
	return out
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nexustext/nxagent/internal/core/models"
)

// Slot is the ephemeral cross-reload tier: one durable per-client slot
// holding the current session. Implemented by *db.DB.
type Slot interface {
	SaveSlot(models.Session) error
	LoadSlot() (models.Session, bool, error)
	ClearSlot() error
}

// ArchiveBackend is the slice of the API serving the archival tier.
// Satisfied by *nexus.Client.
type ArchiveBackend interface {
	SaveSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, datasetID string) ([]models.SavedSessionSummary, error)
	GetSession(ctx context.Context, savedSessionID string) (*models.Session, error)
}

// SummaryCache mirrors archived-session summaries locally so listing still
// works offline. Implemented by *db.DB.
type SummaryCache interface {
	MirrorSummaries(datasetID string, summaries []models.SavedSessionSummary) error
	CachedSummaries(datasetID string) ([]models.SavedSessionSummary, error)
}

// ErrNotCompleted marks an archive attempt on a session that has not
// finished. Archiving is only meaningful for completed sessions.
var ErrNotCompleted = errors.New("session is not completed")

// AttachSlot registers ephemeral autosave: every applied snapshot is written
// to the slot, so an in-flight session survives a process restart. Idle
// sessions are not persisted; starting a new session overwrites the slot on
// its first apply.
func (c *Controller) AttachSlot(slot Slot) {
	c.store.OnChange(func(sess models.Session) {
		if sess.Status == models.StatusIdle {
			return
		}
		if err := slot.SaveSlot(sess); err != nil {
			// Autosave failure never disturbs the live session.
			log.Printf("ephemeral autosave failed: %v", err)
		}
	})
}

// RestoreFromSlot rehydrates the controller from the ephemeral slot, if it
// holds a snapshot. Returns false when the slot is empty.
func (c *Controller) RestoreFromSlot(slot Slot) (bool, error) {
	sess, ok, err := slot.LoadSlot()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	c.Restore(sess)
	return true, nil
}

// Archive is the archival tier: explicit, user-triggered persistence of
// finished sessions to the backend, with a local summary cache for offline
// listing. Distinct from the slot's implicit autosave so an incomplete
// session can never be archived by accident.
type Archive struct {
	backend ArchiveBackend
	cache   SummaryCache
}

// NewArchive creates an archive over the backend and an optional local
// cache (nil disables mirroring and offline fallback)
func NewArchive(backend ArchiveBackend, cache SummaryCache) *Archive {
	return &Archive{backend: backend, cache: cache}
}

// Save asks the backend to archive a finished session. Fails with
// ErrNotCompleted for anything still in flight; failures here never touch
// the live session state.
func (a *Archive) Save(ctx context.Context, sess models.Session) error {
	if sess.Status != models.StatusCompleted {
		return fmt.Errorf("%w (status %s)", ErrNotCompleted, sess.Status)
	}
	if sess.SessionID == "" {
		return fmt.Errorf("%w: session has no id", ErrValidation)
	}
	if err := a.backend.SaveSession(ctx, sess.SessionID); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

// List returns archived-session summaries for a dataset. A successful
// backend call refreshes the local mirror; a failed one falls back to the
// cache, reported through fromCache so callers can note the staleness.
func (a *Archive) List(ctx context.Context, datasetID string) (summaries []models.SavedSessionSummary, fromCache bool, err error) {
	summaries, err = a.backend.ListSessions(ctx, datasetID)
	if err == nil {
		if a.cache != nil {
			if mirrorErr := a.cache.MirrorSummaries(datasetID, summaries); mirrorErr != nil {
				log.Printf("summary mirror failed: %v", mirrorErr)
			}
		}
		return summaries, false, nil
	}

	if a.cache == nil {
		return nil, false, fmt.Errorf("list sessions: %w", err)
	}
	cached, cacheErr := a.cache.CachedSummaries(datasetID)
	if cacheErr != nil {
		return nil, false, fmt.Errorf("list sessions: %w", err)
	}
	return cached, true, nil
}

// Get fetches a full archived session for restore-by-browse. Archived
// sessions are finished, so restoring one always lands in a terminal,
// non-polling state.
func (a *Archive) Get(ctx context.Context, savedSessionID string) (*models.Session, error) {
	sess, err := a.backend.GetSession(ctx, savedSessionID)
	if err != nil {
		return nil, fmt.Errorf("get archived session: %w", err)
	}
	return sess, nil
}

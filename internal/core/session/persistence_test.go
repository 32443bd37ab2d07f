package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nexustext/nxagent/internal/core/models"
	"github.com/nexustext/nxagent/internal/core/nexus"
)

type memSlot struct {
	mu    sync.Mutex
	sess  models.Session
	saved bool
	err   error
}

func (m *memSlot) SaveSlot(sess models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sess = sess
	m.saved = true
	return nil
}

func (m *memSlot) LoadSlot() (models.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess, m.saved, m.err
}

func (m *memSlot) ClearSlot() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = false
	m.sess = models.Session{}
	return nil
}

func (m *memSlot) current() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess, m.saved
}

type fakeArchiveBackend struct {
	savedID   string
	saveErr   error
	summaries []models.SavedSessionSummary
	listErr   error
	session   *models.Session
	getErr    error
}

func (f *fakeArchiveBackend) SaveSession(ctx context.Context, sessionID string) error {
	f.savedID = sessionID
	return f.saveErr
}

func (f *fakeArchiveBackend) ListSessions(ctx context.Context, datasetID string) ([]models.SavedSessionSummary, error) {
	return f.summaries, f.listErr
}

func (f *fakeArchiveBackend) GetSession(ctx context.Context, savedSessionID string) (*models.Session, error) {
	return f.session, f.getErr
}

type memCache struct {
	mirrored map[string][]models.SavedSessionSummary
}

func newMemCache() *memCache {
	return &memCache{mirrored: map[string][]models.SavedSessionSummary{}}
}

func (m *memCache) MirrorSummaries(datasetID string, summaries []models.SavedSessionSummary) error {
	m.mirrored[datasetID] = summaries
	return nil
}

func (m *memCache) CachedSummaries(datasetID string) ([]models.SavedSessionSummary, error) {
	return m.mirrored[datasetID], nil
}

func TestAttachSlotAutosaves(t *testing.T) {
	backend := &fakeBackend{
		startSnap:   runningSnap("a1"),
		statusSnaps: []*nexus.Snapshot{runningSnap("a1")},
	}
	c := newTestController(backend)
	defer c.Teardown()

	slot := &memSlot{}
	c.AttachSlot(slot)

	if _, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1", Objective: "churn"}); err != nil {
		t.Fatal(err)
	}

	got, ok := slot.current()
	if !ok {
		t.Fatal("start did not autosave to the slot")
	}
	if got.SessionID != "a1" || got.Status != models.StatusRunning {
		t.Errorf("slot holds %s/%s, want a1/running", got.SessionID, got.Status)
	}
}

func TestAttachSlotFailureDoesNotDisturbSession(t *testing.T) {
	backend := &fakeBackend{startSnap: runningSnap("a1"), statusSnaps: []*nexus.Snapshot{runningSnap("a1")}}
	c := newTestController(backend)
	defer c.Teardown()

	c.AttachSlot(&memSlot{err: errors.New("disk full")})

	sess, err := c.Start(context.Background(), StartOptions{DatasetID: "ds1"})
	if err != nil {
		t.Fatalf("autosave failure leaked into Start: %v", err)
	}
	if sess.Status != models.StatusRunning {
		t.Errorf("status = %s, want running", sess.Status)
	}
}

func TestRestoreFromSlot(t *testing.T) {
	backend := &fakeBackend{statusSnaps: []*nexus.Snapshot{runningSnap("a1")}}
	c := newTestController(backend)
	defer c.Teardown()

	slot := &memSlot{}
	if ok, err := c.RestoreFromSlot(slot); err != nil || ok {
		t.Fatalf("empty slot: got ok=%v err=%v", ok, err)
	}

	_ = slot.SaveSlot(models.Session{SessionID: "a1", DatasetID: "ds1", Status: models.StatusRunning})
	ok, err := c.RestoreFromSlot(slot)
	if err != nil || !ok {
		t.Fatalf("RestoreFromSlot() = %v, %v", ok, err)
	}
	if c.Session().SessionID != "a1" {
		t.Errorf("restored session id = %s, want a1", c.Session().SessionID)
	}
	if !c.Polling() {
		t.Error("restoring a running slot snapshot must re-attach polling")
	}
}

func TestArchiveSaveRequiresCompleted(t *testing.T) {
	backend := &fakeArchiveBackend{}
	archive := NewArchive(backend, nil)

	err := archive.Save(context.Background(), models.Session{SessionID: "a1", Status: models.StatusRunning})
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("error = %v, want ErrNotCompleted", err)
	}
	if backend.savedID != "" {
		t.Error("backend must not be called for an unfinished session")
	}

	err = archive.Save(context.Background(), models.Session{SessionID: "a1", Status: models.StatusCompleted})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if backend.savedID != "a1" {
		t.Errorf("saved id = %s, want a1", backend.savedID)
	}
}

func TestArchiveListMirrorsAndFallsBack(t *testing.T) {
	summaries := []models.SavedSessionSummary{
		{ID: "s1", DatasetID: "ds1", Status: models.StatusCompleted, InsightCount: 2},
	}
	backend := &fakeArchiveBackend{summaries: summaries}
	cache := newMemCache()
	archive := NewArchive(backend, cache)

	got, fromCache, err := archive.List(context.Background(), "ds1")
	if err != nil || fromCache {
		t.Fatalf("List() = fromCache=%v err=%v", fromCache, err)
	}
	if len(got) != 1 || len(cache.mirrored["ds1"]) != 1 {
		t.Error("successful list must return and mirror the summaries")
	}

	backend.listErr = errors.New("backend unreachable")
	got, fromCache, err = archive.List(context.Background(), "ds1")
	if err != nil {
		t.Fatalf("cached fallback should not error: %v", err)
	}
	if !fromCache || len(got) != 1 {
		t.Errorf("got fromCache=%v len=%d, want cached fallback", fromCache, len(got))
	}
}

func TestArchiveListNoCacheSurfacesError(t *testing.T) {
	backend := &fakeArchiveBackend{listErr: errors.New("backend unreachable")}
	archive := NewArchive(backend, nil)

	if _, _, err := archive.List(context.Background(), "ds1"); err == nil {
		t.Error("expected error when the backend fails and no cache exists")
	}
}

func TestArchiveGetLandsTerminal(t *testing.T) {
	backend := &fakeArchiveBackend{
		session: &models.Session{SessionID: "s1", Status: models.StatusCompleted},
	}
	archive := NewArchive(backend, nil)

	sess, err := archive.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Restoring an archived session replaces the live one wholesale and
	// never polls.
	c := newTestController(&fakeBackend{})
	defer c.Teardown()
	c.Restore(*sess)
	if c.Polling() {
		t.Error("archived restore must land in a non-polling state")
	}
	if c.Session().SessionID != "s1" {
		t.Errorf("live session = %s, want s1", c.Session().SessionID)
	}
}

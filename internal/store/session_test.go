package store

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mqzhao/vidscribe/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openStoreTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// A second pooled connection would see its own empty in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Session{}, &models.Job{}, &models.Transcript{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newTestSessionStore(t *testing.T, db *gorm.DB) *SessionStore {
	t.Helper()
	var out bytes.Buffer
	s, err := NewSessionStore(SessionStoreOpts{DB: db, Out: &out})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func TestNewSessionStore_NilDB(t *testing.T) {
	_, err := NewSessionStore(SessionStoreOpts{})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestGet_CreatesIdleSession(t *testing.T) {
	db := openStoreTestDB(t)
	s := newTestSessionStore(t, db)

	sess, err := s.Get("user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.State != models.StateIdle {
		t.Errorf("state = %q, want idle", sess.State)
	}
	if sess.JobID != "" {
		t.Errorf("job id = %q, want empty", sess.JobID)
	}
	if sess.SelectedFormat != models.FormatNone {
		t.Errorf("format = %q, want none", sess.SelectedFormat)
	}

	// Second Get returns the same row, not a new one.
	var count int64
	db.Model(&models.Session{}).Count(&count)
	if count != 1 {
		t.Fatalf("session rows = %d, want 1", count)
	}
	again, err := s.Get("user-1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.UserID != sess.UserID {
		t.Errorf("user id = %q, want %q", again.UserID, sess.UserID)
	}
	db.Model(&models.Session{}).Count(&count)
	if count != 1 {
		t.Errorf("session rows after second get = %d, want 1", count)
	}
}

func TestUpdate_AppliesAndPersists(t *testing.T) {
	db := openStoreTestDB(t)
	s := newTestSessionStore(t, db)

	sess, err := s.Update("user-1", func(sess *models.Session) error {
		sess.State = models.StateAwaitingFormat
		sess.JobID = "job-1"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sess.State != models.StateAwaitingFormat {
		t.Errorf("state = %q, want awaiting_format", sess.State)
	}

	reloaded, err := s.Get("user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.State != models.StateAwaitingFormat || reloaded.JobID != "job-1" {
		t.Errorf("persisted session = %+v", reloaded)
	}
}

func TestUpdate_FnErrorLeavesSessionUntouched(t *testing.T) {
	db := openStoreTestDB(t)
	s := newTestSessionStore(t, db)

	wantErr := errors.New("nope")
	_, err := s.Update("user-1", func(sess *models.Session) error {
		sess.State = models.StateAwaitingFormat
		sess.JobID = "job-1"
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("update error = %v, want %v", err, wantErr)
	}

	sess, err := s.Get("user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.State != models.StateIdle {
		t.Errorf("state = %q, want idle after failed update", sess.State)
	}
}

func TestUpdate_RejectsInvariantViolation(t *testing.T) {
	db := openStoreTestDB(t)
	s := newTestSessionStore(t, db)

	// Ready without a selected format violates the session invariants.
	_, err := s.Update("user-1", func(sess *models.Session) error {
		sess.State = models.StateReady
		sess.JobID = "job-1"
		return nil
	})
	if err == nil {
		t.Fatal("expected invariant violation error")
	}

	sess, _ := s.Get("user-1")
	if sess.State != models.StateIdle {
		t.Errorf("state = %q, want idle after rejected update", sess.State)
	}
}

func TestUpdate_SameUserSerialized(t *testing.T) {
	db := openStoreTestDB(t)
	s := newTestSessionStore(t, db)

	// 50 concurrent updates bump a counter stored in JobID while holding
	// the awaiting-format state. Lost updates would show as a short count.
	s.Update("u", func(sess *models.Session) error {
		sess.State = models.StateAwaitingFormat
		sess.JobID = "0"
		return nil
	})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update("u", func(sess *models.Session) error {
				sess.JobID = sess.JobID + "x"
				return nil
			})
		}()
	}
	wg.Wait()

	sess, err := s.Get("u")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := len(sess.JobID) - 1; got != n {
		t.Errorf("applied updates = %d, want %d", got, n)
	}
}

func TestUpdate_DistinctUsersNotSerialized(t *testing.T) {
	db := openStoreTestDB(t)
	s := newTestSessionStore(t, db)

	// Block user A's lock, then verify user B's update still completes.
	lockA := s.userLock("a")
	lockA.Lock()
	defer lockA.Unlock()

	done := make(chan struct{})
	go func() {
		s.Update("b", func(sess *models.Session) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("update for user b blocked behind user a's lock")
	}
}

func TestSweep_EvictsOnlyStaleSessions(t *testing.T) {
	db := openStoreTestDB(t)
	var out bytes.Buffer
	s, err := NewSessionStore(SessionStoreOpts{DB: db, TTL: time.Hour, Out: &out})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}

	s.Get("fresh")
	s.Get("stale")

	// Age the stale session past the TTL behind GORM's back.
	old := time.Now().Add(-2 * time.Hour)
	if err := db.Exec("UPDATE sessions SET updated_at = ? WHERE user_id = ?", old, "stale").Error; err != nil {
		t.Fatalf("age session: %v", err)
	}

	n, err := s.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}

	var count int64
	db.Model(&models.Session{}).Where("user_id = ?", "stale").Count(&count)
	if count != 0 {
		t.Error("stale session survived sweep")
	}
	db.Model(&models.Session{}).Where("user_id = ?", "fresh").Count(&count)
	if count != 1 {
		t.Error("fresh session was evicted")
	}
}

func TestSweep_RecheckSkipsRefreshedSession(t *testing.T) {
	db := openStoreTestDB(t)
	s, err := NewSessionStore(SessionStoreOpts{DB: db, TTL: time.Hour, Out: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}

	s.Get("u")
	// Looks stale at query time but fresh when the delete re-checks.
	if err := db.Exec("UPDATE sessions SET updated_at = ? WHERE user_id = ?", time.Now(), "u").Error; err != nil {
		t.Fatalf("refresh session: %v", err)
	}

	n, err := s.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("evicted = %d, want 0", n)
	}
}

func TestNextCronDuration(t *testing.T) {
	tests := []struct {
		expr    string
		wantPos bool
	}{
		{"*/30 * * * *", true},
		{"0 3 * * *", true},
		{"* * * * *", true},
		{"not a cron", false},
		{"", false},
		{"*/5 * * *", false}, // 4 fields
	}
	for _, tt := range tests {
		d := nextCronDuration(tt.expr)
		if (d > 0) != tt.wantPos {
			t.Errorf("nextCronDuration(%q) = %v, want positive=%v", tt.expr, d, tt.wantPos)
		}
		if tt.expr == "* * * * *" && d > time.Minute {
			t.Errorf("nextCronDuration(%q) = %v, want <= 1m", tt.expr, d)
		}
	}
}

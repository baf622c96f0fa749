// Package store holds the shared mutable state of vidscribe: per-user
// conversation sessions and completed transcripts.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mqzhao/vidscribe/internal/models"
	"gorm.io/gorm"
)

// DefaultSessionTTL is how long an untouched session survives before the
// sweeper may evict it.
const DefaultSessionTTL = 24 * time.Hour

// DefaultSweepCron fires the eviction sweep every 30 minutes.
const DefaultSweepCron = "*/30 * * * *"

// SessionStore provides per-user atomic access to conversation sessions.
// Updates for the same user are serialized through a keyed mutex; updates
// for distinct users proceed fully in parallel. There is no global lock
// around session state.
type SessionStore struct {
	db        *gorm.DB
	ttl       time.Duration
	sweepCron string
	out       io.Writer

	mu    sync.Mutex
	locks map[string]*sync.Mutex // userID -> its update mutex
}

// SessionStoreOpts holds parameters for creating a SessionStore.
type SessionStoreOpts struct {
	DB        *gorm.DB
	TTL       time.Duration // defaults to DefaultSessionTTL
	SweepCron string        // defaults to DefaultSweepCron
	Out       io.Writer     // defaults to os.Stdout
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(opts SessionStoreOpts) (*SessionStore, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("store: session store: db is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	sweepCron := opts.SweepCron
	if sweepCron == "" {
		sweepCron = DefaultSweepCron
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &SessionStore{
		db:        opts.DB,
		ttl:       ttl,
		sweepCron: sweepCron,
		out:       out,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// userLock returns the mutex guarding a user's session, creating it on
// first contact. Lock entries are never removed: waiters may hold a
// reference across an eviction, and an entry is a few dozen bytes per
// user ever seen.
func (s *SessionStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Get returns the user's session, creating a default idle session on
// first contact.
func (s *SessionStore) Get(userID string) (*models.Session, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.load(userID)
}

// load fetches or creates the session row. Callers must hold the user lock.
func (s *SessionStore) load(userID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.Where("user_id = ?", userID).First(&sess).Error
	if err == nil {
		return &sess, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: load session %s: %w", userID, err)
	}
	sess = models.Session{
		UserID:         userID,
		State:          models.StateIdle,
		SelectedFormat: models.FormatNone,
	}
	if err := s.db.Create(&sess).Error; err != nil {
		return nil, fmt.Errorf("store: create session %s: %w", userID, err)
	}
	return &sess, nil
}

// Update applies fn to the user's session as a read-modify-write under
// the user's mutex and persists the result. A second Update for the same
// user blocks until the first finishes; updates for other users are not
// affected. If fn returns an error the session is left untouched. The
// mutated session must still satisfy the session invariants.
func (s *SessionStore) Update(userID string, fn func(*models.Session) error) (*models.Session, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	sess, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("store: update session %s: %w", userID, err)
	}
	if err := s.db.Save(sess).Error; err != nil {
		return nil, fmt.Errorf("store: save session %s: %w", userID, err)
	}
	return sess, nil
}

// Sweep evicts sessions whose updated_at is older than the TTL. Each
// eviction takes the same per-user mutex as Update, so a sweep never
// races an in-flight update for that user. Returns the number of
// sessions removed.
func (s *SessionStore) Sweep() (int, error) {
	cutoff := time.Now().Add(-s.ttl)

	var stale []string
	err := s.db.Model(&models.Session{}).
		Where("updated_at < ?", cutoff).
		Pluck("user_id", &stale).Error
	if err != nil {
		return 0, fmt.Errorf("store: sweep query: %w", err)
	}

	evicted := 0
	for _, userID := range stale {
		l := s.userLock(userID)
		l.Lock()
		// Re-check under the lock: an update may have refreshed the
		// session between the query and here.
		result := s.db.Where("user_id = ? AND updated_at < ?", userID, cutoff).
			Delete(&models.Session{})
		l.Unlock()
		if result.Error != nil {
			return evicted, fmt.Errorf("store: sweep %s: %w", userID, result.Error)
		}
		evicted += int(result.RowsAffected)
	}
	return evicted, nil
}

// RunSweeper runs the TTL eviction sweep on the configured cron schedule
// until the context is cancelled.
func (s *SessionStore) RunSweeper(ctx context.Context) {
	for {
		d := nextCronDuration(s.sweepCron)
		if d <= 0 {
			fmt.Fprintf(s.out, "store: invalid sweep cron %q; sweeper disabled\n", s.sweepCron)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
			n, err := s.Sweep()
			if err != nil {
				log.Printf("store: sweep: %v", err)
				continue
			}
			if n > 0 {
				fmt.Fprintf(s.out, "store: swept %d expired session(s)\n", n)
			}
		}
	}
}

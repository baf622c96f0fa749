package models

import (
	"fmt"
	"time"
)

// SessionState identifies where a user is in the link, format, Q&A flow.
type SessionState string

const (
	// StateIdle means the user has no active transcript.
	StateIdle SessionState = "idle"
	// StateAwaitingFormat means a transcript is ready and the user must
	// pick an output format.
	StateAwaitingFormat SessionState = "awaiting_format"
	// StateReady means a format was chosen and questions can be asked.
	StateReady SessionState = "ready"
)

// Format is the transcript output format a user selected.
type Format string

const (
	FormatNone     Format = "none"
	FormatText     Format = "text"
	FormatSubtitle Format = "subtitle"
)

// Session is the per-user conversation state. One row per WeChat OpenID.
// Rows are created implicitly on first contact and removed only by the
// TTL sweeper.
type Session struct {
	UserID         string       `gorm:"primaryKey;size:64"`
	State          SessionState `gorm:"size:24;not null;default:idle"`
	JobID          string       `gorm:"size:36;index"`
	SelectedFormat Format       `gorm:"size:16;not null;default:none"`
	CreatedAt      time.Time
	UpdatedAt      time.Time `gorm:"index"`
}

// Validate checks the session invariants: a job reference exists iff the
// session is not idle, and a format is selected iff the session is ready.
func (s *Session) Validate() error {
	if (s.State != StateIdle) != (s.JobID != "") {
		return fmt.Errorf("models: session %s: state %q with job_id %q", s.UserID, s.State, s.JobID)
	}
	if (s.State == StateReady) != (s.SelectedFormat != FormatNone && s.SelectedFormat != "") {
		return fmt.Errorf("models: session %s: state %q with format %q", s.UserID, s.State, s.SelectedFormat)
	}
	return nil
}

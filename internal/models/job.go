package models

import "time"

// JobStatus tracks a job through the ingestion pipeline.
type JobStatus string

const (
	JobQueued       JobStatus = "queued"
	JobDownloading  JobStatus = "downloading"
	JobTranscribing JobStatus = "transcribing"
	JobDone         JobStatus = "done"
	JobFailed       JobStatus = "failed"
)

// Job is one download-and-transcribe unit of work for a submitted video
// link. A job is owned by exactly one pipeline worker while in flight;
// sessions only ever reference completed jobs.
type Job struct {
	ID          string    `gorm:"primaryKey;size:36"`
	UserID      string    `gorm:"size:64;not null;index"`
	SourceURL   string    `gorm:"size:512;not null"`
	VideoID     string    `gorm:"size:64;not null"`
	Status      JobStatus `gorm:"size:16;not null;index"`
	Error       string    `gorm:"type:text"` // set iff Status == JobFailed
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

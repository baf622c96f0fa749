package store

import (
	"errors"
	"fmt"

	"github.com/mqzhao/vidscribe/internal/models"
	"gorm.io/gorm"
)

// ErrTranscriptExists is returned when a transcript for the job was
// already written. Transcript records are write-once.
var ErrTranscriptExists = errors.New("store: transcript already written")

// ErrTranscriptNotFound is returned when no transcript exists for a job.
var ErrTranscriptNotFound = errors.New("store: transcript not found")

// TranscriptStore persists the immutable transcript record of each
// completed job.
type TranscriptStore struct {
	db *gorm.DB
}

// NewTranscriptStore creates a TranscriptStore.
func NewTranscriptStore(db *gorm.DB) (*TranscriptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: transcript store: db is required")
	}
	return &TranscriptStore{db: db}, nil
}

// Put writes the transcript record for a job. A job's record can be
// written exactly once; a second Put fails with ErrTranscriptExists.
func (t *TranscriptStore) Put(rec models.Transcript) error {
	err := t.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Transcript{}).
			Where("job_id = ?", rec.JobID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrTranscriptExists
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		if errors.Is(err, ErrTranscriptExists) {
			return err
		}
		return fmt.Errorf("store: put transcript %s: %w", rec.JobID, err)
	}
	return nil
}

// Get returns the transcript record for a job.
func (t *TranscriptStore) Get(jobID string) (*models.Transcript, error) {
	var rec models.Transcript
	err := t.db.Where("job_id = ?", jobID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTranscriptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get transcript %s: %w", jobID, err)
	}
	return &rec, nil
}

package models

import "time"

// Transcript holds the extracted text and subtitle rendition for a
// completed job. Written once by the pipeline, read many times by the
// conversation router; never updated.
type Transcript struct {
	JobID        string `gorm:"primaryKey;size:36"`
	Text         string `gorm:"type:mediumtext;not null"`
	Subtitle     string `gorm:"type:mediumtext;not null"`
	TextPath     string `gorm:"size:512"`
	SubtitlePath string `gorm:"size:512"`
	CreatedAt    time.Time
}

package model

import "time"

// IngestionRecord is the audit row written for every finished ingestion run.
type IngestionRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Identity      string    `gorm:"size:255;not null;index" json:"identity"`
	Collection    string    `gorm:"size:255" json:"collection"`
	ChunksAdded   int       `gorm:"not null" json:"chunks_added"`
	Sources       int       `gorm:"not null" json:"sources"`
	FailedSources int       `gorm:"not null" json:"failed_sources"`
	State         string    `gorm:"size:16;not null" json:"state"`
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

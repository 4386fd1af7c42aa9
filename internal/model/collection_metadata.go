package model

import "time"

// CollectionMetadata records when a collection was created and for whom.
// The latest collection of an identity is the one with the greatest
// CreatedAt, ties broken by name.
type CollectionMetadata struct {
	Name      string    `gorm:"primaryKey;size:255" json:"name"`
	Identity  string    `gorm:"size:255;not null;index" json:"identity"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (CollectionMetadata) TableName() string {
	return "collection_metadata"
}

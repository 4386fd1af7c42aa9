// Package knowledge stores embedded chunks per identity and answers
// nearest-neighbour queries against the current collection.
package knowledge

import (
	"context"
	"errors"
	"time"

	"crawlmind/internal/model"
)

var (
	ErrNoKnowledgeBase    = errors.New("no knowledge base for identity")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrStoreWrite         = errors.New("knowledge store write failed")
	ErrStoreRead          = errors.New("knowledge store read failed")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrChunkTooLarge      = errors.New("chunk exceeds the store's text limit")
)

// Record is one chunk ready to be written.
type Record struct {
	ID     string
	Text   string
	Vector []float32
}

// ScoredChunk is one retrieval hit. Higher scores are closer.
type ScoredChunk struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// CollectionRef names one ingestion generation of a knowledge base.
type CollectionRef struct {
	Name      string    `json:"name"`
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
}

// ClearResult reports the outcome of a destructive clear. When the store could
// not be removed, Cleared is false and NewPath is where new data will go.
type ClearResult struct {
	Cleared  bool   `json:"cleared"`
	Path     string `json:"path"`
	NewPath  string `json:"new_path,omitempty"`
	Attempts int    `json:"attempts"`
}

// Store resolves per-identity knowledge bases.
type Store interface {
	// CreateOrGet opens the identity's store, creating it when absent.
	// Existing data is never touched.
	CreateOrGet(ctx context.Context, identity string) (Handle, error)
	// Get opens an existing store or fails with ErrNoKnowledgeBase.
	Get(ctx context.Context, identity string) (Handle, error)
	// Clear removes everything stored for identity, retrying transient
	// failures. Persistent failure relocates the identity instead of failing.
	Clear(ctx context.Context, identity string) (ClearResult, error)
	Close() error
}

// Handle is an open knowledge base of one identity. Callers must Close it.
type Handle interface {
	Identity() string
	NewCollection(ctx context.Context, createdAt time.Time) (CollectionRef, error)
	Add(ctx context.Context, ref CollectionRef, records []Record) error
	LatestCollection(ctx context.Context) (CollectionRef, bool, error)
	HasCollection(ctx context.Context, name string) (bool, error)
	ListCollections(ctx context.Context) ([]model.CollectionMetadata, error)
	Query(ctx context.Context, ref CollectionRef, vector []float32, k int) ([]ScoredChunk, error)
	DropCollection(ctx context.Context, name string) error
	Close() error
}

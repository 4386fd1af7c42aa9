package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"crawlmind/internal/logger"
	"crawlmind/internal/model"
	"crawlmind/internal/repository"
	"crawlmind/internal/retry"
)

const (
	storeFileName = "store.db"

	// singleTenantDir holds the empty identity's store. '@' never survives
	// SanitizeIdentity, so no real identity can map onto it.
	singleTenantDir = "@crawlmind"
)

// SQLiteStore keeps one SQLite file per identity directory under root.
type SQLiteStore struct {
	root   string
	policy retry.Policy

	// remove and now are replaced in tests.
	remove func(path string) error
	now    func() time.Time
}

func NewSQLiteStore(root string, policy retry.Policy) *SQLiteStore {
	return &SQLiteStore{
		root:   root,
		policy: policy,
		remove: os.RemoveAll,
		now:    time.Now,
	}
}

// basePath is the identity directory before any relocation. Every identity,
// including the empty one, gets its own directory below root.
func (s *SQLiteStore) basePath(identity string) string {
	if identity == "" {
		return filepath.Join(s.root, singleTenantDir)
	}
	return filepath.Join(s.root, SanitizeIdentity(identity))
}

func relocationMarker(base string) string {
	return base + ".relocated"
}

// Path returns the directory currently holding identity's data.
func (s *SQLiteStore) Path(identity string) string {
	base := s.basePath(identity)
	raw, err := os.ReadFile(relocationMarker(base))
	if err == nil {
		if p := strings.TrimSpace(string(raw)); p != "" {
			return p
		}
	}
	return base
}

func (s *SQLiteStore) CreateOrGet(ctx context.Context, identity string) (Handle, error) {
	path := s.Path(identity)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %v", ErrStoreWrite, err)
	}
	return s.open(ctx, identity, path)
}

func (s *SQLiteStore) Get(ctx context.Context, identity string) (Handle, error) {
	path := s.Path(identity)
	if _, err := os.Stat(filepath.Join(path, storeFileName)); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoKnowledgeBase
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	return s.open(ctx, identity, path)
}

func (s *SQLiteStore) open(ctx context.Context, identity, path string) (Handle, error) {
	dsn := filepath.Join(path, storeFileName) + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStoreRead, err)
	}
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&model.CollectionMetadata{}, &model.KnowledgeChunk{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("%w: migrate store: %v", ErrStoreWrite, err)
	}
	return &sqliteHandle{identity: identity, path: path, db: db}, nil
}

// Clear deletes the identity directory under the retry policy. If it stays
// locked, a fresh timestamped directory is allocated and recorded so later
// calls use it.
func (s *SQLiteStore) Clear(ctx context.Context, identity string) (ClearResult, error) {
	base := s.basePath(identity)
	path := s.Path(identity)
	result := ClearResult{Path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.Cleared = true
		return result, nil
	}

	err := retry.Do(ctx, s.policy, func() error {
		result.Attempts++
		err := s.remove(path)
		if errors.Is(err, fs.ErrPermission) {
			// Locks clear up, missing permissions do not.
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error) {
		logger.Warnf("clear %s attempt %d failed: %v", path, attempt, err)
	})
	if err == nil {
		result.Cleared = true
		if rmErr := os.Remove(relocationMarker(base)); rmErr != nil && !os.IsNotExist(rmErr) {
			return result, fmt.Errorf("%w: remove relocation marker: %v", ErrStoreWrite, rmErr)
		}
		return result, nil
	}

	newPath := base + "_" + s.now().UTC().Format(TimestampLayout)
	if err := os.MkdirAll(newPath, 0o755); err != nil {
		return result, fmt.Errorf("%w: allocate new path: %v", ErrStoreWrite, err)
	}
	if err := os.WriteFile(relocationMarker(base), []byte(newPath), 0o644); err != nil {
		return result, fmt.Errorf("%w: record new path: %v", ErrStoreWrite, err)
	}
	logger.Warnf("store %s could not be removed, new data goes to %s", path, newPath)
	result.NewPath = newPath
	return result, nil
}

func (s *SQLiteStore) Close() error {
	return nil
}

type sqliteHandle struct {
	identity string
	path     string
	db       *gorm.DB
}

func (h *sqliteHandle) Identity() string { return h.identity }

func (h *sqliteHandle) NewCollection(ctx context.Context, createdAt time.Time) (CollectionRef, error) {
	repo := repository.NewCollectionRepository(h.db.WithContext(ctx))
	at := createdAt.UTC().Truncate(time.Second)
	for {
		name := CollectionName(h.identity, at)
		existing, err := repo.GetByName(name)
		if err != nil {
			return CollectionRef{}, fmt.Errorf("%w: %v", ErrStoreRead, err)
		}
		if existing != nil {
			at = at.Add(time.Second)
			continue
		}
		meta := &model.CollectionMetadata{Name: name, Identity: h.identity, CreatedAt: at}
		if err := repo.Create(meta); err != nil {
			return CollectionRef{}, fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		return CollectionRef{Name: name, Identity: h.identity, CreatedAt: at}, nil
	}
}

// Add writes all records in one transaction. A duplicate id or a locked
// database leaves the collection untouched.
func (h *sqliteHandle) Add(ctx context.Context, ref CollectionRef, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	chunks := make([]model.KnowledgeChunk, len(records))
	for i, rec := range records {
		chunks[i] = model.KnowledgeChunk{ID: rec.ID, Collection: ref.Name, Content: rec.Text}
		chunks[i].SetEmbedding(rec.Vector)
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta, err := repository.NewCollectionRepository(tx).GetByName(ref.Name)
		if err != nil {
			return err
		}
		if meta == nil {
			return ErrCollectionNotFound
		}
		return repository.NewKnowledgeChunkRepository(tx).CreateBatch(chunks)
	})
	if errors.Is(err, ErrCollectionNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}

func (h *sqliteHandle) LatestCollection(ctx context.Context) (CollectionRef, bool, error) {
	metas, err := h.ListCollections(ctx)
	if err != nil {
		return CollectionRef{}, false, err
	}
	if len(metas) == 0 {
		return CollectionRef{}, false, nil
	}
	m := metas[0]
	return CollectionRef{Name: m.Name, Identity: m.Identity, CreatedAt: m.CreatedAt}, true, nil
}

func (h *sqliteHandle) HasCollection(ctx context.Context, name string) (bool, error) {
	meta, err := repository.NewCollectionRepository(h.db.WithContext(ctx)).GetByName(name)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	return meta != nil, nil
}

// ListCollections returns conventionally named collections, newest first.
func (h *sqliteHandle) ListCollections(ctx context.Context) ([]model.CollectionMetadata, error) {
	metas, err := repository.NewCollectionRepository(h.db.WithContext(ctx)).ListByIdentity(h.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	prefix := CollectionPrefix(h.identity)
	out := metas[:0]
	for _, m := range metas {
		if strings.HasPrefix(m.Name, prefix) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (h *sqliteHandle) Query(ctx context.Context, ref CollectionRef, vector []float32, k int) ([]ScoredChunk, error) {
	chunks, err := repository.NewKnowledgeChunkRepository(h.db.WithContext(ctx)).ListByCollection(ref.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	hits := make([]ScoredChunk, len(chunks))
	for i := range chunks {
		stored := chunks[i].EmbeddingVector()
		if len(stored) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d, collection %s has %d", ErrDimensionMismatch, len(vector), ref.Name, len(stored))
		}
		hits[i] = ScoredChunk{
			ID:    chunks[i].ID,
			Text:  chunks[i].Content,
			Score: cosineSimilarity(vector, stored),
		}
	}
	return rankTopK(hits, k), nil
}

func (h *sqliteHandle) DropCollection(ctx context.Context, name string) error {
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		meta, err := repository.NewCollectionRepository(tx).GetByName(name)
		if err != nil {
			return err
		}
		if meta == nil {
			return ErrCollectionNotFound
		}
		if err := repository.NewKnowledgeChunkRepository(tx).DeleteByCollection(name); err != nil {
			return err
		}
		return repository.NewCollectionRepository(tx).DeleteByName(name)
	})
	if errors.Is(err, ErrCollectionNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}

func (h *sqliteHandle) Close() error {
	return closeDB(h.db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

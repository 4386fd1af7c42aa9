package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"crawlmind/internal/logger"
	"crawlmind/internal/model"
	"crawlmind/internal/retry"
)

const (
	milvusFieldID     = "id"
	milvusFieldText   = "text"
	milvusFieldVector = "vector"

	// MaxMilvusTextBytes is the largest VarChar Milvus accepts.
	MaxMilvusTextBytes = 65535
	milvusIDLength     = "64"
)

// MilvusStore keeps every knowledge collection as its own Milvus collection.
// Identities are separated by the collection name prefix.
type MilvusStore struct {
	client       *milvusclient.Client
	dim          int
	maxTextBytes int
	policy       retry.Policy
}

type MilvusOptions struct {
	Address      string
	Username     string
	Password     string
	EmbeddingDim int
	// MaxTextBytes caps the text column. Chunks are whole pages, so longer
	// ones are rejected before insert. Zero or anything above
	// MaxMilvusTextBytes means MaxMilvusTextBytes.
	MaxTextBytes int
}

func NewMilvusStore(ctx context.Context, opts MilvusOptions, policy retry.Policy) (*MilvusStore, error) {
	if opts.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("milvus embedding dimension must be positive")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := milvusclient.New(connectCtx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus failed: %w", err)
	}
	maxText := opts.MaxTextBytes
	if maxText <= 0 || maxText > MaxMilvusTextBytes {
		maxText = MaxMilvusTextBytes
	}
	return &MilvusStore{client: client, dim: opts.EmbeddingDim, maxTextBytes: maxText, policy: policy}, nil
}

// milvusPrefix adapts the collection prefix to Milvus naming rules: letters,
// digits and underscores, not starting with a digit.
func milvusPrefix(identity string) string {
	prefix := strings.ReplaceAll(CollectionPrefix(identity), "-", "_")
	if prefix != "" && prefix[0] >= '0' && prefix[0] <= '9' {
		prefix = "u" + prefix
	}
	return prefix
}

func milvusCollectionName(identity string, at time.Time) string {
	return milvusPrefix(identity) + at.UTC().Format(TimestampLayout)
}

func (s *MilvusStore) listOwned(ctx context.Context, identity string) ([]string, error) {
	names, err := s.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", ErrStoreRead, err)
	}
	return ownedCollections(identity, names), nil
}

// ownedCollections keeps the conventionally named collections of identity.
func ownedCollections(identity string, names []string) []string {
	prefix := milvusPrefix(identity)
	var owned []string
	for _, name := range names {
		if _, ok := CollectionTime(prefix, name); ok {
			owned = append(owned, name)
		}
	}
	return owned
}

// milvusMetadata describes owned collections, newest first.
func milvusMetadata(identity string, owned []string) []model.CollectionMetadata {
	prefix := milvusPrefix(identity)
	metas := make([]model.CollectionMetadata, 0, len(owned))
	for _, name := range owned {
		t, _ := CollectionTime(prefix, name)
		metas = append(metas, model.CollectionMetadata{Name: name, Identity: identity, CreatedAt: t})
	}
	sortMetadataNewestFirst(metas)
	return metas
}

func (s *MilvusStore) CreateOrGet(ctx context.Context, identity string) (Handle, error) {
	return &milvusHandle{store: s, identity: identity}, nil
}

func (s *MilvusStore) Get(ctx context.Context, identity string) (Handle, error) {
	owned, err := s.listOwned(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return nil, ErrNoKnowledgeBase
	}
	return &milvusHandle{store: s, identity: identity}, nil
}

// Clear drops every collection of identity. Collections that keep failing
// are left behind and reported through Cleared=false; new ingestions always
// get newer names, so they never become current again after the next one.
func (s *MilvusStore) Clear(ctx context.Context, identity string) (ClearResult, error) {
	result := ClearResult{Path: milvusPrefix(identity)}
	owned, err := s.listOwned(ctx, identity)
	if err != nil {
		return result, err
	}

	var remaining []string
	for _, name := range owned {
		attempts := 0
		err := retry.Do(ctx, s.policy, func() error {
			attempts++
			return s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name))
		}, func(attempt int, err error) {
			logger.Warnf("drop milvus collection %s attempt %d failed: %v", name, attempt, err)
		})
		if attempts > result.Attempts {
			result.Attempts = attempts
		}
		if err != nil {
			remaining = append(remaining, name)
		}
	}

	if len(remaining) > 0 {
		logger.Warnf("milvus collections left behind for %q: %s", identity, strings.Join(remaining, ","))
		return result, nil
	}
	result.Cleared = true
	return result, nil
}

func (s *MilvusStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Close(ctx)
}

type milvusHandle struct {
	store    *MilvusStore
	identity string
}

func (h *milvusHandle) Identity() string { return h.identity }

func (h *milvusHandle) NewCollection(ctx context.Context, createdAt time.Time) (CollectionRef, error) {
	c := h.store.client
	at := createdAt.UTC().Truncate(time.Second)
	name := milvusCollectionName(h.identity, at)
	for {
		exists, err := c.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
		if err != nil {
			return CollectionRef{}, fmt.Errorf("%w: %v", ErrStoreRead, err)
		}
		if !exists {
			break
		}
		at = at.Add(time.Second)
		name = milvusCollectionName(h.identity, at)
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "crawlmind knowledge collection",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": milvusIDLength},
			},
			{
				Name:       milvusFieldText,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(h.store.maxTextBytes)},
			},
			{
				Name:       milvusFieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(h.store.dim)},
			},
		},
	}
	if err := c.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return CollectionRef{}, fmt.Errorf("%w: create collection: %v", ErrStoreWrite, err)
	}

	idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
	if _, err := c.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, milvusFieldVector, idx)); err != nil {
		return CollectionRef{}, fmt.Errorf("%w: create index: %v", ErrStoreWrite, err)
	}
	task, err := c.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return CollectionRef{}, fmt.Errorf("%w: load collection: %v", ErrStoreWrite, err)
	}
	if err := task.Await(ctx); err != nil {
		return CollectionRef{}, fmt.Errorf("%w: await load: %v", ErrStoreWrite, err)
	}
	return CollectionRef{Name: name, Identity: h.identity, CreatedAt: at}, nil
}

// Add inserts all records with a single column-based insert.
func (h *milvusHandle) Add(ctx context.Context, ref CollectionRef, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	texts := make([]string, len(records))
	vectors := make([][]float32, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if len(rec.Vector) != h.store.dim {
			return fmt.Errorf("%w: got %d, collection has %d", ErrDimensionMismatch, len(rec.Vector), h.store.dim)
		}
		if len(rec.Text) > h.store.maxTextBytes {
			return fmt.Errorf("%w: chunk %s is %d bytes, milvus holds at most %d", ErrChunkTooLarge, rec.ID, len(rec.Text), h.store.maxTextBytes)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrStoreWrite, rec.ID)
		}
		seen[rec.ID] = struct{}{}
		ids[i] = rec.ID
		texts[i] = rec.Text
		vectors[i] = rec.Vector
	}

	opt := milvusclient.NewColumnBasedInsertOption(ref.Name).
		WithVarcharColumn(milvusFieldID, ids).
		WithVarcharColumn(milvusFieldText, texts).
		WithFloatVectorColumn(milvusFieldVector, h.store.dim, vectors)
	if _, err := h.store.client.Insert(ctx, opt); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}

func (h *milvusHandle) LatestCollection(ctx context.Context) (CollectionRef, bool, error) {
	owned, err := h.store.listOwned(ctx, h.identity)
	if err != nil {
		return CollectionRef{}, false, err
	}
	ref, ok := SelectLatest(milvusPrefix(h.identity), owned)
	ref.Identity = h.identity
	return ref, ok, nil
}

func (h *milvusHandle) HasCollection(ctx context.Context, name string) (bool, error) {
	if !strings.HasPrefix(name, milvusPrefix(h.identity)) {
		return false, nil
	}
	exists, err := h.store.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	return exists, nil
}

func (h *milvusHandle) ListCollections(ctx context.Context) ([]model.CollectionMetadata, error) {
	owned, err := h.store.listOwned(ctx, h.identity)
	if err != nil {
		return nil, err
	}
	return milvusMetadata(h.identity, owned), nil
}

func (h *milvusHandle) Query(ctx context.Context, ref CollectionRef, vector []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	opt := milvusclient.NewSearchOption(ref.Name, k, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(milvusFieldVector).
		WithOutputFields(milvusFieldID, milvusFieldText).
		WithConsistencyLevel(entity.ClStrong)
	results, err := h.store.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStoreRead, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	idCol := rs.GetColumn(milvusFieldID)
	textCol := rs.GetColumn(milvusFieldText)
	if idCol == nil || textCol == nil {
		return nil, fmt.Errorf("%w: search result missing output fields", ErrStoreRead)
	}
	hits := make([]ScoredChunk, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := idCol.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("%w: read id: %v", ErrStoreRead, err)
		}
		text, err := textCol.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("%w: read text: %v", ErrStoreRead, err)
		}
		var score float32
		if i < len(rs.Scores) {
			score = rs.Scores[i]
		}
		hits = append(hits, ScoredChunk{ID: id, Text: text, Score: score})
	}
	return rankTopK(hits, k), nil
}

func (h *milvusHandle) DropCollection(ctx context.Context, name string) error {
	exists, err := h.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrCollectionNotFound
	}
	if err := h.store.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}

func (h *milvusHandle) Close() error {
	return nil
}

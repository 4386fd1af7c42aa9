package knowledge

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlmind/internal/retry"
)

var fastPolicy = retry.Policy{Attempts: 3, Delay: time.Millisecond}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	return NewSQLiteStore(t.TempDir(), fastPolicy)
}

func openHandle(t *testing.T, s *SQLiteStore, identity string) Handle {
	t.Helper()
	h, err := s.CreateOrGet(context.Background(), identity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestGetMissingStore(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNoKnowledgeBase)
}

func TestCreateOrGetKeepsData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	h := openHandle(t, s, "user_1")
	ref, err := h.NewCollection(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, h.Add(ctx, ref, []Record{{ID: "a", Text: "alpha", Vector: []float32{1, 0}}}))
	require.NoError(t, h.Close())

	again := openHandle(t, s, "user_1")
	ok, err := again.HasCollection(ctx, ref.Name)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "user_1")
	require.NoError(t, err)
	defer got.Close()
	assert.Equal(t, "user_1", got.Identity())
	assert.DirExists(t, filepath.Join(s.root, "user_1"))
}

func TestNewCollectionSameSecond(t *testing.T) {
	ctx := context.Background()
	h := openHandle(t, newTestStore(t), "user_1")
	at := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	first, err := h.NewCollection(ctx, at)
	require.NoError(t, err)
	second, err := h.NewCollection(ctx, at)
	require.NoError(t, err)

	assert.Equal(t, "user_1_collection_20240615_120000", first.Name)
	assert.Equal(t, "user_1_collection_20240615_120001", second.Name)

	latest, ok, err := h.LatestCollection(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.Name, latest.Name)
}

func TestLatestCollectionUsesCreationTime(t *testing.T) {
	ctx := context.Background()
	h := openHandle(t, newTestStore(t), "user_1")

	_, ok, err := h.LatestCollection(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	newer, err := h.NewCollection(ctx, time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = h.NewCollection(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	latest, ok, err := h.LatestCollection(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newer.Name, latest.Name)

	metas, err := h.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, newer.Name, metas[0].Name)
}

func TestAddDuplicateIDWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := openHandle(t, newTestStore(t), "user_1")
	ref, err := h.NewCollection(ctx, time.Now())
	require.NoError(t, err)

	err = h.Add(ctx, ref, []Record{
		{ID: "same", Text: "one", Vector: []float32{1, 0}},
		{ID: "same", Text: "two", Vector: []float32{0, 1}},
	})
	assert.ErrorIs(t, err, ErrStoreWrite)

	hits, err := h.Query(ctx, ref, []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddUnknownCollection(t *testing.T) {
	h := openHandle(t, newTestStore(t), "user_1")
	err := h.Add(context.Background(), CollectionRef{Name: "user_1_collection_20240101_000000"}, []Record{{ID: "x", Text: "t"}})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestQueryRanksAndIsStable(t *testing.T) {
	ctx := context.Background()
	h := openHandle(t, newTestStore(t), "user_1")
	ref, err := h.NewCollection(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.Add(ctx, ref, []Record{
		{ID: "1", Text: "north", Vector: []float32{0, 1}},
		{ID: "2", Text: "east", Vector: []float32{1, 0}},
		{ID: "3", Text: "north-east", Vector: []float32{1, 1}},
		{ID: "4", Text: "east again", Vector: []float32{2, 0}},
		{ID: "5", Text: "south", Vector: []float32{0, -1}},
	}))

	first, err := h.Query(ctx, ref, []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, first, 4)
	assert.Equal(t, "2", first[0].ID)
	assert.Equal(t, "4", first[1].ID)
	assert.Equal(t, "3", first[2].ID)

	second, err := h.Query(ctx, ref, []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	h := openHandle(t, newTestStore(t), "user_1")
	ref, err := h.NewCollection(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.Add(ctx, ref, []Record{{ID: "1", Text: "x", Vector: []float32{1, 0, 0}}}))

	_, err = h.Query(ctx, ref, []float32{1, 0}, 4)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestDropCollection(t *testing.T) {
	ctx := context.Background()
	h := openHandle(t, newTestStore(t), "user_1")
	ref, err := h.NewCollection(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.Add(ctx, ref, []Record{{ID: "1", Text: "x", Vector: []float32{1}}}))

	require.NoError(t, h.DropCollection(ctx, ref.Name))
	ok, err := h.HasCollection(ctx, ref.Name)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, h.DropCollection(ctx, ref.Name), ErrCollectionNotFound)
}

func TestClearSucceedsOnThirdAttempt(t *testing.T) {
	s := newTestStore(t)
	h := openHandle(t, s, "user_1")
	require.NoError(t, h.Close())

	calls := 0
	s.remove = func(path string) error {
		calls++
		if calls < 3 {
			return errors.New("file is locked")
		}
		return os.RemoveAll(path)
	}

	result, err := s.Clear(context.Background(), "user_1")
	require.NoError(t, err)
	assert.True(t, result.Cleared)
	assert.Empty(t, result.NewPath)
	assert.Equal(t, 3, result.Attempts)
	assert.NoDirExists(t, filepath.Join(s.root, "user_1"))
	assert.Equal(t, filepath.Join(s.root, "user_1"), s.Path("user_1"))
}

func TestClearSingleTenantKeepsOtherIdentities(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice := openHandle(t, s, "alice")
	ref, err := alice.NewCollection(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, alice.Add(ctx, ref, []Record{{ID: "a", Text: "alpha", Vector: []float32{1, 0}}}))
	require.NoError(t, alice.Close())

	shared := openHandle(t, s, "")
	require.NoError(t, shared.Close())
	assert.NotEqual(t, filepath.Clean(s.root), s.Path(""))

	result, err := s.Clear(ctx, "")
	require.NoError(t, err)
	assert.True(t, result.Cleared)
	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrNoKnowledgeBase)

	kept, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	defer kept.Close()
	hits, err := kept.Query(ctx, ref, []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestClearFallsBackToNewPath(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	h := openHandle(t, s, "user_1")
	require.NoError(t, h.Close())

	s.remove = func(string) error { return errors.New("file is locked") }
	s.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }

	result, err := s.Clear(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, result.Cleared)
	assert.Equal(t, 3, result.Attempts)
	want := filepath.Join(s.root, "user_1") + "_20240615_120000"
	assert.Equal(t, want, result.NewPath)
	assert.Equal(t, want, s.Path("user_1"))

	// The relocated store starts empty.
	_, err = s.Get(ctx, "user_1")
	assert.ErrorIs(t, err, ErrNoKnowledgeBase)
	fresh := openHandle(t, s, "user_1")
	_, ok, err := fresh.LatestCollection(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.FileExists(t, filepath.Join(want, storeFileName))
}

func TestClearPermissionDeniedRelocatesWithoutRetrying(t *testing.T) {
	s := newTestStore(t)
	h := openHandle(t, s, "user_1")
	require.NoError(t, h.Close())

	s.remove = func(path string) error {
		return &fs.PathError{Op: "unlinkat", Path: path, Err: fs.ErrPermission}
	}

	result, err := s.Clear(context.Background(), "user_1")
	require.NoError(t, err)
	assert.False(t, result.Cleared)
	assert.Equal(t, 1, result.Attempts)
	assert.NotEmpty(t, result.NewPath)
}

func TestClearMissingStore(t *testing.T) {
	result, err := newTestStore(t).Clear(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, result.Cleared)
	assert.Equal(t, 0, result.Attempts)
}

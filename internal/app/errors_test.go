package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"crawlmind/internal/extract"
	"crawlmind/internal/knowledge"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ErrNoSources, KindInput},
		{ErrMissingCredential, KindInput},
		{fmt.Errorf("wrap: %w", extract.ErrInvalidSource), KindInput},
		{fmt.Errorf("x: %w", extract.ErrUnsupportedFormat), KindExtraction},
		{extract.ErrLoad, KindExtraction},
		{fmt.Errorf("%w: 401", ErrInvalidAPIKey), KindEmbedding},
		{knowledge.ErrNoKnowledgeBase, KindRetrieval},
		{fmt.Errorf("%w: locked", knowledge.ErrStoreWrite), KindStore},
		{fmt.Errorf("%w: chunk a is 70000 bytes", knowledge.ErrChunkTooLarge), KindStore},
		{ErrGeneration, KindGeneration},
		{errors.New("something else"), KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), tc.err.Error())
	}
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestUserMessageOversizedChunk(t *testing.T) {
	err := fmt.Errorf("%w: chunk a is 70000 bytes", knowledge.ErrChunkTooLarge)
	assert.Contains(t, UserMessage(err), "too large")
}

package app

import (
	"context"
	"strings"
	"time"

	"crawlmind/internal/knowledge"
	"crawlmind/internal/logger"
)

const (
	DefaultTopK       = 4
	contextPreviewLen = 500
)

type QueryService struct {
	embedder          Embedder
	generator         Generator
	store             knowledge.Store
	topK              int
	defaultCredential string

	now func() time.Time
}

func NewQueryService(embedder Embedder, generator Generator, store knowledge.Store, topK int, defaultCredential string) *QueryService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &QueryService{
		embedder:          embedder,
		generator:         generator,
		store:             store,
		topK:              topK,
		defaultCredential: strings.TrimSpace(defaultCredential),
		now:               time.Now,
	}
}

type QueryResult struct {
	Answer         string `json:"answer"`
	SourcesCount   int    `json:"sources_count"`
	ContextPreview string `json:"context_preview"`
	Collection     string `json:"collection"`
	// GenerationFailed is set when Answer carries a generation error message.
	GenerationFailed bool `json:"generation_failed,omitempty"`
}

// Ask answers question from the session's knowledge base and records the
// turn. Retrieval failures are returned and also recorded as a turn with the
// user-facing message; generation failures become the answer text.
func (s *QueryService) Ask(ctx context.Context, sess *SessionContext, question string) (*QueryResult, error) {
	if sess == nil {
		sess = &SessionContext{}
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	credential := sess.Credential
	if credential == "" {
		credential = s.defaultCredential
	}
	if credential == "" {
		return nil, ErrMissingCredential
	}

	ref, hits, err := s.retrieve(ctx, sess, question, credential)
	if err != nil {
		sess.AppendTurn(question, UserMessage(err), s.now())
		return nil, err
	}

	contextText := BuildContext(hits)
	result := &QueryResult{
		SourcesCount:   len(hits),
		ContextPreview: preview(contextText),
		Collection:     ref.Name,
	}
	answer, err := s.generator.Generate(ctx, contextText, question, credential)
	if err != nil {
		logger.Warnf("generate answer failed: %v", err)
		answer = "Error generating answer: " + err.Error()
		result.GenerationFailed = true
	}
	result.Answer = answer
	sess.AppendTurn(question, answer, s.now())
	return result, nil
}

func (s *QueryService) retrieve(ctx context.Context, sess *SessionContext, question, credential string) (knowledge.CollectionRef, []knowledge.ScoredChunk, error) {
	handle, err := s.store.Get(ctx, sess.Identity)
	if err != nil {
		return knowledge.CollectionRef{}, nil, err
	}
	defer handle.Close()

	ref, err := s.resolveCollection(ctx, handle, sess)
	if err != nil {
		return knowledge.CollectionRef{}, nil, err
	}

	vec, err := s.embedder.Embed(ctx, question, credential)
	if err != nil {
		return ref, nil, err
	}
	hits, err := handle.Query(ctx, ref, vec, s.topK)
	if err != nil {
		return ref, nil, err
	}
	return ref, hits, nil
}

// resolveCollection prefers the collection cached on the session and falls
// back to the newest one when it is gone.
func (s *QueryService) resolveCollection(ctx context.Context, handle knowledge.Handle, sess *SessionContext) (knowledge.CollectionRef, error) {
	if sess.CollectionRef != "" {
		ok, err := handle.HasCollection(ctx, sess.CollectionRef)
		if err != nil {
			return knowledge.CollectionRef{}, err
		}
		if ok {
			return knowledge.CollectionRef{Name: sess.CollectionRef, Identity: sess.Identity}, nil
		}
		logger.Infof("cached collection %s is gone, using latest", sess.CollectionRef)
	}
	ref, ok, err := handle.LatestCollection(ctx)
	if err != nil {
		return knowledge.CollectionRef{}, err
	}
	if !ok {
		return knowledge.CollectionRef{}, knowledge.ErrNoKnowledgeBase
	}
	sess.CollectionRef = ref.Name
	return ref, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= contextPreviewLen {
		return text
	}
	return string(runes[:contextPreviewLen]) + "..."
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crawlmind/internal/extract"
	"crawlmind/internal/knowledge"
	"crawlmind/internal/logger"
	"crawlmind/internal/model"
)

type IngestState string

const (
	StateIdle        IngestState = "idle"
	StateExtracting  IngestState = "extracting"
	StateNormalizing IngestState = "normalizing"
	StateEmbedding   IngestState = "embedding"
	StateStoring     IngestState = "storing"
	StateDone        IngestState = "done"
	StateFailed      IngestState = "failed"
)

// IngestionEventPublisher receives one record per finished ingestion run.
type IngestionEventPublisher interface {
	PublishIngestion(ctx context.Context, record model.IngestionRecord) error
}

type nopPublisher struct{}

func (nopPublisher) PublishIngestion(context.Context, model.IngestionRecord) error { return nil }

type IngestionService struct {
	extractor         extract.Extractor
	embedder          Embedder
	store             knowledge.Store
	events            IngestionEventPublisher
	defaultCredential string

	now   func() time.Time
	newID func() string
}

// NewIngestionService wires the pipeline. events may be nil. defaultCredential
// is used when the caller supplies no credential.
func NewIngestionService(
	extractor extract.Extractor,
	embedder Embedder,
	store knowledge.Store,
	events IngestionEventPublisher,
	defaultCredential string,
) *IngestionService {
	if events == nil {
		events = nopPublisher{}
	}
	return &IngestionService{
		extractor:         extractor,
		embedder:          embedder,
		store:             store,
		events:            events,
		defaultCredential: strings.TrimSpace(defaultCredential),
		now:               time.Now,
		newID:             func() string { return uuid.NewString() },
	}
}

type IngestInput struct {
	Session *SessionContext
	Sources []extract.Source
}

type SourceFailure struct {
	Source string    `json:"source"`
	Kind   ErrorKind `json:"kind"`
	Error  string    `json:"error"`
}

type IngestResult struct {
	ChunksAdded   int                     `json:"chunks_added"`
	Collection    knowledge.CollectionRef `json:"collection_reference"`
	State         IngestState             `json:"state"`
	FailedSources []SourceFailure         `json:"failed_sources,omitempty"`
}

// run tracks the state machine of one ingestion.
type run struct {
	identity string
	state    IngestState
	result   IngestResult
}

func (r *run) advance(to IngestState) {
	logger.Debugf("ingestion %q: %s -> %s", r.identity, r.state, to)
	r.state = to
	r.result.State = to
}

// Ingest extracts, embeds and stores sources as a new collection. Sources
// that fail to extract are skipped and reported; any embedding or store
// failure aborts the run without writing. Once entry checks pass the result
// is returned together with any error so callers can see the final state.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	sess := input.Session
	if sess == nil {
		sess = &SessionContext{}
	}
	if len(input.Sources) == 0 {
		return nil, ErrNoSources
	}
	credential := sess.Credential
	if credential == "" {
		credential = s.defaultCredential
	}
	if credential == "" {
		return nil, ErrMissingCredential
	}

	r := &run{identity: sess.Identity, state: StateIdle}
	err := s.execute(ctx, r, sess, credential, input.Sources)
	if err != nil {
		r.advance(StateFailed)
		logger.Warnf("ingestion for %q failed: %v", sess.Identity, err)
	} else {
		r.advance(StateDone)
		sess.CollectionRef = r.result.Collection.Name
		logger.Infof("ingested %d chunks into %s", r.result.ChunksAdded, r.result.Collection.Name)
	}
	s.publish(ctx, sess.Identity, len(input.Sources), &r.result, err)
	return &r.result, err
}

func (s *IngestionService) execute(ctx context.Context, r *run, sess *SessionContext, credential string, sources []extract.Source) error {
	r.advance(StateExtracting)
	var segments []string
	for _, src := range sources {
		texts, err := s.extractor.Extract(ctx, src)
		if err != nil {
			logger.Warnf("skip source %s: %v", src.Label(), err)
			r.result.FailedSources = append(r.result.FailedSources, SourceFailure{
				Source: src.Label(),
				Kind:   KindOf(err),
				Error:  err.Error(),
			})
			continue
		}
		segments = append(segments, texts...)
	}

	r.advance(StateNormalizing)
	chunks := Normalize(segments)
	if len(chunks) == 0 {
		return extract.ErrNoContent
	}

	r.advance(StateEmbedding)
	records := make([]knowledge.Record, len(chunks))
	for i, text := range chunks {
		vec, err := s.embedder.Embed(ctx, text, credential)
		if err != nil {
			return err
		}
		records[i] = knowledge.Record{ID: s.newID(), Text: text, Vector: vec}
	}

	r.advance(StateStoring)
	handle, err := s.store.CreateOrGet(ctx, sess.Identity)
	if err != nil {
		return err
	}
	defer handle.Close()

	ref, err := handle.NewCollection(ctx, s.now())
	if err != nil {
		return err
	}
	if err := handle.Add(ctx, ref, records); err != nil {
		if dropErr := handle.DropCollection(ctx, ref.Name); dropErr != nil && !errors.Is(dropErr, knowledge.ErrCollectionNotFound) {
			logger.Warnf("drop collection %s after failed write: %v", ref.Name, dropErr)
		}
		return err
	}

	r.result.Collection = ref
	r.result.ChunksAdded = len(records)
	return nil
}

func (s *IngestionService) publish(ctx context.Context, identity string, sources int, result *IngestResult, runErr error) {
	record := model.IngestionRecord{
		Identity:      identity,
		Collection:    result.Collection.Name,
		ChunksAdded:   result.ChunksAdded,
		Sources:       sources,
		FailedSources: len(result.FailedSources),
		State:         string(result.State),
		CreatedAt:     s.now(),
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}
	if err := s.events.PublishIngestion(ctx, record); err != nil {
		logger.Warnf("publish ingestion record failed: %v", fmt.Errorf("identity %q: %w", identity, err))
	}
}

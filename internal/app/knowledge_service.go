package app

import (
	"context"
	"errors"
	"strings"

	"crawlmind/internal/knowledge"
	"crawlmind/internal/model"
	"crawlmind/internal/repository"
)

var ErrAuditLogDisabled = errors.New("ingestion audit log is disabled")

// KnowledgeService exposes knowledge base maintenance: listing and dropping
// collections, clearing a whole store and reading the ingestion audit log.
type KnowledgeService struct {
	store   knowledge.Store
	records *repository.IngestionRecordRepository
}

// NewKnowledgeService builds the service. records may be nil when the audit
// log is not configured.
func NewKnowledgeService(store knowledge.Store, records *repository.IngestionRecordRepository) *KnowledgeService {
	return &KnowledgeService{store: store, records: records}
}

func (s *KnowledgeService) ListCollections(ctx context.Context, identity string) ([]model.CollectionMetadata, error) {
	handle, err := s.store.Get(ctx, identity)
	if errors.Is(err, knowledge.ErrNoKnowledgeBase) {
		return []model.CollectionMetadata{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return handle.ListCollections(ctx)
}

func (s *KnowledgeService) DropCollection(ctx context.Context, identity, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidInput
	}
	handle, err := s.store.Get(ctx, identity)
	if err != nil {
		return err
	}
	defer handle.Close()
	return handle.DropCollection(ctx, name)
}

// Clear removes the identity's whole knowledge base. A store that could not
// be removed is reported through the result, not as an error.
func (s *KnowledgeService) Clear(ctx context.Context, identity string) (knowledge.ClearResult, error) {
	return s.store.Clear(ctx, identity)
}

func (s *KnowledgeService) ListIngestions(identity string, limit int) ([]model.IngestionRecord, error) {
	if s.records == nil {
		return nil, ErrAuditLogDisabled
	}
	return s.records.ListByIdentity(identity, limit)
}

package repository

import (
	"fmt"

	"gorm.io/gorm"

	"crawlmind/internal/model"
)

type KnowledgeChunkRepository struct {
	db *gorm.DB
}

func NewKnowledgeChunkRepository(db *gorm.DB) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: db}
}

func (r *KnowledgeChunkRepository) CreateBatch(chunks []model.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.CreateInBatches(&chunks, 200).Error; err != nil {
		return fmt.Errorf("create knowledge chunks batch failed: %w", err)
	}
	return nil
}

// ListByCollection returns every chunk of a collection ordered by id.
func (r *KnowledgeChunkRepository) ListByCollection(collection string) ([]model.KnowledgeChunk, error) {
	var chunks []model.KnowledgeChunk
	if err := r.db.Where("collection = ?", collection).Order("id ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list knowledge chunks by collection failed: %w", err)
	}
	return chunks, nil
}

func (r *KnowledgeChunkRepository) DeleteByCollection(collection string) error {
	if err := r.db.Where("collection = ?", collection).Delete(&model.KnowledgeChunk{}).Error; err != nil {
		return fmt.Errorf("delete knowledge chunks by collection failed: %w", err)
	}
	return nil
}

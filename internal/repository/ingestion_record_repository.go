package repository

import (
	"fmt"

	"gorm.io/gorm"

	"crawlmind/internal/model"
)

type IngestionRecordRepository struct {
	db *gorm.DB
}

func NewIngestionRecordRepository(db *gorm.DB) *IngestionRecordRepository {
	return &IngestionRecordRepository{db: db}
}

func (r *IngestionRecordRepository) Create(record *model.IngestionRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("create ingestion record failed: %w", err)
	}
	return nil
}

func (r *IngestionRecordRepository) ListByIdentity(identity string, limit int) ([]model.IngestionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []model.IngestionRecord
	if err := r.db.Where("identity = ?", identity).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list ingestion records failed: %w", err)
	}
	return records, nil
}

package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"crawlmind/internal/model"
)

type CollectionRepository struct {
	db *gorm.DB
}

func NewCollectionRepository(db *gorm.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

func (r *CollectionRepository) Create(meta *model.CollectionMetadata) error {
	if err := r.db.Create(meta).Error; err != nil {
		return fmt.Errorf("create collection metadata failed: %w", err)
	}
	return nil
}

func (r *CollectionRepository) GetByName(name string) (*model.CollectionMetadata, error) {
	var meta model.CollectionMetadata
	if err := r.db.Where("name = ?", name).First(&meta).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query collection metadata failed: %w", err)
	}
	return &meta, nil
}

// ListByIdentity returns the identity's collections, newest first.
func (r *CollectionRepository) ListByIdentity(identity string) ([]model.CollectionMetadata, error) {
	var metas []model.CollectionMetadata
	if err := r.db.Where("identity = ?", identity).
		Order("created_at DESC").
		Order("name DESC").
		Find(&metas).Error; err != nil {
		return nil, fmt.Errorf("list collection metadata failed: %w", err)
	}
	return metas, nil
}

func (r *CollectionRepository) DeleteByName(name string) error {
	if err := r.db.Where("name = ?", name).Delete(&model.CollectionMetadata{}).Error; err != nil {
		return fmt.Errorf("delete collection metadata failed: %w", err)
	}
	return nil
}

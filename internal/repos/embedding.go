package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

type EmbeddingRepo interface {
	Create(ctx context.Context, tx *gorm.DB, embeddings []*types.Embedding) ([]*types.Embedding, error)
	GetByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.Embedding, error)
	DeleteByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	return &embeddingRepo{db: db, log: baseLog.With("repo", "EmbeddingRepo")}
}

func (r *embeddingRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *embeddingRepo) Create(ctx context.Context, tx *gorm.DB, embeddings []*types.Embedding) ([]*types.Embedding, error) {
	if len(embeddings) == 0 {
		return []*types.Embedding{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&embeddings).Error; err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (r *embeddingRepo) GetByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.Embedding, error) {
	var results []*types.Embedding
	if err := r.conn(tx).WithContext(ctx).
		Where("asset_id = ?", assetID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *embeddingRepo) DeleteByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Where("asset_id = ?", assetID).
		Delete(&types.Embedding{}).Error
}

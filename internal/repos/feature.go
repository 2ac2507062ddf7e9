package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

type FeatureRepo interface {
	Create(ctx context.Context, tx *gorm.DB, features []*types.Feature) ([]*types.Feature, error)
	GetByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.Feature, error)
	DeleteByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error
}

type featureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeatureRepo(db *gorm.DB, baseLog *logger.Logger) FeatureRepo {
	return &featureRepo{db: db, log: baseLog.With("repo", "FeatureRepo")}
}

func (r *featureRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *featureRepo) Create(ctx context.Context, tx *gorm.DB, features []*types.Feature) ([]*types.Feature, error) {
	if len(features) == 0 {
		return []*types.Feature{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&features).Error; err != nil {
		return nil, err
	}
	return features, nil
}

func (r *featureRepo) GetByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.Feature, error) {
	var results []*types.Feature
	if err := r.conn(tx).WithContext(ctx).
		Where("asset_id = ?", assetID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *featureRepo) DeleteByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Where("asset_id = ?", assetID).
		Delete(&types.Feature{}).Error
}

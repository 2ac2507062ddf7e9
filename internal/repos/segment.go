package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

type SegmentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, segments []*types.Segment) ([]*types.Segment, error)
	GetByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.Segment, error)
	DeleteByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error
}

type segmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSegmentRepo(db *gorm.DB, baseLog *logger.Logger) SegmentRepo {
	return &segmentRepo{db: db, log: baseLog.With("repo", "SegmentRepo")}
}

func (r *segmentRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *segmentRepo) Create(ctx context.Context, tx *gorm.DB, segments []*types.Segment) ([]*types.Segment, error) {
	if len(segments) == 0 {
		return []*types.Segment{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&segments).Error; err != nil {
		return nil, err
	}
	return segments, nil
}

func (r *segmentRepo) GetByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) ([]*types.Segment, error) {
	var results []*types.Segment
	if err := r.conn(tx).WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("sequence_number ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *segmentRepo) DeleteByAssetID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Where("asset_id = ?", assetID).
		Delete(&types.Segment{}).Error
}

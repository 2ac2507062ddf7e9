package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

type AssetListFilter struct {
	Status   string
	MimeType string
	Page     int
	Limit    int
}

type AssetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, asset *types.Asset) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Asset, error)
	GetByContentHash(ctx context.Context, tx *gorm.DB, contentHash string) (*types.Asset, error)
	List(ctx context.Context, tx *gorm.DB, filter AssetListFilter) ([]*types.Asset, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
	// TransitionStatus performs the guarded status update. It returns false
	// without error when the asset is not in fromStatus (the guard lost).
	TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatus, toStatus string, lastError *string) (bool, error)
	IncrementAnalysisCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *assetRepo) Create(ctx context.Context, tx *gorm.DB, asset *types.Asset) error {
	return r.conn(tx).WithContext(ctx).Create(asset).Error
}

func (r *assetRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Asset, error) {
	var asset types.Asset
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepo) GetByContentHash(ctx context.Context, tx *gorm.DB, contentHash string) (*types.Asset, error) {
	var asset types.Asset
	err := r.conn(tx).WithContext(ctx).Where("content_hash = ?", contentHash).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepo) List(ctx context.Context, tx *gorm.DB, filter AssetListFilter) ([]*types.Asset, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := r.conn(tx).WithContext(ctx).Model(&types.Asset{})
	if filter.Status != "" {
		q = q.Where("processing_status = ?", filter.Status)
	}
	if filter.MimeType != "" {
		q = q.Where("mime_type = ?", filter.MimeType)
	}

	var results []*types.Asset
	if err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *assetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.conn(tx).WithContext(ctx).Model(&types.Asset{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *assetRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatus, toStatus string, lastError *string) (bool, error) {
	updates := map[string]any{
		"processing_status": toStatus,
		"last_error":        lastError,
		"updated_at":        time.Now(),
	}
	res := r.conn(tx).WithContext(ctx).Model(&types.Asset{}).
		Where("id = ? AND processing_status = ?", id, fromStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *assetRepo) IncrementAnalysisCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).Model(&types.Asset{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"analysis_count": gorm.Expr("analysis_count + 1"),
			"updated_at":     time.Now(),
		}).Error
}

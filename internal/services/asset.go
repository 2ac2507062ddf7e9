package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/types"
)

type AssetDetail struct {
	Asset    *types.Asset     `json:"asset"`
	Segments []*types.Segment `json:"segments"`
	URL      string           `json:"url,omitempty"`
}

// AssetService is the read side of the catalog: listings and detail views.
type AssetService interface {
	GetDetail(ctx context.Context, assetID uuid.UUID) (*AssetDetail, error)
	List(ctx context.Context, filter repos.AssetListFilter) ([]*types.Asset, error)
}

type assetService struct {
	log      *logger.Logger
	assets   repos.AssetRepo
	segments repos.SegmentRepo
	bucket   BucketService
}

func NewAssetService(baseLog *logger.Logger, assets repos.AssetRepo, segments repos.SegmentRepo, bucket BucketService) AssetService {
	return &assetService{
		log:      baseLog.With("service", "AssetService"),
		assets:   assets,
		segments: segments,
		bucket:   bucket,
	}
}

func (s *assetService) GetDetail(ctx context.Context, assetID uuid.UUID) (*AssetDetail, error) {
	asset, err := s.assets.GetByID(ctx, nil, assetID)
	if err != nil {
		return nil, fmt.Errorf("load asset: %w", err)
	}
	if asset == nil {
		return nil, ErrNotFound
	}
	segments, err := s.segments.GetByAssetID(ctx, nil, assetID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	return &AssetDetail{
		Asset:    asset,
		Segments: segments,
		URL:      s.bucket.GetPublicURL(asset.StorageKey),
	}, nil
}

func (s *assetService) List(ctx context.Context, filter repos.AssetListFilter) ([]*types.Asset, error) {
	return s.assets.List(ctx, nil, filter)
}

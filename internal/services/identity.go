package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/types"
)

// HashContent streams r through SHA-256 and returns the hex digest and the
// number of bytes consumed. Pure; the caller owns buffering.
func HashContent(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ContentIdentityService resolves a content hash to the asset that owns it.
type ContentIdentityService interface {
	// Resolve returns nil when no asset carries the hash.
	Resolve(ctx context.Context, contentHash string) (*types.Asset, error)
}

type contentIdentityService struct {
	log    *logger.Logger
	assets repos.AssetRepo
}

func NewContentIdentityService(baseLog *logger.Logger, assets repos.AssetRepo) ContentIdentityService {
	return &contentIdentityService{
		log:    baseLog.With("service", "ContentIdentityService"),
		assets: assets,
	}
}

func (s *contentIdentityService) Resolve(ctx context.Context, contentHash string) (*types.Asset, error) {
	if contentHash == "" {
		return nil, fmt.Errorf("content hash required")
	}
	return s.assets.GetByContentHash(ctx, nil, contentHash)
}

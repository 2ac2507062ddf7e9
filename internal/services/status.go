package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/types"
)

// CachedStatus is the cache representation of an asset's lifecycle state.
type CachedStatus struct {
	Status    string    `json:"status"`
	LastError *string   `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCache is the bounded-TTL cache in front of the durable store.
type StatusCache interface {
	// Get returns nil on a cache miss.
	Get(ctx context.Context, assetID uuid.UUID) (*CachedStatus, error)
	Set(ctx context.Context, assetID uuid.UUID, status CachedStatus) error
	Invalidate(ctx context.Context, assetID uuid.UUID) error
}

type StatusSnapshot struct {
	AssetID   uuid.UUID `json:"asset_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	LastError *string   `json:"last_error,omitempty"`
}

// StatusTracker owns the asset state machine. Every transition goes through
// the durable store's guarded update and refreshes the cache as part of the
// same logical operation.
type StatusTracker interface {
	GetStatus(ctx context.Context, assetID uuid.UUID) (*StatusSnapshot, error)
	// Transition returns ErrConflict when the asset is not in fromStatus.
	Transition(ctx context.Context, assetID uuid.UUID, fromStatus, toStatus string, lastError *string) error
	// ForceSet bypasses the transition guard for explicit overrides
	// (forced re-analysis). Store write and cache refresh stay one
	// logical operation, exactly as in Transition.
	ForceSet(ctx context.Context, assetID uuid.UUID, toStatus string, lastError *string) error
}

// legalTransitions encodes the state machine. Resetting to queued from a
// terminal state (or from queued itself) happens only on explicit
// re-analysis; it is never automatic.
var legalTransitions = map[string]map[string]bool{
	types.AssetStatusQueued: {
		types.AssetStatusProcessing: true,
		types.AssetStatusQueued:     true,
	},
	types.AssetStatusProcessing: {
		types.AssetStatusCompleted: true,
		types.AssetStatusFailed:    true,
	},
	types.AssetStatusCompleted: {
		types.AssetStatusQueued: true,
	},
	types.AssetStatusFailed: {
		types.AssetStatusQueued: true,
	},
}

type statusTracker struct {
	log    *logger.Logger
	assets repos.AssetRepo
	cache  StatusCache
}

func NewStatusTracker(baseLog *logger.Logger, assets repos.AssetRepo, cache StatusCache) StatusTracker {
	return &statusTracker{
		log:    baseLog.With("service", "StatusTracker"),
		assets: assets,
		cache:  cache,
	}
}

func (t *statusTracker) GetStatus(ctx context.Context, assetID uuid.UUID) (*StatusSnapshot, error) {
	cached, err := t.cache.Get(ctx, assetID)
	if err != nil {
		t.log.Warn("Status cache read failed, falling back to store", "asset_id", assetID, "error", err)
	}
	if cached != nil {
		return &StatusSnapshot{
			AssetID:   assetID,
			Status:    cached.Status,
			UpdatedAt: cached.UpdatedAt,
			LastError: cached.LastError,
		}, nil
	}

	asset, err := t.assets.GetByID(ctx, nil, assetID)
	if err != nil {
		return nil, fmt.Errorf("load asset status: %w", err)
	}
	if asset == nil {
		return nil, ErrNotFound
	}

	snapshot := &StatusSnapshot{
		AssetID:   assetID,
		Status:    asset.Status,
		UpdatedAt: asset.UpdatedAt,
		LastError: asset.LastError,
	}
	// Refresh the cache on read-through miss; a failure here only costs
	// the next reader a store round trip.
	if err := t.cache.Set(ctx, assetID, CachedStatus{
		Status:    asset.Status,
		LastError: asset.LastError,
		UpdatedAt: asset.UpdatedAt,
	}); err != nil {
		t.log.Warn("Status cache refresh failed", "asset_id", assetID, "error", err)
	}
	return snapshot, nil
}

func (t *statusTracker) Transition(ctx context.Context, assetID uuid.UUID, fromStatus, toStatus string, lastError *string) error {
	if !legalTransitions[fromStatus][toStatus] {
		return fmt.Errorf("illegal transition %s -> %s", fromStatus, toStatus)
	}
	if toStatus == types.AssetStatusFailed && (lastError == nil || *lastError == "") {
		return fmt.Errorf("transition to failed requires a last_error")
	}

	ok, err := t.assets.TransitionStatus(ctx, nil, assetID, fromStatus, toStatus, lastError)
	if err != nil {
		return fmt.Errorf("transition %s -> %s: %w", fromStatus, toStatus, err)
	}
	if !ok {
		return ErrConflict
	}

	t.refreshCache(ctx, assetID, CachedStatus{
		Status:    toStatus,
		LastError: lastError,
		UpdatedAt: time.Now(),
	})

	t.log.Debug("Status transition", "asset_id", assetID, "from", fromStatus, "to", toStatus)
	return nil
}

func (t *statusTracker) ForceSet(ctx context.Context, assetID uuid.UUID, toStatus string, lastError *string) error {
	if _, ok := legalTransitions[toStatus]; !ok {
		return fmt.Errorf("unknown status %q", toStatus)
	}
	if err := t.assets.UpdateFields(ctx, nil, assetID, map[string]any{
		"processing_status": toStatus,
		"last_error":        lastError,
	}); err != nil {
		return fmt.Errorf("force status %s: %w", toStatus, err)
	}

	t.refreshCache(ctx, assetID, CachedStatus{
		Status:    toStatus,
		LastError: lastError,
		UpdatedAt: time.Now(),
	})

	t.log.Debug("Status force-set", "asset_id", assetID, "to", toStatus)
	return nil
}

// refreshCache keeps the cache in step with a durable write that already
// happened; on a failed write the entry is invalidated so a stale status
// cannot outlive the store.
func (t *statusTracker) refreshCache(ctx context.Context, assetID uuid.UUID, status CachedStatus) {
	if err := t.cache.Set(ctx, assetID, status); err != nil {
		t.log.Warn("Status cache write failed, invalidating", "asset_id", assetID, "error", err)
		if invErr := t.cache.Invalidate(ctx, assetID); invErr != nil {
			t.log.Error("Status cache invalidate failed", "asset_id", assetID, "error", invErr)
		}
	}
}

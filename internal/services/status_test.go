package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/types"
)

func newStatusFixture(t *testing.T) (StatusTracker, repos.AssetRepo, *fakeCache) {
	t.Helper()
	log := logger.NewNop()
	gdb := newTestDB(t)
	assetRepo := repos.NewAssetRepo(gdb, log)
	cache := newFakeCache()
	return NewStatusTracker(log, assetRepo, cache), assetRepo, cache
}

func seedAsset(t *testing.T, assetRepo repos.AssetRepo, status string) *types.Asset {
	t.Helper()
	now := time.Now()
	asset := &types.Asset{
		ID:          uuid.New(),
		Filename:    "seed.txt",
		ContentHash: uuid.NewString(),
		FileSize:    10,
		MimeType:    "text/plain",
		StorageKey:  "seed/seed.txt",
		Status:      status,
		Priority:    5,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := assetRepo.Create(context.Background(), nil, asset); err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return asset
}

func TestTransitionLegality(t *testing.T) {
	reason := "analyzer crashed"
	tests := []struct {
		name    string
		from    string
		to      string
		lastErr *string
		wantErr bool
	}{
		{"queued to processing", types.AssetStatusQueued, types.AssetStatusProcessing, nil, false},
		{"processing to completed", types.AssetStatusProcessing, types.AssetStatusCompleted, nil, false},
		{"processing to failed", types.AssetStatusProcessing, types.AssetStatusFailed, &reason, false},
		{"completed to queued", types.AssetStatusCompleted, types.AssetStatusQueued, nil, false},
		{"failed to queued", types.AssetStatusFailed, types.AssetStatusQueued, nil, false},
		{"queued to completed", types.AssetStatusQueued, types.AssetStatusCompleted, nil, true},
		{"completed to processing", types.AssetStatusCompleted, types.AssetStatusProcessing, nil, true},
		{"failed to completed", types.AssetStatusFailed, types.AssetStatusCompleted, nil, true},
		{"failed without reason", types.AssetStatusProcessing, types.AssetStatusFailed, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, assetRepo, _ := newStatusFixture(t)
			asset := seedAsset(t, assetRepo, tt.from)
			err := tracker.Transition(context.Background(), asset.ID, tt.from, tt.to, tt.lastErr)
			if tt.wantErr && err == nil {
				t.Fatalf("expected transition %s -> %s to be rejected", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestTransitionGuardReturnsConflict(t *testing.T) {
	tracker, assetRepo, _ := newStatusFixture(t)
	asset := seedAsset(t, assetRepo, types.AssetStatusCompleted)

	// The asset is completed, so the queued -> processing claim must lose.
	err := tracker.Transition(context.Background(), asset.ID, types.AssetStatusQueued, types.AssetStatusProcessing, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	stored, _ := assetRepo.GetByID(context.Background(), nil, asset.ID)
	if stored.Status != types.AssetStatusCompleted {
		t.Fatalf("lost guard still mutated status: %q", stored.Status)
	}
}

func TestTransitionUpdatesCache(t *testing.T) {
	tracker, assetRepo, cache := newStatusFixture(t)
	asset := seedAsset(t, assetRepo, types.AssetStatusQueued)

	if err := tracker.Transition(context.Background(), asset.ID, types.AssetStatusQueued, types.AssetStatusProcessing, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	entry, ok := cache.get(asset.ID)
	if !ok || entry.Status != types.AssetStatusProcessing {
		t.Fatalf("cache not updated after transition: %+v", entry)
	}
}

func TestTransitionInvalidatesCacheWhenSetFails(t *testing.T) {
	tracker, assetRepo, cache := newStatusFixture(t)
	asset := seedAsset(t, assetRepo, types.AssetStatusQueued)

	// Pre-populate so a stale entry exists to invalidate.
	cache.entries[asset.ID] = CachedStatus{Status: types.AssetStatusQueued, UpdatedAt: time.Now()}
	cache.failSet = true

	if err := tracker.Transition(context.Background(), asset.ID, types.AssetStatusQueued, types.AssetStatusProcessing, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, ok := cache.get(asset.ID); ok {
		t.Fatalf("stale cache entry survived a failed cache write")
	}
}

func TestForceSetUpdatesStoreAndCache(t *testing.T) {
	tracker, assetRepo, cache := newStatusFixture(t)
	asset := seedAsset(t, assetRepo, types.AssetStatusProcessing)

	// A reader has already warmed the cache with the in-flight state.
	cache.entries[asset.ID] = CachedStatus{Status: types.AssetStatusProcessing, UpdatedAt: time.Now()}

	if err := tracker.ForceSet(context.Background(), asset.ID, types.AssetStatusQueued, nil); err != nil {
		t.Fatalf("ForceSet: %v", err)
	}

	stored, _ := assetRepo.GetByID(context.Background(), nil, asset.ID)
	if stored.Status != types.AssetStatusQueued {
		t.Fatalf("stored status = %q, want queued", stored.Status)
	}
	entry, ok := cache.get(asset.ID)
	if !ok || entry.Status != types.AssetStatusQueued {
		t.Fatalf("cache still serves %+v after forced override", entry)
	}
}

func TestForceSetInvalidatesCacheWhenSetFails(t *testing.T) {
	tracker, assetRepo, cache := newStatusFixture(t)
	asset := seedAsset(t, assetRepo, types.AssetStatusProcessing)

	cache.entries[asset.ID] = CachedStatus{Status: types.AssetStatusProcessing, UpdatedAt: time.Now()}
	cache.failSet = true

	if err := tracker.ForceSet(context.Background(), asset.ID, types.AssetStatusQueued, nil); err != nil {
		t.Fatalf("ForceSet: %v", err)
	}
	if _, ok := cache.get(asset.ID); ok {
		t.Fatalf("stale cache entry survived a failed cache write")
	}
}

func TestForceSetRejectsUnknownStatus(t *testing.T) {
	tracker, assetRepo, _ := newStatusFixture(t)
	asset := seedAsset(t, assetRepo, types.AssetStatusQueued)

	if err := tracker.ForceSet(context.Background(), asset.ID, "paused", nil); err == nil {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestGetStatusReadThrough(t *testing.T) {
	tracker, assetRepo, cache := newStatusFixture(t)
	asset := seedAsset(t, assetRepo, types.AssetStatusProcessing)

	// Miss: served from the store and cached on the way out.
	snapshot, err := tracker.GetStatus(context.Background(), asset.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if snapshot.Status != types.AssetStatusProcessing {
		t.Fatalf("status = %q, want processing", snapshot.Status)
	}
	if _, ok := cache.get(asset.ID); !ok {
		t.Fatalf("read-through miss did not refresh the cache")
	}

	// Hit: the cached value wins even if the store moves on underneath.
	if _, err := assetRepo.TransitionStatus(context.Background(), nil, asset.ID, types.AssetStatusProcessing, types.AssetStatusCompleted, nil); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	snapshot, err = tracker.GetStatus(context.Background(), asset.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if snapshot.Status != types.AssetStatusProcessing {
		t.Fatalf("expected cached status, got %q", snapshot.Status)
	}
}

func TestGetStatusUnknownAsset(t *testing.T) {
	tracker, _, _ := newStatusFixture(t)
	_, err := tracker.GetStatus(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package repos

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&types.Asset{}, &types.Segment{}, &types.Feature{}, &types.Embedding{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func newAsset(status string) *types.Asset {
	now := time.Now()
	id := uuid.New()
	return &types.Asset{
		ID:          id,
		Filename:    "sample.txt",
		ContentHash: id.String(),
		FileSize:    42,
		MimeType:    "text/plain",
		StorageKey:  id.String() + "/sample.txt",
		Status:      status,
		Priority:    5,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestAssetCreateEnforcesContentHashUniqueness(t *testing.T) {
	repo := NewAssetRepo(newTestDB(t), logger.NewNop())
	ctx := context.Background()

	first := newAsset(types.AssetStatusQueued)
	if err := repo.Create(ctx, nil, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := newAsset(types.AssetStatusQueued)
	second.ContentHash = first.ContentHash
	err := repo.Create(ctx, nil, second)
	if err == nil {
		t.Fatalf("duplicate content_hash insert succeeded")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestTransitionStatusGuard(t *testing.T) {
	repo := NewAssetRepo(newTestDB(t), logger.NewNop())
	ctx := context.Background()

	asset := newAsset(types.AssetStatusQueued)
	if err := repo.Create(ctx, nil, asset); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.TransitionStatus(ctx, nil, asset.ID, types.AssetStatusQueued, types.AssetStatusProcessing, nil)
	if err != nil || !ok {
		t.Fatalf("first claim should win: ok=%v err=%v", ok, err)
	}

	// Second claim from the same fromStatus must lose without error.
	ok, err = repo.TransitionStatus(ctx, nil, asset.ID, types.AssetStatusQueued, types.AssetStatusProcessing, nil)
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if ok {
		t.Fatalf("second claim won against the guard")
	}

	stored, err := repo.GetByID(ctx, nil, asset.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.AssetStatusProcessing {
		t.Fatalf("status = %q, want processing", stored.Status)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	repo := NewAssetRepo(newTestDB(t), logger.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a := newAsset(types.AssetStatusCompleted)
		a.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if err := repo.Create(ctx, nil, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	queued := newAsset(types.AssetStatusQueued)
	queued.MimeType = "video/mp4"
	if err := repo.Create(ctx, nil, queued); err != nil {
		t.Fatalf("Create: %v", err)
	}

	completed, err := repo.List(ctx, nil, AssetListFilter{Status: types.AssetStatusCompleted})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(completed) != 3 {
		t.Fatalf("expected 3 completed assets, got %d", len(completed))
	}

	videos, err := repo.List(ctx, nil, AssetListFilter{MimeType: "video/mp4"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("expected 1 video asset, got %d", len(videos))
	}

	page, err := repo.List(ctx, nil, AssetListFilter{Status: types.AssetStatusCompleted, Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
}

func TestGetByIDReturnsNilWhenMissing(t *testing.T) {
	repo := NewAssetRepo(newTestDB(t), logger.NewNop())
	asset, err := repo.GetByID(context.Background(), nil, uuid.New())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if asset != nil {
		t.Fatalf("expected nil for unknown id, got %+v", asset)
	}
}

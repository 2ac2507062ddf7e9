package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/types"
)

type IngestInput struct {
	Reader       io.Reader
	Filename     string
	Context      string
	Priority     int
	CollectionID *uuid.UUID
}

type IngestResult struct {
	Asset         *types.Asset
	Duplicate     bool
	ProcessingETA int
}

// IngestService is the ingestion gateway: hash, dedup, persist, enqueue.
type IngestService interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
}

type ingestService struct {
	db       *gorm.DB
	log      *logger.Logger
	assets   repos.AssetRepo
	identity ContentIdentityService
	bucket   BucketService
	queue    WorkQueue
	cache    StatusCache
}

func NewIngestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	assets repos.AssetRepo,
	identity ContentIdentityService,
	bucket BucketService,
	queue WorkQueue,
	cache StatusCache,
) IngestService {
	return &ingestService{
		db:       db,
		log:      baseLog.With("service", "IngestService"),
		assets:   assets,
		identity: identity,
		bucket:   bucket,
		queue:    queue,
		cache:    cache,
	}
}

// errLostDedupRace marks the insert that lost the content_hash race; the
// loser falls back to the duplicate-found path.
var errLostDedupRace = errors.New("lost dedup race")

func (s *ingestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.Filename == "" {
		return nil, &ValidationError{Reason: "filename is required"}
	}
	if input.Priority < 1 || input.Priority > 10 {
		return nil, &ValidationError{Reason: "priority must be between 1 and 10"}
	}
	if input.Reader == nil {
		return nil, &ValidationError{Reason: "file content is required"}
	}

	var buf bytes.Buffer
	contentHash, size, err := HashContent(io.TeeReader(input.Reader, &buf))
	if err != nil {
		return nil, &StorageError{Op: "read upload", Err: err}
	}
	if size == 0 {
		return nil, &ValidationError{Reason: "file content is empty"}
	}

	// Fast path: content already known, no additional writes.
	existing, err := s.identity.Resolve(ctx, contentHash)
	if err != nil {
		return nil, &StorageError{Op: "resolve content hash", Err: err}
	}
	if existing != nil {
		s.log.Info("Duplicate upload resolved to existing asset",
			"asset_id", existing.ID, "content_hash", contentHash)
		return &IngestResult{Asset: existing, Duplicate: true}, nil
	}

	now := time.Now()
	asset := &types.Asset{
		ID:            uuid.New(),
		Filename:      input.Filename,
		ContentHash:   contentHash,
		FileSize:      size,
		MimeType:      DetectMimeType(input.Filename),
		UploadContext: input.Context,
		CollectionID:  input.CollectionID,
		Status:        types.AssetStatusQueued,
		Priority:      input.Priority,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	asset.StorageKey = fmt.Sprintf("%s/%s", asset.ID, input.Filename)

	// Row insert and blob write commit or roll back together: an upload
	// failure aborts the transaction, and a lost insert race aborts
	// before any blob is written.
	uploaded := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.assets.Create(ctx, tx, asset); err != nil {
			if repos.IsUniqueViolation(err) {
				return errLostDedupRace
			}
			return &StorageError{Op: "insert asset", Err: err}
		}
		if err := s.bucket.UploadFile(ctx, asset.StorageKey, bytes.NewReader(buf.Bytes())); err != nil {
			return &StorageError{Op: "upload blob", Err: err}
		}
		uploaded = true
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, errLostDedupRace) {
			winner, err := s.identity.Resolve(ctx, contentHash)
			if err != nil || winner == nil {
				return nil, &StorageError{Op: "resolve after dedup race", Err: err}
			}
			s.log.Info("Lost dedup insert race, returning winner",
				"asset_id", winner.ID, "content_hash", contentHash)
			return &IngestResult{Asset: winner, Duplicate: true}, nil
		}
		if uploaded {
			// Commit failed after the blob write; drop the orphan.
			if delErr := s.bucket.DeleteFile(ctx, asset.StorageKey); delErr != nil {
				s.log.Warn("Orphan blob cleanup failed", "storage_key", asset.StorageKey, "error", delErr)
			}
		}
		return nil, txErr
	}

	s.publishWork(ctx, asset)

	if err := s.cache.Set(ctx, asset.ID, CachedStatus{
		Status:    types.AssetStatusQueued,
		UpdatedAt: now,
	}); err != nil {
		s.log.Warn("Priming status cache failed", "asset_id", asset.ID, "error", err)
	}

	return &IngestResult{
		Asset:         asset,
		Duplicate:     false,
		ProcessingETA: ProcessingETA(size, input.Priority),
	}, nil
}

// publishWork retries with backoff. If publishing keeps failing the asset
// stays queued-but-unpublished; the reconciliation sweep re-publishes it,
// so the upload itself still succeeds.
func (s *ingestService) publishWork(ctx context.Context, asset *types.Asset) {
	msg := WorkMessage{
		AssetID:    asset.ID,
		MimeType:   asset.MimeType,
		Priority:   asset.Priority,
		EnqueuedAt: time.Now(),
		Service:    "ingestion",
	}

	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = s.queue.Publish(ctx, msg); lastErr == nil {
			return
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			i = attempts
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	qErr := &QueueError{Err: lastErr}
	s.log.Error("Work message publish failed, asset left queued-but-unpublished",
		"asset_id", asset.ID, "error", qErr)
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dataflux/dataflux-backend/internal/analyzers"
	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/types"
)

// ResultAggregator persists one analyzer run: segments first, then
// features referencing them, then embeddings. The whole batch commits or
// none of it does.
type ResultAggregator interface {
	Persist(ctx context.Context, assetID uuid.UUID, result *analyzers.Result) error
}

type resultAggregator struct {
	db         *gorm.DB
	log        *logger.Logger
	assets     repos.AssetRepo
	segments   repos.SegmentRepo
	features   repos.FeatureRepo
	embeddings repos.EmbeddingRepo
	vectors    VectorStore
}

func NewResultAggregator(
	db *gorm.DB,
	baseLog *logger.Logger,
	assets repos.AssetRepo,
	segments repos.SegmentRepo,
	features repos.FeatureRepo,
	embeddings repos.EmbeddingRepo,
	vectors VectorStore,
) ResultAggregator {
	return &resultAggregator{
		db:         db,
		log:        baseLog.With("service", "ResultAggregator"),
		assets:     assets,
		segments:   segments,
		features:   features,
		embeddings: embeddings,
		vectors:    vectors,
	}
}

func (a *resultAggregator) Persist(ctx context.Context, assetID uuid.UUID, result *analyzers.Result) error {
	if result == nil {
		return &AggregationError{Err: fmt.Errorf("nil analysis result")}
	}

	// Vector writes go out before the relational transaction so only their
	// references enter it; refs are rolled back on failure below.
	writes := make([]vectorWrite, 0, len(result.Embeddings))
	for _, emb := range result.Embeddings {
		if len(emb.Vector) == 0 {
			a.log.Warn("Skipping embedding with empty vector", "asset_id", assetID, "model", emb.ModelName)
			continue
		}
		ref, err := a.vectors.Upsert(ctx, uuid.New(), emb.Vector)
		if err != nil {
			a.rollbackVectors(ctx, writes)
			return &AggregationError{Err: fmt.Errorf("vector upsert: %w", err)}
		}
		writes = append(writes, vectorWrite{embedding: emb, ref: ref})
	}

	now := time.Now()
	txErr := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-analysis replaces prior results instead of appending next to
		// them; stale segments/features/embeddings never accumulate.
		if err := a.embeddings.DeleteByAssetID(ctx, tx, assetID); err != nil {
			return fmt.Errorf("clear embeddings: %w", err)
		}
		if err := a.features.DeleteByAssetID(ctx, tx, assetID); err != nil {
			return fmt.Errorf("clear features: %w", err)
		}
		if err := a.segments.DeleteByAssetID(ctx, tx, assetID); err != nil {
			return fmt.Errorf("clear segments: %w", err)
		}

		segmentRows := make([]*types.Segment, 0, len(result.Segments))
		for i, seg := range result.Segments {
			segmentRows = append(segmentRows, &types.Segment{
				ID:             uuid.New(),
				AssetID:        assetID,
				SegmentType:    seg.SegmentType,
				SequenceNumber: i,
				StartMarker:    seg.StartMarker,
				EndMarker:      seg.EndMarker,
				Confidence:     seg.Confidence,
				Metadata:       mustJSON(seg.Metadata),
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
		if _, err := a.segments.Create(ctx, tx, segmentRows); err != nil {
			return fmt.Errorf("create segments: %w", err)
		}

		segmentID := func(idx int) (*uuid.UUID, error) {
			if idx < 0 {
				return nil, nil
			}
			if idx >= len(segmentRows) {
				return nil, fmt.Errorf("segment index %d out of range (%d segments)", idx, len(segmentRows))
			}
			id := segmentRows[idx].ID
			return &id, nil
		}

		featureRows := make([]*types.Feature, 0, len(result.Features))
		for _, f := range result.Features {
			segID, err := segmentID(f.SegmentIndex)
			if err != nil {
				return err
			}
			featureRows = append(featureRows, &types.Feature{
				ID:          uuid.New(),
				AssetID:     assetID,
				SegmentID:   segID,
				Domain:      f.Domain,
				FeatureType: f.FeatureType,
				Confidence:  f.Confidence,
				Payload:     mustJSON(f.Payload),
				Analyzer:    f.Analyzer,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		if _, err := a.features.Create(ctx, tx, featureRows); err != nil {
			return fmt.Errorf("create features: %w", err)
		}

		embeddingRows := make([]*types.Embedding, 0, len(writes))
		for _, w := range writes {
			entityID := assetID
			if w.embedding.SegmentIndex >= 0 {
				segID, err := segmentID(w.embedding.SegmentIndex)
				if err != nil {
					return err
				}
				entityID = *segID
			}
			embeddingRows = append(embeddingRows, &types.Embedding{
				ID:         uuid.New(),
				AssetID:    assetID,
				EntityID:   entityID,
				ModelName:  w.embedding.ModelName,
				Dimensions: len(w.embedding.Vector),
				VectorRef:  w.ref,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
		if _, err := a.embeddings.Create(ctx, tx, embeddingRows); err != nil {
			return fmt.Errorf("create embeddings: %w", err)
		}

		if err := a.assets.IncrementAnalysisCount(ctx, tx, assetID); err != nil {
			return fmt.Errorf("increment analysis count: %w", err)
		}
		return nil
	})
	if txErr != nil {
		a.rollbackVectors(ctx, writes)
		return &AggregationError{Err: txErr}
	}

	a.log.Info("Analysis results persisted",
		"asset_id", assetID,
		"segments", len(result.Segments),
		"features", len(result.Features),
		"embeddings", len(writes),
	)
	return nil
}

type vectorWrite struct {
	embedding analyzers.Embedding
	ref       string
}

func (a *resultAggregator) rollbackVectors(ctx context.Context, writes []vectorWrite) {
	for _, w := range writes {
		if err := a.vectors.Delete(ctx, w.ref); err != nil {
			a.log.Warn("Orphan vector cleanup failed", "ref", w.ref, "error", err)
		}
	}
}

func mustJSON(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON([]byte(`{}`))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(b)
}

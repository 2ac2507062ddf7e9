package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/dataflux/dataflux-backend/internal/analyzers"
	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/types"
)

type aggregatorFixture struct {
	aggregator ResultAggregator
	assets     repos.AssetRepo
	segments   repos.SegmentRepo
	features   repos.FeatureRepo
	embeddings repos.EmbeddingRepo
	vectors    *fakeVectors
	db         *gorm.DB
}

func newAggregatorFixture(t *testing.T) *aggregatorFixture {
	t.Helper()
	log := logger.NewNop()
	gdb := newTestDB(t)
	f := &aggregatorFixture{
		assets:     repos.NewAssetRepo(gdb, log),
		segments:   repos.NewSegmentRepo(gdb, log),
		features:   repos.NewFeatureRepo(gdb, log),
		embeddings: repos.NewEmbeddingRepo(gdb, log),
		vectors:    newFakeVectors(),
		db:         gdb,
	}
	f.aggregator = NewResultAggregator(gdb, log, f.assets, f.segments, f.features, f.embeddings, f.vectors)
	return f
}

func sampleResult() *analyzers.Result {
	return &analyzers.Result{
		Segments: []analyzers.Segment{
			{SegmentType: "scene", StartMarker: 0, EndMarker: 10, Confidence: 0.9},
			{SegmentType: "scene", StartMarker: 10, EndMarker: 20, Confidence: 0.8},
		},
		Features: []analyzers.Feature{
			{SegmentIndex: 1, Domain: "visual", FeatureType: "scene_change", Confidence: 0.8, Analyzer: "VideoAnalyzer"},
			{SegmentIndex: -1, Domain: "visual", FeatureType: "brightness_mean", Confidence: 1, Analyzer: "VideoAnalyzer"},
		},
		Embeddings: []analyzers.Embedding{
			{SegmentIndex: -1, ModelName: "dataflux-hist-v1", Vector: []float32{0.5, 0.5}},
			{SegmentIndex: 0, ModelName: "dataflux-hist-v1", Vector: []float32{1, 0}},
		},
		Metadata: map[string]any{},
	}
}

func TestPersistWritesLinkedRows(t *testing.T) {
	f := newAggregatorFixture(t)
	ctx := context.Background()
	asset := seedAsset(t, f.assets, types.AssetStatusProcessing)

	if err := f.aggregator.Persist(ctx, asset.ID, sampleResult()); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	segments, err := f.segments.GetByAssetID(ctx, nil, asset.ID)
	if err != nil || len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d (%v)", len(segments), err)
	}
	if segments[0].SequenceNumber != 0 || segments[1].SequenceNumber != 1 {
		t.Fatalf("segments not sequenced: %d, %d", segments[0].SequenceNumber, segments[1].SequenceNumber)
	}

	features, err := f.features.GetByAssetID(ctx, nil, asset.ID)
	if err != nil || len(features) != 2 {
		t.Fatalf("expected 2 features, got %d (%v)", len(features), err)
	}
	var linked, assetLevel int
	for _, feat := range features {
		if feat.SegmentID != nil {
			linked++
			if *feat.SegmentID != segments[1].ID {
				t.Fatalf("feature linked to %s, want segment %s", feat.SegmentID, segments[1].ID)
			}
		} else {
			assetLevel++
		}
	}
	if linked != 1 || assetLevel != 1 {
		t.Fatalf("feature linkage wrong: %d linked, %d asset-level", linked, assetLevel)
	}

	embeddings, err := f.embeddings.GetByAssetID(ctx, nil, asset.ID)
	if err != nil || len(embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d (%v)", len(embeddings), err)
	}
	for _, emb := range embeddings {
		if emb.VectorRef == "" {
			t.Fatalf("embedding persisted without vector ref")
		}
		if emb.Dimensions != 2 {
			t.Fatalf("dimensions = %d, want 2", emb.Dimensions)
		}
	}
	if f.vectors.count() != 2 {
		t.Fatalf("expected 2 vectors stored, got %d", f.vectors.count())
	}

	stored, _ := f.assets.GetByID(ctx, nil, asset.ID)
	if stored.AnalysisCount != 1 {
		t.Fatalf("analysis_count = %d, want 1", stored.AnalysisCount)
	}
}

func TestPersistReplacesPriorResults(t *testing.T) {
	f := newAggregatorFixture(t)
	ctx := context.Background()
	asset := seedAsset(t, f.assets, types.AssetStatusProcessing)

	if err := f.aggregator.Persist(ctx, asset.ID, sampleResult()); err != nil {
		t.Fatalf("first Persist: %v", err)
	}

	second := &analyzers.Result{
		Segments: []analyzers.Segment{{SegmentType: "scene", StartMarker: 0, EndMarker: 5, Confidence: 0.9}},
		Features: []analyzers.Feature{{SegmentIndex: 0, Domain: "visual", FeatureType: "scene_change", Confidence: 0.9}},
		Metadata: map[string]any{},
	}
	if err := f.aggregator.Persist(ctx, asset.ID, second); err != nil {
		t.Fatalf("second Persist: %v", err)
	}

	segments, _ := f.segments.GetByAssetID(ctx, nil, asset.ID)
	if len(segments) != 1 {
		t.Fatalf("re-analysis accumulated segments: %d", len(segments))
	}
	features, _ := f.features.GetByAssetID(ctx, nil, asset.ID)
	if len(features) != 1 {
		t.Fatalf("re-analysis accumulated features: %d", len(features))
	}
	embeddings, _ := f.embeddings.GetByAssetID(ctx, nil, asset.ID)
	if len(embeddings) != 0 {
		t.Fatalf("prior embeddings survived re-analysis: %d", len(embeddings))
	}

	stored, _ := f.assets.GetByID(ctx, nil, asset.ID)
	if stored.AnalysisCount != 2 {
		t.Fatalf("analysis_count = %d, want 2", stored.AnalysisCount)
	}
}

func TestPersistRejectsDanglingSegmentIndex(t *testing.T) {
	f := newAggregatorFixture(t)
	ctx := context.Background()
	asset := seedAsset(t, f.assets, types.AssetStatusProcessing)

	bad := sampleResult()
	bad.Features = append(bad.Features, analyzers.Feature{
		SegmentIndex: 99, Domain: "visual", FeatureType: "scene_change",
	})

	err := f.aggregator.Persist(ctx, asset.ID, bad)
	var aErr *AggregationError
	if !errors.As(err, &aErr) {
		t.Fatalf("expected AggregationError, got %v", err)
	}

	// Nothing from the rejected batch may remain, including vectors.
	segments, _ := f.segments.GetByAssetID(ctx, nil, asset.ID)
	if len(segments) != 0 {
		t.Fatalf("rejected batch left %d segments behind", len(segments))
	}
	if f.vectors.count() != 0 {
		t.Fatalf("rejected batch left %d vectors behind", f.vectors.count())
	}
	stored, _ := f.assets.GetByID(ctx, nil, asset.ID)
	if stored.AnalysisCount != 0 {
		t.Fatalf("analysis_count incremented for rejected batch")
	}
}

func TestPersistSkipsEmptyVectors(t *testing.T) {
	f := newAggregatorFixture(t)
	ctx := context.Background()
	asset := seedAsset(t, f.assets, types.AssetStatusProcessing)

	result := sampleResult()
	result.Embeddings = append(result.Embeddings, analyzers.Embedding{
		SegmentIndex: -1, ModelName: "dataflux-hist-v1", Vector: nil,
	})
	if err := f.aggregator.Persist(ctx, asset.ID, result); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	embeddings, _ := f.embeddings.GetByAssetID(ctx, nil, asset.ID)
	if len(embeddings) != 2 {
		t.Fatalf("empty vector should be skipped, got %d embeddings", len(embeddings))
	}
}

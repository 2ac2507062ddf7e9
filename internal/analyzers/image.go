package analyzers

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

// imageAnalyzer extracts color, composition and embedded-text signals.
type imageAnalyzer struct {
	log *logger.Logger
}

func NewImageAnalyzer(baseLog *logger.Logger) Analyzer {
	return &imageAnalyzer{log: baseLog.With("analyzer", "ImageAnalyzer")}
}

func (a *imageAnalyzer) Name() string { return "ImageAnalyzer" }

func (a *imageAnalyzer) SupportedFormats() []string {
	return []string{
		"image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff",
	}
}

func (a *imageAnalyzer) Analyze(ctx context.Context, contentPath string, asset *types.Asset) (*Result, error) {
	data, err := readContent(contentPath)
	if err != nil {
		return nil, err
	}

	probes := []Probe{
		{Name: "color_analysis", Run: func(ctx context.Context) (*Contribution, error) {
			return a.colorAnalysis(data)
		}},
		{Name: "composition", Run: func(ctx context.Context) (*Contribution, error) {
			return a.composition(data)
		}},
		{Name: "text_detection", Run: func(ctx context.Context) (*Contribution, error) {
			return a.textDetection(data)
		}},
		{Name: "embedding", Run: func(ctx context.Context) (*Contribution, error) {
			vec := histogramVector(data, embeddingDims)
			if len(vec) == 0 {
				return nil, fmt.Errorf("empty embedding vector")
			}
			return &Contribution{Embeddings: []Embedding{{
				SegmentIndex: -1,
				ModelName:    embeddingModelName,
				Vector:       vec,
			}}}, nil
		}},
	}

	result, errs := runProbes(ctx, probes)
	result.Metadata["probes"] = len(probes)
	result.Metadata["failed_probes"] = len(errs)
	return finishResult(a.Name(), result, errs)
}

func (a *imageAnalyzer) colorAnalysis(data []byte) (*Contribution, error) {
	const buckets = 8
	counts := make([]int, buckets)
	for _, b := range data {
		counts[int(b)/(256/buckets)]++
	}

	type bucket struct {
		idx   int
		count int
	}
	ranked := make([]bucket, 0, buckets)
	for i, c := range counts {
		ranked = append(ranked, bucket{idx: i, count: c})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })

	dominant := make([]map[string]any, 0, 3)
	for _, b := range ranked[:3] {
		dominant = append(dominant, map[string]any{
			"bucket":   b.idx,
			"fraction": float64(b.count) / float64(len(data)),
		})
	}

	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "visual",
		FeatureType:  "color_palette",
		Confidence:   0.8,
		Payload:      map[string]any{"dominant": dominant},
		Analyzer:     a.Name(),
	}}}, nil
}

func (a *imageAnalyzer) composition(data []byte) (*Contribution, error) {
	means := windowMeans(data, 9)
	if len(means) < 9 {
		return nil, fmt.Errorf("content too small for composition grid")
	}
	var min, max float64 = 255, 0
	for _, m := range means {
		min = math.Min(min, m)
		max = math.Max(max, m)
	}

	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "visual",
		FeatureType:  "composition",
		Confidence:   0.6,
		Payload: map[string]any{
			"grid":          means,
			"dynamic_range": (max - min) / 255,
		},
		Analyzer: a.Name(),
	}}}, nil
}

func (a *imageAnalyzer) textDetection(data []byte) (*Contribution, error) {
	runs := printableRuns(data, 8)
	if len(runs) == 0 {
		// No embedded text is a valid outcome, not a probe failure.
		return &Contribution{}, nil
	}
	if len(runs) > 10 {
		runs = runs[:10]
	}
	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "text",
		FeatureType:  "embedded_text",
		Confidence:   0.5,
		Payload:      map[string]any{"snippets": runs},
		Analyzer:     a.Name(),
	}}}, nil
}

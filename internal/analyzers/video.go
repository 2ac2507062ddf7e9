package analyzers

import (
	"context"
	"fmt"
	"math"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

const embeddingModelName = "dataflux-hist-v1"
const embeddingDims = 64

// videoAnalyzer detects scene boundaries and summarizes visual statistics.
// The probes are deterministic content-statistics stand-ins: scene cuts are
// inferred from windowed byte-mean deltas, in place of a frame decoder.
type videoAnalyzer struct {
	log *logger.Logger
}

func NewVideoAnalyzer(baseLog *logger.Logger) Analyzer {
	return &videoAnalyzer{log: baseLog.With("analyzer", "VideoAnalyzer")}
}

func (a *videoAnalyzer) Name() string { return "VideoAnalyzer" }

func (a *videoAnalyzer) SupportedFormats() []string {
	return []string{
		"video/mp4", "video/x-msvideo", "video/quicktime",
		"video/x-matroska", "video/webm",
	}
}

func (a *videoAnalyzer) Analyze(ctx context.Context, contentPath string, asset *types.Asset) (*Result, error) {
	data, err := readContent(contentPath)
	if err != nil {
		return nil, err
	}
	// Duration estimate from byte size; good enough to place markers.
	duration := float64(len(data)) / (256 * 1024)
	if duration < 1 {
		duration = 1
	}

	probes := []Probe{
		{Name: "scene_detection", Run: func(ctx context.Context) (*Contribution, error) {
			return a.detectScenes(data, duration)
		}},
		{Name: "frame_statistics", Run: func(ctx context.Context) (*Contribution, error) {
			return a.frameStatistics(data)
		}},
		{Name: "motion_estimate", Run: func(ctx context.Context) (*Contribution, error) {
			return a.motionEstimate(data)
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
	result.Metadata["duration_estimate_sec"] = duration
	result.Metadata["probes"] = len(probes)
	result.Metadata["failed_probes"] = len(errs)
	return finishResult(a.Name(), result, errs)
}

func (a *videoAnalyzer) detectScenes(data []byte, duration float64) (*Contribution, error) {
	const windows = 64
	const threshold = 12.0
	means := windowMeans(data, windows)
	if len(means) < 2 {
		return nil, fmt.Errorf("content too small for scene detection")
	}

	var segments []Segment
	sceneStart := 0.0
	perWindow := duration / float64(len(means))
	for i := 1; i < len(means); i++ {
		if math.Abs(means[i]-means[i-1]) <= threshold {
			continue
		}
		cut := float64(i) * perWindow
		segments = append(segments, Segment{
			SegmentType: "scene",
			StartMarker: sceneStart,
			EndMarker:   cut,
			Confidence:  clamp01(math.Abs(means[i]-means[i-1]) / 64),
		})
		sceneStart = cut
	}
	segments = append(segments, Segment{
		SegmentType: "scene",
		StartMarker: sceneStart,
		EndMarker:   duration,
		Confidence:  0.5,
	})

	features := make([]Feature, 0, len(segments))
	for i := range segments {
		features = append(features, Feature{
			SegmentIndex: i,
			Domain:       "visual",
			FeatureType:  "scene_change",
			Confidence:   segments[i].Confidence,
			Payload: map[string]any{
				"start": segments[i].StartMarker,
				"end":   segments[i].EndMarker,
			},
			Analyzer: a.Name(),
		})
	}
	return &Contribution{Segments: segments, Features: features}, nil
}

func (a *videoAnalyzer) frameStatistics(data []byte) (*Contribution, error) {
	means := windowMeans(data, 32)
	if len(means) == 0 {
		return nil, fmt.Errorf("no frame windows")
	}
	var sum, sqSum float64
	for _, m := range means {
		sum += m
	}
	mean := sum / float64(len(means))
	for _, m := range means {
		sqSum += (m - mean) * (m - mean)
	}
	stddev := math.Sqrt(sqSum / float64(len(means)))

	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "visual",
		FeatureType:  "frame_statistics",
		Confidence:   0.9,
		Payload: map[string]any{
			"brightness_mean": mean / 255,
			"contrast":        stddev / 128,
		},
		Analyzer: a.Name(),
	}}}, nil
}

func (a *videoAnalyzer) motionEstimate(data []byte) (*Contribution, error) {
	means := windowMeans(data, 64)
	if len(means) < 2 {
		return nil, fmt.Errorf("content too small for motion estimate")
	}
	var delta float64
	for i := 1; i < len(means); i++ {
		delta += math.Abs(means[i] - means[i-1])
	}
	motion := clamp01(delta / float64(len(means)-1) / 64)

	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "visual",
		FeatureType:  "motion_level",
		Confidence:   0.7,
		Payload:      map[string]any{"motion": motion},
		Analyzer:     a.Name(),
	}}}, nil
}

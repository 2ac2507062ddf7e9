package analyzers

import (
	"context"
	"fmt"
	"math"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

// audioAnalyzer segments content into silence/activity regions and
// summarizes loudness.
type audioAnalyzer struct {
	log *logger.Logger
}

func NewAudioAnalyzer(baseLog *logger.Logger) Analyzer {
	return &audioAnalyzer{log: baseLog.With("analyzer", "AudioAnalyzer")}
}

func (a *audioAnalyzer) Name() string { return "AudioAnalyzer" }

func (a *audioAnalyzer) SupportedFormats() []string {
	return []string{"audio/mpeg", "audio/wav", "audio/flac", "audio/ogg"}
}

func (a *audioAnalyzer) Analyze(ctx context.Context, contentPath string, asset *types.Asset) (*Result, error) {
	data, err := readContent(contentPath)
	if err != nil {
		return nil, err
	}
	duration := float64(len(data)) / (32 * 1024)
	if duration < 1 {
		duration = 1
	}

	probes := []Probe{
		{Name: "silence_detection", Run: func(ctx context.Context) (*Contribution, error) {
			return a.detectSilence(data, duration)
		}},
		{Name: "loudness", Run: func(ctx context.Context) (*Contribution, error) {
			return a.loudness(data)
		}},
		{Name: "activity_rate", Run: func(ctx context.Context) (*Contribution, error) {
			return a.activityRate(data)
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

// detectSilence treats low-deviation windows as silence and emits
// alternating silence/activity segments.
func (a *audioAnalyzer) detectSilence(data []byte, duration float64) (*Contribution, error) {
	const windows = 32
	const silenceThreshold = 8.0
	means := windowMeans(data, windows)
	if len(means) == 0 {
		return nil, fmt.Errorf("no audio windows")
	}

	perWindow := duration / float64(len(means))
	deviation := func(m float64) float64 { return math.Abs(m - 128) }

	var segments []Segment
	segStart := 0.0
	segSilent := deviation(means[0]) < silenceThreshold
	flush := func(end float64, silent bool) {
		segType := "activity"
		if silent {
			segType = "silence"
		}
		segments = append(segments, Segment{
			SegmentType: segType,
			StartMarker: segStart,
			EndMarker:   end,
			Confidence:  0.6,
		})
	}
	for i := 1; i < len(means); i++ {
		silent := deviation(means[i]) < silenceThreshold
		if silent == segSilent {
			continue
		}
		boundary := float64(i) * perWindow
		flush(boundary, segSilent)
		segStart = boundary
		segSilent = silent
	}
	flush(duration, segSilent)

	return &Contribution{Segments: segments}, nil
}

func (a *audioAnalyzer) loudness(data []byte) (*Contribution, error) {
	var sum float64
	for _, b := range data {
		sum += math.Abs(float64(b) - 128)
	}
	level := clamp01(sum / float64(len(data)) / 128)

	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "audio",
		FeatureType:  "loudness",
		Confidence:   0.8,
		Payload:      map[string]any{"level": level},
		Analyzer:     a.Name(),
	}}}, nil
}

// activityRate approximates signal busyness via midpoint crossings.
func (a *audioAnalyzer) activityRate(data []byte) (*Contribution, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("content too small for activity rate")
	}
	crossings := 0
	for i := 1; i < len(data); i++ {
		if (data[i] >= 128) != (data[i-1] >= 128) {
			crossings++
		}
	}
	rate := float64(crossings) / float64(len(data)-1)

	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "audio",
		FeatureType:  "activity_rate",
		Confidence:   0.6,
		Payload:      map[string]any{"rate": rate},
		Analyzer:     a.Name(),
	}}}, nil
}

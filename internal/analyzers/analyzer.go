package analyzers

import (
	"context"

	"github.com/dataflux/dataflux-backend/internal/types"
)

// Segment is a detected sub-region of the content. The aggregator assigns
// database identity; SequenceNumber orders segments within the asset.
type Segment struct {
	SegmentType    string
	SequenceNumber int
	StartMarker    float64
	EndMarker      float64
	Confidence     float64
	Metadata       map[string]any
}

// Feature is one typed analysis datum. SegmentIndex links the feature to a
// segment of the same result by position; -1 means asset-level.
type Feature struct {
	SegmentIndex int
	Domain       string
	FeatureType  string
	Confidence   float64
	Payload      map[string]any
	Analyzer     string
}

// Embedding carries the raw vector out of the analyzer. The aggregator
// writes it to the vector store and persists only the reference.
type Embedding struct {
	SegmentIndex int
	ModelName    string
	Vector       []float32
}

// Result is everything one analyzer run produced. Sub-probe failures do not
// fail the run; their reasons accumulate under Metadata["errors"].
type Result struct {
	Segments   []Segment
	Features   []Feature
	Embeddings []Embedding
	Metadata   map[string]any
}

// ProbeErrors returns the recorded sub-probe failure reasons, if any.
func (r *Result) ProbeErrors() []string {
	if r == nil || r.Metadata == nil {
		return nil
	}
	errs, _ := r.Metadata["errors"].([]string)
	return errs
}

// Analyzer turns raw content into segments, features and embeddings.
// Implementations must be safe for concurrent use: the dispatcher invokes
// one shared instance from many workers.
type Analyzer interface {
	Name() string
	SupportedFormats() []string
	Analyze(ctx context.Context, contentPath string, asset *types.Asset) (*Result, error)
}

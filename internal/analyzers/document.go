package analyzers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/types"
)

// documentAnalyzer is the fallback for any MIME type without a dedicated
// analyzer. It extracts text structure and keyword statistics.
type documentAnalyzer struct {
	log *logger.Logger
}

func NewDocumentAnalyzer(baseLog *logger.Logger) Analyzer {
	return &documentAnalyzer{log: baseLog.With("analyzer", "DocumentAnalyzer")}
}

func (a *documentAnalyzer) Name() string { return "DocumentAnalyzer" }

func (a *documentAnalyzer) SupportedFormats() []string {
	return []string{
		"application/pdf", "text/plain", "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

func (a *documentAnalyzer) Analyze(ctx context.Context, contentPath string, asset *types.Asset) (*Result, error) {
	data, err := readContent(contentPath)
	if err != nil {
		return nil, err
	}
	text := strings.Join(printableRuns(data, 4), "\n")

	probes := []Probe{
		{Name: "structure", Run: func(ctx context.Context) (*Contribution, error) {
			return a.structure(text)
		}},
		{Name: "keywords", Run: func(ctx context.Context) (*Contribution, error) {
			return a.keywords(text)
		}},
		{Name: "text_density", Run: func(ctx context.Context) (*Contribution, error) {
			return a.textDensity(data, text)
		}},
		{Name: "embedding", Run: func(ctx context.Context) (*Contribution, error) {
			vec := histogramVector([]byte(text), embeddingDims)
			if len(vec) == 0 {
				// Binary-only payloads still get a content embedding.
				vec = histogramVector(data, embeddingDims)
			}
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
	result.Metadata["text_bytes"] = len(text)
	result.Metadata["probes"] = len(probes)
	result.Metadata["failed_probes"] = len(errs)
	return finishResult(a.Name(), result, errs)
}

// structure emits one segment per paragraph with character offsets as
// markers, capped so pathological inputs stay bounded.
func (a *documentAnalyzer) structure(text string) (*Contribution, error) {
	if text == "" {
		return nil, fmt.Errorf("no extractable text")
	}
	const maxSegments = 50
	var segments []Segment
	offset := 0
	for _, para := range strings.Split(text, "\n") {
		length := len(para)
		trimmed := strings.TrimSpace(para)
		if trimmed != "" && len(segments) < maxSegments {
			segments = append(segments, Segment{
				SegmentType: "paragraph",
				StartMarker: float64(offset),
				EndMarker:   float64(offset + length),
				Confidence:  0.9,
				Metadata:    map[string]any{"preview": preview(trimmed, 80)},
			})
		}
		offset += length + 1
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no paragraphs found")
	}
	return &Contribution{Segments: segments}, nil
}

func (a *documentAnalyzer) keywords(text string) (*Contribution, error) {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return nil, fmt.Errorf("no words found")
	}
	freq := map[string]int{}
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) >= 4 {
			freq[w]++
		}
	}
	type kw struct {
		Word  string `json:"word"`
		Count int    `json:"count"`
	}
	ranked := make([]kw, 0, len(freq))
	for w, c := range freq {
		ranked = append(ranked, kw{Word: w, Count: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Word < ranked[j].Word
	})
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}

	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "text",
		FeatureType:  "keywords",
		Confidence:   0.7,
		Payload:      map[string]any{"top": ranked, "total_words": len(words)},
		Analyzer:     a.Name(),
	}}}, nil
}

func (a *documentAnalyzer) textDensity(data []byte, text string) (*Contribution, error) {
	density := 0.0
	if len(data) > 0 {
		density = clamp01(float64(len(text)) / float64(len(data)))
	}
	return &Contribution{Features: []Feature{{
		SegmentIndex: -1,
		Domain:       "text",
		FeatureType:  "text_density",
		Confidence:   0.9,
		Payload:      map[string]any{"density": density},
		Analyzer:     a.Name(),
	}}}, nil
}

// preview truncates s to at most max bytes without splitting a rune.
func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

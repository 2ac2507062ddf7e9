package analyzers

import (
	"strings"

	"github.com/dataflux/dataflux-backend/internal/logger"
)

// Kind is the fixed enumeration of analyzer variants. Dispatch always goes
// through ResolveForMime; there is no runtime registration.
type Kind string

const (
	KindVideo    Kind = "video"
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

type Registry struct {
	log       *logger.Logger
	analyzers map[Kind]Analyzer
}

func NewRegistry(baseLog *logger.Logger) *Registry {
	log := baseLog.With("component", "AnalyzerRegistry")
	r := &Registry{
		log: log,
		analyzers: map[Kind]Analyzer{
			KindVideo:    NewVideoAnalyzer(log),
			KindImage:    NewImageAnalyzer(log),
			KindAudio:    NewAudioAnalyzer(log),
			KindDocument: NewDocumentAnalyzer(log),
		},
	}
	names := make([]string, 0, len(r.analyzers))
	for _, a := range r.analyzers {
		names = append(names, a.Name())
	}
	log.Info("Analyzers initialized", "analyzers", names)
	return r
}

// KindForMime maps a MIME type to the analyzer variant by prefix.
// Anything unrecognized falls back to the document analyzer.
func KindForMime(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}

func (r *Registry) ResolveForMime(mimeType string) Analyzer {
	return r.analyzers[KindForMime(mimeType)]
}

func (r *Registry) Get(kind Kind) (Analyzer, bool) {
	a, ok := r.analyzers[kind]
	return a, ok
}

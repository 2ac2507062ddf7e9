package analyzers

import (
	"fmt"
	"math"
	"os"
)

// readContent loads the downloaded blob for probing. Analyzers reject
// empty files up front rather than emitting empty results.
func readContent(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("content is empty: %s", path)
	}
	return data, nil
}

// histogramVector builds an L2-normalized byte-distribution vector. It is
// the stand-in embedding model shared by all analyzers; a real model plugs
// in behind the same Embedding shape.
func histogramVector(data []byte, dims int) []float32 {
	if dims <= 0 || len(data) == 0 {
		return nil
	}
	counts := make([]float64, dims)
	for _, b := range data {
		counts[int(b)%dims]++
	}
	var norm float64
	for _, c := range counts {
		norm += c * c
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, dims)
	if norm == 0 {
		return vec
	}
	for i, c := range counts {
		vec[i] = float32(c / norm)
	}
	return vec
}

// windowMeans splits the content into n windows and returns the mean byte
// value of each. Scene/silence probes work off deltas between windows.
func windowMeans(data []byte, n int) []float64 {
	if n <= 0 || len(data) == 0 {
		return nil
	}
	if n > len(data) {
		n = len(data)
	}
	size := len(data) / n
	means := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if i == n-1 {
			end = len(data)
		}
		var sum float64
		for _, b := range data[start:end] {
			sum += float64(b)
		}
		means = append(means, sum/float64(end-start))
	}
	return means
}

// printableRuns extracts runs of printable ASCII of at least minLen bytes.
func printableRuns(data []byte, minLen int) []string {
	var runs []string
	start := -1
	for i, b := range data {
		printable := b == '\n' || b == '\t' || (b >= 0x20 && b < 0x7f)
		if printable {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			runs = append(runs, string(data[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= minLen {
		runs = append(runs, string(data[start:]))
	}
	return runs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// finishResult applies the shared analyzer contract: a run fails only when
// no probe produced any usable output.
func finishResult(name string, result *Result, errs []string) (*Result, error) {
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["analyzer"] = name
	if len(result.Segments) == 0 && len(result.Features) == 0 && len(result.Embeddings) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("%s produced no usable output: %s", name, errs[0])
		}
		return nil, fmt.Errorf("%s produced no usable output", name)
	}
	result.Metadata["status"] = "success"
	return result, nil
}

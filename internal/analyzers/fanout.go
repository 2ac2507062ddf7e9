package analyzers

import (
	"context"
	"fmt"
	"sync"
)

// Contribution is one sub-probe's share of an analysis result.
type Contribution struct {
	Segments   []Segment
	Features   []Feature
	Embeddings []Embedding
	Metadata   map[string]any
}

// Probe is an independent unit of work inside one analyzer invocation.
type Probe struct {
	Name string
	Run  func(ctx context.Context) (*Contribution, error)
}

// runProbes fans the probes out concurrently and joins them. A failing or
// panicking probe never cancels its siblings; its reason is collected and
// its contribution omitted. Segment-linked features and embeddings are
// re-indexed as contributions are folded so SegmentIndex stays valid in
// the merged result.
func runProbes(ctx context.Context, probes []Probe) (*Result, []string) {
	type probeOutcome struct {
		idx     int
		contrib *Contribution
		err     error
	}

	outcomes := make([]probeOutcome, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = probeOutcome{idx: i, err: fmt.Errorf("probe panic: %v", r)}
				}
			}()
			contrib, err := p.Run(ctx)
			outcomes[i] = probeOutcome{idx: i, contrib: contrib, err: err}
		}(i, p)
	}
	wg.Wait()

	result := &Result{Metadata: map[string]any{}}
	var errs []string
	for i, out := range outcomes {
		if out.err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", probes[i].Name, out.err))
			continue
		}
		if out.contrib == nil {
			continue
		}
		base := len(result.Segments)
		result.Segments = append(result.Segments, out.contrib.Segments...)
		for _, f := range out.contrib.Features {
			if f.SegmentIndex >= 0 {
				f.SegmentIndex += base
			}
			result.Features = append(result.Features, f)
		}
		for _, e := range out.contrib.Embeddings {
			if e.SegmentIndex >= 0 {
				e.SegmentIndex += base
			}
			result.Embeddings = append(result.Embeddings, e)
		}
		for k, v := range out.contrib.Metadata {
			result.Metadata[k] = v
		}
	}

	// Re-sequence merged segments so ordering is stable across probes.
	for i := range result.Segments {
		result.Segments[i].SequenceNumber = i
	}

	if len(errs) > 0 {
		result.Metadata["errors"] = errs
	}
	return result, errs
}

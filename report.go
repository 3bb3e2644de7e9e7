package rdiff

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Report aggregates the results of a diff
type Report struct {
	// identifies the run in logs
	RunID string
	// sorted by relative path
	Results []FileDiffResult

	Files    int
	Failures int
	// files that did not exist at the destination
	NewFiles int

	SourceBytes  int64
	DestBytes    int64
	MatchedBytes int64
	// source bytes found at the destination
	ReusedBytes int64

	Comparisons    int64
	WeakHashHits   int64
	StrongHashHits int64

	Elapsed time.Duration
	started time.Time
}

// NewReport starts a report, see Add and Done
func NewReport() *Report {
	return &Report{
		RunID:   uuid.NewString(),
		started: time.Now(),
	}
}

// Add a result to the report. Results should be added in path order.
func (r *Report) Add(result FileDiffResult) {
	r.Results = append(r.Results, result)
	r.Files++

	if result.Err != nil {
		r.Failures++
		return
	}

	if !result.DestExists {
		r.NewFiles++
	}

	r.SourceBytes += result.SourceSize
	r.DestBytes += result.DestSize
	r.MatchedBytes += result.MatchedBytes
	r.ReusedBytes += result.ReusedBytes()

	r.Comparisons += result.Stats.Comparisons
	r.WeakHashHits += result.Stats.WeakHashHits
	r.StrongHashHits += result.Stats.StrongHashHits
}

// Done records the time taken since NewReport
func (r *Report) Done() {
	r.Elapsed = time.Since(r.started)
}

// Coverage is the fraction of the source that was found at the destination.
// An empty source is fully covered.
func (r *Report) Coverage() float64 {
	if r.SourceBytes == 0 {
		return 1
	}
	return float64(r.ReusedBytes) / float64(r.SourceBytes)
}

// Failed lists the results with errors
func (r *Report) Failed() []FileDiffResult {
	var failed []FileDiffResult

	for _, result := range r.Results {
		if result.Err != nil {
			failed = append(failed, result)
		}
	}

	return failed
}

func (r *Report) String() string {
	b := &strings.Builder{}

	fmt.Fprintf(b, "Files: %v (%v new, %v failed)\n", r.Files, r.NewFiles, r.Failures)
	fmt.Fprintf(
		b,
		"Source: %v, destination: %v\n",
		humanize.Bytes(uint64(r.SourceBytes)),
		humanize.Bytes(uint64(r.DestBytes)),
	)
	fmt.Fprintf(
		b,
		"Matched: %v of the destination, %v of the source (%.2f%%)\n",
		humanize.Bytes(uint64(r.MatchedBytes)),
		humanize.Bytes(uint64(r.ReusedBytes)),
		100*r.Coverage(),
	)
	fmt.Fprintf(
		b,
		"To transfer: %v\n",
		humanize.Bytes(uint64(r.SourceBytes-r.ReusedBytes)),
	)

	if r.Comparisons > 0 {
		fmt.Fprintf(
			b,
			"Comparisons: %v, weak hits: %v, strong hits: %v\n",
			humanize.Comma(r.Comparisons),
			humanize.Comma(r.WeakHashHits),
			humanize.Comma(r.StrongHashHits),
		)
	}

	fmt.Fprintf(b, "Time taken: %v", r.Elapsed)
	return b.String()
}

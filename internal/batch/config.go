package batch

import (
	"fmt"
	"io"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/pipeline"
)

// DefaultIncludePatterns are the raster files picked up from directories
// when no include pattern is given.
var DefaultIncludePatterns = []string{"*.asc", "*.tif", "*.tiff", "*.png"}

// Config holds all configuration for batch processing.
type Config struct {
	// Detection settings
	Params pipeline.Params
	// Linear marks the rasters as linear power instead of dB.
	Linear bool

	// Output settings
	Format  pipeline.Format
	Export  pipeline.ExportOptions
	MaskDir string

	// Parallel processing settings
	Workers int

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	Progress pipeline.ProgressCallback
}

// Result holds the result of batch processing.
type Result struct {
	Items       []pipeline.BatchItem
	Paths       []string
	Duration    time.Duration
	WorkerCount int
}

// Succeeded returns the number of rasters that produced a result.
func (r *Result) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}

// Candidates returns the candidate count over all rasters.
func (r *Result) Candidates() int {
	n := 0
	for _, it := range r.Items {
		if it.Result != nil {
			n += len(it.Result.Candidates)
		}
	}
	return n
}

// Write formats the results to w.
func (r *Result) Write(w io.Writer, format pipeline.Format, export pipeline.ExportOptions) error {
	out, err := formatBatchResults(r, format, export)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// WriteStats prints processing statistics.
func (r *Result) WriteStats(w io.Writer) {
	total := len(r.Paths)
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total rasters: %d\n", total)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", r.Succeeded())
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", total-r.Succeeded())
	_, _ = fmt.Fprintf(w, "  Candidates: %d\n", r.Candidates())
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if total > 0 {
		_, _ = fmt.Fprintf(w, "  Avg per raster: %v\n", (r.Duration / time.Duration(total)).Round(time.Millisecond))
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		_, _ = fmt.Fprintf(w, "  Throughput: %.1f rasters/sec\n", float64(total)/secs)
	}
}

package benchmark

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/synth"
)

// ScalingResult compares one scene size run with a single raster worker
// against the same run with several.
type ScalingResult struct {
	Size    int // scene edge in pixels
	Ships   int
	Found   int
	Serial  Result
	Workers int
	Pool    Result
	Speedup float64
	// Stages is the mean duration of every stage in the pooled runs.
	Stages map[string]time.Duration
}

// String returns a one-line summary.
func (r ScalingResult) String() string {
	return fmt.Sprintf("%dx%d: %d/%d ships, 1 worker %v, %d workers %v (%.2fx)",
		r.Size, r.Size, r.Found, r.Ships, r.Serial.Mean(), r.Workers, r.Pool.Mean(), r.Speedup)
}

// WorkerScaling measures how the pipeline scales with raster workers over
// square synthetic scenes of growing size.
type WorkerScaling struct {
	Sizes      []int
	Workers    int
	Iterations int
	Scene      synth.SceneOptions
	Params     pipeline.Params

	results []ScalingResult
}

// NewWorkerScaling returns a benchmark over sizes with one worker per CPU.
// Params are tuned so every generated ship is a candidate.
func NewWorkerScaling(sizes []int) *WorkerScaling {
	params := pipeline.DefaultParams()
	params.MorphRadiusPx = 0
	params.MinPixels = 1
	params.MinLengthM = 1
	return &WorkerScaling{
		Sizes:      sizes,
		Workers:    runtime.NumCPU(),
		Iterations: 3,
		Scene:      synth.DefaultSceneOptions(),
		Params:     params,
	}
}

// Run executes the benchmark. It stops at the first failing size.
func (b *WorkerScaling) Run(ctx context.Context) ([]ScalingResult, error) {
	if len(b.Sizes) == 0 {
		return nil, errors.New("no scene sizes")
	}
	if b.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", b.Iterations)
	}
	b.results = b.results[:0]
	p := pipeline.New()

	for _, size := range b.Sizes {
		opts := b.Scene
		opts.Width, opts.Height = size, size
		// Keep ship density constant relative to the default scene.
		opts.Ships = max(1, b.Scene.Ships*size*size/(b.Scene.Width*b.Scene.Height))
		sc, err := synth.Generate(opts)
		if err != nil {
			return b.results, fmt.Errorf("scene %d: %w", size, err)
		}
		in := pipeline.Inputs{Intensity: sc.Intensity, Occurrence: sc.Occurrence}

		r := ScalingResult{Size: size, Ships: len(sc.Ships), Workers: b.Workers, Stages: map[string]time.Duration{}}
		var pooled []*pipeline.Result
		runWith := func(workers int, keep bool) func() error {
			params := b.Params
			params.Workers = workers
			return func() error {
				res, err := p.Run(ctx, params, in)
				if err != nil {
					return err
				}
				r.Found = len(res.Candidates)
				if keep {
					pooled = append(pooled, res)
				}
				return nil
			}
		}

		// Warm the buffer pools once.
		if err := runWith(b.Workers, false)(); err != nil {
			return b.results, fmt.Errorf("scene %d: %w", size, err)
		}

		suite := NewSuite()
		suite.Add("serial", runWith(1, false))
		suite.Add("pool", runWith(b.Workers, true))
		out := suite.RunAll(b.Iterations)
		r.Serial, r.Pool = out[0], out[1]
		for _, o := range out {
			if o.Error != nil {
				return b.results, fmt.Errorf("scene %d %s: %w", size, o.Name, o.Error)
			}
		}
		if r.Pool.Duration > 0 {
			r.Speedup = float64(r.Serial.Duration) / float64(r.Pool.Duration)
		}
		for _, res := range pooled {
			for _, st := range res.Timings {
				r.Stages[st.Stage] += st.Duration / time.Duration(len(pooled))
			}
		}
		b.results = append(b.results, r)
	}
	return b.results, nil
}

// Results returns the results of the last Run.
func (b *WorkerScaling) Results() []ScalingResult { return b.results }

// WriteReport prints system information, one row per size and the mean
// stage durations of the largest scene.
func (b *WorkerScaling) WriteReport(w io.Writer) {
	if len(b.results) == 0 {
		_, _ = fmt.Fprintln(w, "No benchmark results available")
		return
	}

	_, _ = fmt.Fprintln(w, strings.Repeat("=", 72))
	_, _ = fmt.Fprintln(w, "Ship detection worker scaling")
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 72))
	_, _ = fmt.Fprintf(w, "GOOS/GOARCH: %s/%s  NumCPU: %d  Go: %s  iterations: %d\n\n",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version(), b.Iterations)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SIZE\tSHIPS\tFOUND\t1 WORKER\tPOOL\tSPEEDUP\tALLOC/OP")
	for _, r := range b.results {
		_, _ = fmt.Fprintf(tw, "%dx%d\t%d\t%d\t%v\t%v (%d)\t%.2fx\t%d KB\n",
			r.Size, r.Size, r.Ships, r.Found,
			r.Serial.Mean().Round(time.Microsecond), r.Pool.Mean().Round(time.Microsecond), r.Workers,
			r.Speedup, r.Pool.AllocatedKB())
	}
	_ = tw.Flush()

	last := b.results[len(b.results)-1]
	_, _ = fmt.Fprintf(w, "\nStages at %dx%d (%d workers):\n", last.Size, last.Size, last.Workers)
	for _, name := range pipeline.Stages {
		_, _ = fmt.Fprintf(w, "  %-12s %v\n", name, last.Stages[name].Round(time.Microsecond))
	}
}

// WriteCSV writes one row per size.
func (b *WorkerScaling) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"size", "ships", "found", "serial_ms", "workers", "pool_ms", "speedup", "alloc_kb_per_op"}
	header = append(header, pipeline.Stages...)
	if err := cw.Write(header); err != nil {
		return err
	}
	ms := func(d time.Duration) string { return strconv.FormatFloat(float64(d)/1e6, 'f', 3, 64) }
	for _, r := range b.results {
		row := []string{
			strconv.Itoa(r.Size),
			strconv.Itoa(r.Ships),
			strconv.Itoa(r.Found),
			ms(r.Serial.Mean()),
			strconv.Itoa(r.Workers),
			ms(r.Pool.Mean()),
			strconv.FormatFloat(r.Speedup, 'f', 2, 64),
			strconv.FormatUint(r.Pool.AllocatedKB(), 10),
		}
		for _, name := range pipeline.Stages {
			row = append(row, ms(r.Stages[name]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

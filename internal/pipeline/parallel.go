package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
)

// ParallelConfig controls RunSweep, RunMany and DetectMany.
type ParallelConfig struct {
	MaxWorkers       int              // concurrent runs (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // optional, one step per run
}

// DefaultParallelConfig returns one worker per CPU and no progress reporting.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// BatchItem is the outcome of one run of a batch. Exactly one of Result and
// Err is set.
type BatchItem struct {
	Index  int     `json:"index"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// NoAcquisition reports whether the run was skipped for lack of imagery.
func (b BatchItem) NoAcquisition() bool { return errors.Is(b.Err, ErrNoAcquisitionAvailable) }

type job struct {
	index int
}

// RunSweep runs the pipeline on the same inputs once per parameter set.
// Items are returned in the order of params.
func (p *Pipeline) RunSweep(ctx context.Context, in Inputs, params []Params, cfg ParallelConfig) ([]BatchItem, error) {
	if len(params) == 0 {
		return nil, errors.New("no parameter sets provided")
	}
	return p.runParallel(ctx, len(params), cfg, func(ctx context.Context, q *Pipeline, i int) (*Result, error) {
		return q.Run(ctx, params[i], in)
	})
}

// DetectMany runs Detect for every request. A request without imagery
// yields an item whose Err wraps ErrNoAcquisitionAvailable; the other items
// are unaffected. Items are returned in the order of reqs.
func (p *Pipeline) DetectMany(ctx context.Context, cat catalog.Catalog, reqs []Request, cfg ParallelConfig) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, errors.New("no requests provided")
	}
	return p.runParallel(ctx, len(reqs), cfg, func(ctx context.Context, q *Pipeline, i int) (*Result, error) {
		return q.Detect(ctx, cat, reqs[i])
	})
}

// RunMany runs the pipeline with params on n inputs. load is called on the
// worker that runs input i, so at most cfg.MaxWorkers inputs are held in
// memory at once. A load error becomes that item's Err.
func (p *Pipeline) RunMany(
	ctx context.Context,
	params Params,
	n int,
	load func(i int) (Inputs, error),
	cfg ParallelConfig,
) ([]BatchItem, error) {
	if n <= 0 {
		return nil, errors.New("no inputs provided")
	}
	return p.runParallel(ctx, n, cfg, func(ctx context.Context, q *Pipeline, i int) (*Result, error) {
		in, err := load(i)
		if err != nil {
			return nil, err
		}
		return q.Run(ctx, params, in)
	})
}

// runParallel executes n runs on a bounded worker pool. Runs report no stage
// progress; cfg.ProgressCallback sees one step per finished run.
func (p *Pipeline) runParallel(
	ctx context.Context,
	n int,
	cfg ParallelConfig,
	fn func(ctx context.Context, q *Pipeline, i int) (*Result, error),
) ([]BatchItem, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	workers := min(cfg.MaxWorkers, n)
	quiet := p.WithProgress(nil)

	if cfg.ProgressCallback != nil {
		cfg.ProgressCallback.OnStart(n)
		defer cfg.ProgressCallback.OnComplete()
	}

	jobs := make(chan job, n)
	items := make(chan BatchItem, n)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case j, ok := <-jobs:
					if !ok {
						return
					}
					res, err := fn(ctx, quiet, j.index)
					select {
					case items <- BatchItem{Index: j.index, Result: res, Err: err}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range n {
			select {
			case jobs <- job{index: i}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(items)
	}()

	out := make([]BatchItem, n)
	for i := range out {
		out[i].Index = i
	}
	done := 0
	start := time.Now()
	for item := range items {
		out[item.Index] = item
		done++
		if cfg.ProgressCallback != nil {
			if item.Err != nil && !item.NoAcquisition() {
				cfg.ProgressCallback.OnError(item.Index, item.Err)
			}
			cfg.ProgressCallback.OnProgress(done, n)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.logger.Debug("batch complete", "runs", n, "workers", workers, "duration", time.Since(start))
	return out, nil
}

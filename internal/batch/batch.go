// Package batch runs ship detection over every raster found in a set of
// files and directories.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// ErrNoRasters is returned when discovery finds nothing to process.
var ErrNoRasters = errors.New("no raster files found")

// ProcessBatch detects ships in every raster under paths. All rasters must
// share the grid of occurrence. A raster that fails to load or process is
// reported in its item; the batch itself only fails on discovery errors or
// cancellation.
func ProcessBatch(
	ctx context.Context,
	p *pipeline.Pipeline,
	paths []string,
	occurrence *raster.Grid,
	config *Config,
) (*Result, error) {
	files, err := discoverRasterFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover raster files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoRasters
	}
	if err := config.Params.Validate(); err != nil {
		return nil, err
	}

	pc := pipeline.DefaultParallelConfig()
	if config.Workers > 0 {
		pc.MaxWorkers = config.Workers
	}
	pc.ProgressCallback = config.Progress

	load := func(i int) (pipeline.Inputs, error) {
		return loadInputs(files[i], occurrence, config.Linear, config.Params.Workers)
	}

	start := time.Now()
	items, err := p.RunMany(ctx, config.Params, len(files), load, pc)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}
	duration := time.Since(start)

	if config.MaskDir != "" {
		for i, it := range items {
			if it.Result == nil {
				continue
			}
			if err := saveMask(config.MaskDir, files[i], it.Result); err != nil {
				items[i] = pipeline.BatchItem{Index: i, Err: err}
			}
		}
	}

	p.Logger().Info("batch complete", "rasters", len(files), "duration", duration)
	return &Result{
		Items:       items,
		Paths:       files,
		Duration:    duration,
		WorkerCount: min(pc.MaxWorkers, len(files)),
	}, nil
}

// Package pipeline composes the detector stages into one detection run.
//
// A run takes an intensity raster and a water-occurrence raster on the same
// grid and executes, in order: water mask, intensity threshold,
// close-then-open cleanup, speckle filter, vectorization and the length
// filter. Runs are synchronous and share no mutable state, so sweeps and
// multi-date batches execute them concurrently.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/common"
	"github.com/MeKo-Tech/shipscan/internal/detector"
	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// Pipeline executes detection runs. It is safe for concurrent use.
type Pipeline struct {
	logger   *slog.Logger
	metrics  *Metrics
	progress ProgressCallback
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records runs in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProgressCallback reports stage progress of every run to cb.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(p *Pipeline) { p.progress = cb }
}

// New returns a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() *slog.Logger { return p.logger }

// Metrics returns the pipeline's metrics, which may be nil.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// WithProgress returns a copy of p that reports stage progress to cb.
func (p *Pipeline) WithProgress(cb ProgressCallback) *Pipeline {
	cp := *p
	cp.progress = cb
	return &cp
}

// stageRunner times stages and forwards progress.
type stageRunner struct {
	ctx      context.Context
	p        *Pipeline
	res      *Result
	index    int
	progress ProgressCallback
}

func (s *stageRunner) run(name string, fn func() (int, error)) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	t := common.NewNamedTimer(name)
	pixels, err := fn()
	d := t.Stop()
	s.index++
	if err != nil {
		if s.progress != nil {
			s.progress.OnError(s.index, err)
		}
		return fmt.Errorf("%s stage: %w", name, err)
	}
	s.res.Timings = append(s.res.Timings, StageTiming{Stage: name, Duration: d})
	s.p.metrics.observeStage(name, d)
	s.p.logger.Debug("stage complete", "stage", name, "pixels", pixels, "duration", d)
	if s.progress != nil {
		if sr, ok := s.progress.(StageReporter); ok {
			sr.OnStage(name, s.index, len(Stages), d)
		}
		s.progress.OnProgress(s.index, len(Stages))
	}
	return nil
}

// Run executes every stage on in. The grids of in must be aligned; this is
// checked before any stage runs. An empty water mask is not an error: the
// run completes with zero candidates and Diagnostics.EmptyWaterMask set.
func (p *Pipeline) Run(ctx context.Context, params Params, in Inputs) (*Result, error) {
	res, err := p.run(ctx, params, in)
	switch {
	case err != nil:
		p.metrics.observeRun(OutcomeError)
	case res.Partial:
		p.metrics.observeRun(OutcomePartial)
		p.metrics.observeResult(res)
	default:
		p.metrics.observeRun(OutcomeOK)
		p.metrics.observeResult(res)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, params Params, in Inputs) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := raster.CheckAligned(in.Intensity.Geometry, in.Occurrence.Geometry); err != nil {
		return nil, err
	}

	res := &Result{
		AcquisitionID:   in.AcquisitionID,
		AcquisitionDate: in.AcquisitionDate,
		Params:          params,
		Geometry:        in.Intensity.Geometry,
	}
	log := p.logger.With("acquisition", in.AcquisitionID)
	s := &stageRunner{ctx: ctx, p: p, res: res, progress: p.progress}
	if s.progress != nil {
		s.progress.OnStart(len(Stages))
		defer s.progress.OnComplete()
	}
	start := time.Now()

	err := s.run(StageWater, func() (int, error) {
		water, stats, err := detector.BuildWaterMask(in.Occurrence, in.Region, params.waterOptions())
		if err != nil {
			return 0, err
		}
		res.WaterMask = water
		res.Diagnostics.WaterPixels = stats.Selected
		res.Diagnostics.WaterPixelsEroded = stats.Eroded
		res.Diagnostics.EmptyWaterMask = stats.Empty()
		return stats.Eroded, nil
	})
	if err != nil {
		return nil, err
	}
	if res.Diagnostics.EmptyWaterMask {
		log.Warn("water mask is empty",
			"water_pixels", res.Diagnostics.WaterPixels,
			"water_pixels_eroded", res.Diagnostics.WaterPixelsEroded,
			"water_occ_min", params.WaterOccMin,
			"coast_erode_px", params.CoastErodePx)
	}

	var candidates *raster.Mask
	err = s.run(StageThreshold, func() (int, error) {
		m, err := detector.ThresholdIntensity(in.Intensity, res.WaterMask, params.ThresholdDB, params.Workers)
		if err != nil {
			return 0, err
		}
		candidates = m
		res.Diagnostics.ThresholdPixels = m.Count()
		return res.Diagnostics.ThresholdPixels, nil
	})
	if err != nil {
		return nil, err
	}

	err = s.run(StageClean, func() (int, error) {
		candidates = detector.Clean(candidates, params.MorphRadiusPx, params.Workers)
		res.Diagnostics.CleanedPixels = candidates.Count()
		return res.Diagnostics.CleanedPixels, nil
	})
	if err != nil {
		return nil, err
	}

	err = s.run(StageSpeckle, func() (int, error) {
		m, stats, err := detector.RemoveSpeckle(candidates, params.speckleOptions())
		if err != nil {
			return 0, err
		}
		res.CandidateMask = m
		res.Diagnostics.Speckle = stats
		res.Diagnostics.CandidatePixels = m.Count()
		return res.Diagnostics.CandidatePixels, nil
	})
	if err != nil {
		return nil, err
	}

	var vec *detector.Vectorization
	err = s.run(StageVectorize, func() (int, error) {
		v, err := detector.Vectorize(res.CandidateMask, in.Region, params.vectorizeOptions())
		if err != nil {
			return 0, err
		}
		vec = v
		res.Polygons = v.Polygons
		res.Partial = v.Partial
		res.Diagnostics.VectorizedPixels = v.Pixels
		res.Diagnostics.DroppedComponents = v.DroppedComponents
		res.Diagnostics.DroppedPixels = v.DroppedPixels
		return v.Pixels, nil
	})
	if err != nil {
		return nil, err
	}
	if res.Partial {
		log.Warn("vectorization truncated",
			"max_pixels", params.MaxPixels,
			"dropped_components", res.Diagnostics.DroppedComponents,
			"dropped_pixels", res.Diagnostics.DroppedPixels)
	}

	err = s.run(StageLength, func() (int, error) {
		res.Raw = detector.EstimateCandidates(vec, in.AcquisitionDate)
		res.Candidates = detector.FilterByLength(res.Raw, params.MinLengthM)
		res.Diagnostics.RawCandidates = len(res.Raw)
		return len(res.Candidates), nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("detection complete",
		"candidates", len(res.Candidates),
		"raw", len(res.Raw),
		"partial", res.Partial,
		"duration", time.Since(start).Round(time.Microsecond))
	return res, nil
}

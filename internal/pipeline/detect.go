package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// ErrNoAcquisitionAvailable is returned by Detect when the catalog has no
// scene for the request. No stage runs in that case.
var ErrNoAcquisitionAvailable = catalog.ErrNoAcquisitionAvailable

// Request asks for detection on the acquisition closest to Query.Target.
type Request struct {
	Query catalog.Query
	// Occurrence is the water-occurrence raster on the acquisition grid.
	Occurrence *raster.Grid
	Params     Params
}

// Detect selects an acquisition from cat and runs the pipeline on it. When
// the catalog has nothing in the window it returns an error wrapping
// ErrNoAcquisitionAvailable and a nil result.
func (p *Pipeline) Detect(ctx context.Context, cat catalog.Catalog, req Request) (*Result, error) {
	if err := req.Params.Validate(); err != nil {
		p.metrics.observeRun(OutcomeError)
		return nil, err
	}
	if err := req.Query.Validate(); err != nil {
		p.metrics.observeRun(OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	acq, err := cat.Closest(ctx, req.Query)
	if errors.Is(err, ErrNoAcquisitionAvailable) {
		p.metrics.observeRun(OutcomeNoAcquisition)
		p.logger.Info("no acquisition available",
			"target", req.Query.Target,
			"window", req.Query.Window,
			"pass", req.Query.Pass)
		return nil, err
	}
	if err != nil {
		p.metrics.observeRun(OutcomeError)
		return nil, fmt.Errorf("search acquisitions: %w", err)
	}
	p.logger.Debug("acquisition selected", "id", acq.ID, "time", acq.Time, "pass", acq.Pass)

	intensity, err := acq.LoadIntensity(req.Query.Region, req.Params.Workers)
	if err != nil {
		p.metrics.observeRun(OutcomeError)
		return nil, err
	}
	return p.Run(ctx, req.Params, Inputs{
		Intensity:       intensity,
		Occurrence:      req.Occurrence,
		Region:          req.Query.Region,
		AcquisitionID:   acq.ID,
		AcquisitionDate: acq.Time,
	})
}

package pipeline

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/detector"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/paulmach/orb"
)

// Stage names, in execution order.
const (
	StageWater     = "water"
	StageThreshold = "threshold"
	StageClean     = "clean"
	StageSpeckle   = "speckle"
	StageVectorize = "vectorize"
	StageLength    = "length"
)

// Stages lists the stage names in execution order.
var Stages = []string{StageWater, StageThreshold, StageClean, StageSpeckle, StageVectorize, StageLength}

// Inputs are the rasters and metadata of one acquisition.
type Inputs struct {
	// Intensity is backscatter in dB; NaN marks no-data.
	Intensity *raster.Grid
	// Occurrence is water occurrence in percent on the same grid.
	Occurrence *raster.Grid
	// Region limits detection; nil covers the whole grid. Coordinates are
	// the grids' ground coordinates.
	Region          orb.Geometry
	AcquisitionID   string
	AcquisitionDate time.Time
}

func (in Inputs) validate() error {
	if in.Intensity == nil {
		return fmt.Errorf("%w: intensity raster is required", ErrInvalidParams)
	}
	if in.Occurrence == nil {
		return fmt.Errorf("%w: water occurrence raster is required", ErrInvalidParams)
	}
	return nil
}

// Diagnostics are the per-stage counts of a run.
type Diagnostics struct {
	// EmptyWaterMask is set when no water pixel survived coastline
	// erosion. The run still completes with zero candidates.
	EmptyWaterMask    bool                  `json:"empty_water_mask"`
	WaterPixels       int                   `json:"water_pixels"`
	WaterPixelsEroded int                   `json:"water_pixels_eroded"`
	ThresholdPixels   int                   `json:"threshold_pixels"`
	CleanedPixels     int                   `json:"cleaned_pixels"`
	Speckle           detector.SpeckleStats `json:"speckle"`
	CandidatePixels   int                   `json:"candidate_pixels"`
	VectorizedPixels  int                   `json:"vectorized_pixels"`
	DroppedComponents int                   `json:"dropped_components,omitempty"`
	DroppedPixels     int                   `json:"dropped_pixels,omitempty"`
	RawCandidates     int                   `json:"raw_candidates"`
}

// StageTiming is the wall time of one stage.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// Result is the output of one run.
type Result struct {
	AcquisitionID   string    `json:"acquisition_id,omitempty"`
	AcquisitionDate time.Time `json:"acquisition_date"`
	Params          Params    `json:"params"`

	// Geometry is the input grid; WaterMask and CandidateMask lie on it.
	Geometry  raster.Geometry `json:"-"`
	WaterMask *raster.Mask    `json:"-"`
	// CandidateMask is the candidate mask after the speckle filter.
	CandidateMask *raster.Mask `json:"-"`
	// Polygons are the raw vectorized regions, parallel to Raw.
	Polygons []orb.Polygon `json:"-"`

	Raw        []*detector.ShipCandidate `json:"-"`
	Candidates []*detector.ShipCandidate `json:"candidates"`

	// Partial is set when vectorization was truncated by MaxPixels.
	Partial     bool          `json:"partial"`
	Diagnostics Diagnostics   `json:"diagnostics"`
	Timings     []StageTiming `json:"timings"`
}

// Total returns the summed stage time.
func (r *Result) Total() time.Duration {
	var d time.Duration
	for _, t := range r.Timings {
		d += t.Duration
	}
	return d
}

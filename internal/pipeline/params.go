package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/shipscan/internal/detector"
)

// ErrInvalidParams wraps every parameter or input validation failure.
var ErrInvalidParams = errors.New("invalid pipeline parameters")

// Params holds every tunable of one detection run. A Params value is passed
// into each run; nothing is read from process-wide state.
type Params struct {
	// WaterOccMin is the minimum water occurrence percentage (0-100).
	WaterOccMin float64 `json:"water_occ_min" yaml:"water_occ_min"`
	// ThresholdDB selects pixels strictly brighter than this backscatter.
	ThresholdDB float64 `json:"threshold_db" yaml:"threshold_db"`
	// MinLengthM drops candidates whose length proxy is shorter.
	MinLengthM float64 `json:"min_length_m" yaml:"min_length_m"`
	// CoastErodePx shrinks the water mask away from the coastline.
	CoastErodePx int `json:"coast_erode_px" yaml:"coast_erode_px"`
	// MorphRadiusPx is the closing/opening radius; 0 disables cleanup.
	MorphRadiusPx int `json:"morph_radius_px" yaml:"morph_radius_px"`
	// MinPixels is the smallest component kept by the speckle filter.
	MinPixels int `json:"min_pixels" yaml:"min_pixels"`
	// ComponentSizeCap bounds component size counting; 0 counts exactly.
	ComponentSizeCap int `json:"component_size_cap" yaml:"component_size_cap"`
	// ScaleM is the vectorization ground sampling distance; 0 is native.
	ScaleM float64 `json:"scale_m" yaml:"scale_m"`
	// MaxPixels bounds the pixels vectorized; 0 is unlimited.
	MaxPixels int                     `json:"max_pixels" yaml:"max_pixels"`
	Policy    detector.ResourcePolicy `json:"policy" yaml:"policy"`
	// Workers bounds the row-band parallelism of raster stages; 0 uses
	// every CPU.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		WaterOccMin:      80,
		ThresholdDB:      0,
		MinLengthM:       20,
		CoastErodePx:     2,
		MorphRadiusPx:    1,
		MinPixels:        5,
		ComponentSizeCap: detector.DefaultComponentSizeCap,
		ScaleM:           0,
		MaxPixels:        4_000_000,
		Policy:           detector.PolicyFail,
	}
}

// Validate checks every parameter. All failures wrap ErrInvalidParams.
func (p Params) Validate() error {
	if math.IsNaN(p.ThresholdDB) || math.IsInf(p.ThresholdDB, 0) {
		return fmt.Errorf("%w: threshold_db must be finite, got %v", ErrInvalidParams, p.ThresholdDB)
	}
	if math.IsNaN(p.MinLengthM) || p.MinLengthM < 0 {
		return fmt.Errorf("%w: min_length_m must be >= 0, got %v", ErrInvalidParams, p.MinLengthM)
	}
	if p.MorphRadiusPx < 0 {
		return fmt.Errorf("%w: morph_radius_px must be >= 0, got %d", ErrInvalidParams, p.MorphRadiusPx)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidParams, p.Workers)
	}
	for _, err := range []error{
		p.waterOptions().Validate(),
		p.speckleOptions().Validate(),
		p.vectorizeOptions().Validate(),
	} {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
	}
	return nil
}

func (p Params) waterOptions() detector.WaterOptions {
	return detector.WaterOptions{OccurrenceMin: p.WaterOccMin, CoastErodePx: p.CoastErodePx, Workers: p.Workers}
}

func (p Params) speckleOptions() detector.SpeckleOptions {
	return detector.SpeckleOptions{MinPixels: p.MinPixels, SizeCap: p.ComponentSizeCap, Workers: p.Workers}
}

func (p Params) vectorizeOptions() detector.VectorizeOptions {
	return detector.VectorizeOptions{ScaleM: p.ScaleM, MaxPixels: p.MaxPixels, Policy: p.Policy, Workers: p.Workers}
}

// WithThreshold returns a copy of p with ThresholdDB replaced.
func (p Params) WithThreshold(db float64) Params {
	p.ThresholdDB = db
	return p
}

// ThresholdSweep returns one copy of base per threshold, in order.
func ThresholdSweep(base Params, thresholds []float64) []Params {
	out := make([]Params, len(thresholds))
	for i, t := range thresholds {
		out[i] = base.WithThreshold(t)
	}
	return out
}

package detector

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/paulmach/orb"
)

// ErrInvalidOption is returned when a stage receives an out-of-range setting.
var ErrInvalidOption = errors.New("invalid detector option")

// WaterOptions controls BuildWaterMask.
type WaterOptions struct {
	// OccurrenceMin is the minimum water occurrence (0-100) for a pixel to
	// count as water.
	OccurrenceMin float64
	// CoastErodePx erodes the water mask inward by this many pixels.
	CoastErodePx int
	Workers      int
}

// Validate checks the option ranges.
func (o WaterOptions) Validate() error {
	if math.IsNaN(o.OccurrenceMin) || o.OccurrenceMin < 0 || o.OccurrenceMin > 100 {
		return fmt.Errorf("%w: water occurrence minimum %v outside [0, 100]", ErrInvalidOption, o.OccurrenceMin)
	}
	if o.CoastErodePx < 0 {
		return fmt.Errorf("%w: coast erosion %d px is negative", ErrInvalidOption, o.CoastErodePx)
	}
	return nil
}

// WaterStats counts water pixels before and after coastline erosion.
type WaterStats struct {
	Selected int `json:"selected"`
	Eroded   int `json:"eroded"`
}

// Empty reports whether no water pixel survived erosion.
func (s WaterStats) Empty() bool { return s.Eroded == 0 }

// BuildWaterMask selects pixels whose occurrence is at least
// opts.OccurrenceMin and whose centre lies inside region, then erodes the
// selection by opts.CoastErodePx. No-data occurrence samples are never water.
// A nil region selects the whole grid.
func BuildWaterMask(occurrence *raster.Grid, region orb.Geometry, opts WaterOptions) (*raster.Mask, WaterStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, WaterStats{}, err
	}
	if err := occurrence.Validate(); err != nil {
		return nil, WaterStats{}, err
	}

	inside, err := raster.RegionMask(occurrence.Geometry, region, opts.Workers)
	if err != nil {
		return nil, WaterStats{}, err
	}

	water := raster.NewMask(occurrence.Geometry)
	w := occurrence.Width
	raster.ParallelBands(occurrence.Height, opts.Workers, func(y0, y1 int) {
		for i := y0 * w; i < y1*w; i++ {
			// NaN compares false, so no-data never passes.
			water.Bits[i] = inside.Bits[i] && occurrence.Data[i] >= opts.OccurrenceMin
		}
	})

	stats := WaterStats{Selected: water.Count()}
	if opts.CoastErodePx > 0 {
		water = raster.Erode(water, opts.CoastErodePx, opts.Workers)
	}
	stats.Eroded = water.Count()
	return water, stats, nil
}

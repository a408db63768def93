package detector

import (
	"math"

	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// ThresholdIntensity marks water pixels whose intensity is strictly greater
// than thresholdDB. Pixels outside water and no-data intensity samples are
// never candidates.
func ThresholdIntensity(intensity *raster.Grid, water *raster.Mask, thresholdDB float64, workers int) (*raster.Mask, error) {
	if err := raster.CheckAligned(intensity.Geometry, water.Geometry); err != nil {
		return nil, err
	}

	out := raster.NewMask(intensity.Geometry)
	w := intensity.Width
	raster.ParallelBands(intensity.Height, workers, func(y0, y1 int) {
		for i := y0 * w; i < y1*w; i++ {
			if !water.Bits[i] {
				continue
			}
			v := intensity.Data[i]
			out.Bits[i] = !math.IsNaN(v) && v > thresholdDB
		}
	})
	return out, nil
}

// MaskToWater returns a copy of intensity with every non-water sample set to
// no-data.
func MaskToWater(intensity *raster.Grid, water *raster.Mask, workers int) (*raster.Grid, error) {
	if err := raster.CheckAligned(intensity.Geometry, water.Geometry); err != nil {
		return nil, err
	}
	out := raster.NewGrid(intensity.Geometry)
	w := intensity.Width
	raster.ParallelBands(intensity.Height, workers, func(y0, y1 int) {
		for i := y0 * w; i < y1*w; i++ {
			if water.Bits[i] {
				out.Data[i] = intensity.Data[i]
			}
		}
	})
	return out, nil
}

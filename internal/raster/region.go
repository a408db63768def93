package raster

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrUnsupportedRegion is returned for region geometries that are not areal.
var ErrUnsupportedRegion = errors.New("region must be a Polygon, MultiPolygon or Bound")

// RegionMask rasterizes a region of interest onto g. A pixel is inside when
// its centre lies inside the region. A nil region selects every pixel.
func RegionMask(g Geometry, region orb.Geometry, workers int) (*Mask, error) {
	if region == nil {
		return NewMaskFilled(g, true), nil
	}

	var contains func(orb.Point) bool
	switch r := region.(type) {
	case orb.Polygon:
		contains = func(p orb.Point) bool { return planar.PolygonContains(r, p) }
	case orb.MultiPolygon:
		contains = func(p orb.Point) bool { return planar.MultiPolygonContains(r, p) }
	case orb.Bound:
		contains = r.Contains
	case orb.Ring:
		contains = func(p orb.Point) bool { return planar.RingContains(r, p) }
	default:
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedRegion, region.GeoJSONType())
	}

	bound := region.Bound()
	out := NewMask(g)
	ParallelBands(g.Height, workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := range g.Width {
				c := g.PixelCenter(x, y)
				if !bound.Contains(c) {
					continue
				}
				out.Bits[y*g.Width+x] = contains(c)
			}
		}
	})
	return out, nil
}

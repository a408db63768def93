package detector

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// ShipCandidate is one vectorized bright region with its length proxy.
type ShipCandidate struct {
	ID              int         `json:"id"`
	Centroid        orb.Point   `json:"centroid"`
	LengthM         float64     `json:"length_m"`
	AcquisitionDate time.Time   `json:"acquisition_date"`
	PixelCount      int         `json:"pixel_count"`
	Bound           orb.Bound   `json:"-"`
	Polygon         orb.Polygon `json:"-"`
}

// LengthProxy returns the ground distance in metres between the lower-left
// and upper-right corners of the polygon's axis-aligned bound. It is a coarse
// stand-in for vessel length and overestimates diagonally oriented targets.
// Geographic polygons are measured with the haversine formula. Empty input
// yields 0.
func LengthProxy(poly orb.Polygon, geographic bool) float64 {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return 0
	}
	b := poly.Bound()
	var d float64
	if geographic {
		d = geo.DistanceHaversine(b.Min, b.Max)
	} else {
		d = planar.Distance(b.Min, b.Max)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// Centroid returns the area-weighted centroid of poly, or the centre of its
// bound when the polygon has no area.
func Centroid(poly orb.Polygon) orb.Point {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return orb.Point{}
	}
	c, area := planar.CentroidArea(poly)
	if area == 0 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return poly.Bound().Center()
	}
	return c
}

// NewShipCandidate builds a candidate from one polygon.
func NewShipCandidate(id int, poly orb.Polygon, geographic bool, acquired time.Time) *ShipCandidate {
	return &ShipCandidate{
		ID:              id,
		Centroid:        Centroid(poly),
		LengthM:         LengthProxy(poly, geographic),
		AcquisitionDate: acquired,
		Bound:           poly.Bound(),
		Polygon:         poly,
	}
}

// EstimateCandidates turns every polygon of v into a candidate, in order.
// IDs start at 1.
func EstimateCandidates(v *Vectorization, acquired time.Time) []*ShipCandidate {
	out := make([]*ShipCandidate, 0, len(v.Polygons))
	for k, poly := range v.Polygons {
		c := NewShipCandidate(k+1, poly, v.Geometry.Geographic, acquired)
		if k < len(v.Components) {
			c.PixelCount = v.Components[k].Size
		}
		out = append(out, c)
	}
	return out
}

// FilterByLength returns the candidates with LengthM >= minLengthM, keeping
// their order. The returned slice shares its elements with raw.
func FilterByLength(raw []*ShipCandidate, minLengthM float64) []*ShipCandidate {
	out := make([]*ShipCandidate, 0, len(raw))
	for _, c := range raw {
		if c.LengthM >= minLengthM {
			out = append(out, c)
		}
	}
	return out
}

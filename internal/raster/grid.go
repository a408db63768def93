// Package raster provides the in-memory grid types the detector works on:
// numeric sample grids with a geographic transform, boolean masks on the same
// geometry, tile-parallel per-pixel helpers, binary morphology and file IO.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

var (
	// ErrMisaligned is returned when rasters consumed together do not share
	// the same pixel grid and transform.
	ErrMisaligned = errors.New("rasters are not aligned to the same grid")

	// ErrInvalidGeometry is returned for empty grids or rotated transforms.
	ErrInvalidGeometry = errors.New("invalid raster geometry")
)

// transformTolerance is the relative tolerance used when comparing transforms.
const transformTolerance = 1e-9

// GeoTransform maps pixel coordinates to ground coordinates using the
// GDAL six-coefficient convention:
//
//	X = T[0] + px*T[1] + py*T[2]
//	Y = T[3] + px*T[4] + py*T[5]
//
// (px, py) address pixel corners, so (0, 0) is the upper-left corner of the
// upper-left pixel. Only axis-aligned transforms (T[2] == T[4] == 0) are
// supported.
type GeoTransform [6]float64

// PixelToGround converts a pixel-space coordinate to ground coordinates.
func (t GeoTransform) PixelToGround(px, py float64) orb.Point {
	return orb.Point{
		t[0] + px*t[1] + py*t[2],
		t[3] + px*t[4] + py*t[5],
	}
}

// GroundToPixel converts ground coordinates to fractional pixel coordinates.
// It assumes an axis-aligned transform.
func (t GeoTransform) GroundToPixel(p orb.Point) (float64, float64) {
	return (p[0] - t[0]) / t[1], (p[1] - t[3]) / t[5]
}

// IsAxisAligned reports whether the transform has no rotation terms.
func (t GeoTransform) IsAxisAligned() bool { return t[2] == 0 && t[4] == 0 }

// PixelSize returns the absolute pixel width and height in ground units.
func (t GeoTransform) PixelSize() (float64, float64) {
	return math.Abs(t[1]), math.Abs(t[5])
}

// Geometry describes a fixed, axis-aligned pixel grid.
type Geometry struct {
	Width     int
	Height    int
	Transform GeoTransform
	// Geographic is true when the transform is in degrees (lon/lat) rather
	// than a projected metric system.
	Geographic bool
}

// Len returns the number of pixels in the grid.
func (g Geometry) Len() int { return g.Width * g.Height }

// Validate checks that the geometry describes a usable grid.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidGeometry, g.Width, g.Height)
	}
	if !g.Transform.IsAxisAligned() {
		return fmt.Errorf("%w: rotated transforms are not supported", ErrInvalidGeometry)
	}
	if g.Transform[1] == 0 || g.Transform[5] == 0 {
		return fmt.Errorf("%w: zero pixel size", ErrInvalidGeometry)
	}
	return nil
}

// Equal reports whether two geometries describe the same grid.
func (g Geometry) Equal(o Geometry) bool {
	if g.Width != o.Width || g.Height != o.Height || g.Geographic != o.Geographic {
		return false
	}
	for i := range g.Transform {
		if !closeEnough(g.Transform[i], o.Transform[i]) {
			return false
		}
	}
	return true
}

func closeEnough(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= transformTolerance*math.Max(scale, 1)
}

// CheckAligned returns ErrMisaligned unless all geometries are equal.
func CheckAligned(geoms ...Geometry) error {
	for i := 1; i < len(geoms); i++ {
		if !geoms[0].Equal(geoms[i]) {
			return fmt.Errorf("%w: grid %d is %dx%d %v, grid 0 is %dx%d %v",
				ErrMisaligned, i,
				geoms[i].Width, geoms[i].Height, geoms[i].Transform,
				geoms[0].Width, geoms[0].Height, geoms[0].Transform)
		}
	}
	return nil
}

// PixelCenter returns the ground coordinate of the centre of pixel (x, y).
func (g Geometry) PixelCenter(x, y int) orb.Point {
	return g.Transform.PixelToGround(float64(x)+0.5, float64(y)+0.5)
}

// Corner returns the ground coordinate of pixel-grid vertex (vx, vy).
func (g Geometry) Corner(vx, vy int) orb.Point {
	return g.Transform.PixelToGround(float64(vx), float64(vy))
}

// Bound returns the ground extent of the grid.
func (g Geometry) Bound() orb.Bound {
	return orb.Bound{Min: g.Corner(0, 0), Max: g.Corner(0, 0)}.
		Extend(g.Corner(g.Width, g.Height))
}

// Scaled returns a coarser geometry whose pixels each cover factor x factor
// pixels of g. Partial blocks at the right and bottom edges are kept.
func (g Geometry) Scaled(factor int) Geometry {
	if factor <= 1 {
		return g
	}
	t := g.Transform
	t[1] *= float64(factor)
	t[5] *= float64(factor)
	return Geometry{
		Width:      (g.Width + factor - 1) / factor,
		Height:     (g.Height + factor - 1) / factor,
		Transform:  t,
		Geographic: g.Geographic,
	}
}

// GroundDistance returns the distance in metres between two ground points.
// Projected grids use planar distance; geographic grids use the haversine
// great-circle distance.
func (g Geometry) GroundDistance(a, b orb.Point) float64 {
	if g.Geographic {
		return geo.DistanceHaversine(a, b)
	}
	return planar.Distance(a, b)
}

// PixelSizeMeters returns the approximate ground size of one pixel in metres,
// measured at the centre of the grid for geographic grids.
func (g Geometry) PixelSizeMeters() (float64, float64) {
	if !g.Geographic {
		return g.Transform.PixelSize()
	}
	cx, cy := g.Width/2, g.Height/2
	o := g.Corner(cx, cy)
	return g.GroundDistance(o, g.Corner(cx+1, cy)), g.GroundDistance(o, g.Corner(cx, cy+1))
}

// Grid is a single-band raster of float64 samples. No-data is stored as NaN.
type Grid struct {
	Geometry
	Data []float64
}

// NewGrid allocates a grid with every sample set to no-data.
func NewGrid(g Geometry) *Grid {
	data := make([]float64, g.Len())
	nan := math.NaN()
	for i := range data {
		data[i] = nan
	}
	return &Grid{Geometry: g, Data: data}
}

// NewGridFilled allocates a grid with every sample set to v.
func NewGridFilled(g Geometry, v float64) *Grid {
	data := make([]float64, g.Len())
	for i := range data {
		data[i] = v
	}
	return &Grid{Geometry: g, Data: data}
}

// At returns the sample at (x, y).
func (r *Grid) At(x, y int) float64 { return r.Data[y*r.Width+x] }

// Set stores v at (x, y).
func (r *Grid) Set(x, y int, v float64) { r.Data[y*r.Width+x] = v }

// IsNoData reports whether sample i is no-data.
func (r *Grid) IsNoData(i int) bool { return math.IsNaN(r.Data[i]) }

// ValidCount returns the number of samples that are not no-data.
func (r *Grid) ValidCount() int {
	n := 0
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Mask is a boolean raster on a Geometry; true means selected.
type Mask struct {
	Geometry
	Bits []bool
}

// NewMask allocates an all-false mask.
func NewMask(g Geometry) *Mask {
	return &Mask{Geometry: g, Bits: make([]bool, g.Len())}
}

// NewMaskFilled allocates a mask with every pixel set to v.
func NewMaskFilled(g Geometry, v bool) *Mask {
	m := NewMask(g)
	if v {
		for i := range m.Bits {
			m.Bits[i] = true
		}
	}
	return m
}

// At returns the mask value at (x, y); out-of-grid coordinates are false.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Set stores v at (x, y).
func (m *Mask) Set(x, y int, v bool) { m.Bits[y*m.Width+x] = v }

// Count returns the number of true pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	bits := make([]bool, len(m.Bits))
	copy(bits, m.Bits)
	return &Mask{Geometry: m.Geometry, Bits: bits}
}

// Equal reports whether two masks have the same geometry and pixels.
func (m *Mask) Equal(o *Mask) bool {
	if !m.Geometry.Equal(o.Geometry) || len(m.Bits) != len(o.Bits) {
		return false
	}
	for i := range m.Bits {
		if m.Bits[i] != o.Bits[i] {
			return false
		}
	}
	return true
}

// And returns the pixelwise conjunction of m and o.
func (m *Mask) And(o *Mask, workers int) (*Mask, error) {
	if err := CheckAligned(m.Geometry, o.Geometry); err != nil {
		return nil, err
	}
	out := NewMask(m.Geometry)
	ParallelBands(m.Height, workers, func(y0, y1 int) {
		for i := y0 * m.Width; i < y1*m.Width; i++ {
			out.Bits[i] = m.Bits[i] && o.Bits[i]
		}
	})
	return out, nil
}

// Package synth generates synthetic radar scenes with known ship positions
// for demos, benchmarks and end-to-end checks.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// Ship is a bright pixel rectangle [X, X+W) x [Y, Y+H).
type Ship struct {
	X, Y, W, H int
}

// LengthPx is the bounding-box diagonal in pixels.
func (s Ship) LengthPx() float64 { return math.Hypot(float64(s.W), float64(s.H)) }

// SceneOptions controls Generate.
type SceneOptions struct {
	Width, Height int
	PixelM        float64
	// OriginX and OriginY place the upper-left corner, in metres.
	OriginX, OriginY float64

	Ships int
	// Ships are MinShipPx to MaxShipPx long and 1 to 3 pixels wide.
	MinShipPx, MaxShipPx int

	// LandFraction is the share of columns on the east side that is land.
	LandFraction float64

	SeaDB, LandDB, ShipDB float64
	// NoiseDB is the standard deviation of the speckle added to every pixel.
	NoiseDB float64

	// Seed drives speckle and ship placement; CoastSeed drives the
	// coastline, so scenes differing only in Seed share one water mask.
	Seed, CoastSeed int64
}

// DefaultSceneOptions returns a 512x512 scene at 10 m with 12 ships.
func DefaultSceneOptions() SceneOptions {
	return SceneOptions{
		Width:        512,
		Height:       512,
		PixelM:       10,
		OriginX:      500000,
		OriginY:      4000000,
		Ships:        12,
		MinShipPx:    3,
		MaxShipPx:    12,
		LandFraction: 0.2,
		SeaDB:        -18,
		LandDB:       -6,
		ShipDB:       6,
		NoiseDB:      1.5,
		Seed:         1,
		CoastSeed:    1,
	}
}

func (o SceneOptions) validate() error {
	var errs []error
	if o.Width <= 0 || o.Height <= 0 {
		errs = append(errs, fmt.Errorf("scene size %dx%d must be positive", o.Width, o.Height))
	}
	if o.PixelM <= 0 {
		errs = append(errs, fmt.Errorf("pixel size %v must be positive", o.PixelM))
	}
	if o.Ships < 0 {
		errs = append(errs, fmt.Errorf("ship count %d is negative", o.Ships))
	}
	if o.MinShipPx < 1 || o.MaxShipPx < o.MinShipPx {
		errs = append(errs, fmt.Errorf("ship length range %d..%d is invalid", o.MinShipPx, o.MaxShipPx))
	}
	if o.LandFraction < 0 || o.LandFraction >= 1 {
		errs = append(errs, fmt.Errorf("land fraction %v must be in [0, 1)", o.LandFraction))
	}
	if o.NoiseDB < 0 {
		errs = append(errs, fmt.Errorf("noise %v is negative", o.NoiseDB))
	}
	return errors.Join(errs...)
}

// Geometry returns the north-up grid the scene is generated on.
func (o SceneOptions) Geometry() raster.Geometry {
	return raster.Geometry{
		Width:     o.Width,
		Height:    o.Height,
		Transform: raster.GeoTransform{o.OriginX, o.PixelM, 0, o.OriginY, 0, -o.PixelM},
	}
}

// Scene is one generated acquisition.
type Scene struct {
	Geometry   raster.Geometry
	Intensity  *raster.Grid // dB
	Occurrence *raster.Grid // percent
	Ships      []Ship
}

// ErrNoRoom is returned when the ships cannot be placed on open water.
var ErrNoRoom = errors.New("not enough open water for the requested ships")

// Generate builds a scene: open sea to the west, land to the east behind a
// ragged coastline, and opts.Ships non-touching ships on open water at
// least four pixels from the coast.
func Generate(opts SceneOptions) (*Scene, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	r := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec // reproducible scenes
	geom := opts.Geometry()
	sc := &Scene{
		Geometry:   geom,
		Intensity:  raster.NewGrid(geom),
		Occurrence: raster.NewGrid(geom),
	}

	coast := coastline(rand.New(rand.NewSource(opts.CoastSeed)), opts) //nolint:gosec
	for y := range opts.Height {
		for x := range opts.Width {
			occ, db := 100.0, opts.SeaDB
			if x >= coast[y] {
				occ, db = 0, opts.LandDB
			}
			sc.Occurrence.Set(x, y, occ)
			sc.Intensity.Set(x, y, db+r.NormFloat64()*opts.NoiseDB)
		}
	}

	occupied := raster.NewMask(geom)
	const margin = 4
	for attempt := 0; len(sc.Ships) < opts.Ships; attempt++ {
		if attempt > 100*(opts.Ships+1) {
			return nil, fmt.Errorf("%w: placed %d of %d", ErrNoRoom, len(sc.Ships), opts.Ships)
		}
		length := opts.MinShipPx + r.Intn(opts.MaxShipPx-opts.MinShipPx+1)
		width := 1 + r.Intn(3)
		s := Ship{W: length, H: width}
		if r.Intn(2) == 0 {
			s.W, s.H = width, length
		}
		if opts.Width-s.W-2*margin <= 0 || opts.Height-s.H-2*margin <= 0 {
			continue
		}
		s.X = margin + r.Intn(opts.Width-s.W-2*margin)
		s.Y = margin + r.Intn(opts.Height-s.H-2*margin)
		if !fits(s, coast, occupied, margin) {
			continue
		}
		for y := s.Y; y < s.Y+s.H; y++ {
			for x := s.X; x < s.X+s.W; x++ {
				occupied.Set(x, y, true)
				sc.Intensity.Set(x, y, opts.ShipDB+r.NormFloat64()*opts.NoiseDB/2)
			}
		}
		sc.Ships = append(sc.Ships, s)
	}
	return sc, nil
}

// coastline returns, per row, the first land column. It wanders by at most
// one column per row.
func coastline(r *rand.Rand, opts SceneOptions) []int {
	coast := make([]int, opts.Height)
	if opts.LandFraction == 0 {
		for y := range coast {
			coast[y] = opts.Width
		}
		return coast
	}
	base := opts.Width - int(float64(opts.Width)*opts.LandFraction)
	x := base
	for y := range coast {
		x += r.Intn(3) - 1
		x = max(base-opts.Width/20, min(base+opts.Width/20, x))
		coast[y] = max(0, min(opts.Width, x))
	}
	return coast
}

// fits reports whether s, grown by margin, stays on water and clear of
// other ships.
func fits(s Ship, coast []int, occupied *raster.Mask, margin int) bool {
	for y := s.Y - margin; y < s.Y+s.H+margin; y++ {
		if y < 0 || y >= len(coast) {
			return false
		}
		if s.X+s.W+margin > coast[y] {
			return false
		}
		for x := max(0, s.X-margin); x < s.X+s.W+margin; x++ {
			if occupied.At(x, y) {
				return false
			}
		}
	}
	return true
}

package detector

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/paulmach/orb"
)

// ErrVectorizationResourceExceeded is returned by Vectorize under PolicyFail
// when the mask holds more pixels than the configured budget.
var ErrVectorizationResourceExceeded = errors.New("vectorization resource limit exceeded")

// ResourcePolicy selects what Vectorize does when MaxPixels is exceeded.
type ResourcePolicy string

const (
	// PolicyFail aborts with ErrVectorizationResourceExceeded. This is the default.
	PolicyFail ResourcePolicy = "fail"
	// PolicyTruncate vectorizes components in raster order of their first
	// pixel until the next one would exceed the budget, then stops and marks
	// the result partial.
	PolicyTruncate ResourcePolicy = "truncate"
)

// ParseResourcePolicy converts a config string into a ResourcePolicy.
// The empty string selects PolicyFail.
func ParseResourcePolicy(s string) (ResourcePolicy, error) {
	switch ResourcePolicy(s) {
	case "", PolicyFail:
		return PolicyFail, nil
	case PolicyTruncate:
		return PolicyTruncate, nil
	default:
		return "", fmt.Errorf("%w: unknown resource policy %q", ErrInvalidOption, s)
	}
}

// VectorizeOptions controls Vectorize.
type VectorizeOptions struct {
	// ScaleM is the ground sampling distance used for tracing. Zero, or any
	// value below the native pixel size, traces at native resolution.
	// Larger values aggregate the mask by an integer block factor first.
	ScaleM float64
	// MaxPixels bounds the number of true pixels traced; 0 means unlimited.
	MaxPixels int
	Policy    ResourcePolicy
	Workers   int
}

// Validate checks the option ranges.
func (o VectorizeOptions) Validate() error {
	if math.IsNaN(o.ScaleM) || o.ScaleM < 0 {
		return fmt.Errorf("%w: vectorization scale %v", ErrInvalidOption, o.ScaleM)
	}
	if o.MaxPixels < 0 {
		return fmt.Errorf("%w: max pixels %d is negative", ErrInvalidOption, o.MaxPixels)
	}
	_, err := ParseResourcePolicy(string(o.Policy))
	return err
}

// Vectorization holds the polygons traced from a mask.
type Vectorization struct {
	// Geometry is the grid the polygons were traced on.
	Geometry raster.Geometry
	// Polygons and Components are parallel slices in label order.
	Polygons   []orb.Polygon
	Components []Component
	// Pixels is the number of true pixels that were traced.
	Pixels int
	// Partial is set when PolicyTruncate skipped components.
	Partial           bool
	DroppedComponents int
	DroppedPixels     int
}

// ScaleFactor returns the integer block factor for tracing g at scaleM
// metres per pixel.
func ScaleFactor(g raster.Geometry, scaleM float64) int {
	if scaleM <= 0 {
		return 1
	}
	pw, _ := g.PixelSizeMeters()
	if pw <= 0 {
		return 1
	}
	return max(1, int(math.Round(scaleM/pw)))
}

// Vectorize traces one polygon per 8-connected region of m that lies inside
// region. Pixels are kept when their centre falls inside region; a nil region
// keeps all of them.
func Vectorize(m *raster.Mask, region orb.Geometry, opts VectorizeOptions) (*Vectorization, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	policy, _ := ParseResourcePolicy(string(opts.Policy))

	clipped := m
	if region != nil {
		inside, err := raster.RegionMask(m.Geometry, region, opts.Workers)
		if err != nil {
			return nil, err
		}
		if clipped, err = m.And(inside, opts.Workers); err != nil {
			return nil, err
		}
	}
	if f := ScaleFactor(m.Geometry, opts.ScaleM); f > 1 {
		clipped = aggregate(clipped, f, opts.Workers)
	}

	lab := LabelComponents(clipped, 0, opts.Workers)
	total := 0
	for _, c := range lab.Components {
		total += c.Size
	}

	v := &Vectorization{Geometry: clipped.Geometry}
	keep := lab.Components
	if opts.MaxPixels > 0 && total > opts.MaxPixels {
		if policy == PolicyFail {
			return nil, fmt.Errorf("%w: %d pixels in %d regions, limit %d",
				ErrVectorizationResourceExceeded, total, len(lab.Components), opts.MaxPixels)
		}
		budget := 0
		n := 0
		for _, c := range lab.Components {
			if budget+c.Size > opts.MaxPixels {
				break
			}
			budget += c.Size
			n++
		}
		keep = lab.Components[:n]
		v.Partial = true
		v.DroppedComponents = len(lab.Components) - n
		v.DroppedPixels = total - budget
	}

	v.Components = keep
	v.Polygons = make([]orb.Polygon, len(keep))
	raster.ParallelBands(len(keep), opts.Workers, func(lo, hi int) {
		for k := lo; k < hi; k++ {
			v.Polygons[k] = traceComponent(lab, keep[k])
		}
	})
	for _, c := range keep {
		v.Pixels += c.Size
	}
	return v, nil
}

// aggregate ORs factor x factor blocks of m into one pixel each.
func aggregate(m *raster.Mask, factor, workers int) *raster.Mask {
	out := raster.NewMask(m.Scaled(factor))
	raster.ParallelBands(out.Height, workers, func(y0, y1 int) {
		for by := y0; by < y1; by++ {
			for bx := range out.Width {
				out.Bits[by*out.Width+bx] = blockAny(m, bx*factor, by*factor, factor)
			}
		}
	})
	return out
}

func blockAny(m *raster.Mask, x0, y0, factor int) bool {
	for y := y0; y < min(y0+factor, m.Height); y++ {
		row := m.Bits[y*m.Width:]
		for x := x0; x < min(x0+factor, m.Width); x++ {
			if row[x] {
				return true
			}
		}
	}
	return false
}

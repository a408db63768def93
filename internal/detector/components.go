package detector

import (
	"fmt"

	"github.com/MeKo-Tech/shipscan/internal/mempool"
	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// DefaultComponentSizeCap is the default labeling size cap. Counting stops
// once a component reaches it; larger components are reported with
// Size == cap and AtLeast set.
const DefaultComponentSizeCap = 1024

// Component is one 8-connected region of true pixels.
type Component struct {
	// Label is the 1-based label; labels follow the raster order of each
	// component's first pixel.
	Label int32 `json:"label"`
	// Size is the pixel count, saturated at the labeling cap. When AtLeast
	// is true the region has at least Size pixels and the exact count was
	// not kept.
	Size    int  `json:"size"`
	AtLeast bool `json:"at_least,omitempty"`
	// Inclusive pixel bounding box.
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
	// First pixel in raster order.
	FirstX int `json:"first_x"`
	FirstY int `json:"first_y"`
}

// Width returns the bounding-box width in pixels.
func (c Component) Width() int { return c.MaxX - c.MinX + 1 }

// Height returns the bounding-box height in pixels.
func (c Component) Height() int { return c.MaxY - c.MinY + 1 }

// Labeling is the result of connected-component labeling of a mask.
type Labeling struct {
	raster.Geometry
	// Labels holds the component label per pixel; 0 is background.
	Labels     []int32
	Components []Component
	// SizeCap is the cap applied to Component.Size; 0 means uncapped.
	SizeCap int
}

// LabelOf returns the label at (x, y); out-of-grid coordinates are 0.
func (l *Labeling) LabelOf(x, y int) int32 {
	if x < 0 || y < 0 || x >= l.Width || y >= l.Height {
		return 0
	}
	return l.Labels[y*l.Width+x]
}

// LabelComponents labels the 8-connected components of m.
//
// Rows are split into bands that are labeled concurrently with union-find.
// Unions inside a band only touch that band's pixels. A sequential pass then
// unions every pixel on a band's first row with its three upper neighbours
// in the previous band, so a region crossing a band edge gets one label.
// Only after that merge are labels flattened and sizes counted.
//
// sizeCap stops the pixel count of a component once it is reached. Labels
// and bounding boxes stay complete, since tracing needs them. sizeCap <= 0
// counts exactly.
func LabelComponents(m *raster.Mask, sizeCap, workers int) *Labeling {
	w, h := m.Width, m.Height
	n := w * h
	parent := mempool.GetInt32(n)
	defer mempool.PutInt32(parent)

	bands := raster.Bands(h, workers)
	raster.ParallelBands(h, workers, func(y0, y1 int) {
		labelBand(m.Bits, parent, w, y0, y1)
	})

	// Stitch bands together.
	for _, b := range bands[min(1, len(bands)):] {
		y := b[0]
		for x := range w {
			i := y*w + x
			if !m.Bits[i] {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := x + dx
				if nx < 0 || nx >= w {
					continue
				}
				if j := i - w + dx; m.Bits[j] {
					union(parent, int32(i), int32(j))
				}
			}
		}
	}

	out := &Labeling{Geometry: m.Geometry, Labels: make([]int32, n), SizeCap: sizeCap}
	counts := make([]int, 1, 64)
	for y := range h {
		for x := range w {
			i := y*w + x
			if !m.Bits[i] {
				continue
			}
			root := find(parent, int32(i))
			if int(root) == i {
				// Roots are the smallest index of their set, i.e. the first
				// pixel in raster order.
				label := int32(len(out.Components) + 1)
				out.Labels[i] = label
				out.Components = append(out.Components, Component{
					Label: label, MinX: x, MinY: y, MaxX: x, MaxY: y, FirstX: x, FirstY: y,
				})
				counts = append(counts, 1)
				continue
			}
			label := out.Labels[root]
			out.Labels[i] = label
			c := &out.Components[label-1]
			if sizeCap > 0 && counts[label] >= sizeCap {
				c.AtLeast = true
			} else {
				counts[label]++
			}
			c.MinX = min(c.MinX, x)
			c.MaxX = max(c.MaxX, x)
			c.MaxY = y
		}
	}

	for k := range out.Components {
		out.Components[k].Size = counts[k+1]
	}
	return out
}

// labelBand runs union-find over rows [y0, y1), looking only at the W, NW, N
// and NE neighbours that fall inside the band.
func labelBand(bits []bool, parent []int32, w, y0, y1 int) {
	for y := y0; y < y1; y++ {
		for x := range w {
			i := y*w + x
			parent[i] = int32(i)
			if !bits[i] {
				continue
			}
			if x > 0 && bits[i-1] {
				union(parent, int32(i), int32(i-1))
			}
			if y == y0 {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := x + dx
				if nx < 0 || nx >= w {
					continue
				}
				if j := i - w + dx; bits[j] {
					union(parent, int32(i), int32(j))
				}
			}
		}
	}
}

// find returns the root of i with path halving.
func find(parent []int32, i int32) int32 {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}

// union links the larger root under the smaller, so every root is the
// lowest index in its set.
func union(parent []int32, a, b int32) {
	ra, rb := find(parent, a), find(parent, b)
	switch {
	case ra == rb:
	case ra < rb:
		parent[rb] = ra
	default:
		parent[ra] = rb
	}
}

// SpeckleOptions controls RemoveSpeckle.
type SpeckleOptions struct {
	// MinPixels is the smallest component size that is kept.
	MinPixels int
	// SizeCap bounds component sizing; it must be 0 (uncapped) or at least
	// MinPixels so the cap never changes a keep decision.
	SizeCap int
	Workers int
}

// Validate checks the option ranges.
func (o SpeckleOptions) Validate() error {
	if o.MinPixels < 1 {
		return fmt.Errorf("%w: min pixels %d must be at least 1", ErrInvalidOption, o.MinPixels)
	}
	if o.SizeCap != 0 && o.SizeCap < o.MinPixels {
		return fmt.Errorf("%w: component size cap %d is below min pixels %d", ErrInvalidOption, o.SizeCap, o.MinPixels)
	}
	return nil
}

// SpeckleStats summarizes a RemoveSpeckle run.
type SpeckleStats struct {
	Components    int `json:"components"`
	Removed       int `json:"removed"`
	RemovedPixels int `json:"removed_pixels"`
	Capped        int `json:"capped"`
}

// RemoveSpeckle drops every 8-connected component with fewer than
// opts.MinPixels pixels and returns the filtered mask.
func RemoveSpeckle(m *raster.Mask, opts SpeckleOptions) (*raster.Mask, SpeckleStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, SpeckleStats{}, err
	}

	lab := LabelComponents(m, opts.SizeCap, opts.Workers)
	keep := make([]bool, len(lab.Components)+1)
	stats := SpeckleStats{Components: len(lab.Components)}
	for _, c := range lab.Components {
		if c.AtLeast {
			stats.Capped++
		}
		if c.Size >= opts.MinPixels {
			keep[c.Label] = true
			continue
		}
		stats.Removed++
		stats.RemovedPixels += c.Size
	}

	out := raster.NewMask(m.Geometry)
	w := m.Width
	raster.ParallelBands(m.Height, opts.Workers, func(y0, y1 int) {
		for i := y0 * w; i < y1*w; i++ {
			out.Bits[i] = keep[lab.Labels[i]]
		}
	})
	return out, stats, nil
}

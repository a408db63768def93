package raster

import "github.com/MeKo-Tech/shipscan/internal/mempool"

// MorphologicalOp represents the type of morphological operation to perform.
type MorphologicalOp int

const (
	MorphNone MorphologicalOp = iota
	MorphDilate
	MorphErode
	MorphOpening // Erode then Dilate - removes small protrusions
	MorphClosing // Dilate then Erode - fills gaps
)

// MorphConfig holds configuration for morphological operations.
//
// The neighbourhood is a square of Chebyshev radius Radius, i.e. a
// (2*Radius+1) x (2*Radius+1) window. Neighbours outside the grid are
// ignored, which makes erosion and dilation an adjoint pair and keeps
// opening and closing idempotent up to the grid edge.
type MorphConfig struct {
	Operation  MorphologicalOp
	Radius     int // Neighbourhood radius in pixels; 0 is a no-op
	Iterations int // Number of times to apply the operation
	Workers    int // Parallel bands; 0 = runtime.NumCPU()
}

// DefaultMorphConfig returns default morphological operation configuration.
func DefaultMorphConfig() MorphConfig {
	return MorphConfig{
		Operation:  MorphNone,
		Radius:     1,
		Iterations: 1,
	}
}

// ApplyMorphologicalOperation applies a morphological operation to a mask
// and returns a new mask. The input is never modified.
func ApplyMorphologicalOperation(m *Mask, config MorphConfig) *Mask {
	if config.Operation == MorphNone || config.Radius <= 0 || config.Iterations <= 0 {
		return m.Clone()
	}

	result := m
	for range config.Iterations {
		switch config.Operation {
		case MorphDilate:
			result = Dilate(result, config.Radius, config.Workers)
		case MorphErode:
			result = Erode(result, config.Radius, config.Workers)
		case MorphOpening:
			result = Open(result, config.Radius, config.Workers)
		case MorphClosing:
			result = Close(result, config.Radius, config.Workers)
		}
	}
	if result == m {
		return m.Clone()
	}
	return result
}

// Erode keeps a pixel true only if every in-grid pixel within radius is true.
func Erode(m *Mask, radius, workers int) *Mask {
	return separable(m, radius, workers, MorphErode)
}

// Dilate sets a pixel true if any in-grid pixel within radius is true.
func Dilate(m *Mask, radius, workers int) *Mask {
	return separable(m, radius, workers, MorphDilate)
}

// Open erodes then dilates by radius.
func Open(m *Mask, radius, workers int) *Mask {
	return Dilate(Erode(m, radius, workers), radius, workers)
}

// Close dilates then erodes by radius.
func Close(m *Mask, radius, workers int) *Mask {
	return Erode(Dilate(m, radius, workers), radius, workers)
}

// separable applies a square min/max filter as a horizontal pass followed by
// a vertical pass. Each pass is a sliding-window count over a prefix sum, so
// the cost per pixel does not depend on the radius.
func separable(m *Mask, radius, workers int, op MorphologicalOp) *Mask {
	if radius <= 0 {
		return m.Clone()
	}
	w, h := m.Width, m.Height
	tmp := mempool.GetBool(w * h)
	defer mempool.PutBool(tmp)
	out := NewMask(m.Geometry)

	// Rows
	ParallelBands(h, workers, func(y0, y1 int) {
		pre := mempool.GetInt32(w + 1)
		defer mempool.PutInt32(pre)
		for y := y0; y < y1; y++ {
			slide(m.Bits, tmp, y*w, 1, w, radius, op, pre)
		}
	})

	// Columns
	ParallelBands(w, workers, func(x0, x1 int) {
		pre := mempool.GetInt32(h + 1)
		defer mempool.PutInt32(pre)
		for x := x0; x < x1; x++ {
			slide(tmp, out.Bits, x, w, h, radius, op, pre)
		}
	})

	return out
}

// slide filters the n samples src[start], src[start+stride], ... into dst
// at the same positions. For erosion it counts false samples in the window,
// for dilation true samples.
func slide(src, dst []bool, start, stride, n, radius int, op MorphologicalOp, pre []int32) {
	pre[0] = 0
	for i := range n {
		v := src[start+i*stride]
		if op == MorphErode {
			v = !v
		}
		pre[i+1] = pre[i]
		if v {
			pre[i+1]++
		}
	}
	for i := range n {
		lo := max(i-radius, 0)
		hi := min(i+radius, n-1)
		hits := pre[hi+1] - pre[lo]
		if op == MorphErode {
			dst[start+i*stride] = hits == 0
		} else {
			dst[start+i*stride] = hits > 0
		}
	}
}

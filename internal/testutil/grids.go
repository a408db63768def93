package testutil

import (
	"math/rand"
	"strings"

	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// Origin of the synthetic projected grids, in metres.
const (
	OriginX = 500000.0
	OriginY = 4000000.0
)

// Geometry returns a north-up projected grid with square pixels of pixelM
// metres whose upper-left corner sits at (OriginX, OriginY).
func Geometry(w, h int, pixelM float64) raster.Geometry {
	return raster.Geometry{
		Width:     w,
		Height:    h,
		Transform: raster.GeoTransform{OriginX, pixelM, 0, OriginY, 0, -pixelM},
	}
}

// Block is a pixel rectangle [X, X+W) x [Y, Y+H).
type Block struct {
	X, Y, W, H int
	Value      float64
}

// GridWithBlocks returns a grid filled with background and every block
// painted on top in order.
func GridWithBlocks(g raster.Geometry, background float64, blocks ...Block) *raster.Grid {
	grid := raster.NewGridFilled(g, background)
	for _, b := range blocks {
		for y := b.Y; y < b.Y+b.H; y++ {
			for x := b.X; x < b.X+b.W; x++ {
				grid.Set(x, y, b.Value)
			}
		}
	}
	return grid
}

// MaskFromRows builds a mask from rows of '#' (true) and '.' (false) on a
// 10 m grid.
func MaskFromRows(rows ...string) *raster.Mask {
	m := raster.NewMask(Geometry(len(rows[0]), len(rows), 10))
	for y, row := range rows {
		for x, c := range row {
			m.Set(x, y, c == '#')
		}
	}
	return m
}

// MaskRows renders a mask in the MaskFromRows notation.
func MaskRows(m *raster.Mask) []string {
	rows := make([]string, m.Height)
	for y := range m.Height {
		var sb strings.Builder
		for x := range m.Width {
			if m.At(x, y) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		rows[y] = sb.String()
	}
	return rows
}

// RandomMask returns a reproducible mask with roughly density of its pixels set.
func RandomMask(g raster.Geometry, density float64, seed int64) *raster.Mask {
	r := rand.New(rand.NewSource(seed)) //nolint:gosec
	m := raster.NewMask(g)
	for i := range m.Bits {
		m.Bits[i] = r.Float64() < density
	}
	return m
}

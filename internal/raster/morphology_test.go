package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMorphConfig(t *testing.T) {
	config := DefaultMorphConfig()
	assert.Equal(t, MorphNone, config.Operation)
	assert.Equal(t, 1, config.Radius)
	assert.Equal(t, 1, config.Iterations)
}

func TestDilate_SinglePixel(t *testing.T) {
	m := maskFromRows(
		".....",
		".....",
		"..#..",
		".....",
		".....",
	)
	got := Dilate(m, 1, 0)
	assert.Equal(t, []string{
		".....",
		".###.",
		".###.",
		".###.",
		".....",
	}, maskRows(got))
	assert.Equal(t, 1, m.Count(), "input must not be modified")
}

func TestErode_Block(t *testing.T) {
	m := maskFromRows(
		".....",
		".###.",
		".###.",
		".###.",
		".....",
	)
	got := Erode(m, 1, 0)
	assert.Equal(t, []string{
		".....",
		".....",
		"..#..",
		".....",
		".....",
	}, maskRows(got))
}

func TestErode_IgnoresOutOfGridNeighbours(t *testing.T) {
	full := NewMaskFilled(testGeom(6, 4), true)
	assert.Equal(t, full.Count(), Erode(full, 2, 0).Count())
}

func TestErode_LargeRadiusRemovesEverything(t *testing.T) {
	m := maskFromRows(
		"####.",
		"####.",
		"####.",
	)
	assert.Equal(t, 0, Erode(m, 5, 0).Count())
}

func TestRadiusZeroIsNoOp(t *testing.T) {
	m := maskFromRows("#.#", ".#.", "#..")
	for _, op := range []func(*Mask, int, int) *Mask{Erode, Dilate, Open, Close} {
		got := op(m, 0, 0)
		assert.True(t, got.Equal(m))
		assert.NotSame(t, m, got)
	}
}

func TestOpen_RemovesIsolatedPixel(t *testing.T) {
	m := maskFromRows(
		"#.......",
		"....###.",
		"....###.",
		"....###.",
	)
	got := Open(m, 1, 0)
	assert.Equal(t, []string{
		"........",
		"....###.",
		"....###.",
		"....###.",
	}, maskRows(got))
}

func TestClose_FillsGap(t *testing.T) {
	m := maskFromRows(
		"........",
		"........",
		"..##.#..",
		"..##.#..",
		"........",
		"........",
	)
	got := Close(m, 1, 0)
	assert.Equal(t, []string{
		"........",
		"........",
		"..####..",
		"..####..",
		"........",
		"........",
	}, maskRows(got))
}

func TestApplyMorphologicalOperation(t *testing.T) {
	m := maskFromRows(
		".......",
		".......",
		"...#...",
		".......",
		".......",
	)
	tests := []struct {
		name   string
		config MorphConfig
		want   int
	}{
		{"none", MorphConfig{Operation: MorphNone, Radius: 1, Iterations: 1}, 1},
		{"dilate once", MorphConfig{Operation: MorphDilate, Radius: 1, Iterations: 1}, 9},
		{"dilate twice", MorphConfig{Operation: MorphDilate, Radius: 1, Iterations: 2}, 25},
		{"erode", MorphConfig{Operation: MorphErode, Radius: 1, Iterations: 1}, 0},
		{"opening", MorphConfig{Operation: MorphOpening, Radius: 1, Iterations: 1}, 0},
		{"closing", MorphConfig{Operation: MorphClosing, Radius: 1, Iterations: 1}, 1},
		{"zero iterations", MorphConfig{Operation: MorphDilate, Radius: 1, Iterations: 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyMorphologicalOperation(m, tt.config)
			assert.Equal(t, tt.want, got.Count())
			assert.NotSame(t, m, got)
		})
	}
}

func TestSeparableMatchesBruteForce(t *testing.T) {
	m := maskFromRows(
		"##..#....#",
		"#...##...#",
		"....#..###",
		".#........",
		"###..#.#.#",
		".#...###..",
	)
	for r := 1; r <= 3; r++ {
		assert.True(t, bruteForce(m, r, true).Equal(Erode(m, r, 0)), "erode r=%d", r)
		assert.True(t, bruteForce(m, r, false).Equal(Dilate(m, r, 0)), "dilate r=%d", r)
	}
}

// bruteForce evaluates the square window directly, ignoring out-of-grid pixels.
func bruteForce(m *Mask, r int, erode bool) *Mask {
	out := NewMask(m.Geometry)
	for y := range m.Height {
		for x := range m.Width {
			v := erode
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
						continue
					}
					if erode && !m.At(nx, ny) {
						v = false
					}
					if !erode && m.At(nx, ny) {
						v = true
					}
				}
			}
			out.Set(x, y, v)
		}
	}
	return out
}

package detector

import (
	"testing"

	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/MeKo-Tech/shipscan/internal/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestClean_RadiusZeroPassThrough(t *testing.T) {
	m := testutil.MaskFromRows("#..", ".#.", "..#")
	got := Clean(m, 0, 0)
	assert.True(t, got.Equal(m))
	assert.NotSame(t, m, got)
}

func TestClean_ClosesThenOpens(t *testing.T) {
	m := testutil.MaskFromRows(
		"............",
		"............",
		"..##.##.....",
		"..##.##.....",
		"..##.##.....",
		"............",
		"............",
		"............",
		".........#..",
		"............",
		"............",
	)
	got := Clean(m, 1, 0)
	// The one-pixel gap is bridged and the lone pixel is removed.
	assert.Equal(t, []string{
		"............",
		"............",
		"..#####.....",
		"..#####.....",
		"..#####.....",
		"............",
		"............",
		"............",
		"............",
		"............",
		"............",
	}, testutil.MaskRows(got))
}

func TestClean_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)
	g := testutil.Geometry(24, 20, 10)

	properties.Property("Clean(Clean(m)) == Clean(m)", prop.ForAll(
		func(seed int64, density float64, radius int) bool {
			m := testutil.RandomMask(g, density, seed)
			once := Clean(m, radius, 0)
			return Clean(once, radius, 0).Equal(once)
		},
		gen.Int64(),
		gen.Float64Range(0.05, 0.7),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

func TestClean_DoesNotModifyInput(t *testing.T) {
	m := testutil.RandomMask(testutil.Geometry(16, 16, 10), 0.4, 7)
	before := m.Clone()
	_ = Clean(m, 2, 0)
	assert.True(t, before.Equal(m))
	_ = raster.Close(m, 1, 0)
	assert.True(t, before.Equal(m))
}

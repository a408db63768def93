package detector

import "github.com/MeKo-Tech/shipscan/internal/raster"

// Clean closes then opens the candidate mask with the same square radius.
// The order matters: opening first would drop fragments that closing joins.
// A radius of 0 returns an unchanged copy.
func Clean(candidates *raster.Mask, radius, workers int) *raster.Mask {
	if radius <= 0 {
		return candidates.Clone()
	}
	closed := raster.ApplyMorphologicalOperation(candidates, raster.MorphConfig{
		Operation: raster.MorphClosing, Radius: radius, Iterations: 1, Workers: workers,
	})
	return raster.ApplyMorphologicalOperation(closed, raster.MorphConfig{
		Operation: raster.MorphOpening, Radius: radius, Iterations: 1, Workers: workers,
	})
}

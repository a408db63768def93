package detector

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/shipscan/internal/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// TestTraceComponent_AreaAndBound verifies that traced polygons cover exactly
// the component's pixels and span exactly its pixel bounding box.
func TestTraceComponent_AreaAndBound(t *testing.T) {
	properties := gopter.NewProperties(nil)
	g := testutil.Geometry(18, 15, 10)

	properties.Property("polygon area equals pixel area, bound equals bbox", prop.ForAll(
		func(seed int64, density float64) bool {
			m := testutil.RandomMask(g, density, seed)
			lab := LabelComponents(m, 0, 1)
			for _, c := range lab.Components {
				poly := traceComponent(lab, c)
				if len(poly) == 0 || poly[0].Orientation() != orb.CCW {
					return false
				}
				for _, hole := range poly[1:] {
					if hole.Orientation() != orb.CW || !hole.Closed() {
						return false
					}
				}
				if math.Abs(planar.Area(poly)-float64(c.Size)*100) > 1e-6 {
					return false
				}
				want := orb.Bound{Min: lab.Corner(c.MinX, c.MaxY+1), Max: lab.Corner(c.MaxX+1, c.MinY)}
				if !poly.Bound().Equal(want) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Float64Range(0.2, 0.8),
	))

	properties.TestingRun(t)
}

package detector

import "github.com/paulmach/orb"

// Edge directions in pixel space (y grows downwards).
const (
	dirE = iota
	dirS
	dirW
	dirN
)

var (
	dirDX = [4]int{1, 0, -1, 0}
	dirDY = [4]int{0, 1, 0, -1}
)

// vertexStep is one directed boundary edge: it leaves vertex v heading d.
type vertexStep struct {
	v int
	d int
}

// edgeGraph holds the directed boundary edges of one component on the pixel
// corner lattice of its bounding box. Each edge keeps the component on its
// right, so outer boundaries run clockwise on screen and holes counter-
// clockwise.
type edgeGraph struct {
	minX, minY int
	vw         int     // vertices per row
	edges      []uint8 // outgoing direction bits per vertex
	used       []uint8
}

func newEdgeGraph(lab *Labeling, c Component) *edgeGraph {
	g := &edgeGraph{minX: c.MinX, minY: c.MinY, vw: c.Width() + 1}
	g.edges = make([]uint8, g.vw*(c.Height()+1))
	g.used = make([]uint8, len(g.edges))

	in := func(x, y int) bool { return lab.LabelOf(x, y) == c.Label }
	for py := c.MinY; py <= c.MaxY; py++ {
		for px := c.MinX; px <= c.MaxX; px++ {
			if !in(px, py) {
				continue
			}
			if !in(px, py-1) {
				g.add(px, py, dirE)
			}
			if !in(px+1, py) {
				g.add(px+1, py, dirS)
			}
			if !in(px, py+1) {
				g.add(px+1, py+1, dirW)
			}
			if !in(px-1, py) {
				g.add(px, py+1, dirN)
			}
		}
	}
	return g
}

func (g *edgeGraph) vertex(vx, vy int) int { return (vy-g.minY)*g.vw + (vx - g.minX) }

func (g *edgeGraph) coords(v int) (int, int) { return v%g.vw + g.minX, v/g.vw + g.minY }

func (g *edgeGraph) add(vx, vy, d int) { g.edges[g.vertex(vx, vy)] |= 1 << d }

// next picks the edge leaving v after arriving with direction in. At a
// pinch vertex (two diagonal pixels touching at a corner) the left turn wins,
// which joins diagonal neighbours into one boundary as 8-connectivity
// requires.
func (g *edgeGraph) next(v, in int) int {
	for _, d := range [3]int{(in + 3) % 4, in, (in + 1) % 4} {
		if g.edges[v]&(1<<d) != 0 {
			return d
		}
	}
	return -1
}

// cycle follows edges from (start, d0) until it is back at the start edge.
func (g *edgeGraph) cycle(start, d0 int) []vertexStep {
	steps := make([]vertexStep, 0, 16)
	v, d := start, d0
	for range 4 * len(g.edges) {
		g.used[v] |= 1 << d
		steps = append(steps, vertexStep{v: v, d: d})
		vx, vy := g.coords(v)
		v = g.vertex(vx+dirDX[d], vy+dirDY[d])
		d = g.next(v, d)
		if d < 0 || (v == start && d == d0) {
			break
		}
	}
	return steps
}

// corners keeps only the vertices where the boundary changes direction.
func corners(steps []vertexStep) []vertexStep {
	out := make([]vertexStep, 0, len(steps)/2+1)
	for k, s := range steps {
		prev := steps[(k+len(steps)-1)%len(steps)]
		if prev.d != s.d {
			out = append(out, s)
		}
	}
	return out
}

// traceComponent returns the boundary of component c as a polygon in ground
// coordinates. Vertices sit on pixel corners, so a single pixel becomes a
// square of one pixel's size. The outer ring is counter-clockwise and holes
// are clockwise in ground coordinates.
func traceComponent(lab *Labeling, c Component) orb.Polygon {
	g := newEdgeGraph(lab, c)

	// The top edge of the first pixel in raster order always lies on the
	// outer boundary.
	outer := g.cycle(g.vertex(c.FirstX, c.FirstY), dirE)
	poly := orb.Polygon{g.ring(lab, outer, orb.CCW)}

	for v, bits := range g.edges {
		for d := range 4 {
			if bits&(1<<d) == 0 || g.used[v]&(1<<d) != 0 {
				continue
			}
			poly = append(poly, g.ring(lab, g.cycle(v, d), orb.CW))
		}
	}
	return poly
}

func (g *edgeGraph) ring(lab *Labeling, steps []vertexStep, want orb.Orientation) orb.Ring {
	cs := corners(steps)
	r := make(orb.Ring, 0, len(cs)+1)
	for _, s := range cs {
		vx, vy := g.coords(s.v)
		r = append(r, lab.Corner(vx, vy))
	}
	if len(r) == 0 {
		return r
	}
	r = append(r, r[0])
	if r.Orientation() != want {
		r.Reverse()
	}
	return r
}

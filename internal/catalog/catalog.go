// Package catalog selects the radar acquisition a detection run works on.
//
// A Catalog answers one question: which scene over the region is closest in
// time to the target date, within a search window and matching the pass,
// polarisation and instrument-mode filters. FileCatalog answers it from a
// YAML manifest of scenes stored next to their raster files.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/paulmach/orb"
)

// ErrNoAcquisitionAvailable is returned when no scene matches a query. It is
// an expected outcome, not a failure of the catalog.
var ErrNoAcquisitionAvailable = errors.New("no acquisition available in search window")

// ErrInvalidQuery is returned for malformed queries.
var ErrInvalidQuery = errors.New("invalid acquisition query")

// Pass is the orbit direction of an acquisition.
type Pass string

const (
	PassAny        Pass = ""
	PassAscending  Pass = "ASCENDING"
	PassDescending Pass = "DESCENDING"
)

// ParsePass accepts "", "any", "ascending" or "descending" in any case.
func ParsePass(s string) (Pass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ANY":
		return PassAny, nil
	case string(PassAscending):
		return PassAscending, nil
	case string(PassDescending):
		return PassDescending, nil
	default:
		return "", fmt.Errorf("%w: unknown orbit pass %q", ErrInvalidQuery, s)
	}
}

// Defaults for the polarisation and instrument-mode filters.
const (
	DefaultPolarization = "VV"
	DefaultMode         = "IW"
)

// Query describes the acquisition a caller wants.
type Query struct {
	// Region must intersect the scene footprint. Nil matches every scene.
	Region orb.Geometry
	// Target is the date the caller wants imagery for.
	Target time.Time
	// Window is the largest allowed distance between Target and the
	// acquisition time. Zero means unlimited.
	Window time.Duration
	// Pass, Polarization and Mode filter scenes; empty values match all.
	Pass         Pass
	Polarization string
	Mode         string
}

// Validate checks that the query can be answered.
func (q Query) Validate() error {
	if q.Target.IsZero() {
		return fmt.Errorf("%w: missing target date", ErrInvalidQuery)
	}
	if q.Window < 0 {
		return fmt.Errorf("%w: negative search window %s", ErrInvalidQuery, q.Window)
	}
	return nil
}

// BBox is a footprint as [minX, minY, maxX, maxY] in ground coordinates.
type BBox [4]float64

// Bound converts the box into an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

// Acquisition is one radar scene.
type Acquisition struct {
	ID            string    `yaml:"id" json:"id"`
	Time          time.Time `yaml:"time" json:"time"`
	Pass          Pass      `yaml:"pass" json:"pass"`
	Mode          string    `yaml:"mode" json:"mode"`
	Polarizations []string  `yaml:"polarizations" json:"polarizations"`
	Footprint     BBox      `yaml:"footprint" json:"footprint"`

	// Path is the intensity raster, relative to the manifest directory.
	Path string `yaml:"path" json:"path"`
	// Linear marks rasters in linear power that must be converted to dB.
	Linear     bool     `yaml:"linear,omitempty" json:"linear,omitempty"`
	Geographic bool     `yaml:"geographic,omitempty" json:"geographic,omitempty"`
	Scale      float64  `yaml:"scale,omitempty" json:"scale,omitempty"`
	Offset     float64  `yaml:"offset,omitempty" json:"offset,omitempty"`
	NoData     *float64 `yaml:"nodata,omitempty" json:"nodata,omitempty"`

	dir string
}

// Matches reports whether the scene passes every filter of q except the
// time window.
func (a *Acquisition) Matches(q Query) bool {
	if q.Pass != PassAny && !strings.EqualFold(string(a.Pass), string(q.Pass)) {
		return false
	}
	if q.Mode != "" && !strings.EqualFold(a.Mode, q.Mode) {
		return false
	}
	if q.Polarization != "" && !slices.ContainsFunc(a.Polarizations, func(p string) bool {
		return strings.EqualFold(p, q.Polarization)
	}) {
		return false
	}
	if q.Region != nil && !a.Footprint.Bound().Intersects(q.Region.Bound()) {
		return false
	}
	return true
}

// RasterPath returns the intensity raster path resolved against the manifest.
func (a *Acquisition) RasterPath() string {
	if a.dir == "" || filepath.IsAbs(a.Path) {
		return a.Path
	}
	return filepath.Join(a.dir, a.Path)
}

// LoadIntensity reads the scene's intensity raster in decibels. Samples whose
// pixel centre falls outside region are set to no-data; a nil region keeps
// the whole scene.
func (a *Acquisition) LoadIntensity(region orb.Geometry, workers int) (*raster.Grid, error) {
	g, err := raster.Load(a.RasterPath(), raster.LoadOptions{
		Geographic: a.Geographic,
		Scale:      a.Scale,
		Offset:     a.Offset,
		NoData:     a.NoData,
	})
	if err != nil {
		return nil, fmt.Errorf("load acquisition %s: %w", a.ID, err)
	}

	inside, err := raster.RegionMask(g.Geometry, region, workers)
	if err != nil {
		return nil, err
	}
	nan := math.NaN()
	raster.ParallelBands(g.Height, workers, func(y0, y1 int) {
		for i := y0 * g.Width; i < y1*g.Width; i++ {
			switch {
			case !inside.Bits[i]:
				g.Data[i] = nan
			case a.Linear:
				g.Data[i] = toDecibels(g.Data[i])
			}
		}
	})
	return g, nil
}

// toDecibels converts linear power to dB; non-positive power is no-data.
func toDecibels(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return math.NaN()
	}
	return 10 * math.Log10(v)
}

// Catalog finds acquisitions.
type Catalog interface {
	// Search returns every matching scene, closest to q.Target first. An
	// empty result is not an error.
	Search(ctx context.Context, q Query) ([]*Acquisition, error)
	// Closest returns the matching scene nearest in time to q.Target, or
	// ErrNoAcquisitionAvailable.
	Closest(ctx context.Context, q Query) (*Acquisition, error)
}

// Rank orders scenes matching q by distance to q.Target. Ties go to the
// earlier acquisition, then to the smaller ID.
func Rank(scenes []*Acquisition, q Query) []*Acquisition {
	var out []*Acquisition
	for _, a := range scenes {
		if !a.Matches(q) {
			continue
		}
		if q.Window > 0 && absDuration(a.Time.Sub(q.Target)) > q.Window {
			continue
		}
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(x, y *Acquisition) int {
		dx, dy := absDuration(x.Time.Sub(q.Target)), absDuration(y.Time.Sub(q.Target))
		switch {
		case dx != dy:
			return cmpDuration(dx, dy)
		case !x.Time.Equal(y.Time):
			return x.Time.Compare(y.Time)
		default:
			return strings.Compare(x.ID, y.ID)
		}
	})
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func cmpDuration(a, b time.Duration) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

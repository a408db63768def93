package synth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// Catalog is an on-disk set of generated acquisitions sharing one
// occurrence raster.
type Catalog struct {
	ManifestPath   string
	OccurrencePath string
	Scenes         []*Scene
	Acquisitions   []*catalog.Acquisition
}

// WriteCatalog generates one scene per time into dir, alternating between
// descending and ascending passes, and writes scenes.yaml and
// occurrence.asc beside them. Scene i uses opts.Seed+i.
func WriteCatalog(dir string, opts SceneOptions, times []time.Time) (*Catalog, error) {
	if len(times) == 0 {
		return nil, errors.New("no acquisition times")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	out := &Catalog{
		ManifestPath:   filepath.Join(dir, "scenes.yaml"),
		OccurrencePath: filepath.Join(dir, "occurrence.asc"),
	}
	for i, t := range times {
		o := opts
		o.Seed = opts.Seed + int64(i)
		sc, err := Generate(o)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}
		if i == 0 {
			if err := writeGrid(out.OccurrencePath, sc.Occurrence); err != nil {
				return nil, err
			}
		}

		name := fmt.Sprintf("S1A_IW_GRDH_%s", t.UTC().Format("20060102T150405"))
		if err := writeGrid(filepath.Join(dir, name+".asc"), sc.Intensity); err != nil {
			return nil, err
		}
		pass := catalog.PassDescending
		if i%2 == 1 {
			pass = catalog.PassAscending
		}
		b := sc.Geometry.Bound()
		out.Scenes = append(out.Scenes, sc)
		out.Acquisitions = append(out.Acquisitions, &catalog.Acquisition{
			ID:            name,
			Time:          t.UTC(),
			Pass:          pass,
			Mode:          catalog.DefaultMode,
			Polarizations: []string{"VV", "VH"},
			Footprint:     catalog.BBox{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
			Path:          name + ".asc",
		})
	}
	if err := catalog.WriteManifest(out.ManifestPath, out.Acquisitions); err != nil {
		return nil, err
	}
	return out, nil
}

func writeGrid(path string, g *raster.Grid) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return raster.WriteAAIGrid(f, g)
}

package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/stretchr/testify/require"
)

// SceneFixture is an on-disk catalog with a water-occurrence raster, used by
// end-to-end tests.
type SceneFixture struct {
	Dir            string
	ManifestPath   string
	OccurrencePath string
	Geometry       raster.Geometry
	Acquired       time.Time
}

// AcquisitionDate is the acquisition time of the default fixture scene.
var AcquisitionDate = time.Date(2024, time.March, 14, 5, 48, 0, 0, time.UTC)

// WriteGrid stores g as an ESRI ASCII grid at path.
func WriteGrid(t *testing.T, path string, g *raster.Grid) {
	t.Helper()
	require.NoError(t, writeGrid(path, g))
}

func writeGrid(path string, g *raster.Grid) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return raster.WriteAAIGrid(f, g)
}

// WriteShipScene writes the canonical 20x20, 10 m scene: water everywhere
// (occurrence 100), background -10 dB and one 3x3 block of 5 dB whose
// upper-left pixel is (8, 8). The manifest lists it as one descending IW VV
// acquisition at AcquisitionDate.
func WriteShipScene(t *testing.T) SceneFixture {
	t.Helper()

	fx, err := WriteShipSceneDir(t.TempDir())
	require.NoError(t, err)
	return fx
}

// WriteShipSceneDir writes the WriteShipScene fixture into dir, for callers
// without a *testing.T.
func WriteShipSceneDir(dir string) (SceneFixture, error) {
	geom := Geometry(20, 20, 10)
	fx := SceneFixture{
		Dir:            dir,
		ManifestPath:   filepath.Join(dir, "scenes.yaml"),
		OccurrencePath: filepath.Join(dir, "occurrence.asc"),
		Geometry:       geom,
		Acquired:       AcquisitionDate,
	}

	if err := writeGrid(fx.OccurrencePath, raster.NewGridFilled(geom, 100)); err != nil {
		return fx, err
	}
	err := writeGrid(filepath.Join(dir, "s1_vv.asc"),
		GridWithBlocks(geom, -10, Block{X: 8, Y: 8, W: 3, H: 3, Value: 5}))
	if err != nil {
		return fx, err
	}

	b := geom.Bound()
	return fx, catalog.WriteManifest(fx.ManifestPath, []*catalog.Acquisition{{
		ID:            "S1A_IW_GRDH_20240314",
		Time:          AcquisitionDate,
		Pass:          catalog.PassDescending,
		Mode:          catalog.DefaultMode,
		Polarizations: []string{"VV", "VH"},
		Footprint:     catalog.BBox{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
		Path:          "s1_vv.asc",
	}})
}

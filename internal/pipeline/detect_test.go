package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/MeKo-Tech/shipscan/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sceneRequest struct {
	cat *catalog.FileCatalog
	req Request
}

func loadShipScene(t *testing.T) sceneRequest {
	t.Helper()
	fx := testutil.WriteShipScene(t)
	cat, err := catalog.LoadFileCatalog(fx.ManifestPath)
	require.NoError(t, err)
	occ, err := raster.Load(fx.OccurrencePath, raster.LoadOptions{})
	require.NoError(t, err)
	return sceneRequest{
		cat: cat,
		req: Request{
			Query: catalog.Query{
				Target:       fx.Acquired.Add(36 * time.Hour),
				Window:       72 * time.Hour,
				Pass:         catalog.PassDescending,
				Polarization: catalog.DefaultPolarization,
				Mode:         catalog.DefaultMode,
			},
			Occurrence: occ,
			Params:     shipParams(),
		},
	}
}

func TestDetect_FromCatalog(t *testing.T) {
	sc := loadShipScene(t)

	res, err := quietPipeline().Detect(context.Background(), sc.cat, sc.req)
	require.NoError(t, err)
	assert.Equal(t, "S1A_IW_GRDH_20240314", res.AcquisitionID)
	assert.True(t, res.AcquisitionDate.Equal(testutil.AcquisitionDate))
	require.Len(t, res.Candidates, 1)
	assert.InDelta(t, 42.43, res.Candidates[0].LengthM, 0.01)
	assert.InDelta(t, ox+95, res.Candidates[0].Centroid[0], 1e-6)
	assert.InDelta(t, oy-95, res.Candidates[0].Centroid[1], 1e-6)
}

func TestDetect_NoAcquisition(t *testing.T) {
	sc := loadShipScene(t)
	sc.req.Query.Target = testutil.AcquisitionDate.AddDate(0, 1, 0)
	sc.req.Query.Window = 24 * time.Hour

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	res, err := quietPipeline(WithMetrics(m)).Detect(context.Background(), sc.cat, sc.req)
	require.ErrorIs(t, err, ErrNoAcquisitionAvailable)
	require.ErrorIs(t, err, catalog.ErrNoAcquisitionAvailable)
	assert.Nil(t, res)
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.runs.WithLabelValues(OutcomeNoAcquisition)), 0)
	assert.Equal(t, 0, promtestutil.CollectAndCount(m.stageDuration), "no stage ran")
}

func TestDetect_FiltersByPass(t *testing.T) {
	sc := loadShipScene(t)
	sc.req.Query.Pass = catalog.PassAscending

	_, err := quietPipeline().Detect(context.Background(), sc.cat, sc.req)
	require.ErrorIs(t, err, ErrNoAcquisitionAvailable)
}

func TestDetect_InvalidRequest(t *testing.T) {
	sc := loadShipScene(t)
	p := quietPipeline()

	bad := sc.req
	bad.Query.Target = time.Time{}
	_, err := p.Detect(context.Background(), sc.cat, bad)
	require.ErrorIs(t, err, ErrInvalidParams)
	require.ErrorIs(t, err, catalog.ErrInvalidQuery)

	bad = sc.req
	bad.Params.MinPixels = 0
	_, err = p.Detect(context.Background(), sc.cat, bad)
	require.ErrorIs(t, err, ErrInvalidParams)
}

type failingCatalog struct{ err error }

func (c failingCatalog) Search(context.Context, catalog.Query) ([]*catalog.Acquisition, error) {
	return nil, c.err
}

func (c failingCatalog) Closest(context.Context, catalog.Query) (*catalog.Acquisition, error) {
	return nil, c.err
}

func TestDetect_CatalogFailure(t *testing.T) {
	sc := loadShipScene(t)
	boom := errors.New("catalog offline")

	_, err := quietPipeline().Detect(context.Background(), failingCatalog{err: boom}, sc.req)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoAcquisitionAvailable)
}

func TestDetect_MisalignedOccurrence(t *testing.T) {
	sc := loadShipScene(t)
	sc.req.Occurrence = raster.NewGridFilled(testutil.Geometry(10, 10, 10), 100)

	_, err := quietPipeline().Detect(context.Background(), sc.cat, sc.req)
	require.ErrorIs(t, err, raster.ErrMisaligned)
}

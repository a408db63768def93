package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/MeKo-Tech/shipscan/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

// sceneDate is a target date one day after the fixture acquisition.
const sceneDate = "2024-03-15"

func shipParams() pipeline.Params {
	p := pipeline.DefaultParams()
	p.ThresholdDB = 0
	p.MinPixels = 5
	p.MorphRadiusPx = 0
	p.MinLengthM = 10
	p.CoastErodePx = 0
	return p
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server over the on-disk ship scene. mutate may
// adjust the configuration before the server is created.
func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	fx := testutil.WriteShipScene(t)
	cat, err := catalog.LoadFileCatalog(fx.ManifestPath)
	require.NoError(t, err)
	occ, err := raster.Load(fx.OccurrencePath, raster.LoadOptions{})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	logger := quietLogger()
	cfg := Config{
		Catalog:    cat,
		Occurrence: occ,
		Pipeline: pipeline.New(
			pipeline.WithLogger(logger),
			pipeline.WithMetrics(pipeline.NewMetrics(reg)),
		),
		Params: shipParams(),
		Query: catalog.Query{
			Window:       72 * time.Hour,
			Pass:         catalog.PassAny,
			Polarization: catalog.DefaultPolarization,
			Mode:         catalog.DefaultMode,
		},
		Export:         pipeline.ExportOptions{},
		Parallel:       pipeline.ParallelConfig{MaxWorkers: 2},
		TimeoutSec:     30,
		Logger:         logger,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

// postJSON sends v as a JSON body through the server's routes.
func postJSON(t *testing.T, h http.Handler, path string, v any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func intPtr(v int) *int { return &v }

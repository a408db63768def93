package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MeKo-Tech/shipscan/internal/config"
	"github.com/MeKo-Tech/shipscan/internal/server"
	"github.com/MeKo-Tech/shipscan/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureConfig(fx testutil.SceneFixture) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Catalog.Manifest = fx.ManifestPath
	cfg.Catalog.Occurrence = fx.OccurrencePath
	cfg.Detection.ThresholdDB = 0
	cfg.Detection.MinPixels = 5
	cfg.Detection.MorphRadiusPx = 0
	cfg.Detection.MinLengthM = 10
	cfg.Detection.CoastErodePx = 0
	return &cfg
}

func TestNewDetectionServer(t *testing.T) {
	fx := testutil.WriteShipScene(t)
	srv, err := newDetectionServer(fixtureConfig(fx), prometheus.NewRegistry())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health server.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Scenes)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/detect",
		strings.NewReader(`{"date":"2024-03-15"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp server.DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Result.Candidates, 1)
	assert.InDelta(t, 42.43, resp.Result.Candidates[0].LengthM, 0.01)
}

func TestNewDetectionServerErrors(t *testing.T) {
	fx := testutil.WriteShipScene(t)

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad pass", func(c *config.Config) { c.Catalog.Pass = "sideways" }},
		{"missing manifest", func(c *config.Config) { c.Catalog.Manifest = fx.Dir + "/missing.yaml" }},
		{"no occurrence", func(c *config.Config) { c.Catalog.Occurrence = "" }},
		{"invalid params", func(c *config.Config) { c.Detection.MinPixels = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fixtureConfig(fx)
			tt.mutate(cfg)
			_, err := newDetectionServer(cfg, prometheus.NewRegistry())
			assert.Error(t, err)
		})
	}
}

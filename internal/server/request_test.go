package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/detector"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate(" 2024-03-15T06:30:00+01:00 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(time.Date(2024, time.March, 15, 5, 30, 0, 0, time.UTC)))

	for _, bad := range []string{"", "15/03/2024", "2024-13-01"} {
		_, err := parseDate(bad)
		assert.ErrorIs(t, err, errBadRequest, bad)
	}
}

func TestBuildRequest(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("defaults", func(t *testing.T) {
		req, err := s.buildRequest(DetectRequest{Date: sceneDate})
		require.NoError(t, err)
		assert.Equal(t, 72*time.Hour, req.Query.Window)
		assert.Equal(t, catalog.PassAny, req.Query.Pass)
		assert.Equal(t, catalog.DefaultPolarization, req.Query.Polarization)
		assert.Nil(t, req.Query.Region)
		assert.Equal(t, s.params, req.Params)
		assert.Same(t, s.occurrence, req.Occurrence)
	})

	t.Run("overrides", func(t *testing.T) {
		req, err := s.buildRequest(DetectRequest{
			Date:         sceneDate,
			WindowDays:   intPtr(0),
			Pass:         "Descending",
			Polarization: "VH",
			Mode:         "EW",
			Region:       squareRegion(0, 100, 0, 100),
			Params:       json.RawMessage(`{"threshold_db":3.5,"policy":"truncate"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), req.Query.Window)
		assert.Equal(t, catalog.PassDescending, req.Query.Pass)
		assert.Equal(t, "VH", req.Query.Polarization)
		assert.Equal(t, "EW", req.Query.Mode)
		assert.NotNil(t, req.Query.Region)
		assert.InDelta(t, 3.5, req.Params.ThresholdDB, 0)
		assert.Equal(t, detector.PolicyTruncate, req.Params.Policy)
		assert.Equal(t, s.params.MinPixels, req.Params.MinPixels)
	})

	t.Run("null region and params", func(t *testing.T) {
		req, err := s.buildRequest(DetectRequest{
			Date:   sceneDate,
			Region: json.RawMessage("null"),
			Params: json.RawMessage(" null "),
		})
		require.NoError(t, err)
		assert.Nil(t, req.Query.Region)
		assert.Equal(t, s.params, req.Params)
	})

	t.Run("workers stay with the server", func(t *testing.T) {
		req, err := s.buildRequest(DetectRequest{Date: sceneDate, Params: json.RawMessage(`{"workers":100000}`)})
		require.NoError(t, err)
		assert.Equal(t, s.params.Workers, req.Params.Workers)
	})

	t.Run("max pixels may only be lowered", func(t *testing.T) {
		req, err := s.buildRequest(DetectRequest{Date: sceneDate, Params: json.RawMessage(`{"max_pixels":10}`)})
		require.NoError(t, err)
		assert.Equal(t, 10, req.Params.MaxPixels)

		for _, raw := range []string{`{"max_pixels":0}`, `{"max_pixels":-1}`, `{"max_pixels":4000001}`} {
			_, err := s.buildRequest(DetectRequest{Date: sceneDate, Params: json.RawMessage(raw)})
			require.ErrorIs(t, err, errBadRequest, raw)
		}
	})

	t.Run("overrides leave the defaults alone", func(t *testing.T) {
		_, err := s.buildRequest(DetectRequest{Date: sceneDate, Params: json.RawMessage(`{"min_pixels":1}`)})
		require.NoError(t, err)
		assert.Equal(t, 5, s.params.MinPixels)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("closest: %w", catalog.ErrNoAcquisitionAvailable), http.StatusNotFound, codeNoAcquisition},
		{fmt.Errorf("%w: x", errBadRequest), http.StatusBadRequest, codeInvalidRequest},
		{fmt.Errorf("%w: x", pipeline.ErrInvalidParams), http.StatusBadRequest, codeInvalidRequest},
		{fmt.Errorf("%w: x", pipeline.ErrInvalidRegion), http.StatusBadRequest, codeInvalidRequest},
		{fmt.Errorf("%w: x", catalog.ErrInvalidQuery), http.StatusBadRequest, codeInvalidRequest},
		{fmt.Errorf("%w: x", raster.ErrUnsupportedRegion), http.StatusBadRequest, codeInvalidRequest},
		{fmt.Errorf("%w: x", raster.ErrMisaligned), http.StatusUnprocessableEntity, codeMisaligned},
		{fmt.Errorf("%w: x", detector.ErrVectorizationResourceExceeded), http.StatusUnprocessableEntity, codeResourceExceeded},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, codeTimeout},
		{context.Canceled, http.StatusServiceUnavailable, codeCancelled},
		{errors.New("disk on fire"), http.StatusInternalServerError, codeProcessingError},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}

	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, codeTimeout, outcome(context.DeadlineExceeded))
}

func TestRequestContext(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.TimeoutSec = 0 })
	ctx, cancel := s.requestContext(context.Background())
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)
	cancel()

	s = newTestServer(t, nil)
	ctx, cancel = s.requestContext(context.Background())
	defer cancel()
	deadline, hasDeadline := ctx.Deadline()
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, 5*time.Second)
}

func TestNewServer_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	_, err := NewServer(Config{Occurrence: s.occurrence, Params: s.params})
	require.Error(t, err)

	_, err = NewServer(Config{Catalog: s.catalog, Params: s.params})
	require.Error(t, err)

	bad := s.params
	bad.MinPixels = 0
	_, err = NewServer(Config{Catalog: s.catalog, Occurrence: s.occurrence, Params: bad})
	require.ErrorIs(t, err, pipeline.ErrInvalidParams)

	defaults, err := NewServer(Config{Catalog: s.catalog, Occurrence: s.occurrence, Params: s.params})
	require.NoError(t, err)
	assert.Equal(t, "*", defaults.corsOrigin)
	assert.Equal(t, int64(16), defaults.maxUploadMB)
	assert.NotNil(t, defaults.pipeline)
	assert.Positive(t, defaults.parallel.MaxWorkers)
}

package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/testutil"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// squareRegion is a GeoJSON polygon covering [x0, x1] x [y0, y1] metres
// east and south of the fixture origin.
func squareRegion(x0, x1, y0, y1 float64) json.RawMessage {
	ox, oy := testutil.OriginX, testutil.OriginY
	return json.RawMessage(fmt.Sprintf(
		`{"type":"Polygon","coordinates":[[[%[1]f,%[3]f],[%[2]f,%[3]f],[%[2]f,%[4]f],[%[1]f,%[4]f],[%[1]f,%[3]f]]]}`,
		ox+x0, ox+x1, oy-y1, oy-y0))
}

func TestServer_HealthHandler(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{name: "GET request success", method: http.MethodGet, expectedStatus: http.StatusOK, checkResponse: true},
		{name: "POST request not allowed", method: http.MethodPost, expectedStatus: http.StatusMethodNotAllowed},
		{name: "PUT request not allowed", method: http.MethodPut, expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			s.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.checkResponse {
				response := decodeResponse[HealthResponse](t, w)
				assert.Equal(t, "healthy", response.Status)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, 1, response.Scenes)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_ScenesHandler(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	t.Run("all scenes", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes", nil))
		require.Equal(t, http.StatusOK, w.Code)
		response := decodeResponse[ScenesResponse](t, w)
		assert.Equal(t, 1, response.Count)
		assert.Equal(t, "S1A_IW_GRDH_20240314", response.Scenes[0].ID)
	})

	t.Run("in window", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes?date="+sceneDate+"&window_days=2", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, decodeResponse[ScenesResponse](t, w).Count)
	})

	t.Run("outside window", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes?date=2024-05-01&window_days=2", nil))
		require.Equal(t, http.StatusOK, w.Code)
		response := decodeResponse[ScenesResponse](t, w)
		assert.Equal(t, 0, response.Count)
		assert.NotNil(t, response.Scenes)
	})

	t.Run("wrong pass", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes?date="+sceneDate+"&pass=ascending", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, decodeResponse[ScenesResponse](t, w).Count)
	})

	t.Run("bad window", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes?date="+sceneDate+"&window_days=two", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes?date=14.03.2024", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeInvalidRequest, decodeResponse[DetectResponse](t, w).Error)
	})
}

// remoteCatalog is a catalog without a scene listing, answering searches
// from a fixed set.
type remoteCatalog struct {
	scenes []*catalog.Acquisition
	err    error
}

func (c remoteCatalog) Search(_ context.Context, q catalog.Query) ([]*catalog.Acquisition, error) {
	if c.err != nil {
		return nil, c.err
	}
	return catalog.Rank(c.scenes, q), nil
}

func (c remoteCatalog) Closest(ctx context.Context, q catalog.Query) (*catalog.Acquisition, error) {
	found, err := c.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, catalog.ErrNoAcquisitionAvailable
	}
	return found[0], nil
}

func TestServer_ScenesHandler_AnyCatalog(t *testing.T) {
	scene := &catalog.Acquisition{
		ID:            "S1B_IW_GRDH_20240313",
		Time:          testutil.AcquisitionDate.Add(-24 * time.Hour),
		Pass:          catalog.PassAscending,
		Mode:          catalog.DefaultMode,
		Polarizations: []string{"VV"},
	}

	t.Run("search", func(t *testing.T) {
		h := newTestServer(t, func(cfg *Config) {
			cfg.Catalog = remoteCatalog{scenes: []*catalog.Acquisition{scene}}
		}).Handler()

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes?date="+sceneDate, nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := decodeResponse[ScenesResponse](t, w)
		require.Equal(t, 1, response.Count)
		assert.Equal(t, scene.ID, response.Scenes[0].ID)

		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "listing needs a scene index")
	})

	t.Run("search failure", func(t *testing.T) {
		h := newTestServer(t, func(cfg *Config) {
			cfg.Catalog = remoteCatalog{err: errors.New("catalog offline")}
		}).Handler()

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/scenes?date="+sceneDate, nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, codeProcessingError, decodeResponse[DetectResponse](t, w).Error)
	})
}

func TestServer_DetectHandler_JSON(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decodeResponse[DetectResponse](t, w)
	require.True(t, response.Success)
	require.NotNil(t, response.Result)
	assert.Equal(t, "S1A_IW_GRDH_20240314", response.Result.AcquisitionID)
	assert.True(t, response.Result.AcquisitionDate.Equal(testutil.AcquisitionDate))
	require.Len(t, response.Result.Candidates, 1)
	c := response.Result.Candidates[0]
	assert.InDelta(t, 42.43, c.LengthM, 0.01)
	assert.InDelta(t, testutil.OriginX+95, c.Centroid[0], 1e-6)
	assert.InDelta(t, testutil.OriginY-95, c.Centroid[1], 1e-6)
	assert.Equal(t, 9, c.PixelCount)
	assert.Len(t, response.Result.Timings, 6)
}

func TestServer_DetectHandler_Formats(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	t.Run("geojson from body", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Format: "geojson"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

		fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
		require.NoError(t, err)
		require.Len(t, fc.Features, 1)
		assert.Equal(t, "Point", fc.Features[0].Geometry.GeoJSONType())
	})

	t.Run("csv from query", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect?format=csv", DetectRequest{Date: sceneDate})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

		rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "length_m", rows[0][3])
		assert.Equal(t, "42.43", rows[1][3])
	})

	t.Run("text", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Format: "text"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), "S1A_IW_GRDH_20240314")
	})

	t.Run("unknown format", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Format: "kml"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeInvalidRequest, decodeResponse[DetectResponse](t, w).Error)
	})
}

func TestServer_DetectHandler_Region(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	t.Run("region around the ship", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Region: squareRegion(60, 140, 60, 140)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Len(t, decodeResponse[DetectResponse](t, w).Result.Candidates, 1)
	})

	t.Run("region away from the ship", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Region: squareRegion(0, 50, 0, 50)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Empty(t, decodeResponse[DetectResponse](t, w).Result.Candidates)
	})

	t.Run("region outside every footprint", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Region: squareRegion(5000, 5100, 5000, 5100)})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, codeNoAcquisition, decodeResponse[DetectResponse](t, w).Error)
	})

	t.Run("point region", func(t *testing.T) {
		region := json.RawMessage(`{"type":"Point","coordinates":[500100,3999900]}`)
		w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Region: region})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeInvalidRequest, decodeResponse[DetectResponse](t, w).Error)
	})
}

func TestServer_DetectHandler_Errors(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	tests := []struct {
		name           string
		request        DetectRequest
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "no acquisition in window",
			request:        DetectRequest{Date: "2024-06-01"},
			expectedStatus: http.StatusNotFound,
			expectedCode:   codeNoAcquisition,
		},
		{
			name:           "narrow window",
			request:        DetectRequest{Date: "2024-03-20", WindowDays: intPtr(1)},
			expectedStatus: http.StatusNotFound,
			expectedCode:   codeNoAcquisition,
		},
		{
			name:           "wrong pass",
			request:        DetectRequest{Date: sceneDate, Pass: "ascending"},
			expectedStatus: http.StatusNotFound,
			expectedCode:   codeNoAcquisition,
		},
		{
			name:           "missing date",
			request:        DetectRequest{},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequest,
		},
		{
			name:           "bad date",
			request:        DetectRequest{Date: "yesterday"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequest,
		},
		{
			name:           "bad pass",
			request:        DetectRequest{Date: sceneDate, Pass: "sideways"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequest,
		},
		{
			name:           "negative window",
			request:        DetectRequest{Date: sceneDate, WindowDays: intPtr(-1)},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequest,
		},
		{
			name:           "invalid params",
			request:        DetectRequest{Date: sceneDate, Params: json.RawMessage(`{"min_pixels":0}`)},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequest,
		},
		{
			name:           "unknown param",
			request:        DetectRequest{Date: sceneDate, Params: json.RawMessage(`{"min_pixel":3}`)},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequest,
		},
		{
			name:           "invalid policy",
			request:        DetectRequest{Date: sceneDate, Params: json.RawMessage(`{"policy":"ignore"}`)},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequest,
		},
		{
			name: "vectorization budget exceeded",
			request: DetectRequest{
				Date:   sceneDate,
				Params: json.RawMessage(`{"max_pixels":4,"policy":"fail"}`),
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   codeResourceExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h, "/v1/detect", tt.request)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			response := decodeResponse[DetectResponse](t, w)
			assert.False(t, response.Success)
			assert.Equal(t, tt.expectedCode, response.Error)
			assert.NotEmpty(t, response.Message)
		})
	}
}

func TestServer_DetectHandler_ParamsOverride(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	// The 3x3 block has a 42.43 m diagonal.
	w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Params: json.RawMessage(`{"min_length_m":50}`)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	response := decodeResponse[DetectResponse](t, w)
	assert.Empty(t, response.Result.Candidates)
	assert.InDelta(t, 50, response.Result.Params.MinLengthM, 0)
	assert.Equal(t, 5, response.Result.Params.MinPixels, "unset fields keep the server defaults")
}

func TestServer_DetectHandler_ResourceLimits(t *testing.T) {
	h := newTestServer(t, func(cfg *Config) {
		cfg.Params.MaxPixels = 4
		cfg.Params.Workers = 2
	}).Handler()

	// The 3x3 block exceeds the server's budget.
	w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, codeResourceExceeded, decodeResponse[DetectResponse](t, w).Error)

	tests := []struct {
		name   string
		params string
	}{
		{"disabled budget", `{"max_pixels":0,"workers":100000}`},
		{"raised budget", `{"max_pixels":100}`},
		{"negative budget", `{"max_pixels":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate, Params: json.RawMessage(tt.params)})
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			response := decodeResponse[DetectResponse](t, w)
			assert.Equal(t, codeInvalidRequest, response.Error)
			assert.Contains(t, response.Message, "max_pixels")
		})
	}

	t.Run("batch requests are checked too", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect/batch", BatchDetectRequest{Requests: []DetectRequest{
			{Date: sceneDate, Params: json.RawMessage(`{"max_pixels":0}`)},
		}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := decodeResponse[BatchDetectResponse](t, w)
		require.Len(t, response.Results, 1)
		assert.False(t, response.Results[0].Success)
		assert.Equal(t, codeInvalidRequest, response.Results[0].Error)
	})

	t.Run("client workers are ignored", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect", DetectRequest{
			Date:   sceneDate,
			Params: json.RawMessage(`{"max_pixels":4,"policy":"truncate","workers":100000}`),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := decodeResponse[DetectResponse](t, w)
		assert.Equal(t, 2, response.Result.Params.Workers)
		assert.True(t, response.Result.Partial)
	})
}

func TestServer_DetectHandler_Method(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/detect", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_DetectHandler_Body(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.MaxUploadMB = 1 })
	h := s.Handler()

	t.Run("malformed JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/detect", strings.NewReader("{")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeResponse[DetectResponse](t, w).Message, "failed to parse JSON request")
	})

	t.Run("too large", func(t *testing.T) {
		body := `{"date":"` + sceneDate + `","mode":"` + strings.Repeat("x", 2<<20) + `"}`
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/detect", strings.NewReader(body)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestServer_BatchDetectHandler(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	t.Run("mixed outcomes", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect/batch", BatchDetectRequest{Requests: []DetectRequest{
			{Date: sceneDate},
			{Date: "2024-06-01"},
			{Date: "not a date"},
			{Date: sceneDate, Params: json.RawMessage(`{"min_length_m":50}`)},
		}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		response := decodeResponse[BatchDetectResponse](t, w)
		require.Len(t, response.Results, 4)
		for i, r := range response.Results {
			assert.Equal(t, i, r.Index)
		}

		assert.True(t, response.Results[0].Success)
		assert.Len(t, response.Results[0].Result.Candidates, 1)
		assert.False(t, response.Results[1].Success)
		assert.Equal(t, codeNoAcquisition, response.Results[1].Error)
		assert.False(t, response.Results[2].Success)
		assert.Equal(t, codeInvalidRequest, response.Results[2].Error)
		assert.True(t, response.Results[3].Success)
		assert.Empty(t, response.Results[3].Result.Candidates)

		assert.False(t, response.Success)
		assert.Equal(t, BatchSummary{
			TotalItems:    4,
			Successful:    2,
			NoAcquisition: 1,
			Failed:        1,
			Candidates:    1,
			TotalDuration: response.Summary.TotalDuration,
		}, response.Summary)
	})

	t.Run("all found or missing", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect/batch", BatchDetectRequest{Requests: []DetectRequest{
			{Date: sceneDate},
			{Date: "2024-06-01"},
		}})
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodeResponse[BatchDetectResponse](t, w).Success,
			"a missing acquisition is not a failure")
	})

	t.Run("empty batch", func(t *testing.T) {
		w := postJSON(t, h, "/v1/detect/batch", BatchDetectRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too many items", func(t *testing.T) {
		reqs := make([]DetectRequest, maxBatchSize+1)
		for i := range reqs {
			reqs[i].Date = sceneDate
		}
		w := postJSON(t, h, "/v1/detect/batch", BatchDetectRequest{Requests: reqs})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeResponse[DetectResponse](t, w).Message, "batch size too large")
	})

	t.Run("method", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/detect/batch", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestServer_MetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	postJSON(t, h, "/v1/detect", DetectRequest{Date: sceneDate})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shipscan_runs_total")
}

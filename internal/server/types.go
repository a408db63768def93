package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBatchSize bounds the number of requests in one batch call.
const maxBatchSize = 10

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    *pipeline.Pipeline
	catalog     catalog.Catalog
	occurrence  *raster.Grid
	params      pipeline.Params
	query       catalog.Query
	export      pipeline.ExportOptions
	parallel    pipeline.ParallelConfig
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	rateLimiter *RateLimiter
	logger      *slog.Logger
	metrics     http.Handler
}

// Config holds server configuration.
type Config struct {
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int

	// Catalog and Occurrence are required.
	Catalog    catalog.Catalog
	Occurrence *raster.Grid
	// Pipeline defaults to pipeline.New().
	Pipeline *pipeline.Pipeline
	// Params are the defaults a request's params are applied over.
	Params pipeline.Params
	// Query supplies the default window and filters; Target is ignored.
	Query    catalog.Query
	Export   pipeline.ExportOptions
	Parallel pipeline.ParallelConfig

	RateLimit RateLimitConfig
	Logger    *slog.Logger
	// MetricsHandler serves /metrics; defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
	Scenes  int    `json:"scenes"`
}

// ScenesResponse is returned by /v1/scenes.
type ScenesResponse struct {
	Scenes []*catalog.Acquisition `json:"scenes"`
	Count  int                    `json:"count"`
}

// DetectRequest is the body of /v1/detect and each item of /v1/detect/batch
// and of a WebSocket session.
type DetectRequest struct {
	// Date is the target date, as 2006-01-02 or RFC 3339.
	Date string `json:"date"`
	// WindowDays overrides the default search window.
	WindowDays   *int   `json:"window_days,omitempty"`
	Pass         string `json:"pass,omitempty"`
	Polarization string `json:"polarization,omitempty"`
	Mode         string `json:"mode,omitempty"`
	// Region is a GeoJSON Polygon, MultiPolygon, Feature or FeatureCollection.
	Region json.RawMessage `json:"region,omitempty"`
	// Params holds pipeline parameters overriding the server defaults.
	Params json.RawMessage `json:"params,omitempty"`
	// Format selects json (default), geojson, csv or text. Batch and
	// WebSocket responses are always JSON.
	Format string `json:"format,omitempty"`
}

// DetectResponse wraps a single detection result.
type DetectResponse struct {
	Success bool             `json:"success"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

// BatchDetectRequest is the body of /v1/detect/batch.
type BatchDetectRequest struct {
	Requests []DetectRequest `json:"requests"`
}

// BatchDetectResult is one entry of a batch response.
type BatchDetectResult struct {
	Index   int              `json:"index"`
	Success bool             `json:"success"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

// BatchDetectResponse summarizes a batch call.
type BatchDetectResponse struct {
	Success bool                `json:"success"`
	Results []BatchDetectResult `json:"results"`
	Summary BatchSummary        `json:"summary"`
}

// BatchSummary provides summary statistics for a batch call.
type BatchSummary struct {
	TotalItems    int     `json:"total_items"`
	Successful    int     `json:"successful"`
	NoAcquisition int     `json:"no_acquisition"`
	Failed        int     `json:"failed"`
	Candidates    int     `json:"candidates"`
	TotalDuration float64 `json:"total_duration_seconds"`
}

// NewServer creates a server. It fails when the catalog, the occurrence
// raster or the default parameters are missing or invalid.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("server: catalog is required")
	}
	if cfg.Occurrence == nil {
		return nil, errors.New("server: water occurrence raster is required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		pipeline:    cfg.Pipeline,
		catalog:     cfg.Catalog,
		occurrence:  cfg.Occurrence,
		params:      cfg.Params,
		query:       cfg.Query,
		export:      cfg.Export,
		parallel:    cfg.Parallel,
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		rateLimiter: NewRateLimiter(cfg.RateLimit),
		logger:      cfg.Logger,
		metrics:     cfg.MetricsHandler,
	}
	if s.pipeline == nil {
		s.pipeline = pipeline.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 16
	}
	if s.parallel.MaxWorkers <= 0 {
		s.parallel = pipeline.DefaultParallelConfig()
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", s.metrics)
	mux.HandleFunc("/v1/scenes", s.corsMiddleware(s.scenesHandler))
	mux.HandleFunc("/v1/detect", s.corsMiddleware(s.rateLimitMiddleware(s.detectHandler)))
	mux.HandleFunc("/v1/detect/batch", s.corsMiddleware(s.rateLimitMiddleware(s.batchDetectHandler)))
	mux.HandleFunc("/v1/ws", s.rateLimitMiddleware(s.detectWebSocketHandler))
}

// Handler returns a mux with every route installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

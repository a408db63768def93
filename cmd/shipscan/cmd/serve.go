package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/config"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the detection API",
	Long: `Start an HTTP server that runs detections against the scene catalog.

The server provides the following endpoints:
  GET  /health          - Health check endpoint
  GET  /metrics         - Prometheus metrics
  GET  /v1/scenes       - List acquisitions (optionally around ?date=)
  POST /v1/detect       - Detect ship candidates for one date
  POST /v1/detect/batch - Detect ship candidates for several dates
  GET  /v1/ws           - WebSocket detection with per-stage progress

Examples:
  shipscan serve
  shipscan serve --port 8080
  shipscan serve --host 0.0.0.0 --port 3000 --requests-per-minute 30`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		srv, err := newDetectionServer(cfg, prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		host, port := cfg.Server.Host, cfg.Server.Port
		timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       timeout,
			// Detections may run for the whole request timeout before writing.
			WriteTimeout: timeout + 5*time.Second,
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go func() {
			slog.Info("Starting detection server", "host", host, "port", port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			return err
		}
		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// newDetectionServer wires the catalog, occurrence raster and pipeline
// described by cfg into a server. Pipeline metrics are registered with reg.
func newDetectionServer(cfg *config.Config, reg prometheus.Registerer) (*server.Server, error) {
	params, err := cfg.ToParams()
	if err != nil {
		return nil, err
	}
	pass, err := catalog.ParsePass(cfg.Catalog.Pass)
	if err != nil {
		return nil, err
	}
	// Requests supply the target date.
	query := catalog.Query{
		Window:       time.Duration(cfg.Catalog.WindowDays) * 24 * time.Hour,
		Pass:         pass,
		Polarization: cfg.Catalog.Polarization,
		Mode:         cfg.Catalog.Mode,
	}
	export, err := cfg.ToExportOptions()
	if err != nil {
		return nil, err
	}

	cat, err := catalog.LoadFileCatalog(cfg.Catalog.Manifest)
	if err != nil {
		return nil, err
	}
	occurrence, err := loadOccurrence(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("catalog loaded", "manifest", cfg.Catalog.Manifest, "scenes", len(cat.Scenes()))

	p := pipeline.New(
		pipeline.WithLogger(slog.Default()),
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
	)

	rl := cfg.Server.RateLimit
	return server.NewServer(server.Config{
		CORSOrigin:  cfg.Server.CORSOrigin,
		MaxUploadMB: int64(cfg.Server.MaxUploadMB),
		TimeoutSec:  cfg.Server.TimeoutSec,
		Catalog:     cat,
		Occurrence:  occurrence,
		Pipeline:    p,
		Params:      params,
		Query:       query,
		Export:      export,
		Parallel:    cfg.ToParallelConfig(),
		RateLimit: server.RateLimitConfig{
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			RequestsPerDay:    rl.RequestsPerDay,
			MaxDataPerDay:     int64(rl.MaxDataPerDayMB) * 1024 * 1024,
		},
		Logger: slog.Default(),
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)

	d := config.DefaultConfig()
	addDetectionFlags(serveCmd)
	serveCmd.Flags().StringP("host", "H", d.Server.Host, "server host")
	serveCmd.Flags().IntP("port", "p", d.Server.Port, "server port")
	serveCmd.Flags().String("cors-origin", d.Server.CORSOrigin, "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", d.Server.MaxUploadMB, "maximum request body size in MB")
	serveCmd.Flags().Int("timeout", d.Server.TimeoutSec, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", d.Server.ShutdownTimeout, "shutdown timeout in seconds")
	serveCmd.Flags().Int("window-days", d.Catalog.WindowDays, "default search window in days")
	serveCmd.Flags().Int("max-workers", d.Parallel.MaxWorkers, "concurrent runs per batch request")
	// Rate limiting flags; 0 disables a limit.
	serveCmd.Flags().Int("requests-per-minute", 0, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 0, "maximum requests per hour per client")
	serveCmd.Flags().Int("requests-per-day", 0, "maximum requests per day per client")
	serveCmd.Flags().Int("max-data-per-day-mb", 0, "maximum request data per day per client in MB")

	registerBindings(serveCmd, detectionBindings()...)
	registerBindings(serveCmd,
		flagBinding{"server.host", "host"},
		flagBinding{"server.port", "port"},
		flagBinding{"server.cors_origin", "cors-origin"},
		flagBinding{"server.max_upload_mb", "max-upload-size"},
		flagBinding{"server.timeout_sec", "timeout"},
		flagBinding{"server.shutdown_timeout", "shutdown-timeout"},
		flagBinding{"catalog.window_days", "window-days"},
		flagBinding{"parallel.max_workers", "max-workers"},
		flagBinding{"server.rate_limit.requests_per_minute", "requests-per-minute"},
		flagBinding{"server.rate_limit.requests_per_hour", "requests-per-hour"},
		flagBinding{"server.rate_limit.requests_per_day", "requests-per-day"},
		flagBinding{"server.rate_limit.max_data_per_day_mb", "max-data-per-day-mb"},
	)
}

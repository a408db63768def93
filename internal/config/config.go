package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/detector"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"golang.org/x/text/language"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"json", "csv", "geojson", "text"}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	params := pipeline.DefaultParams()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Catalog: CatalogConfig{
			Manifest:     "scenes.yaml",
			Pass:         "any",
			Polarization: catalog.DefaultPolarization,
			Mode:         catalog.DefaultMode,
			WindowDays:   6,
		},
		Detection: DetectionConfig{
			WaterOccMin:      params.WaterOccMin,
			ThresholdDB:      params.ThresholdDB,
			MinLengthM:       params.MinLengthM,
			CoastErodePx:     params.CoastErodePx,
			MorphRadiusPx:    params.MorphRadiusPx,
			MinPixels:        params.MinPixels,
			ComponentSizeCap: params.ComponentSizeCap,
			ScaleM:           params.ScaleM,
			MaxPixels:        params.MaxPixels,
			ResourcePolicy:   string(params.Policy),
			Workers:          params.Workers,
		},
		Parallel: ParallelConfig{
			MaxWorkers: pipeline.DefaultParallelConfig().MaxWorkers,
		},
		Output: OutputConfig{
			Format:   "text",
			Language: "en",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     256,
			TimeoutSec:      120,
			ShutdownTimeout: 10,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("%w: log level %q (must be one of: %s)",
			ErrInvalidConfig, c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("%w: output format %q (must be one of: %s)",
			ErrInvalidConfig, c.Output.Format, strings.Join(validFormats, ", "))
	}
	if c.Output.SimplifyM < 0 {
		return fmt.Errorf("%w: output.simplify_m must be >= 0, got %v", ErrInvalidConfig, c.Output.SimplifyM)
	}
	if _, err := c.ToExportOptions(); err != nil {
		return err
	}

	if c.Catalog.WindowDays < 0 {
		return fmt.Errorf("%w: catalog.window_days must be >= 0, got %d", ErrInvalidConfig, c.Catalog.WindowDays)
	}
	if _, err := catalog.ParsePass(c.Catalog.Pass); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := c.ToParams(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d (must be between 1 and 65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("%w: max upload size %d (must be positive)", ErrInvalidConfig, c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("%w: timeout %d (must be positive)", ErrInvalidConfig, c.Server.TimeoutSec)
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.RequestsPerDay < 0 || rl.MaxDataPerDayMB < 0 {
		return fmt.Errorf("%w: rate limits must be >= 0", ErrInvalidConfig)
	}
	if c.Parallel.MaxWorkers <= 0 {
		return fmt.Errorf("%w: parallel max workers %d (must be positive)", ErrInvalidConfig, c.Parallel.MaxWorkers)
	}
	return nil
}

// ToParams converts the detection section into validated pipeline parameters.
func (c *Config) ToParams() (pipeline.Params, error) {
	policy, err := detector.ParseResourcePolicy(c.Detection.ResourcePolicy)
	if err != nil {
		return pipeline.Params{}, fmt.Errorf("%w: %w", pipeline.ErrInvalidParams, err)
	}
	d := c.Detection
	p := pipeline.Params{
		WaterOccMin:      d.WaterOccMin,
		ThresholdDB:      d.ThresholdDB,
		MinLengthM:       d.MinLengthM,
		CoastErodePx:     d.CoastErodePx,
		MorphRadiusPx:    d.MorphRadiusPx,
		MinPixels:        d.MinPixels,
		ComponentSizeCap: d.ComponentSizeCap,
		ScaleM:           d.ScaleM,
		MaxPixels:        d.MaxPixels,
		Policy:           policy,
		Workers:          d.Workers,
	}
	if err := p.Validate(); err != nil {
		return pipeline.Params{}, err
	}
	return p, nil
}

// ToQuery builds an acquisition query around target from the catalog filters.
func (c *Config) ToQuery(target time.Time) (catalog.Query, error) {
	pass, err := catalog.ParsePass(c.Catalog.Pass)
	if err != nil {
		return catalog.Query{}, err
	}
	q := catalog.Query{
		Target:       target,
		Window:       time.Duration(c.Catalog.WindowDays) * 24 * time.Hour,
		Pass:         pass,
		Polarization: c.Catalog.Polarization,
		Mode:         c.Catalog.Mode,
	}
	return q, q.Validate()
}

// ToParallelConfig converts the parallel section for sweeps and batches.
func (c *Config) ToParallelConfig() pipeline.ParallelConfig {
	return pipeline.ParallelConfig{MaxWorkers: c.Parallel.MaxWorkers}
}

// ToExportOptions converts the output section into result export options.
func (c *Config) ToExportOptions() (pipeline.ExportOptions, error) {
	opts := pipeline.ExportOptions{
		Polygons:   c.Output.Polygons,
		SimplifyM:  c.Output.SimplifyM,
		IncludeRaw: c.Output.IncludeRaw,
		Language:   language.English,
	}
	if c.Output.Language != "" {
		tag, err := language.Parse(c.Output.Language)
		if err != nil {
			return opts, fmt.Errorf("%w: output language %q: %w", ErrInvalidConfig, c.Output.Language, err)
		}
		opts.Language = tag
	}
	return opts, nil
}

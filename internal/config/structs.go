//nolint:lll
package config

// Config represents the complete configuration for the shipscan application.
// It includes settings for all commands (detect, sweep, serve) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Scene catalog and water occurrence inputs
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog" json:"catalog"`

	// Detection parameters
	Detection DetectionConfig `mapstructure:"detection" yaml:"detection" json:"detection"`

	// Parallel processing
	Parallel ParallelConfig `mapstructure:"parallel" yaml:"parallel" json:"parallel"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// CatalogConfig selects where imagery comes from and which scenes qualify.
type CatalogConfig struct {
	Manifest     string `mapstructure:"manifest" yaml:"manifest" json:"manifest"`
	Occurrence   string `mapstructure:"occurrence" yaml:"occurrence" json:"occurrence"`
	Pass         string `mapstructure:"pass" yaml:"pass" json:"pass"`
	Polarization string `mapstructure:"polarization" yaml:"polarization" json:"polarization"`
	Mode         string `mapstructure:"mode" yaml:"mode" json:"mode"`
	WindowDays   int    `mapstructure:"window_days" yaml:"window_days" json:"window_days"`
}

// DetectionConfig mirrors pipeline.Params with config-file friendly types.
type DetectionConfig struct {
	WaterOccMin      float64 `mapstructure:"water_occ_min" yaml:"water_occ_min" json:"water_occ_min"`
	ThresholdDB      float64 `mapstructure:"threshold_db" yaml:"threshold_db" json:"threshold_db"`
	MinLengthM       float64 `mapstructure:"min_length_m" yaml:"min_length_m" json:"min_length_m"`
	CoastErodePx     int     `mapstructure:"coast_erode_px" yaml:"coast_erode_px" json:"coast_erode_px"`
	MorphRadiusPx    int     `mapstructure:"morph_radius_px" yaml:"morph_radius_px" json:"morph_radius_px"`
	MinPixels        int     `mapstructure:"min_pixels" yaml:"min_pixels" json:"min_pixels"`
	ComponentSizeCap int     `mapstructure:"component_size_cap" yaml:"component_size_cap" json:"component_size_cap"`
	ScaleM           float64 `mapstructure:"scale_m" yaml:"scale_m" json:"scale_m"`
	MaxPixels        int     `mapstructure:"max_pixels" yaml:"max_pixels" json:"max_pixels"`
	ResourcePolicy   string  `mapstructure:"resource_policy" yaml:"resource_policy" json:"resource_policy"`
	Workers          int     `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// ParallelConfig contains settings for sweeps and multi-request runs.
type ParallelConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format     string  `mapstructure:"format" yaml:"format" json:"format"`
	File       string  `mapstructure:"file" yaml:"file" json:"file"`
	Polygons   bool    `mapstructure:"polygons" yaml:"polygons" json:"polygons"`
	SimplifyM  float64 `mapstructure:"simplify_m" yaml:"simplify_m" json:"simplify_m"`
	IncludeRaw bool    `mapstructure:"include_raw" yaml:"include_raw" json:"include_raw"`
	Language   string  `mapstructure:"language" yaml:"language" json:"language"`
	MaskPNG    string  `mapstructure:"mask_png" yaml:"mask_png" json:"mask_png"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds per-client usage of the server. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay    int `mapstructure:"requests_per_day" yaml:"requests_per_day" json:"requests_per_day"`
	MaxDataPerDayMB   int `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

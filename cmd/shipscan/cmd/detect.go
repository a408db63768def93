package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/config"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

// detectCmd represents the detect command.
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect ship candidates in one or more acquisitions",
	Long: `Detect ship candidates for a target date.

The acquisition closest in time to each --date is taken from the scene
manifest. Alternatively --intensity names a backscatter raster directly and
the catalog is not consulted. Several --date values are processed in
parallel; their results are reported in the order given.

When no acquisition lies within the search window the command exits with
status 3.

Examples:
  shipscan detect --date 2024-03-15
  shipscan detect --date 2024-03-15 --region harbour.geojson --format geojson --polygons
  shipscan detect --date 2024-03-01 --date 2024-03-13 --format json
  shipscan detect --intensity s1_vv.asc --occurrence occurrence.asc --threshold-db 0`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runDetect,
}

func runDetect(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	params, err := cfg.ToParams()
	if err != nil {
		return err
	}
	format, err := pipeline.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	export, err := cfg.ToExportOptions()
	if err != nil {
		return err
	}

	dates, _ := cmd.Flags().GetStringSlice("date")
	intensityPath, _ := cmd.Flags().GetString("intensity")
	regionPath, _ := cmd.Flags().GetString("region")

	var region orb.Geometry
	if regionPath != "" {
		if region, err = pipeline.LoadRegion(regionPath); err != nil {
			return err
		}
	}
	occurrence, err := loadOccurrence(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	p := pipeline.New(pipeline.WithLogger(slog.Default()))

	if intensityPath != "" {
		linear, _ := cmd.Flags().GetBool("linear")
		res, err := detectFromRaster(ctx, p, intensityPath, linear, dates, occurrence, region, params)
		if err != nil {
			return err
		}
		return writeResult(cmd, cfg, res, format, export)
	}

	if len(dates) == 0 {
		return errors.New("either --date or --intensity is required")
	}
	cat, err := catalog.LoadFileCatalog(cfg.Catalog.Manifest)
	if err != nil {
		return err
	}
	reqs := make([]pipeline.Request, len(dates))
	for i, d := range dates {
		target, err := parseDate(d)
		if err != nil {
			return err
		}
		q, err := cfg.ToQuery(target)
		if err != nil {
			return err
		}
		q.Region = region
		reqs[i] = pipeline.Request{Query: q, Occurrence: occurrence, Params: params}
	}

	if len(reqs) == 1 {
		res, err := p.Detect(ctx, cat, reqs[0])
		if errors.Is(err, pipeline.ErrNoAcquisitionAvailable) {
			return fmt.Errorf("no acquisition available within %d days of %s: %w",
				cfg.Catalog.WindowDays, dates[0], err)
		}
		if err != nil {
			return err
		}
		return writeResult(cmd, cfg, res, format, export)
	}

	pc := cfg.ToParallelConfig()
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		pc.ProgressCallback = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "detect ")
	}
	items, err := p.DetectMany(ctx, cat, reqs, pc)
	if err != nil {
		return err
	}
	return writeBatch(cmd, cfg, items, dates, format, export)
}

// detectFromRaster runs the pipeline on an intensity raster named on the
// command line. The optional single date is recorded as acquisition time.
func detectFromRaster(
	ctx context.Context,
	p *pipeline.Pipeline,
	path string,
	linear bool,
	dates []string,
	occurrence *raster.Grid,
	region orb.Geometry,
	params pipeline.Params,
) (*pipeline.Result, error) {
	if len(dates) > 1 {
		return nil, errors.New("--intensity takes at most one --date")
	}
	acq := &catalog.Acquisition{
		ID:     rasterID(path),
		Path:   path,
		Linear: linear,
	}
	if len(dates) == 1 {
		t, err := parseDate(dates[0])
		if err != nil {
			return nil, err
		}
		acq.Time = t
	}
	intensity, err := acq.LoadIntensity(region, params.Workers)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, params, pipeline.Inputs{
		Intensity:       intensity,
		Occurrence:      occurrence,
		Region:          region,
		AcquisitionID:   acq.ID,
		AcquisitionDate: acq.Time,
	})
}

// rasterID names an acquisition read from path after the file.
func rasterID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func loadOccurrence(cfg *config.Config) (*raster.Grid, error) {
	if cfg.Catalog.Occurrence == "" {
		return nil, errors.New("a water occurrence raster is required (--occurrence or catalog.occurrence)")
	}
	return raster.Load(cfg.Catalog.Occurrence, raster.LoadOptions{})
}

// parseDate accepts 2006-01-02 or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}

// outputWriter returns the configured output file, or stdout.
func outputWriter(cmd *cobra.Command, cfg *config.Config) (io.Writer, func() error, error) {
	if cfg.Output.File == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(cfg.Output.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

func writeResult(
	cmd *cobra.Command,
	cfg *config.Config,
	res *pipeline.Result,
	format pipeline.Format,
	export pipeline.ExportOptions,
) error {
	w, closeFn, err := outputWriter(cmd, cfg)
	if err != nil {
		return err
	}
	if err := pipeline.Write(w, res, format, export); err != nil {
		_ = closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}

	if cfg.Output.MaskPNG != "" {
		f, err := os.Create(cfg.Output.MaskPNG)
		if err != nil {
			return fmt.Errorf("failed to create mask image: %w", err)
		}
		if err := pipeline.WriteMaskPNG(f, res); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		slog.Info("candidate mask written", "path", cfg.Output.MaskPNG)
	}
	return nil
}

// writeBatch reports a multi-date run. JSON holds every item; text prints
// one summary per date. Other formats describe a single result only.
func writeBatch(
	cmd *cobra.Command,
	cfg *config.Config,
	items []pipeline.BatchItem,
	dates []string,
	format pipeline.Format,
	export pipeline.ExportOptions,
) error {
	if format != pipeline.FormatJSON && format != pipeline.FormatText {
		return fmt.Errorf("format %s supports a single --date; use json or text", format)
	}
	w, closeFn, err := outputWriter(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	if format == pipeline.FormatJSON {
		data, err := pipeline.ToJSONBatch(items)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	for i, it := range items {
		_, _ = fmt.Fprintf(w, "== %s ==\n", dates[i])
		switch {
		case it.NoAcquisition():
			_, _ = fmt.Fprintf(w, "No acquisition within %d days\n\n", cfg.Catalog.WindowDays)
		case it.Err != nil:
			_, _ = fmt.Fprintf(w, "Error: %v\n\n", it.Err)
		default:
			_, _ = fmt.Fprintln(w, pipeline.ToText(it.Result, export))
		}
	}
	return nil
}

func addDetectionFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	cmd.Flags().String("manifest", d.Catalog.Manifest, "scene manifest (YAML)")
	cmd.Flags().String("occurrence", "", "water occurrence raster (percent, 0..100)")
	cmd.Flags().Float64("threshold-db", d.Detection.ThresholdDB, "backscatter threshold in dB")
	cmd.Flags().Float64("water-occ-min", d.Detection.WaterOccMin, "minimum water occurrence in percent")
	cmd.Flags().Float64("min-length-m", d.Detection.MinLengthM, "minimum candidate length in metres")
	cmd.Flags().Int("coast-erode-px", d.Detection.CoastErodePx, "water mask erosion radius in pixels")
	cmd.Flags().Int("morph-radius-px", d.Detection.MorphRadiusPx, "close/open radius in pixels")
	cmd.Flags().Int("min-pixels", d.Detection.MinPixels, "speckle filter minimum region size")
	cmd.Flags().Int("component-size-cap", d.Detection.ComponentSizeCap, "stop counting region sizes at this many pixels")
	cmd.Flags().Float64("scale-m", d.Detection.ScaleM, "vectorization scale in metres (0 = native)")
	cmd.Flags().Int("max-pixels", d.Detection.MaxPixels, "maximum pixels to vectorize (0 = unlimited)")
	cmd.Flags().String("resource-policy", d.Detection.ResourcePolicy, "when max-pixels is exceeded: fail or truncate")
	cmd.Flags().Int("workers", d.Detection.Workers, "raster workers per run (0 = one per CPU)")
}

func detectionBindings() []flagBinding {
	return []flagBinding{
		{"catalog.manifest", "manifest"},
		{"catalog.occurrence", "occurrence"},
		{"detection.threshold_db", "threshold-db"},
		{"detection.water_occ_min", "water-occ-min"},
		{"detection.min_length_m", "min-length-m"},
		{"detection.coast_erode_px", "coast-erode-px"},
		{"detection.morph_radius_px", "morph-radius-px"},
		{"detection.min_pixels", "min-pixels"},
		{"detection.component_size_cap", "component-size-cap"},
		{"detection.scale_m", "scale-m"},
		{"detection.max_pixels", "max-pixels"},
		{"detection.resource_policy", "resource-policy"},
		{"detection.workers", "workers"},
	}
}

func init() {
	rootCmd.AddCommand(detectCmd)

	d := config.DefaultConfig()
	addDetectionFlags(detectCmd)
	detectCmd.Flags().StringSlice("date", nil, "target date (YYYY-MM-DD or RFC 3339); repeat for several dates")
	detectCmd.Flags().Int("window-days", d.Catalog.WindowDays, "search window around the target date in days")
	detectCmd.Flags().String("pass", d.Catalog.Pass, "orbit pass: any, ascending or descending")
	detectCmd.Flags().String("polarization", d.Catalog.Polarization, "required polarisation")
	detectCmd.Flags().String("mode", d.Catalog.Mode, "required instrument mode")
	detectCmd.Flags().String("intensity", "", "intensity raster to use instead of the catalog")
	detectCmd.Flags().Bool("linear", false, "the --intensity raster holds linear power, not dB")
	detectCmd.Flags().String("region", "", "GeoJSON file limiting detection to a region")
	detectCmd.Flags().StringP("format", "f", d.Output.Format, "output format (text, json, csv, geojson)")
	detectCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	detectCmd.Flags().Bool("polygons", false, "include candidate outlines in GeoJSON output")
	detectCmd.Flags().Float64("simplify-m", 0, "simplify exported outlines to this tolerance")
	detectCmd.Flags().Bool("include-raw", false, "export every vectorized region, not only candidates")
	detectCmd.Flags().String("language", d.Output.Language, "number formatting language for text output")
	detectCmd.Flags().String("mask-png", "", "write the candidate mask to this PNG file")
	detectCmd.Flags().Int("max-workers", d.Parallel.MaxWorkers, "concurrent runs for several dates")
	detectCmd.Flags().BoolP("quiet", "q", false, "no progress bar for several dates")

	registerBindings(detectCmd, detectionBindings()...)
	registerBindings(detectCmd,
		flagBinding{"catalog.window_days", "window-days"},
		flagBinding{"catalog.pass", "pass"},
		flagBinding{"catalog.polarization", "polarization"},
		flagBinding{"catalog.mode", "mode"},
		flagBinding{"output.format", "format"},
		flagBinding{"output.file", "output"},
		flagBinding{"output.polygons", "polygons"},
		flagBinding{"output.simplify_m", "simplify-m"},
		flagBinding{"output.include_raw", "include-raw"},
		flagBinding{"output.language", "language"},
		flagBinding{"output.mask_png", "mask-png"},
		flagBinding{"parallel.max_workers", "max-workers"},
	)
}

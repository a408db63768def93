package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/config"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
)

// sweepCmd represents the sweep command.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run detection over a range of backscatter thresholds",
	Long: `Run the pipeline once per threshold on the same acquisition and
report how the candidate count responds. Runs execute in parallel; the
report keeps the order of --thresholds.

Examples:
  shipscan sweep --intensity s1_vv.asc --occurrence occurrence.asc --thresholds -5,-2.5,0,2.5,5
  shipscan sweep --date 2024-03-15 --thresholds -3,0,3 --format json`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	base, err := cfg.ToParams()
	if err != nil {
		return err
	}
	format, err := pipeline.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	if format != pipeline.FormatJSON && format != pipeline.FormatText {
		return fmt.Errorf("sweep supports json and text output, not %s", format)
	}

	thresholds, _ := cmd.Flags().GetFloat64Slice("thresholds")
	if len(thresholds) == 0 {
		return errors.New("at least one threshold is required")
	}
	intensityPath, _ := cmd.Flags().GetString("intensity")
	date, _ := cmd.Flags().GetString("date")
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

	var acq *catalog.Acquisition
	switch {
	case intensityPath != "":
		linear, _ := cmd.Flags().GetBool("linear")
		acq = &catalog.Acquisition{ID: rasterID(intensityPath), Path: intensityPath, Linear: linear}
		if date != "" {
			if acq.Time, err = parseDate(date); err != nil {
				return err
			}
		}
	case date != "":
		target, err := parseDate(date)
		if err != nil {
			return err
		}
		q, err := cfg.ToQuery(target)
		if err != nil {
			return err
		}
		q.Region = region
		cat, err := catalog.LoadFileCatalog(cfg.Catalog.Manifest)
		if err != nil {
			return err
		}
		if acq, err = cat.Closest(ctx, q); err != nil {
			return err
		}
	default:
		return errors.New("either --date or --intensity is required")
	}

	intensity, err := acq.LoadIntensity(region, base.Workers)
	if err != nil {
		return err
	}
	in := pipeline.Inputs{
		Intensity:       intensity,
		Occurrence:      occurrence,
		Region:          region,
		AcquisitionID:   acq.ID,
		AcquisitionDate: acq.Time,
	}

	pc := cfg.ToParallelConfig()
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		pc.ProgressCallback = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "sweep ")
	}
	p := pipeline.New(pipeline.WithLogger(slog.Default()))
	items, err := p.RunSweep(ctx, in, pipeline.ThresholdSweep(base, thresholds), pc)
	if err != nil {
		return err
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

	_, _ = fmt.Fprintf(w, "Acquisition: %s\n\n", acq.ID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "THRESHOLD_DB\tBRIGHT_PX\tREGIONS\tCANDIDATES\tTIME")
	for i, it := range items {
		if it.Err != nil {
			_, _ = fmt.Fprintf(tw, "%.2f\terror: %v\t\t\t\n", thresholds[i], it.Err)
			continue
		}
		r := it.Result
		_, _ = fmt.Fprintf(tw, "%.2f\t%d\t%d\t%d\t%v\n", thresholds[i],
			r.Diagnostics.ThresholdPixels, r.Diagnostics.RawCandidates, len(r.Candidates),
			r.Total().Round(time.Microsecond))
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	d := config.DefaultConfig()
	addDetectionFlags(sweepCmd)
	sweepCmd.Flags().Float64Slice("thresholds", nil, "comma-separated thresholds in dB")
	sweepCmd.Flags().String("date", "", "target date for a catalog acquisition")
	sweepCmd.Flags().Int("window-days", d.Catalog.WindowDays, "search window around the target date in days")
	sweepCmd.Flags().String("pass", d.Catalog.Pass, "orbit pass: any, ascending or descending")
	sweepCmd.Flags().String("intensity", "", "intensity raster to use instead of the catalog")
	sweepCmd.Flags().Bool("linear", false, "the --intensity raster holds linear power, not dB")
	sweepCmd.Flags().String("region", "", "GeoJSON file limiting detection to a region")
	sweepCmd.Flags().StringP("format", "f", d.Output.Format, "output format (text or json)")
	sweepCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	sweepCmd.Flags().Int("max-workers", d.Parallel.MaxWorkers, "concurrent runs")
	sweepCmd.Flags().BoolP("quiet", "q", false, "no progress bar")

	registerBindings(sweepCmd, detectionBindings()...)
	registerBindings(sweepCmd,
		flagBinding{"catalog.window_days", "window-days"},
		flagBinding{"catalog.pass", "pass"},
		flagBinding{"output.format", "format"},
		flagBinding{"output.file", "output"},
		flagBinding{"parallel.max_workers", "max-workers"},
	)
}

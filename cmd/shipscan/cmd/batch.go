package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/shipscan/internal/batch"
	"github.com/MeKo-Tech/shipscan/internal/config"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/spf13/cobra"
)

// batchCmd represents the batch command.
var batchCmd = &cobra.Command{
	Use:   "batch <raster|dir>...",
	Short: "Detect ship candidates in a set of intensity rasters",
	Long: `Detect ship candidates in every intensity raster under the given paths.

Directories are searched for rasters (*.asc, *.tif, *.tiff, *.png by
default); --recursive descends into subdirectories. All rasters must share
the grid of the water occurrence raster. The acquisition time is read from a
20060102T150405 or 20060102 stamp in the file name.

A raster that fails to load or process is reported in the output and does
not stop the batch.

Examples:
  shipscan batch scenes/ --occurrence occurrence.asc
  shipscan batch scenes/ -r --include "S1A_*.asc" --format csv -o ships.csv
  shipscan batch a.asc b.asc --mask-dir masks --stats`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
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
	occurrence, err := loadOccurrence(cfg)
	if err != nil {
		return err
	}

	bc := &batch.Config{
		Params:  params,
		Format:  format,
		Export:  export,
		Workers: cfg.Parallel.MaxWorkers,
	}
	bc.Linear, _ = cmd.Flags().GetBool("linear")
	bc.MaskDir, _ = cmd.Flags().GetString("mask-dir")
	bc.Recursive, _ = cmd.Flags().GetBool("recursive")
	bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		bc.Progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "batch ")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	p := pipeline.New(pipeline.WithLogger(slog.Default()))

	res, err := batch.ProcessBatch(ctx, p, args, occurrence, bc)
	if err != nil {
		return err
	}

	w, closeFn, err := outputWriter(cmd, cfg)
	if err != nil {
		return err
	}
	if err := res.Write(w, format, export); err != nil {
		_ = closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		res.WriteStats(cmd.ErrOrStderr())
	}
	if res.Succeeded() == 0 {
		return fmt.Errorf("all %d rasters failed", len(res.Paths))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	d := config.DefaultConfig()
	addDetectionFlags(batchCmd)
	batchCmd.Flags().BoolP("recursive", "r", false, "search directories recursively")
	batchCmd.Flags().StringSlice("include", nil, "file patterns to include (default: raster extensions)")
	batchCmd.Flags().StringSlice("exclude", nil, "file patterns to exclude")
	batchCmd.Flags().Bool("linear", false, "rasters hold linear power, not dB")
	batchCmd.Flags().String("mask-dir", "", "write one candidate mask PNG per raster into this directory")
	batchCmd.Flags().StringP("format", "f", d.Output.Format, "output format (text, json, csv)")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().Bool("include-raw", false, "export every vectorized region, not only candidates")
	batchCmd.Flags().String("language", d.Output.Language, "number formatting language for text output")
	batchCmd.Flags().Int("max-workers", d.Parallel.MaxWorkers, "rasters processed concurrently")
	batchCmd.Flags().BoolP("quiet", "q", false, "no progress bar")
	batchCmd.Flags().Bool("stats", false, "print processing statistics to stderr")

	registerBindings(batchCmd, detectionBindings()...)
	registerBindings(batchCmd,
		flagBinding{"output.format", "format"},
		flagBinding{"output.file", "output"},
		flagBinding{"output.include_raw", "include-raw"},
		flagBinding{"output.language", "language"},
		flagBinding{"parallel.max_workers", "max-workers"},
	)
}

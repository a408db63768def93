package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/synth"
	flag "github.com/spf13/pflag"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	d := synth.DefaultSceneOptions()
	var (
		outDir   = flag.StringP("out", "o", "testdata/scenes", "output directory")
		start    = flag.String("start", "2024-03-02T05:48:00Z", "time of the first acquisition (RFC 3339)")
		count    = flag.IntP("count", "n", 4, "number of acquisitions")
		interval = flag.Duration("interval", 6*24*time.Hour, "time between acquisitions")
		width    = flag.Int("width", d.Width, "scene width in pixels")
		height   = flag.Int("height", d.Height, "scene height in pixels")
		pixelM   = flag.Float64("pixel-m", d.PixelM, "pixel size in metres")
		ships    = flag.Int("ships", d.Ships, "ships per scene")
		land     = flag.Float64("land", d.LandFraction, "share of the scene that is land")
		noise    = flag.Float64("noise-db", d.NoiseDB, "speckle standard deviation in dB")
		seed     = flag.Int64("seed", d.Seed, "random seed")
		verbose  = flag.BoolP("verbose", "v", false, "list every ship")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate a synthetic scene catalog for shipscan.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                          # four 512x512 scenes in testdata/scenes\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -n 1 --width 4096 --ships 200\n", os.Args[0])
	}
	flag.Parse()

	t0, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		slog.Error("Invalid start time", "start", *start, "error", err)
		os.Exit(1)
	}
	times := make([]time.Time, *count)
	for i := range times {
		times[i] = t0.Add(time.Duration(i) * *interval)
	}

	opts := d
	opts.Width, opts.Height = *width, *height
	opts.PixelM = *pixelM
	opts.Ships = *ships
	opts.LandFraction = *land
	opts.NoiseDB = *noise
	opts.Seed, opts.CoastSeed = *seed, *seed

	slog.Info("Generating scenes", "dir", *outDir, "count", *count, "width", *width, "height", *height)
	cat, err := synth.WriteCatalog(*outDir, opts, times)
	if err != nil {
		slog.Error("Failed to generate scenes", "error", err)
		os.Exit(1)
	}

	for i, acq := range cat.Acquisitions {
		slog.Info("Scene written", "id", acq.ID, "time", acq.Time, "pass", acq.Pass, "ships", len(cat.Scenes[i].Ships))
		if *verbose {
			for _, s := range cat.Scenes[i].Ships {
				slog.Info("Ship", "scene", acq.ID, "x", s.X, "y", s.Y, "w", s.W, "h", s.H,
					"length_m", s.LengthPx()*opts.PixelM)
			}
		}
	}
	slog.Info("Done", "manifest", cat.ManifestPath, "occurrence", cat.OccurrencePath)
}

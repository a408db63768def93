package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/catalog"
	"github.com/MeKo-Tech/shipscan/internal/pipeline"
	"github.com/MeKo-Tech/shipscan/internal/raster"
)

// Sentinel-1 style timestamps, with or without the time of day.
var (
	stampDateTime = regexp.MustCompile(`(\d{8}T\d{6})`)
	stampDate     = regexp.MustCompile(`(?:^|[^0-9])(\d{8})(?:[^0-9]|$)`)
)

// acquisitionTime extracts the acquisition time from a file name. It
// returns the zero time when the name carries none.
func acquisitionTime(name string) time.Time {
	base := filepath.Base(name)
	if m := stampDateTime.FindStringSubmatch(base); m != nil {
		if t, err := time.Parse("20060102T150405", m[1]); err == nil {
			return t
		}
	}
	if m := stampDate.FindStringSubmatch(base); m != nil {
		if t, err := time.Parse("20060102", m[1]); err == nil {
			return t
		}
	}
	return time.Time{}
}

// loadInputs reads one intensity raster as a pipeline input on the grid of
// occurrence.
func loadInputs(path string, occurrence *raster.Grid, linear bool, workers int) (pipeline.Inputs, error) {
	base := filepath.Base(path)
	acq := &catalog.Acquisition{
		ID:     strings.TrimSuffix(base, filepath.Ext(base)),
		Time:   acquisitionTime(base),
		Path:   path,
		Linear: linear,
	}
	intensity, err := acq.LoadIntensity(nil, workers)
	if err != nil {
		return pipeline.Inputs{}, err
	}
	return pipeline.Inputs{
		Intensity:       intensity,
		Occurrence:      occurrence,
		AcquisitionID:   acq.ID,
		AcquisitionDate: acq.Time,
	}, nil
}

// saveMask writes the candidate mask of res next to the other masks as
// <raster>_mask.png.
func saveMask(dir, path string, res *pipeline.Result) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create mask directory: %w", err)
	}
	base := filepath.Base(path)
	out := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_mask.png")
	f, err := os.Create(out) //nolint:gosec // G304: mask directory comes from the command line
	if err != nil {
		return fmt.Errorf("create mask image: %w", err)
	}
	if err := pipeline.WriteMaskPNG(f, res); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/pipeline"
)

// formatBatchResults formats the batch processing results in the specified format.
func formatBatchResults(r *Result, format pipeline.Format, export pipeline.ExportOptions) (string, error) {
	switch format {
	case pipeline.FormatJSON:
		return formatJSON(r)
	case pipeline.FormatCSV:
		return formatCSV(r, export)
	case pipeline.FormatText:
		return formatText(r, export), nil
	default:
		return "", fmt.Errorf("batch output supports json, csv and text, not %s", format)
	}
}

type fileEntry struct {
	File   string           `json:"file"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// formatJSON formats results as JSON.
func formatJSON(r *Result) (string, error) {
	out := struct {
		Rasters []fileEntry `json:"rasters"`
	}{Rasters: make([]fileEntry, len(r.Items))}

	for i, it := range r.Items {
		out.Rasters[i] = fileEntry{File: r.Paths[i], Result: it.Result}
		if it.Err != nil {
			out.Rasters[i].Error = it.Err.Error()
		}
	}

	bts, err := json.MarshalIndent(out, "", "  ")
	return string(bts) + "\n", err
}

// formatCSV writes one row per candidate, prefixed with the raster file.
// Failed rasters are skipped.
func formatCSV(r *Result, export pipeline.ExportOptions) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	_ = writer.Write([]string{"file", "id", "x", "y", "length_m", "pixel_count", "acquisition_date"})

	for i, it := range r.Items {
		if it.Result == nil {
			continue
		}
		candidates := it.Result.Candidates
		if export.IncludeRaw {
			candidates = it.Result.Raw
		}
		for _, c := range candidates {
			date := ""
			if !c.AcquisitionDate.IsZero() {
				date = c.AcquisitionDate.UTC().Format(time.RFC3339)
			}
			if err := writer.Write([]string{
				r.Paths[i],
				strconv.Itoa(c.ID),
				strconv.FormatFloat(c.Centroid[0], 'f', 2, 64),
				strconv.FormatFloat(c.Centroid[1], 'f', 2, 64),
				strconv.FormatFloat(c.LengthM, 'f', 2, 64),
				strconv.Itoa(c.PixelCount),
				date,
			}); err != nil {
				return "", err
			}
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

// formatText formats results as plain text.
func formatText(r *Result, export pipeline.ExportOptions) string {
	var output strings.Builder
	for i, it := range r.Items {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("# %s\n", r.Paths[i]))
		if it.Err != nil {
			output.WriteString(fmt.Sprintf("Error: %v\n", it.Err))
			continue
		}
		output.WriteString(pipeline.ToText(it.Result, export))
	}
	return output.String()
}

package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/detector"
	"github.com/MeKo-Tech/shipscan/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is an export format for results.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatGeoJSON Format = "geojson"
	FormatText    Format = "text"
)

// ParseFormat accepts the names of the Format constants in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatGeoJSON, FormatText:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ExportOptions tunes the exporters.
type ExportOptions struct {
	// Polygons adds each candidate's outline to GeoJSON output.
	Polygons bool
	// SimplifyM simplifies exported outlines with Douglas-Peucker at this
	// tolerance in ground units; 0 keeps every corner.
	SimplifyM float64
	// IncludeRaw exports every vectorized region instead of the filtered
	// candidates.
	IncludeRaw bool
	// Language selects number formatting for text output.
	Language language.Tag
}

func (o ExportOptions) candidates(res *Result) []*detector.ShipCandidate {
	if o.IncludeRaw {
		return res.Raw
	}
	return res.Candidates
}

// Write encodes res to w in format f.
func Write(w io.Writer, res *Result, f Format, opts ExportOptions) error {
	if res == nil {
		return errors.New("nil result")
	}
	var (
		b   []byte
		err error
	)
	switch f {
	case FormatJSON:
		b, err = ToJSON(res)
	case FormatCSV:
		b, err = ToCSV(res, opts)
	case FormatGeoJSON:
		b, err = ToGeoJSON(res, opts)
	case FormatText:
		b = []byte(ToText(res, opts))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ToJSON serializes a result to indented JSON.
func ToJSON(res *Result) ([]byte, error) {
	if res == nil {
		return nil, errors.New("nil result")
	}
	return json.MarshalIndent(res, "", "  ")
}

// ToJSONBatch serializes batch items; failed items carry their error text.
func ToJSONBatch(items []BatchItem) ([]byte, error) {
	type entry struct {
		Index         int     `json:"index"`
		Result        *Result `json:"result,omitempty"`
		NoAcquisition bool    `json:"no_acquisition,omitempty"`
		Error         string  `json:"error,omitempty"`
	}
	out := make([]entry, len(items))
	for i, it := range items {
		out[i] = entry{Index: it.Index, Result: it.Result, NoAcquisition: it.NoAcquisition()}
		if it.Err != nil {
			out[i].Error = it.Err.Error()
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// ToCSV exports one row per candidate.
func ToCSV(res *Result, opts ExportOptions) ([]byte, error) {
	if res == nil {
		return nil, errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "x", "y", "length_m", "pixel_count", "acquisition_date"})
	for _, c := range opts.candidates(res) {
		_ = w.Write([]string{
			strconv.Itoa(c.ID),
			strconv.FormatFloat(c.Centroid[0], 'f', -1, 64),
			strconv.FormatFloat(c.Centroid[1], 'f', -1, 64),
			fmt.Sprintf("%.2f", c.LengthM),
			strconv.Itoa(c.PixelCount),
			c.AcquisitionDate.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ToGeoJSON exports a FeatureCollection with one centroid point per
// candidate and, when opts.Polygons is set, one outline per candidate.
func ToGeoJSON(res *Result, opts ExportOptions) ([]byte, error) {
	if res == nil {
		return nil, errors.New("nil result")
	}
	fc := geojson.NewFeatureCollection()
	for _, c := range opts.candidates(res) {
		fc.Append(candidateFeature(c, c.Centroid, "centroid"))
		if opts.Polygons && len(c.Polygon) > 0 {
			fc.Append(candidateFeature(c, simplifyPolygon(c.Polygon, opts.SimplifyM), "outline"))
		}
	}
	return json.Marshal(fc)
}

func candidateFeature(c *detector.ShipCandidate, g orb.Geometry, kind string) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.ID = c.ID
	f.Properties["kind"] = kind
	f.Properties["length_m"] = c.LengthM
	f.Properties["pixel_count"] = c.PixelCount
	f.Properties["acquisition_date"] = c.AcquisitionDate.UTC().Format(time.RFC3339)
	return f
}

// simplifyPolygon returns a simplified copy of p; p is not modified.
func simplifyPolygon(p orb.Polygon, tolerance float64) orb.Polygon {
	if tolerance <= 0 {
		return p
	}
	out := simplify.DouglasPeucker(tolerance).Polygon(p.Clone())
	if len(out) == 0 || len(out[0]) < 4 {
		return p
	}
	return out
}

// ToText renders a human-readable summary.
func ToText(res *Result, opts ExportOptions) string {
	tag := opts.Language
	if tag == language.Und {
		tag = language.English
	}
	pr := message.NewPrinter(tag)
	var sb strings.Builder

	id := res.AcquisitionID
	if id == "" {
		id = "-"
	}
	pr.Fprintf(&sb, "Acquisition:   %s (%s)\n", id, res.AcquisitionDate.UTC().Format(time.RFC3339))
	d := res.Diagnostics
	pr.Fprintf(&sb, "Water pixels:  %d (%d before erosion)\n", d.WaterPixelsEroded, d.WaterPixels)
	if d.EmptyWaterMask {
		pr.Fprintf(&sb, "Warning:       water mask is empty; check water_occ_min and coast_erode_px\n")
	}
	pr.Fprintf(&sb, "Bright pixels: %d above %.1f dB, %d after cleanup, %d after speckle filter\n",
		d.ThresholdPixels, res.Params.ThresholdDB, d.CleanedPixels, d.CandidatePixels)
	pr.Fprintf(&sb, "Regions:       %d vectorized, %d at least %.1f m\n",
		d.RawCandidates, len(res.Candidates), res.Params.MinLengthM)
	if res.Partial {
		pr.Fprintf(&sb, "Partial:       %d regions (%d pixels) dropped by max_pixels\n",
			d.DroppedComponents, d.DroppedPixels)
	}
	for _, c := range opts.candidates(res) {
		pr.Fprintf(&sb, "  #%d  %.1f m  at (%.2f, %.2f)  %d px\n",
			c.ID, c.LengthM, c.Centroid[0], c.Centroid[1], c.PixelCount)
	}
	pr.Fprintf(&sb, "Total time:    %v\n", res.Total().Round(time.Microsecond))
	return sb.String()
}

// WriteMaskPNG encodes the post-speckle candidate mask as a grayscale PNG.
func WriteMaskPNG(w io.Writer, res *Result) error {
	if res == nil || res.CandidateMask == nil {
		return errors.New("result has no candidate mask")
	}
	return raster.EncodeMaskPNG(w, res.CandidateMask)
}

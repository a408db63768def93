package raster

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff" // 16-bit occurrence and backscatter tiles
)

// DefaultNoData is the sentinel written for no-data samples in AAIGrid files.
const DefaultNoData = -9999.0

// ErrFormat is returned for malformed raster files.
var ErrFormat = errors.New("malformed raster")

// LoadOptions controls how non-georeferenced raster files are interpreted.
type LoadOptions struct {
	// Transform is used for image files without a world file.
	Transform GeoTransform
	// Geographic marks the transform as lon/lat degrees.
	Geographic bool
	// Scale and Offset map raw image samples to values: v = raw*Scale + Offset.
	// A zero Scale is treated as 1.
	Scale  float64
	Offset float64
	// NoData, when non-nil, marks raw image samples equal to it as no-data.
	NoData *float64
}

// Load reads a raster from path. ".asc" and ".txt" files are parsed as ESRI
// ASCII grids; everything else is decoded as a single-band image.
func Load(path string, opts LoadOptions) (*Grid, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open raster: %w", err)
		}
		defer func() { _ = f.Close() }()
		g, err := ReadAAIGrid(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		g.Geographic = opts.Geographic
		return g, nil
	default:
		return LoadImage(path, opts)
	}
}

// ReadAAIGrid parses an ESRI ASCII grid. Both corner (xllcorner) and centre
// (xllcenter) registrations are accepted, as are separate dx/dy cell sizes.
func ReadAAIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: header %q has no value", ErrFormat, key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: header %q: %v", ErrFormat, key, err)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	ncols, okc := header["ncols"]
	nrows, okr := header["nrows"]
	if !okc || !okr {
		return nil, fmt.Errorf("%w: missing ncols/nrows", ErrFormat)
	}
	dx, dy := header["cellsize"], header["cellsize"]
	if v, ok := header["dx"]; ok {
		dx = v
	}
	if v, ok := header["dy"]; ok {
		dy = v
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("%w: missing or non-positive cell size", ErrFormat)
	}

	xll, yll := header["xllcorner"], header["yllcorner"]
	if v, ok := header["xllcenter"]; ok {
		xll = v - dx/2
	}
	if v, ok := header["yllcenter"]; ok {
		yll = v - dy/2
	}
	noData, hasNoData := header["nodata_value"]

	geom := Geometry{
		Width:     int(ncols),
		Height:    int(nrows),
		Transform: GeoTransform{xll, dx, 0, yll + nrows*dy, 0, -dy},
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}

	g := &Grid{Geometry: geom, Data: make([]float64, geom.Len())}
	n := 0
	store := func(tok string) error {
		if n >= len(g.Data) {
			return fmt.Errorf("%w: more than %d samples", ErrFormat, len(g.Data))
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("%w: sample %d: %v", ErrFormat, n, err)
		}
		if hasNoData && v == noData {
			v = math.NaN()
		}
		g.Data[n] = v
		n++
		return nil
	}
	if first != "" {
		if err := store(first); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if err := store(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n != len(g.Data) {
		return nil, fmt.Errorf("%w: expected %d samples, got %d", ErrFormat, len(g.Data), n)
	}
	return g, nil
}

// WriteAAIGrid writes g as an ESRI ASCII grid with corner registration.
func WriteAAIGrid(w io.Writer, g *Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	pw, ph := g.Transform.PixelSize()
	origin := g.Corner(0, g.Height)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.Width, g.Height)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatFloat(origin[0]), formatFloat(origin[1]))
	if pw == ph {
		fmt.Fprintf(bw, "cellsize %s\n", formatFloat(pw))
	} else {
		fmt.Fprintf(bw, "dx %s\ndy %s\n", formatFloat(pw), formatFloat(ph))
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(DefaultNoData))
	for y := range g.Height {
		for x := range g.Width {
			if x > 0 {
				_ = bw.WriteByte(' ')
			}
			v := g.At(x, y)
			if math.IsNaN(v) {
				v = DefaultNoData
			}
			_, _ = bw.WriteString(formatFloat(v))
		}
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// LoadImage decodes a single-band image into a grid. Colour images are
// reduced to luminance. The transform comes from a sidecar world file
// (.pgw, .tfw, .wld, ...) when present, otherwise from opts.Transform.
func LoadImage(path string, opts LoadOptions) (*Grid, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode raster image: %w", err)
	}

	transform := opts.Transform
	if wf, ok := findWorldFile(path); ok {
		if transform, err = readWorldFile(wf); err != nil {
			return nil, err
		}
	}

	b := img.Bounds()
	geom := Geometry{Width: b.Dx(), Height: b.Dy(), Transform: transform, Geographic: opts.Geographic}
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	g := &Grid{Geometry: geom, Data: make([]float64, geom.Len())}
	ParallelBands(geom.Height, 0, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := range geom.Width {
				raw := rawSample(img, b.Min.X+x, b.Min.Y+y)
				v := raw*scale + opts.Offset
				if opts.NoData != nil && raw == *opts.NoData {
					v = math.NaN()
				}
				g.Data[y*geom.Width+x] = v
			}
		}
	})
	return g, nil
}

func rawSample(img image.Image, x, y int) float64 {
	switch im := img.(type) {
	case *image.Gray:
		return float64(im.GrayAt(x, y).Y)
	case *image.Gray16:
		return float64(im.Gray16At(x, y).Y)
	default:
		c, _ := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
		return float64(c.Y)
	}
}

var worldFileExts = map[string][]string{
	".png":  {".pgw", ".pngw"},
	".tif":  {".tfw", ".tifw"},
	".tiff": {".tfw", ".tiffw"},
	".jpg":  {".jgw", ".jpgw"},
	".jpeg": {".jgw", ".jpegw"},
	".bmp":  {".bpw", ".bmpw"},
}

func findWorldFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, wext := range append(worldFileExts[ext], ".wld") {
		candidate := base + wext
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// readWorldFile parses a six-line ESRI world file. World files reference the
// centre of the upper-left pixel; GeoTransform references its corner.
func readWorldFile(path string) (GeoTransform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GeoTransform{}, fmt.Errorf("read world file: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 6 {
		return GeoTransform{}, fmt.Errorf("%w: world file %s has %d values", ErrFormat, path, len(fields))
	}
	var v [6]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return GeoTransform{}, fmt.Errorf("%w: world file %s: %v", ErrFormat, path, err)
		}
	}
	a, d, b, e, c, f := v[0], v[1], v[2], v[3], v[4], v[5]
	return GeoTransform{c - a/2 - b/2, a, b, f - d/2 - e/2, d, e}, nil
}

// MaskImage renders a mask as an 8-bit grayscale image (255 = true).
func MaskImage(m *Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, b := range m.Bits {
		if b {
			img.Pix[i] = 255
		}
	}
	return img
}

// SaveMaskPNG writes a mask to path as a grayscale PNG.
func SaveMaskPNG(path string, m *Mask) error {
	if err := imaging.Save(MaskImage(m), path); err != nil {
		return fmt.Errorf("save mask: %w", err)
	}
	return nil
}

// EncodeMaskPNG writes a mask to w as a grayscale PNG.
func EncodeMaskPNG(w io.Writer, m *Mask) error {
	return imaging.Encode(w, MaskImage(m), imaging.PNG)
}

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrInvalidRegion is returned for GeoJSON that holds no areal geometry.
var ErrInvalidRegion = errors.New("invalid region")

// ParseRegion reads a region of interest from a GeoJSON Geometry, Feature or
// FeatureCollection. Every Polygon and MultiPolygon found is merged; other
// geometry types are rejected.
func ParseRegion(data []byte) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegion, err)
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRegion, err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRegion, err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRegion, err)
		}
		geoms = append(geoms, g.Geometry())
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Polygon:
			mp = append(mp, v)
		case orb.MultiPolygon:
			mp = append(mp, v...)
		case nil:
			return nil, fmt.Errorf("%w: feature without geometry", ErrInvalidRegion)
		default:
			return nil, fmt.Errorf("%w: %s is not areal", ErrInvalidRegion, g.GeoJSONType())
		}
	}
	switch len(mp) {
	case 0:
		return nil, fmt.Errorf("%w: no polygon found", ErrInvalidRegion)
	case 1:
		return mp[0], nil
	default:
		return mp, nil
	}
}

// LoadRegion reads a GeoJSON region file.
func LoadRegion(path string) (orb.Geometry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-supplied region path
	if err != nil {
		return nil, fmt.Errorf("read region: %w", err)
	}
	return ParseRegion(data)
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrManifest is returned for unreadable or inconsistent manifests.
var ErrManifest = errors.New("invalid scene manifest")

// Manifest is the on-disk scene list.
type Manifest struct {
	Scenes []*Acquisition `yaml:"scenes"`
}

// FileCatalog is a Catalog backed by a YAML manifest.
type FileCatalog struct {
	dir    string
	scenes []*Acquisition
}

// LoadFileCatalog reads a manifest. Raster paths inside it are resolved
// relative to the manifest's directory.
func LoadFileCatalog(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifest, path, err)
	}
	return NewFileCatalog(filepath.Dir(path), m.Scenes)
}

// NewFileCatalog builds a catalog from scenes whose paths are relative to dir.
func NewFileCatalog(dir string, scenes []*Acquisition) (*FileCatalog, error) {
	seen := make(map[string]bool, len(scenes))
	for i, a := range scenes {
		if a == nil {
			return nil, fmt.Errorf("%w: scene %d is empty", ErrManifest, i)
		}
		if a.ID == "" {
			return nil, fmt.Errorf("%w: scene %d has no id", ErrManifest, i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("%w: duplicate scene id %q", ErrManifest, a.ID)
		}
		seen[a.ID] = true
		if a.Time.IsZero() {
			return nil, fmt.Errorf("%w: scene %q has no time", ErrManifest, a.ID)
		}
		if a.Path == "" {
			return nil, fmt.Errorf("%w: scene %q has no raster path", ErrManifest, a.ID)
		}
		if _, err := ParsePass(string(a.Pass)); err != nil {
			return nil, fmt.Errorf("%w: scene %q: %v", ErrManifest, a.ID, err)
		}
		a.dir = dir
	}
	return &FileCatalog{dir: dir, scenes: scenes}, nil
}

// Dir returns the directory raster paths are resolved against.
func (c *FileCatalog) Dir() string { return c.dir }

// Scenes returns every scene in manifest order.
func (c *FileCatalog) Scenes() []*Acquisition { return c.scenes }

var _ Catalog = (*FileCatalog)(nil)

// Search implements Catalog.
func (c *FileCatalog) Search(ctx context.Context, q Query) ([]*Acquisition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return Rank(c.scenes, q), nil
}

// Closest implements Catalog.
func (c *FileCatalog) Closest(ctx context.Context, q Query) (*Acquisition, error) {
	found, err := c.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: target %s, window %s, pass %q, polarisation %q, mode %q",
			ErrNoAcquisitionAvailable, q.Target.Format("2006-01-02"), q.Window,
			q.Pass, q.Polarization, q.Mode)
	}
	return found[0], nil
}

// WriteManifest writes scenes to path as a YAML manifest.
func WriteManifest(path string, scenes []*Acquisition) error {
	data, err := yaml.Marshal(Manifest{Scenes: scenes})
	if err != nil {
		return fmt.Errorf("encode scene manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write scene manifest: %w", err)
	}
	return nil
}

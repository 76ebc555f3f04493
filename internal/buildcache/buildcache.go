// Package buildcache persists the per-asset SHA-256 digests of the last
// build, in the teacher's decode-then-map DTO pattern from main.go's
// indexConfig, so a rebuild can report whether anything actually changed.
package buildcache

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/kornelski/cargo-deb/internal/deberr"
	"go.yaml.in/yaml/v3"
)

const filename = ".cargo-deb-cache.yaml"

// Entry records one built package's digest set, keyed by package name so a
// workspace build with multiple packages/variants keeps them separate.
type Entry struct {
	Version string            `yaml:"version"`
	Digests map[string]string `yaml:"digests"`
}

// Cache is the decoded sidecar file: one Entry per package name.
type Cache struct {
	Packages map[string]Entry `yaml:"packages"`
}

// Path returns the sidecar's location under the resolved target directory.
func Path(targetDir string) string {
	return filepath.Join(targetDir, "debian", filename)
}

// Load reads the sidecar, returning an empty Cache if it doesn't exist yet.
func Load(targetDir string) (*Cache, error) {
	data, err := os.ReadFile(Path(targetDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &Cache{Packages: map[string]Entry{}}, nil
		}
		return nil, deberr.NewIO(Path(targetDir), err)
	}
	var c Cache
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, deberr.NewConfig("decoding "+Path(targetDir), err)
	}
	if c.Packages == nil {
		c.Packages = map[string]Entry{}
	}
	return &c, nil
}

// Save records digests for packageName and writes the sidecar back out.
func (c *Cache) Save(targetDir, packageName, version string, digests map[string]string) error {
	if c.Packages == nil {
		c.Packages = map[string]Entry{}
	}
	c.Packages[packageName] = Entry{Version: version, Digests: digests}

	data, err := yaml.Marshal(c)
	if err != nil {
		return deberr.NewConfig("encoding build cache", err)
	}
	path := Path(targetDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return deberr.NewIO(path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return deberr.NewIO(path, err)
	}
	return nil
}

// Unchanged reports whether packageName's previously recorded digests are
// identical to current, meaning a rebuild would produce byte-identical
// asset content.
func (c *Cache) Unchanged(packageName string, current map[string]string) bool {
	prev, ok := c.Packages[packageName]
	if !ok || len(prev.Digests) != len(current) {
		return false
	}
	keys := make([]string, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if prev.Digests[k] != current[k] {
			return false
		}
	}
	return true
}

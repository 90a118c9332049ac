package conflicts

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/conflictmapper/pkg/plugins"
)

//go:embed data/known_conflicts.yaml
var embeddedDataset []byte

// KnownConflict is one pair of plugins known to break each other
type KnownConflict struct {
	PluginA      string `yaml:"plugin_a" json:"plugin_a"`
	PluginB      string `yaml:"plugin_b" json:"plugin_b"`
	Description  string `yaml:"description" json:"description"`
	Resolution   string `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	Verified     bool   `yaml:"verified" json:"verified"`
	ReportedDate string `yaml:"reported_date,omitempty" json:"reported_date,omitempty"`
}

// Dataset is a versioned table of known incompatible plugin pairs
type Dataset struct {
	Version   int             `yaml:"version" json:"version"`
	Updated   string          `yaml:"updated,omitempty" json:"updated,omitempty"`
	Conflicts []KnownConflict `yaml:"conflicts" json:"conflicts"`
}

// DefaultDataset returns the dataset compiled into the binary
func DefaultDataset() (*Dataset, error) {
	return ParseDataset(embeddedDataset)
}

// LoadDataset reads a dataset from path
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read known conflicts: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes and validates a dataset. Slugs are normalized.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse known conflicts: %w", err)
	}

	for i := range ds.Conflicts {
		ds.Conflicts[i].PluginA = plugins.NormalizeSlug(ds.Conflicts[i].PluginA)
		ds.Conflicts[i].PluginB = plugins.NormalizeSlug(ds.Conflicts[i].PluginB)
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks the dataset version and that every entry names two distinct plugins
func (d *Dataset) Validate() error {
	if d.Version < 1 {
		return fmt.Errorf("invalid known conflicts version: %d", d.Version)
	}

	for i, c := range d.Conflicts {
		if c.PluginA == "" || c.PluginB == "" {
			return fmt.Errorf("known conflict %d: both plugin_a and plugin_b are required", i)
		}
		if c.PluginA == c.PluginB {
			return fmt.Errorf("known conflict %d: plugin %s conflicts with itself", i, c.PluginA)
		}
	}

	return nil
}

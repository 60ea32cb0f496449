// Package collection defines the per-collection schema document and the
// indexed item model.
//
// A collection is a directory tree treated as one curated set. Its schema
// lives in collection.yaml at the tree root: the collection type (which
// selects a scanner), the category vocabulary, and the schedule block that
// drives the scheduled and organic workflows.
//
// Example collection.yaml:
//
//	collection_type: repositories
//	name: repos
//	path: /home/user/repos
//	categories: [ai_llm_agents, dev_tools, utilities_misc]
//	exclude_hidden: true
//	schedule:
//	  enabled: organic
//	  interval_days: 7
//	  operations: [scan, describe, render]
//	  auto_file: true
//	  confidence_threshold: 0.8
package collection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the schema document at the collection root.
const ConfigFileName = "collection.yaml"

// StateDirName is the engine's state directory under the collection root.
const StateDirName = ".collection"

// IndexFileName is the index artifact inside the state directory.
const IndexFileName = "collection-index.yaml"

// Default values applied by ApplyDefaults.
const (
	DefaultIntervalDays        = 7
	DefaultConfidenceThreshold = 0.8
)

// DefaultOperations is the default scheduled operation list.
func DefaultOperations() []string { return []string{"scan", "describe", "render"} }

// Config is the per-collection schema document. The Analyzer authors it
// once; humans edit it afterwards. The engine never overwrites an existing
// config unless explicitly asked.
type Config struct {
	// CollectionType names a registered scanner. Immutable after first write.
	CollectionType string `yaml:"collection_type"`

	// Status is a purely decorative glyph carried per schema. Optional.
	Status string `yaml:"status,omitempty"`

	// Name is the human name of the collection.
	Name string `yaml:"name"`

	// Path is the absolute collection root.
	Path string `yaml:"path"`

	// Categories is the ordered category vocabulary. The last element is
	// the "misc" sink that absorbs unparseable or unknown assignments.
	Categories []string `yaml:"categories"`

	// ExcludeHidden controls whether dotfiles are indexed. Default: true.
	ExcludeHidden *bool `yaml:"exclude_hidden,omitempty"`

	// ScannerConfig is an opaque scanner-specific bag.
	ScannerConfig map[string]any `yaml:"scanner_config,omitempty"`

	// Schedule configures the scheduled and organic workflows.
	Schedule Schedule `yaml:"schedule"`

	// Publish optionally uploads rendered artifacts after the render stage.
	Publish *PublishConfig `yaml:"publish,omitempty"`
}

// Schedule is the workflow block of a collection config.
type Schedule struct {
	// Enabled accepts false (manual), true (scheduled), or "organic".
	Enabled ScheduleMode `yaml:"enabled"`

	IntervalDays int `yaml:"interval_days"`

	// Operations lists the scheduled stage names.
	Operations []string `yaml:"operations,flow"`

	// AutoFile moves high-confidence new arrivals without asking.
	AutoFile bool `yaml:"auto_file"`

	// ConfidenceThreshold is the minimum placement confidence for auto_file.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// PublishConfig uploads rendered artifacts to an S3-compatible bucket.
type PublishConfig struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region,omitempty"`
	Endpoint       string `yaml:"endpoint,omitempty"`
	Prefix         string `yaml:"prefix,omitempty"`
	Profile        string `yaml:"profile,omitempty"`
	ForcePathStyle bool   `yaml:"force_path_style,omitempty"`

	// Explicit credentials for S3-compatible endpoints without a
	// shared config profile. Leave empty to use the default chain.
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// ScheduleMode is the tri-state schedule.enabled value.
type ScheduleMode string

// Schedule modes, in order of increasing automation.
const (
	ModeManual    ScheduleMode = "manual"
	ModeScheduled ScheduleMode = "scheduled"
	ModeOrganic   ScheduleMode = "organic"
)

// UnmarshalYAML accepts bool or the literal string "organic".
func (m *ScheduleMode) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		if b {
			*m = ModeScheduled
		} else {
			*m = ModeManual
		}
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("schedule.enabled: expected bool or \"organic\": %w", err)
	}
	switch s {
	case "organic":
		*m = ModeOrganic
	case "", "false", "manual":
		*m = ModeManual
	case "true", "scheduled":
		*m = ModeScheduled
	default:
		return fmt.Errorf("schedule.enabled: unsupported value %q", s)
	}
	return nil
}

// MarshalYAML writes the value back in its documented shape.
func (m ScheduleMode) MarshalYAML() (any, error) {
	switch m {
	case ModeOrganic:
		return "organic", nil
	case ModeScheduled:
		return true, nil
	default:
		return false, nil
	}
}

// HiddenExcluded reports the effective exclude_hidden value.
func (c *Config) HiddenExcluded() bool {
	if c.ExcludeHidden == nil {
		return true
	}
	return *c.ExcludeHidden
}

// ApplyDefaults fills in defaults for optional fields.
func (c *Config) ApplyDefaults() {
	if c.ExcludeHidden == nil {
		t := true
		c.ExcludeHidden = &t
	}
	if c.Schedule.Enabled == "" {
		c.Schedule.Enabled = ModeManual
	}
	if c.Schedule.IntervalDays == 0 {
		c.Schedule.IntervalDays = DefaultIntervalDays
	}
	if len(c.Schedule.Operations) == 0 {
		c.Schedule.Operations = DefaultOperations()
	}
	if c.Schedule.ConfidenceThreshold == 0 {
		c.Schedule.ConfidenceThreshold = DefaultConfidenceThreshold
	}
}

// Validate checks the invariants of the schema document.
func (c *Config) Validate() error {
	if c.CollectionType == "" {
		return errors.New("collection_type is required")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.Path == "" {
		return errors.New("path is required")
	}
	if !filepath.IsAbs(c.Path) {
		return fmt.Errorf("path must be absolute: %s", c.Path)
	}
	if len(c.Categories) == 0 {
		return errors.New("categories must be non-empty")
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if cat == "" {
			return errors.New("categories must not contain empty identifiers")
		}
		if _, dup := seen[cat]; dup {
			return fmt.Errorf("duplicate category: %s", cat)
		}
		seen[cat] = struct{}{}
	}
	if t := c.Schedule.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("schedule.confidence_threshold out of range: %g", t)
	}
	return nil
}

// SinkCategory returns the last declared category, the sink for unknown
// or unparseable assignments.
func (c *Config) SinkCategory() string {
	if len(c.Categories) == 0 {
		return ""
	}
	return c.Categories[len(c.Categories)-1]
}

// HasCategory reports whether cat is in the declared vocabulary.
func (c *Config) HasCategory(cat string) bool {
	for _, have := range c.Categories {
		if have == cat {
			return true
		}
	}
	return false
}

// ConfigPath returns the schema document path for a collection root.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigFileName)
}

// IndexPath returns the index artifact path for a collection root.
func IndexPath(root string) string {
	return filepath.Join(root, StateDirName, IndexFileName)
}

// LoadConfig reads and validates the schema document at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s found at %s", ConfigFileName, path)
		}
		return nil, fmt.Errorf("failed to read collection config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid collection config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveConfig writes the schema document. When overwrite is false and the
// file already exists, the write is refused: the engine must never clobber
// a human-edited config.
func SaveConfig(cfg *Config, path string, overwrite bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists; refusing to overwrite", path)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal collection config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write collection config: %w", err)
	}
	return nil
}

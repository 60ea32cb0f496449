// Package plugin defines the scanner contract and the process-global
// registry that maps collection types to scanners.
//
// A scanner is the one domain-aware piece of the engine: it sniffs a
// directory, walks it into items, and tells the describe stage how to
// prompt for its kind of content. Everything else treats scanners as an
// opaque capability bundle resolved by name.
package plugin

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/collectivehq/collectivist/pkg/collection"
)

// ErrScanner is the sentinel for scan-stage failures. A scanner failure
// is fatal for the run; the prior index is left untouched.
var ErrScanner = errors.New("scanner failure")

// ScannerError wraps a scan failure with the scanner's name.
type ScannerError struct {
	Scanner string
	Err     error
}

func (e *ScannerError) Error() string {
	return fmt.Sprintf("scanner %s: %v", e.Scanner, e.Err)
}

func (e *ScannerError) Unwrap() error { return ErrScanner }

// IsScannerError reports whether err came out of a scanner.
func IsScannerError(err error) bool { return errors.Is(err, ErrScanner) }

// Preserved is the prior annotation state for one path. Scanners carry
// these forward so a rescan never erases hand-edited descriptions.
type Preserved struct {
	Description string
	Category    string
}

// ScanConfig is the per-run input to Scanner.Scan.
type ScanConfig struct {
	// ExcludeHidden drops dot-prefixed entries.
	ExcludeHidden bool

	// ExcludePatterns are doublestar globs matched against names relative
	// to the collection root.
	ExcludePatterns []string

	// Preserve maps absolute item paths to their prior annotations.
	Preserve map[string]Preserved

	// Options is the opaque scanner_config bag from collection.yaml.
	// Scanners decode it into their own typed options.
	Options map[string]any
}

// Excluded reports whether the entry named name (relative to the
// collection root) should be skipped under this config.
func (c *ScanConfig) Excluded(name string) bool {
	if c.ExcludeHidden && len(name) > 0 && filepath.Base(name)[0] == '.' {
		return true
	}
	for _, pat := range c.ExcludePatterns {
		if ok, err := doublestar.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Apply copies the preserved annotations for it.Path onto it, if any.
func (c *ScanConfig) Apply(it *collection.Item) {
	prior, ok := c.Preserve[it.Path]
	if !ok {
		return
	}
	if prior.Description != "" {
		it.Description = prior.Description
	}
	if prior.Category != "" {
		it.Category = prior.Category
	}
}

// Scanner is the capability bundle one collection type implements.
type Scanner interface {
	// Name is the registered identifier, e.g. "repositories".
	Name() string

	// SupportedTypes lists the item types this scanner emits. Informational.
	SupportedTypes() []string

	// DefaultCategories is the ordered vocabulary the analyzer writes
	// into a fresh config. The last entry is the sink.
	DefaultCategories() []string

	// Detect cheaply sniffs root. It must not recurse beyond a small
	// sample of children.
	Detect(root string) bool

	// Scan walks root into items, applying cfg's exclusions and
	// preserved annotations.
	Scan(root string, cfg ScanConfig) ([]collection.Item, error)

	// DescriptionPromptTemplate returns the system prompt for this
	// scanner's items, with {content} plus scanner-specific placeholders.
	DescriptionPromptTemplate() string

	// ContentForDescription extracts at most ~3000 characters of
	// describable content for one item. May return "".
	ContentForDescription(item *collection.Item) string
}

package collection

import (
	"io/fs"
	"path/filepath"
	"time"
)

// TimeLayout is the timestamp format used in the index artifact.
const TimeLayout = time.RFC3339

// Item is one indexed entry of a collection. Path is the identity key:
// absolute, canonical, unique within one index, and the key rescans use to
// preserve prior descriptions. Description and Category are empty until the
// describe stage fills them; empty means unset, never "described as
// nothing".
type Item struct {
	ShortName   string `yaml:"short_name"`
	Type        string `yaml:"type"`
	Size        int64  `yaml:"size"`
	Created     string `yaml:"created,omitempty"`
	Modified    string `yaml:"modified,omitempty"`
	Accessed    string `yaml:"accessed,omitempty"`
	Path        string `yaml:"path"`
	Description string `yaml:"description,omitempty"`
	Category    string `yaml:"category,omitempty"`

	// Metadata carries scanner-specific keys. Readers must tolerate
	// missing keys; writers must round-trip unknown ones.
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// Described reports whether the describe stage has filled this item in.
func (it *Item) Described() bool { return it.Description != "" }

// MetaString returns a string metadata value, or "" when absent or not
// a string.
func (it *Item) MetaString(key string) string {
	if it.Metadata == nil {
		return ""
	}
	s, _ := it.Metadata[key].(string)
	return s
}

// SetMeta assigns a metadata key, allocating the map on first use.
func (it *Item) SetMeta(key string, value any) {
	if it.Metadata == nil {
		it.Metadata = make(map[string]any)
	}
	it.Metadata[key] = value
}

// NewItemFromEntry builds the baseline item for a directory entry under
// root. The describe-stage fields are left empty.
func NewItemFromEntry(root string, entry fs.DirEntry) (Item, error) {
	info, err := entry.Info()
	if err != nil {
		return Item{}, err
	}
	typ := "file"
	if entry.IsDir() {
		typ = "dir"
	}
	it := Item{
		ShortName: entry.Name(),
		Type:      typ,
		Size:      info.Size(),
		Modified:  info.ModTime().UTC().Format(TimeLayout),
		Path:      filepath.Join(root, entry.Name()),
	}
	return it, nil
}

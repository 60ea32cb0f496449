// Package fallback is the last-resort scanner for mixed or unidentified
// collections. It always detects, walks to a configurable depth, and
// pre-buckets every entry by extension so unmixed collections still get a
// sane first categorization before any model runs.
package fallback

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// DefaultMaxDepth bounds the walk when scanner_config does not say.
const DefaultMaxDepth = 2

// Options is the fallback scanner_config bag.
type Options struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// extension buckets, checked in order.
var buckets = []struct {
	category string
	exts     []string
}{
	{"documents", []string{".pdf", ".doc", ".docx", ".txt", ".md", ".rtf"}},
	{"media_files", []string{".mp3", ".mp4", ".avi", ".mkv", ".jpg", ".png", ".gif"}},
	{"code_projects", []string{".py", ".js", ".ts", ".java", ".cpp", ".c", ".go", ".rs"}},
	{"data_files", []string{".csv", ".json", ".xml", ".yaml", ".yml", ".sql"}},
	{"archives", []string{".zip", ".tar", ".gz", ".rar", ".7z"}},
	{"configuration", []string{".conf", ".cfg", ".ini", ".toml"}},
	{"utilities", []string{".exe", ".msi", ".deb", ".rpm", ".dmg"}},
}

// Scanner is the always-on generic scanner. Register it last.
type Scanner struct{}

var _ plugin.Scanner = (*Scanner)(nil)

// New returns the fallback scanner.
func New() *Scanner { return &Scanner{} }

func (s *Scanner) Name() string { return "fallback" }

func (s *Scanner) SupportedTypes() []string { return []string{"dir", "file"} }

func (s *Scanner) DefaultCategories() []string {
	return []string{
		"documents",
		"media_files",
		"code_projects",
		"data_files",
		"archives",
		"configuration",
		"utilities",
		"miscellaneous",
	}
}

// Detect always succeeds; the fallback is the last resort.
func (s *Scanner) Detect(root string) bool { return true }

func (s *Scanner) Scan(root string, cfg plugin.ScanConfig) ([]collection.Item, error) {
	opts := Options{MaxDepth: DefaultMaxDepth}
	if cfg.Options != nil {
		if err := mapstructure.Decode(cfg.Options, &opts); err != nil {
			return nil, &plugin.ScannerError{Scanner: s.Name(), Err: fmt.Errorf("invalid scanner_config: %w", err)}
		}
		if opts.MaxDepth <= 0 {
			opts.MaxDepth = DefaultMaxDepth
		}
	}

	var items []collection.Item
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) > opts.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		for _, part := range parts {
			if cfg.Excluded(part) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		it := plugin.NewItem(path, info)
		if d.IsDir() {
			it.Size = plugin.DirSize(path)
		}
		autoCat := bucketFor(path, d.IsDir())
		it.Category = autoCat
		it.SetMeta("auto_category", autoCat)
		it.SetMeta("depth", len(parts))
		if !d.IsDir() {
			it.SetMeta("extension", strings.ToLower(filepath.Ext(path)))
		}

		// Preserved annotations outrank the extension bucket.
		cfg.Apply(&it)
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, &plugin.ScannerError{Scanner: s.Name(), Err: err}
	}

	plugin.SortBySizeDesc(items)
	return items, nil
}

func bucketFor(path string, isDir bool) string {
	if isDir {
		return "miscellaneous"
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, b := range buckets {
		for _, e := range b.exts {
			if ext == e {
				return b.category
			}
		}
	}
	return "miscellaneous"
}

func (s *Scanner) DescriptionPromptTemplate() string {
	return `You are a file organization assistant. Generate a one-sentence description and category for this item based on its name, type, and any available content.

Available categories (choose ONE):
- documents: Text documents, PDFs, notes, manuals
- media_files: Images, videos, audio files
- code_projects: Source code, scripts, development projects
- data_files: CSV, JSON, databases, structured data
- archives: ZIP files, compressed archives
- configuration: Config files, settings, preferences
- utilities: Executable programs, tools, applications
- miscellaneous: Other files that don't fit specific categories

Item information:
---
{content}
---

Generate a JSON response with:
1. "description": A single-sentence description (max 150 characters) that captures the item's purpose or content. Be concise and descriptive.
2. "category": ONE category from the list above that best matches this item.`
}

// ContentForDescription summarizes the item and, for small text files,
// includes the first few hundred bytes.
func (s *Scanner) ContentForDescription(item *collection.Item) string {
	parts := []string{
		"Name: " + item.ShortName,
		"Type: " + item.Type,
		fmt.Sprintf("Size: %d bytes", item.Size),
	}
	if ext := item.MetaString("extension"); ext != "" {
		parts = append(parts, "Extension: "+ext)
	}
	switch item.MetaString("extension") {
	case ".txt", ".md", ".json", ".yaml", ".yml", ".csv":
		if head := plugin.ReadHead(item.Path, 500); head != "" {
			parts = append(parts, "Content preview:\n"+head)
		}
	}
	return strings.Join(parts, "\n")
}

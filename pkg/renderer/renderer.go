// Package renderer projects a collection index into external artifacts.
//
// Rendering is deterministic and side-effect free: the artifact contents
// are a pure function of (items, config, overview). Categories appear in
// the order the config declares them, items within a category are sorted
// by size descending, and anything without a category lands in a trailing
// section. Writing the artifacts to disk is a separate step.
package renderer

import (
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// Artifact file names, written at the collection root.
const (
	MarkdownFileName = "README.md"
	HTMLFileName     = "index.html"
	JSONFileName     = "index.json"
	NushellFileName  = "collection.nu"
)

// statusGlyphs maps repository git statuses to their bracket form.
// Statuses outside this table render empty.
var statusGlyphs = map[string]string{
	"up_to_date":        "[OK]",
	"updates_available": "[!]",
	"modified":          "[~]",
	"ahead_of_remote":   "[^]",
	"no_remote":         "[-]",
	"not_a_repo":        "[D]",
	"error":             "[X]",
	"unknown":           "[?]",
}

// StatusGlyph returns the bracket glyph for a git status, or "" for
// statuses without one.
func StatusGlyph(status string) string { return statusGlyphs[status] }

// Output holds the rendered artifact contents keyed by format.
type Output struct {
	Markdown string
	HTML     string
	JSON     string
	Nushell  string
}

// Files maps artifact file names to their contents.
func (o *Output) Files() map[string]string {
	return map[string]string{
		MarkdownFileName: o.Markdown,
		HTMLFileName:     o.HTML,
		JSONFileName:     o.JSON,
		NushellFileName:  o.Nushell,
	}
}

// Write persists every artifact under root.
func (o *Output) Write(root string) error {
	for name, content := range o.Files() {
		path := filepath.Join(root, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// section is one category block in collation order.
type section struct {
	Category string
	Items    []collection.Item
}

// Render produces all artifacts for the given index state.
func Render(items []collection.Item, cfg *collection.Config, overview string) (*Output, error) {
	sections := collate(items, cfg)

	jsonDoc, err := renderJSON(items, cfg, overview)
	if err != nil {
		return nil, err
	}
	return &Output{
		Markdown: renderMarkdown(items, sections, cfg, overview),
		HTML:     renderHTML(items, sections, cfg, overview),
		JSON:     jsonDoc,
		Nushell:  renderNushell(cfg),
	}, nil
}

// collate groups items by category in the declared order, each group
// sorted by size descending. Items with an undeclared or empty category
// form a final "Other Items" group.
func collate(items []collection.Item, cfg *collection.Config) []section {
	byCategory := make(map[string][]collection.Item)
	declared := make(map[string]bool, len(cfg.Categories))
	for _, c := range cfg.Categories {
		declared[c] = true
	}

	var other []collection.Item
	for _, it := range items {
		if declared[it.Category] {
			byCategory[it.Category] = append(byCategory[it.Category], it)
		} else {
			other = append(other, it)
		}
	}

	var sections []section
	for _, c := range cfg.Categories {
		group := byCategory[c]
		if len(group) == 0 {
			continue
		}
		plugin.SortBySizeDesc(group)
		sections = append(sections, section{Category: c, Items: group})
	}
	if len(other) > 0 {
		plugin.SortBySizeDesc(other)
		sections = append(sections, section{Category: "", Items: other})
	}
	return sections
}

func titleCase(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sectionTitle(s section) string {
	if s.Category == "" {
		return "Other Items"
	}
	return titleCase(s.Category)
}

// statusCounts tallies the git_status metadata across items. Items
// without the key are not counted.
func statusCounts(items []collection.Item) map[string]int {
	counts := make(map[string]int)
	for _, it := range items {
		if s := it.MetaString("git_status"); s != "" {
			counts[s]++
		}
	}
	return counts
}

func renderMarkdown(items []collection.Item, sections []section, cfg *collection.Config, overview string) string {
	var b strings.Builder

	title := cfg.Name
	if title == "" {
		title = "Collection"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if overview != "" {
		b.WriteString(overview)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "**Total Items:** %d", len(items))
	if n := len(sections); n > 0 {
		fmt.Fprintf(&b, " • %d categories", n)
	}
	b.WriteString("\n\n")

	if counts := statusCounts(items); len(counts) > 0 {
		b.WriteString("## Status Overview\n\n")
		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			glyph := StatusGlyph(s)
			if glyph != "" {
				glyph += " "
			}
			fmt.Fprintf(&b, "- %s**%s:** %d items\n", glyph, titleCase(s), counts[s])
		}
		b.WriteString("\n")
	}

	for _, sec := range sections {
		fmt.Fprintf(&b, "## %s\n\n", sectionTitle(sec))
		for _, it := range sec.Items {
			b.WriteString(itemMarkdown(it))
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "---\n\n*Type: %s • Items: %d*\n", cfg.CollectionType, len(items))
	return b.String()
}

func itemMarkdown(it collection.Item) string {
	var b strings.Builder

	heading := it.ShortName
	if glyph := StatusGlyph(it.MetaString("git_status")); glyph != "" {
		heading = glyph + " " + heading
	}
	fmt.Fprintf(&b, "### %s\n\n", heading)

	desc := it.Description
	if desc == "" {
		desc = "No description available"
	}
	b.WriteString(desc)
	b.WriteString("\n\n")

	var meta []string
	if it.Path != "" {
		meta = append(meta, fmt.Sprintf("Path: `%s`", it.Path))
	}
	if it.Size > 0 {
		meta = append(meta, "Size: "+humanize.Bytes(uint64(it.Size)))
	}
	if remote := it.MetaString("remote_url"); remote != "" {
		meta = append(meta, "Remote: "+remote)
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, "*%s*\n", strings.Join(meta, " • "))
	}
	return b.String()
}

func renderHTML(items []collection.Item, sections []section, cfg *collection.Config, overview string) string {
	title := cfg.Name
	if title == "" {
		title = "Collection"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; padding: 20px; background: #f8f9fa; }
.header { background: #2d3748; color: white; padding: 30px; border-radius: 10px; margin-bottom: 20px; text-align: center; }
.stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 15px; margin-bottom: 30px; }
.stat-card { background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); text-align: center; }
.stat-number { font-size: 2em; font-weight: bold; color: #2d3748; }
.section { background: white; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); margin-bottom: 20px; overflow: hidden; }
.section h2 { margin: 0; padding: 15px; background: #edf2f7; font-size: 1.1em; }
.item { padding: 15px; border-bottom: 1px solid #eee; }
.item:last-child { border-bottom: none; }
.item-name { font-weight: bold; }
.item-status { font-family: monospace; color: #4a5568; margin-left: 8px; }
.item-description { color: #666; margin: 6px 0; }
.item-meta { font-size: 14px; color: #888; }
</style>
</head>
<body>
<div class="header">
<h1>%s</h1>
`, html.EscapeString(title), html.EscapeString(title))

	if overview != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(overview))
	}
	b.WriteString("</div>\n")

	fmt.Fprintf(&b, `<div class="stats">
<div class="stat-card"><div class="stat-number">%d</div><div>Total Items</div></div>
<div class="stat-card"><div class="stat-number">%d</div><div>Categories</div></div>
</div>
`, len(items), len(sections))

	for _, sec := range sections {
		fmt.Fprintf(&b, "<div class=\"section\">\n<h2>%s</h2>\n", html.EscapeString(sectionTitle(sec)))
		for _, it := range sec.Items {
			desc := it.Description
			if desc == "" {
				desc = "No description available"
			}
			b.WriteString("<div class=\"item\">\n")
			fmt.Fprintf(&b, "<span class=\"item-name\">%s</span>", html.EscapeString(it.ShortName))
			if glyph := StatusGlyph(it.MetaString("git_status")); glyph != "" {
				fmt.Fprintf(&b, "<span class=\"item-status\">%s</span>", html.EscapeString(glyph))
			}
			fmt.Fprintf(&b, "\n<div class=\"item-description\">%s</div>\n", html.EscapeString(desc))
			fmt.Fprintf(&b, "<div class=\"item-meta\">%s • %s</div>\n",
				html.EscapeString(it.Path), humanize.Bytes(uint64(it.Size)))
			b.WriteString("</div>\n")
		}
		b.WriteString("</div>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// jsonItem mirrors the on-disk item for the JSON artifact. Metadata stays
// nested here: the JSON export is for programmatic consumers.
type jsonItem struct {
	ShortName   string         `json:"short_name"`
	Type        string         `json:"type"`
	Size        int64          `json:"size"`
	Path        string         `json:"path"`
	Modified    string         `json:"modified,omitempty"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func renderJSON(items []collection.Item, cfg *collection.Config, overview string) (string, error) {
	out := make([]jsonItem, 0, len(items))
	for _, it := range items {
		out = append(out, jsonItem{
			ShortName:   it.ShortName,
			Type:        it.Type,
			Size:        it.Size,
			Path:        it.Path,
			Modified:    it.Modified,
			Description: it.Description,
			Category:    it.Category,
			Metadata:    it.Metadata,
		})
	}

	doc := map[string]any{
		"collection": map[string]any{
			"name":            cfg.Name,
			"collection_type": cfg.CollectionType,
			"path":            cfg.Path,
			"categories":      cfg.Categories,
			"overview":        overview,
			"total_items":     len(items),
		},
		"items": out,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON artifact: %w", err)
	}
	return string(data) + "\n", nil
}

// renderNushell emits a small interactive explorer over the index file.
func renderNushell(cfg *collection.Config) string {
	title := cfg.Name
	if title == "" {
		title = "Collection"
	}
	indexRel := filepath.Join(collection.StateDirName, collection.IndexFileName)

	return fmt.Sprintf(`# %s - interactive explorer

let data = (open %s)

print $"Items: ($data.items | length)"
print ""
$data.items | select short_name category size | sort-by category | table

def show-by-category [category: string] {
    $data.items | where category == $category | table -e
}

def search-items [query: string] {
    $data.items | where short_name =~ $query or description =~ $query | table -e
}

def show-stats [] {
    $data.items | group-by category | transpose category items | each {|row|
        { category: $row.category, count: ($row.items | length) }
    } | table
}
`, title, indexRel)
}

// Package obsidian scans an Obsidian vault. Every markdown file becomes
// an item carrying note metadata: tags, wiki links (stored as identifiers,
// never resolved), word and heading counts, frontmatter presence.
package obsidian

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// defaultExclusions always apply on top of the config's patterns.
var defaultExclusions = []string{
	".obsidian", ".git", ".trash", ".DS_Store", "Thumbs.db",
}

// Scanner indexes Obsidian vaults.
type Scanner struct{}

var _ plugin.Scanner = (*Scanner)(nil)

// New returns the obsidian scanner.
func New() *Scanner { return &Scanner{} }

func (s *Scanner) Name() string { return "obsidian" }

func (s *Scanner) SupportedTypes() []string { return []string{"file"} }

func (s *Scanner) DefaultCategories() []string {
	return []string{
		"knowledge_base",
		"personal_notes",
		"research_notes",
		"project_docs",
		"creative_writing",
		"learning_notes",
		"utilities_misc",
	}
}

// Detect requires the .obsidian marker directory plus at least three
// root-level markdown files.
func (s *Scanner) Detect(root string) bool {
	info, err := os.Stat(filepath.Join(root, ".obsidian"))
	if err != nil || !info.IsDir() {
		return false
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}
	var md int
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			md++
		}
	}
	return md >= 3
}

func (s *Scanner) Scan(root string, cfg plugin.ScanConfig) ([]collection.Item, error) {
	var items []collection.Item
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep going
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}

		if d.IsDir() {
			if excludedDir(d.Name()) || cfg.Excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") || cfg.Excluded(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		it := plugin.NewItem(path, info)
		it.ShortName = strings.TrimSuffix(d.Name(), ".md")
		it.SetMeta("file_extension", ".md")

		note := readNote(path)
		it.SetMeta("tags", note.Tags)
		it.SetMeta("links", note.WikiLinks)
		it.SetMeta("word_count", note.WordCount)
		it.SetMeta("heading_count", note.HeadingCount)
		it.SetMeta("link_count", len(note.WikiLinks))
		it.SetMeta("has_frontmatter", note.HasFrontmatter)
		it.SetMeta("has_dataview", note.HasDataview)

		cfg.Apply(&it)
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, &plugin.ScannerError{Scanner: s.Name(), Err: err}
	}

	// Most recently modified first.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Modified > items[j].Modified
	})
	return items, nil
}

func excludedDir(name string) bool {
	for _, pat := range defaultExclusions {
		if name == pat {
			return true
		}
	}
	return false
}

// noteMeta is what one markdown file contributes to item metadata.
type noteMeta struct {
	Tags           []string
	WikiLinks      []string
	WordCount      int
	HeadingCount   int
	HasFrontmatter bool
	HasDataview    bool
}

var (
	headingRe  = regexp.MustCompile(`(?m)^\s*#+\s`)
	bodyTagRe  = regexp.MustCompile(`(?:^|[^\w#])#([a-zA-Z0-9_/-]+)`)
	wikiLinkRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	dataviewRe = regexp.MustCompile("(?i)```dataview")
)

func readNote(path string) noteMeta {
	var meta noteMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta
	}

	frontmatter, body := splitFrontmatter(string(data))
	meta.HasFrontmatter = len(frontmatter) > 0
	meta.Tags = extractTags(frontmatter, body)
	meta.WikiLinks = extractWikiLinks(body)
	meta.WordCount = len(strings.Fields(body))
	meta.HeadingCount = len(headingRe.FindAllString(body, -1))
	meta.HasDataview = dataviewRe.MatchString(body)
	return meta
}

// splitFrontmatter separates the leading YAML block (between --- fences)
// from the note body. Invalid YAML is treated as no frontmatter.
func splitFrontmatter(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---") {
		return nil, content
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return nil, content
	}
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return nil, content
	}
	return fm, strings.TrimSpace(parts[2])
}

func extractTags(frontmatter map[string]any, body string) []string {
	set := map[string]struct{}{}

	switch fmTags := frontmatter["tags"].(type) {
	case string:
		for _, t := range strings.Split(fmTags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				set[t] = struct{}{}
			}
		}
	case []any:
		for _, v := range fmTags {
			if t := strings.TrimSpace(stringify(v)); t != "" {
				set[t] = struct{}{}
			}
		}
	}

	for _, m := range bodyTagRe.FindAllStringSubmatch(body, -1) {
		set[m[1]] = struct{}{}
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// extractWikiLinks returns link targets with aliases stripped:
// [[target|alias]] contributes "target".
func extractWikiLinks(body string) []string {
	matches := wikiLinkRe.FindAllStringSubmatch(body, -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		target := strings.TrimSpace(strings.SplitN(m[1], "|", 2)[0])
		if target != "" {
			links = append(links, target)
		}
	}
	return links
}

func (s *Scanner) DescriptionPromptTemplate() string {
	return `You are a technical documentation assistant. Generate a one-sentence description and category for an Obsidian note based on its content and metadata.

Available categories (choose ONE):
- knowledge_base: Core knowledge, concepts, and foundational information
- personal_notes: Personal thoughts, reflections, and journaling
- research_notes: Research findings, studies, and academic content
- project_docs: Project documentation, plans, and specifications
- creative_writing: Stories, poems, creative writing, and fiction
- learning_notes: Study notes, tutorials, and learning materials
- utilities_misc: Templates, utilities, and miscellaneous notes

Note Metadata:
Tags: {metadata_tags}
Word Count: {word_count}
Has Frontmatter: {has_frontmatter}
Links: {link_count}

Content Sample:
---
{content}
---

Generate a JSON response with:
1. "description": A single-sentence description (max 150 characters) that captures the note's purpose or content. Be concise and descriptive.
2. "category": ONE category from the list above that best matches this note.`
}

// ContentForDescription returns the first 3000 bytes of the note body.
func (s *Scanner) ContentForDescription(item *collection.Item) string {
	return plugin.ReadHead(item.Path, 3000)
}

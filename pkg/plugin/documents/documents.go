// Package documents scans a directory of document files (PDF, Office,
// plain text, markdown, TeX). Text formats contribute word counts and a
// best-effort title; binary formats carry stub metadata, since PDF and
// Office extraction are out of scope for the core. Readers must tolerate
// the absent keys.
package documents

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// Extensions recognized as documents.
var Extensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".txt": true,
	".rtf": true, ".odt": true, ".md": true, ".tex": true,
}

var textExtensions = map[string]bool{".txt": true, ".md": true, ".tex": true}

var skipDirs = map[string]bool{
	".git": true, ".obsidian": true, "__pycache__": true,
	"node_modules": true, ".collection": true,
}

// DetectThreshold is the minimum document count for auto-detection.
const DetectThreshold = 5

// Scanner indexes document collections.
type Scanner struct{}

var _ plugin.Scanner = (*Scanner)(nil)

// New returns the documents scanner.
func New() *Scanner { return &Scanner{} }

func (s *Scanner) Name() string { return "documents" }

func (s *Scanner) SupportedTypes() []string { return []string{"file"} }

func (s *Scanner) DefaultCategories() []string {
	return []string{
		"research_papers",
		"business_docs",
		"legal_documents",
		"educational_materials",
		"technical_docs",
		"personal_docs",
		"reports_presentations",
		"utilities_misc",
	}
}

func (s *Scanner) Detect(root string) bool {
	count := 0
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if Extensions[strings.ToLower(filepath.Ext(d.Name()))] {
			count++
			if count >= DetectThreshold {
				return filepath.SkipAll
			}
		}
		return nil
	})
	return count >= DetectThreshold
}

func (s *Scanner) Scan(root string, cfg plugin.ScanConfig) ([]collection.Item, error) {
	var items []collection.Item
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || cfg.Excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !Extensions[ext] || cfg.Excluded(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		it := plugin.NewItem(path, info)
		it.ShortName = strings.TrimSuffix(d.Name(), ext)
		it.SetMeta("file_extension", ext)
		annotate(&it, path, ext)
		cfg.Apply(&it)
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, &plugin.ScannerError{Scanner: s.Name(), Err: err}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Modified > items[j].Modified
	})
	return items, nil
}

// annotate fills document metadata. Only text formats yield real values;
// the rest are stubs pending extraction support.
func annotate(it *collection.Item, path, ext string) {
	if !textExtensions[ext] {
		it.SetMeta("has_text_content", false)
		it.SetMeta("word_count", 0)
		it.SetMeta("page_count", 0)
		return
	}

	content := plugin.ReadHead(path, 64*1024)
	it.SetMeta("has_text_content", true)
	it.SetMeta("word_count", len(strings.Fields(content)))
	it.SetMeta("line_count", len(strings.Split(content, "\n")))
	it.SetMeta("page_count", 0)
	if title := extractTitle(content); title != "" {
		it.SetMeta("title", title)
	}
}

// extractTitle prefers the first markdown heading, then the first
// non-empty line, capped at 100 characters.
func extractTitle(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#") {
		return clip(strings.TrimSpace(strings.TrimLeft(lines[0], "#")), 100)
	}
	for i, line := range lines {
		if i >= 10 {
			break
		}
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return clip(line, 100)
		}
	}
	return ""
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (s *Scanner) DescriptionPromptTemplate() string {
	return `You are a technical documentation assistant. Generate a one-sentence description and category for a document based on its content and metadata.

Available categories (choose ONE):
- research_papers: Academic papers, research articles, and scholarly documents
- business_docs: Business plans, reports, proposals, and corporate documents
- legal_documents: Contracts, agreements, legal briefs, and compliance documents
- educational_materials: Textbooks, course materials, tutorials, and learning resources
- technical_docs: API documentation, manuals, specifications, and technical guides
- personal_docs: Personal letters, journals, memoirs, and private documents
- reports_presentations: Reports, presentations, whitepapers, and analytical documents
- utilities_misc: Forms, templates, checklists, and miscellaneous documents

Document Metadata:
File Type: {file_extension}
Word Count: {word_count}
Page Count: {page_count}
Author: {author}
Title: {title}

Content Sample:
---
{content}
---

Generate a JSON response with:
1. "description": A single-sentence description (max 150 characters) that captures the document's purpose or content. Be concise and descriptive.
2. "category": ONE category from the list above that best matches this document.`
}

// ContentForDescription returns up to 3000 bytes for text formats; binary
// formats contribute a filename-based summary instead.
func (s *Scanner) ContentForDescription(item *collection.Item) string {
	ext := item.MetaString("file_extension")
	if textExtensions[ext] {
		return plugin.ReadHead(item.Path, 3000)
	}
	return "Document file: " + item.ShortName + " (" + strings.TrimPrefix(ext, ".") + " format, content not extractable)"
}

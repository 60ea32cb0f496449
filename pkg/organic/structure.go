package organic

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/collectivehq/collectivist/pkg/indexstore"
)

// FolderInfo summarizes one top-level folder of the collection.
type FolderInfo struct {
	ItemCount   int
	NamingStyle string
}

// Memory is the structural memory of a collection: how categories map to
// top-level folders today, and what the folders look like. It is rebuilt
// from the tree and the index on every run; nothing is stored elsewhere.
type Memory struct {
	// CategoryFolders counts, per category, which top-level folder its
	// indexed items live in.
	CategoryFolders map[string]map[string]int

	// Folders describes each visible top-level directory.
	Folders map[string]FolderInfo
}

// LearnStructure builds the structural memory for root from the current
// index. A nil or empty index yields folder data only.
func LearnStructure(root string, idx *indexstore.Index) *Memory {
	m := &Memory{
		CategoryFolders: make(map[string]map[string]int),
		Folders:         make(map[string]FolderInfo),
	}

	if idx != nil {
		for _, it := range idx.Items {
			if it.Category == "" || it.Path == "" {
				continue
			}
			rel, err := filepath.Rel(root, it.Path)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			folder := "root"
			if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
				folder = parts[0]
			}
			if m.CategoryFolders[it.Category] == nil {
				m.CategoryFolders[it.Category] = make(map[string]int)
			}
			m.CategoryFolders[it.Category][folder]++
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return m
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m.Folders[e.Name()] = FolderInfo{
			ItemCount:   countFiles(filepath.Join(root, e.Name())),
			NamingStyle: namingStyle(e.Name()),
		}
	}
	return m
}

func countFiles(dir string) int {
	n := 0
	filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n
}

// PreferredFolder returns the folder where items of a category most
// commonly live. Ties break lexicographically so the choice is stable.
func (m *Memory) PreferredFolder(category string) (string, bool) {
	folders := m.CategoryFolders[category]
	if len(folders) == 0 {
		return "", false
	}
	best, bestCount := "", -1
	names := make([]string, 0, len(folders))
	for f := range folders {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		if folders[f] > bestCount {
			best, bestCount = f, folders[f]
		}
	}
	if best == "root" {
		return "", false
	}
	return best, true
}

// Render formats the memory as prompt context. Empty memory renders "".
func (m *Memory) Render() string {
	var b strings.Builder

	if len(m.CategoryFolders) > 0 {
		b.WriteString("EXISTING ORGANIZATIONAL PATTERNS:\n")
		cats := make([]string, 0, len(m.CategoryFolders))
		for c := range m.CategoryFolders {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			if folder, ok := m.PreferredFolder(c); ok {
				fmt.Fprintf(&b, "- %s items -> typically in '%s/' folder\n", c, folder)
			} else {
				fmt.Fprintf(&b, "- %s items -> at the collection root\n", c)
			}
		}
	}

	if len(m.Folders) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("CURRENT FOLDER STRUCTURE:\n")
		names := make([]string, 0, len(m.Folders))
		for f := range m.Folders {
			names = append(names, f)
		}
		sort.Strings(names)
		for _, f := range names {
			info := m.Folders[f]
			fmt.Fprintf(&b, "- %s/ (%d items, %s naming)\n", f, info.ItemCount, info.NamingStyle)
		}
	}
	return b.String()
}

// namingStyle classifies a folder name's convention.
func namingStyle(name string) string {
	switch {
	case strings.Contains(name, "-"):
		return "kebab-case"
	case strings.Contains(name, "_"):
		return "snake_case"
	case name == strings.ToLower(name):
		return "lowercase"
	case isUpper(name):
		return "uppercase"
	default:
		return "mixed"
	}
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

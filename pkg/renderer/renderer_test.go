package renderer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectivehq/collectivist/pkg/collection"
)

func testConfig() *collection.Config {
	return &collection.Config{
		CollectionType: "repositories",
		Name:           "Workshop",
		Path:           "/coll",
		Categories:     []string{"dev_tools", "utilities_misc"},
	}
}

func testItems() []collection.Item {
	return []collection.Item{
		{
			ShortName: "small-tool", Type: "dir", Size: 100, Path: "/coll/small-tool",
			Description: "A small tool", Category: "dev_tools",
			Metadata: map[string]any{"git_status": "up_to_date"},
		},
		{
			ShortName: "big-tool", Type: "dir", Size: 5000, Path: "/coll/big-tool",
			Description: "A big tool", Category: "dev_tools",
			Metadata: map[string]any{"git_status": "modified"},
		},
		{
			ShortName: "leftover", Type: "dir", Size: 300, Path: "/coll/leftover",
			Description: "Odd one out", Category: "utilities_misc",
		},
		{
			ShortName: "stray", Type: "file", Size: 10, Path: "/coll/stray",
		},
	}
}

func TestStatusGlyphs(t *testing.T) {
	assert.Equal(t, "[OK]", StatusGlyph("up_to_date"))
	assert.Equal(t, "[!]", StatusGlyph("updates_available"))
	assert.Equal(t, "[~]", StatusGlyph("modified"))
	assert.Equal(t, "[^]", StatusGlyph("ahead_of_remote"))
	assert.Equal(t, "[-]", StatusGlyph("no_remote"))
	assert.Equal(t, "[D]", StatusGlyph("not_a_repo"))
	assert.Equal(t, "[X]", StatusGlyph("error"))
	assert.Equal(t, "[?]", StatusGlyph("unknown"))
	assert.Empty(t, StatusGlyph("something-else"))
}

func TestCollateOrdering(t *testing.T) {
	sections := collate(testItems(), testConfig())
	require.Len(t, sections, 3)

	assert.Equal(t, "dev_tools", sections[0].Category)
	assert.Equal(t, "utilities_misc", sections[1].Category)
	assert.Equal(t, "", sections[2].Category) // undeclared categories trail

	// Size descending within the category.
	assert.Equal(t, "big-tool", sections[0].Items[0].ShortName)
	assert.Equal(t, "small-tool", sections[0].Items[1].ShortName)
	assert.Equal(t, "stray", sections[2].Items[0].ShortName)
}

func TestCollateSkipsEmptyCategories(t *testing.T) {
	cfg := testConfig()
	cfg.Categories = []string{"empty_one", "dev_tools", "utilities_misc"}
	sections := collate(testItems(), cfg)
	for _, s := range sections {
		assert.NotEqual(t, "empty_one", s.Category)
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := Render(testItems(), testConfig(), "A workshop of tools.")
	require.NoError(t, err)

	md := out.Markdown
	assert.Contains(t, md, "# Workshop")
	assert.Contains(t, md, "A workshop of tools.")
	assert.Contains(t, md, "**Total Items:** 4")
	assert.Contains(t, md, "## Status Overview")
	assert.Contains(t, md, "[~] **Modified:** 1 items")
	assert.Contains(t, md, "[OK] **Up To Date:** 1 items")
	assert.Contains(t, md, "### [~] big-tool")
	assert.Contains(t, md, "## Dev Tools")
	assert.Contains(t, md, "## Other Items")
	assert.Contains(t, md, "No description available") // stray has none

	// Declared category order holds in the document.
	assert.Less(t, strings.Index(md, "## Dev Tools"), strings.Index(md, "## Utilities Misc"))
	assert.Less(t, strings.Index(md, "## Utilities Misc"), strings.Index(md, "## Other Items"))
}

func TestRenderEmptyIndex(t *testing.T) {
	out, err := Render(nil, testConfig(), "")
	require.NoError(t, err)
	assert.Contains(t, out.Markdown, "**Total Items:** 0")
	assert.NotContains(t, out.Markdown, "## Status Overview")
	assert.Contains(t, out.HTML, "Total Items")
	assert.Contains(t, out.JSON, `"total_items": 0`)
}

func TestRenderIsDeterministic(t *testing.T) {
	a, err := Render(testItems(), testConfig(), "overview")
	require.NoError(t, err)
	b, err := Render(testItems(), testConfig(), "overview")
	require.NoError(t, err)
	assert.Equal(t, a.Markdown, b.Markdown)
	assert.Equal(t, a.HTML, b.HTML)
	assert.Equal(t, a.JSON, b.JSON)
	assert.Equal(t, a.Nushell, b.Nushell)
}

func TestRenderHTMLEscapes(t *testing.T) {
	items := []collection.Item{{
		ShortName: "evil", Type: "file", Size: 1, Path: "/coll/evil",
		Description: `<script>alert("x")</script>`, Category: "dev_tools",
	}}
	out, err := Render(items, testConfig(), "")
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<script>alert")
	assert.Contains(t, out.HTML, "&lt;script&gt;")
}

func TestRenderJSONRoundTrips(t *testing.T) {
	out, err := Render(testItems(), testConfig(), "the overview")
	require.NoError(t, err)

	var doc struct {
		Collection struct {
			Name       string   `json:"name"`
			Overview   string   `json:"overview"`
			TotalItems int      `json:"total_items"`
			Categories []string `json:"categories"`
		} `json:"collection"`
		Items []struct {
			ShortName string         `json:"short_name"`
			Metadata  map[string]any `json:"metadata"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.JSON), &doc))
	assert.Equal(t, "Workshop", doc.Collection.Name)
	assert.Equal(t, "the overview", doc.Collection.Overview)
	assert.Equal(t, 4, doc.Collection.TotalItems)
	require.Len(t, doc.Items, 4)
	assert.Equal(t, "up_to_date", doc.Items[0].Metadata["git_status"])
}

func TestRenderNushell(t *testing.T) {
	out, err := Render(nil, testConfig(), "")
	require.NoError(t, err)
	assert.Contains(t, out.Nushell, ".collection/collection-index.yaml")
	assert.Contains(t, out.Nushell, "def show-by-category")
	assert.Contains(t, out.Nushell, "def search-items")
	assert.Contains(t, out.Nushell, "def show-stats")
}

func TestOutputWrite(t *testing.T) {
	root := t.TempDir()
	out, err := Render(testItems(), testConfig(), "overview")
	require.NoError(t, err)
	require.NoError(t, out.Write(root))

	for _, name := range []string{MarkdownFileName, HTMLFileName, JSONFileName, NushellFileName} {
		data, err := os.ReadFile(filepath.Join(root, name))
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

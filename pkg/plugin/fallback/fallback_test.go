package fallback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectivehq/collectivist/pkg/plugin"
)

func seedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "report.pdf"), make([]byte, 300), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "song.mp3"), make([]byte, 200), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".secret"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "deep", "deeper", "deepest"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "deep", "deeper", "deepest", "far.txt"), []byte("x"), 0o644))
	return root
}

func TestDetectAlwaysTrue(t *testing.T) {
	assert.True(t, New().Detect(t.TempDir()))
	assert.True(t, New().Detect("/does/not/exist"))
}

func TestScanBucketsAndDepth(t *testing.T) {
	root := seedTree(t)
	items, err := New().Scan(root, plugin.ScanConfig{ExcludeHidden: true})
	require.NoError(t, err)

	byName := map[string]string{}
	for _, it := range items {
		byName[it.ShortName] = it.MetaString("auto_category")
	}

	assert.Equal(t, "documents", byName["report.pdf"])
	assert.Equal(t, "media_files", byName["song.mp3"])
	assert.Equal(t, "code_projects", byName["main.go"])
	assert.Equal(t, "miscellaneous", byName["deep"])

	// Default depth is 2: deep/ and deep/deeper are in, anything below is out.
	_, tooDeep := byName["deepest"]
	assert.False(t, tooDeep)
	_, hidden := byName[".secret"]
	assert.False(t, hidden)
}

func TestScanSortsBySizeDesc(t *testing.T) {
	root := seedTree(t)
	items, err := New().Scan(root, plugin.ScanConfig{ExcludeHidden: true})
	require.NoError(t, err)
	require.NotEmpty(t, items)
	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Size, items[i].Size)
	}
}

func TestScanHonorsMaxDepthOption(t *testing.T) {
	root := seedTree(t)
	items, err := New().Scan(root, plugin.ScanConfig{
		ExcludeHidden: true,
		Options:       map[string]any{"max_depth": 3},
	})
	require.NoError(t, err)

	var sawDeepest bool
	for _, it := range items {
		if it.ShortName == "deepest" {
			sawDeepest = true
		}
	}
	assert.True(t, sawDeepest)
}

func TestScanPreservesAnnotations(t *testing.T) {
	root := seedTree(t)
	target := filepath.Join(root, "main.go")
	items, err := New().Scan(root, plugin.ScanConfig{
		ExcludeHidden: true,
		Preserve: map[string]plugin.Preserved{
			target: {Description: "entry point", Category: "utilities"},
		},
	})
	require.NoError(t, err)

	for _, it := range items {
		if it.Path == target {
			assert.Equal(t, "entry point", it.Description)
			assert.Equal(t, "utilities", it.Category)
			return
		}
	}
	t.Fatalf("main.go not scanned")
}

func TestContentForDescriptionIncludesPreview(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Plan\ndetails here"), 0o644))

	items, err := New().Scan(root, plugin.ScanConfig{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	content := New().ContentForDescription(&items[0])
	assert.Contains(t, content, "Name: notes.md")
	assert.Contains(t, content, "# Plan")
}

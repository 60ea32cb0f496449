package plugin

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/collectivehq/collectivist/pkg/collection"
)

// DirSize totals the regular files under path. Permission errors skip
// the offending subtree rather than failing the scan.
func DirSize(path string) int64 {
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return fs.SkipDir
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// NewItem builds the baseline item for the entry at path. Created and
// accessed times fall back to the modification time where the platform
// does not expose them through fs.FileInfo.
func NewItem(path string, info os.FileInfo) collection.Item {
	typ := "file"
	if info.IsDir() {
		typ = "dir"
	}
	stamp := info.ModTime().UTC().Format(collection.TimeLayout)
	return collection.Item{
		ShortName: filepath.Base(path),
		Type:      typ,
		Size:      info.Size(),
		Created:   stamp,
		Modified:  stamp,
		Accessed:  stamp,
		Path:      path,
	}
}

// SortBySizeDesc orders items largest first, the presentation order every
// scanner emits. The sort is stable so equal-size items keep walk order.
func SortBySizeDesc(items []collection.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Size > items[j].Size
	})
}

// ReadHead returns at most limit bytes from the start of path, or "" on
// any error. Describable content is best-effort.
func ReadHead(path string, limit int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, limit)
	n, _ := f.Read(buf)
	return string(buf[:n])
}

// Package indexstore reads and writes the collection index artifact.
//
// The index is a single YAML document under .collection/. Two layouts are
// accepted on load: the legacy bare list of items, and the current mapping
// with collection_overview and items keys. Saves always emit the current
// layout. Scanner-specific keys live at the top level of each item entry on
// disk; in memory they are folded into Item.Metadata so the typed model
// stays closed while the file format stays open.
package indexstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/collectivehq/collectivist/pkg/collection"
)

// Index is the in-memory form of the index artifact.
type Index struct {
	Overview string
	Items    []collection.Item
}

// coreKeys are item fields with dedicated struct fields; everything else
// folds into metadata on load.
var coreKeys = map[string]struct{}{
	"short_name": {}, "type": {}, "size": {},
	"created": {}, "modified": {}, "accessed": {},
	"path": {}, "description": {}, "category": {}, "metadata": {},
}

// Load reads the index at path. A missing file yields an empty index, not
// an error: a collection that has never been scanned simply has no items.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{}, nil
		}
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML in index %s: %w", path, err)
	}

	switch root := doc.(type) {
	case nil:
		return &Index{}, nil
	case []any:
		// Legacy layout: a bare list of items.
		items, err := decodeItems(root)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", path, err)
		}
		return &Index{Items: items}, nil
	case map[string]any:
		idx := &Index{}
		if ov, ok := root["collection_overview"].(string); ok {
			idx.Overview = ov
		}
		rawItems, _ := root["items"].([]any)
		items, err := decodeItems(rawItems)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", path, err)
		}
		idx.Items = items
		return idx, nil
	default:
		return nil, fmt.Errorf("index %s: unsupported document layout %T", path, doc)
	}
}

func decodeItems(raw []any) ([]collection.Item, error) {
	items := make([]collection.Item, 0, len(raw))
	for i, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d: expected a mapping, got %T", i, entry)
		}
		it, err := decodeItem(m)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, it)
	}
	return items, nil
}

func decodeItem(m map[string]any) (collection.Item, error) {
	var it collection.Item
	it.ShortName, _ = m["short_name"].(string)
	it.Type, _ = m["type"].(string)
	it.Path, _ = m["path"].(string)
	it.Description, _ = m["description"].(string)
	it.Category, _ = m["category"].(string)
	it.Created = stringish(m["created"])
	it.Modified = stringish(m["modified"])
	it.Accessed = stringish(m["accessed"])

	switch v := m["size"].(type) {
	case int:
		it.Size = int64(v)
	case int64:
		it.Size = v
	case uint64:
		it.Size = int64(v)
	case float64:
		it.Size = int64(v)
	}

	// Explicit metadata block first, then fold unknown top-level keys in.
	if nested, ok := m["metadata"].(map[string]any); ok && len(nested) > 0 {
		it.Metadata = make(map[string]any, len(nested))
		for k, v := range nested {
			it.Metadata[k] = v
		}
	}
	for k, v := range m {
		if _, core := coreKeys[k]; core {
			continue
		}
		it.SetMeta(k, v)
	}

	if it.ShortName == "" {
		return it, fmt.Errorf("missing short_name")
	}
	return it, nil
}

func stringish(v any) string {
	s, _ := v.(string)
	return s
}

// Save writes the index in the current mapping layout. The write is
// atomic: a temp file in the same directory is renamed over the target, so
// readers never observe a torn document.
func Save(idx *Index, path string) error {
	doc := map[string]any{
		"collection_overview": idx.Overview,
		"items":               encodeItems(idx.Items),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return persistErr("marshal", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr("create directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.yaml")
	if err != nil {
		return persistErr("create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return persistErr("write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return persistErr("close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return persistErr("rename", err)
	}
	return nil
}

func encodeItems(items []collection.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		m := map[string]any{
			"short_name": it.ShortName,
			"type":       it.Type,
			"size":       it.Size,
			"path":       it.Path,
		}
		if it.Created != "" {
			m["created"] = it.Created
		}
		if it.Modified != "" {
			m["modified"] = it.Modified
		}
		if it.Accessed != "" {
			m["accessed"] = it.Accessed
		}
		if it.Description != "" {
			m["description"] = it.Description
		}
		if it.Category != "" {
			m["category"] = it.Category
		}
		// Metadata flattens back to the top level; core keys win on clash.
		keys := make([]string, 0, len(it.Metadata))
		for k := range it.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, core := coreKeys[k]; core {
				continue
			}
			m[k] = it.Metadata[k]
		}
		out = append(out, m)
	}
	return out
}

package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/describer"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/indexstore"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// preserveMap extracts the prior annotations from an index, keyed by
// item path. Scanners receive it so a rescan never erases hand-edited
// descriptions.
func preserveMap(idx *indexstore.Index) map[string]plugin.Preserved {
	m := make(map[string]plugin.Preserved, len(idx.Items))
	for _, it := range idx.Items {
		if it.Description == "" && it.Category == "" {
			continue
		}
		m[it.Path] = plugin.Preserved{
			Description: it.Description,
			Category:    it.Category,
		}
	}
	return m
}

// scanConfig builds the scanner input from the collection config and the
// prior index.
func scanConfig(cfg *collection.Config, prior *indexstore.Index) plugin.ScanConfig {
	sc := plugin.ScanConfig{
		ExcludeHidden: cfg.HiddenExcluded(),
		Preserve:      preserveMap(prior),
		Options:       cfg.ScannerConfig,
	}
	if raw, ok := cfg.ScannerConfig["exclude_patterns"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				sc.ExcludePatterns = append(sc.ExcludePatterns, s)
			}
		}
	}
	return sc
}

// hiddenUnderRoot reports whether any component of path relative to
// root is dot-prefixed.
func hiddenUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// normalizeItems canonicalizes scanner output before it is persisted:
// paths become absolute under root, negative sizes are clamped,
// categories outside the declared vocabulary are cleared, descriptions
// are capped, and duplicate paths keep their first occurrence. Hidden
// paths are dropped here when the config excludes them, a backstop for
// scanners that do not enforce the exclusion themselves.
func normalizeItems(items []collection.Item, root string, cfg *collection.Config, em *events.Emitter) []collection.Item {
	out := make([]collection.Item, 0, len(items))
	seen := make(map[string]bool, len(items))

	for _, it := range items {
		if it.Path == "" {
			it.Path = filepath.Join(root, it.ShortName)
		} else if !filepath.IsAbs(it.Path) {
			it.Path = filepath.Join(root, it.Path)
		}
		it.Path = filepath.Clean(it.Path)

		if cfg.HiddenExcluded() && hiddenUnderRoot(root, it.Path) {
			em.Warn(fmt.Sprintf("Hidden item skipped: %s", it.Path))
			continue
		}

		if seen[it.Path] {
			em.Warn(fmt.Sprintf("Duplicate item path skipped: %s", it.Path))
			continue
		}
		seen[it.Path] = true

		if it.Size < 0 {
			it.Size = 0
		}
		if it.Category != "" && !cfg.HasCategory(it.Category) {
			em.Warn(fmt.Sprintf("%s: undeclared category %q cleared", it.ShortName, it.Category))
			it.Category = ""
		}
		it.Description = describer.TruncateRunes(it.Description, describer.MaxDescriptionLen)

		out = append(out, it)
	}
	return out
}

// runScan executes the scan stage: prior annotations in, fresh items
// out, index written with the prior overview intact.
func (p *Pipeline) runScan(cfg *collection.Config, scanner plugin.Scanner, indexPath string) (*indexstore.Index, error) {
	prior, err := indexstore.Load(indexPath)
	if err != nil {
		return nil, err
	}

	p.Emitter.SetStage("scan", 0)
	p.Emitter.Info(fmt.Sprintf("Scanning with %s scanner", scanner.Name()))

	items, err := scanner.Scan(cfg.Path, scanConfig(cfg, prior))
	if err != nil {
		return nil, err
	}
	items = normalizeItems(items, cfg.Path, cfg, p.Emitter)

	idx := &indexstore.Index{Overview: prior.Overview, Items: items}
	if err := indexstore.Save(idx, indexPath); err != nil {
		return nil, err
	}

	p.Emitter.CompleteStage(fmt.Sprintf("Scanned %d items", len(items)))
	return idx, nil
}

// Package organic handles "drop and process" workflows: it finds content
// recently added to a collection and either files it into the tree or
// proposes a placement.
//
// Placement learns from the existing structure. The filesystem plus the
// current index are the only memory: which folder each category's items
// usually live in, and how existing folders are named. The model proposal
// is constrained by that memory, and a keyword heuristic stands in when
// the model is unreachable.
package organic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/indexstore"
	"github.com/collectivehq/collectivist/pkg/llm"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

const (
	// DefaultLookback is how far back the new-content detector reaches.
	DefaultLookback = 24 * time.Hour

	// ContentSampleBytes caps the content excerpt sent to the model.
	ContentSampleBytes = 2048

	// HeuristicMaxConfidence bounds keyword-based placements. A heuristic
	// guess must never clear a sensible auto-file threshold on its own.
	HeuristicMaxConfidence = 0.4
)

// Placement is one proposed destination for a new item.
type Placement struct {
	Category   string
	Folder     string
	Confidence float64
	Reasoning  string
}

// Result records what happened to one new item.
type Result struct {
	Path      string
	Placement Placement
	Moved     bool
	NewPath   string
	Err       error
}

// Placer runs the organic stage for one collection.
type Placer struct {
	Chatter llm.Chatter
	Emitter *events.Emitter

	// Lookback overrides DefaultLookback when positive.
	Lookback time.Duration

	// Now is the clock; tests pin it.
	Now func() time.Time
}

func (p *Placer) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Placer) lookback() time.Duration {
	if p.Lookback > 0 {
		return p.Lookback
	}
	return DefaultLookback
}

// DetectNew returns paths under root whose timestamp falls inside the
// look-back window ending at now. Hidden paths and the state directory
// are skipped. A new directory is reported once; its contents are not
// listed separately, so a later move keeps the subtree intact. Creation
// time is approximated by mtime, which not every filesystem can improve
// on.
func DetectNew(root string, lookback time.Duration, now time.Time) ([]string, error) {
	cutoff := now.Add(-lookback)
	var found []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || name == collection.StateDirName ||
			(name == collection.ConfigFileName && filepath.Dir(path) == root) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			found = append(found, path)
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s for new content: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}

// Run processes all new content in the collection. Per-item failures are
// recorded on the Result, never returned: one stuck file must not stall
// the stage.
func (p *Placer) Run(ctx context.Context, cfg *collection.Config, idx *indexstore.Index) ([]Result, error) {
	root := cfg.Path
	p.Emitter.Info(fmt.Sprintf("Scanning for new content in %s", root))

	newPaths, err := DetectNew(root, p.lookback(), p.now())
	if err != nil {
		return nil, err
	}
	if len(newPaths) == 0 {
		p.Emitter.Info("No new content detected")
		return nil, nil
	}

	p.Emitter.SetStage("organic", len(newPaths))
	p.Emitter.Info(fmt.Sprintf("Found %d new items", len(newPaths)))

	memory := LearnStructure(root, idx)

	results := make([]Result, 0, len(newPaths))
	autoFiled := 0
	for i, path := range newPaths {
		p.Emitter.SetProgress(i+1, filepath.Base(path))

		placement := p.analyze(ctx, path, cfg, memory)
		res := Result{Path: path, Placement: placement}

		if cfg.Schedule.AutoFile && placement.Confidence >= cfg.Schedule.ConfidenceThreshold {
			target, err := moveInto(root, placement.Folder, path)
			if err != nil {
				res.Err = err
				p.Emitter.Error(fmt.Sprintf("Failed to auto-file %s: %v", filepath.Base(path), err))
			} else {
				res.Moved = true
				res.NewPath = target
				autoFiled++
				p.Emitter.Success(fmt.Sprintf("Auto-filed %s -> %s", filepath.Base(path), placement.Folder))
			}
		} else {
			p.Emitter.Info(fmt.Sprintf("Suggest: %s -> %s (%d%% confidence)",
				filepath.Base(path), placement.Folder, int(placement.Confidence*100)))
		}
		results = append(results, res)
	}

	p.Emitter.CompleteStage(fmt.Sprintf("Processed %d items, auto-filed %d", len(results), autoFiled))
	return results, nil
}

// moveInto relocates path to root/folder/, creating the folder if needed.
// The move is guarded: an occupied target aborts it.
func moveInto(root, folder, path string) (string, error) {
	dir := filepath.Join(root, folder)
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Lstat(target); err == nil {
		return "", fmt.Errorf("target already exists: %s", target)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", path, err)
	}
	return target, nil
}

// analyze proposes a placement via the model, falling back to keyword
// heuristics when the model fails.
func (p *Placer) analyze(ctx context.Context, path string, cfg *collection.Config, memory *Memory) Placement {
	sample := contentSample(path)

	prompt := placementPrompt(path, sample, cfg, memory)
	reply, err := p.Chatter.Chat(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		p.Emitter.Warn(fmt.Sprintf("Placement analysis failed for %s: %v", filepath.Base(path), err))
		return heuristicPlacement(path, cfg, memory)
	}

	placement, ok := parsePlacement(reply, cfg)
	if !ok {
		p.Emitter.Warn(fmt.Sprintf("Unparseable placement reply for %s", filepath.Base(path)))
		return heuristicPlacement(path, cfg, memory)
	}

	// Structure outranks the model's free-form folder idea: once a
	// category has an observed home, new items of that category join it.
	if folder, ok := memory.PreferredFolder(placement.Category); ok {
		placement.Folder = folder
	}
	if placement.Folder == "" {
		placement.Folder = placement.Category
	}
	return placement
}

func placementPrompt(path, sample string, cfg *collection.Config, memory *Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Analyze this new content and suggest optimal placement in the collection.
Learn from the existing organizational structure.

COLLECTION TYPE: %s
AVAILABLE CATEGORIES: %s
`, cfg.CollectionType, strings.Join(cfg.Categories, ", "))

	if ctx := memory.Render(); ctx != "" {
		b.WriteString("\n")
		b.WriteString(ctx)
	}

	info, statErr := os.Lstat(path)
	kind := "File"
	var size int64
	if statErr == nil {
		if info.IsDir() {
			kind = "Directory"
		}
		size = info.Size()
	}

	if len(sample) > 1500 {
		sample = sample[:1500]
	}
	fmt.Fprintf(&b, `
NEW CONTENT:
Name: %s
Type: %s
Size: %d bytes

CONTENT SAMPLE:
%s

Suggest the most appropriate category, a target folder following existing
patterns, a confidence level, and brief reasoning.

Respond with JSON:
{"category": "...", "suggested_folder": "...", "confidence": 0.0, "reasoning": "..."}`,
		filepath.Base(path), kind, size, sample)
	return b.String()
}

// parsePlacement extracts a placement from the model reply. Unknown
// categories downgrade to the sink; confidence is clamped to [0,1].
func parsePlacement(reply string, cfg *collection.Config) (Placement, bool) {
	var parsed struct {
		Category        string  `json:"category"`
		SuggestedFolder string  `json:"suggested_folder"`
		Confidence      float64 `json:"confidence"`
		Reasoning       string  `json:"reasoning"`
	}
	body := reply
	if start := strings.Index(reply, "{"); start >= 0 {
		if end := strings.LastIndex(reply, "}"); end > start {
			body = reply[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil || parsed.Category == "" {
		return Placement{}, false
	}

	cat := parsed.Category
	if !cfg.HasCategory(cat) {
		cat = cfg.SinkCategory()
	}
	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return Placement{
		Category:   cat,
		Folder:     parsed.SuggestedFolder,
		Confidence: conf,
		Reasoning:  parsed.Reasoning,
	}, true
}

// typeKeywords maps collection types to name-keyword category rules,
// checked in order.
var typeKeywords = map[string][]struct {
	keywords []string
	category string
}{
	"repositories": {
		{[]string{"ai", "llm", "gpt", "agent"}, "ai_llm_agents"},
		{[]string{"terminal", "cli", "tui"}, "terminal_ui"},
		{[]string{"tool", "util"}, "dev_tools"},
	},
	"obsidian": {
		{[]string{"journal", "daily", "log"}, "daily_notes"},
		{[]string{"project", "plan"}, "project_notes"},
	},
	"documents": {
		{[]string{"invoice", "receipt", "tax"}, "financial"},
		{[]string{"manual", "guide", "howto"}, "reference"},
	},
}

// heuristicPlacement guesses from the item name when the model is out of
// reach. Confidence never exceeds HeuristicMaxConfidence.
func heuristicPlacement(path string, cfg *collection.Config, memory *Memory) Placement {
	name := strings.ToLower(filepath.Base(path))

	for _, rule := range typeKeywords[cfg.CollectionType] {
		if !cfg.HasCategory(rule.category) {
			continue
		}
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				folder := rule.category
				if f, ok := memory.PreferredFolder(rule.category); ok {
					folder = f
				}
				return Placement{
					Category:   rule.category,
					Folder:     folder,
					Confidence: HeuristicMaxConfidence,
					Reasoning:  fmt.Sprintf("Name keyword %q matches category %s", kw, rule.category),
				}
			}
		}
	}

	sink := cfg.SinkCategory()
	folder := sink
	if f, ok := memory.PreferredFolder(sink); ok {
		folder = f
	}
	return Placement{
		Category:   sink,
		Folder:     folder,
		Confidence: 0.2,
		Reasoning:  "No keyword match; defaulting to the sink category",
	}
}

// sampleExtensions are the formats worth reading head content from.
var sampleExtensions = map[string]bool{
	".txt": true, ".md": true, ".py": true, ".js": true, ".ts": true,
	".json": true, ".yaml": true, ".yml": true, ".go": true, ".rs": true,
}

// contentSample extracts up to ContentSampleBytes of text describing the
// item: a file head, or a directory listing plus any README head.
func contentSample(path string) string {
	info, err := os.Lstat(path)
	if err != nil {
		return filepath.Base(path)
	}

	if !info.IsDir() {
		ext := strings.ToLower(filepath.Ext(path))
		if sampleExtensions[ext] {
			if head := plugin.ReadHead(path, ContentSampleBytes); head != "" {
				return head
			}
		}
		return fmt.Sprintf("File: %s (%s)", filepath.Base(path), ext)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Directory: %s\nContents:\n", filepath.Base(path))
	entries, err := os.ReadDir(path)
	if err == nil {
		if len(entries) > 10 {
			entries = entries[:10]
		}
		for _, e := range entries {
			fmt.Fprintf(&b, "  - %s\n", e.Name())
		}
	}
	for _, name := range []string{"README.md", "readme.md", "README", "package.json"} {
		readme := filepath.Join(path, name)
		if head := plugin.ReadHead(readme, 1024); head != "" {
			fmt.Fprintf(&b, "\n%s:\n%s", name, head)
			break
		}
	}
	return b.String()
}

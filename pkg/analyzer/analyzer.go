// Package analyzer turns an unstudied directory into a valid collection
// config. It inspects the tree with a breadth-limited pass, asks the
// model to name a registered scanner, falls back to deterministic
// heuristics when the model fails, and emits the config exactly once.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/llm"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// Sentinel analyzer failures.
var (
	ErrNoScannerForType = errors.New("no scanner registered for detected type")
	ErrInspectionIO     = errors.New("collection inspection failed")
	ErrEmitIO           = errors.New("failed to write collection config")
)

// Inspection limits.
const (
	MaxDepth         = 2
	MaxSampleEntries = 200
	ReadmeHeadBytes  = 2048
)

// Inspection is the breadth-limited summary of a directory tree.
type Inspection struct {
	Dirs       int
	Files      int
	Extensions map[string]int
	GitRepos   int
	TopLevel   []string
	ReadmeHead string
}

// Inspect walks root to MaxDepth, sampling at most MaxSampleEntries
// entries, tallying extensions and git presence, and harvesting up to
// 2 KB of a root-level README.
func Inspect(root string) (*Inspection, error) {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a readable directory", ErrInspectionIO, root)
	}

	insp := &Inspection{Extensions: map[string]int{}}
	sampled := 0

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))
		if d.IsDir() && (d.Name() == collection.StateDirName || depth > MaxDepth) {
			return filepath.SkipDir
		}
		if depth > MaxDepth {
			return nil
		}
		if sampled >= MaxSampleEntries {
			return filepath.SkipAll
		}
		sampled++

		if d.IsDir() {
			insp.Dirs++
			if depth == 1 && !strings.HasPrefix(d.Name(), ".") {
				insp.TopLevel = append(insp.TopLevel, d.Name())
			}
			if d.Name() == ".git" {
				insp.GitRepos++
			}
			return nil
		}

		insp.Files++
		if ext := strings.ToLower(filepath.Ext(d.Name())); ext != "" {
			insp.Extensions[ext]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInspectionIO, err)
	}

	insp.ReadmeHead = readmeHead(root)
	sort.Strings(insp.TopLevel)
	return insp, nil
}

func readmeHead(root string) string {
	for _, name := range []string{"README.md", "readme.md", "README", "README.txt"} {
		if head := plugin.ReadHead(filepath.Join(root, name), ReadmeHeadBytes); head != "" {
			return head
		}
	}
	return ""
}

// Summary renders the inspection as prompt input.
func (i *Inspection) Summary() string {
	type extCount struct {
		ext string
		n   int
	}
	exts := make([]extCount, 0, len(i.Extensions))
	for e, n := range i.Extensions {
		exts = append(exts, extCount{e, n})
	}
	sort.Slice(exts, func(a, b int) bool {
		if exts[a].n != exts[b].n {
			return exts[a].n > exts[b].n
		}
		return exts[a].ext < exts[b].ext
	})
	if len(exts) > 10 {
		exts = exts[:10]
	}
	extParts := make([]string, len(exts))
	for j, e := range exts {
		extParts[j] = fmt.Sprintf("%s: %d", e.ext, e.n)
	}

	top := i.TopLevel
	if len(top) > 10 {
		top = top[:10]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top-level directories: %s\n", strings.Join(top, ", "))
	fmt.Fprintf(&b, "Files: %d across %d directories\n", i.Files, i.Dirs)
	fmt.Fprintf(&b, "File types: %s\n", strings.Join(extParts, ", "))
	fmt.Fprintf(&b, "Git repositories found: %d\n", i.GitRepos)
	if i.ReadmeHead != "" {
		fmt.Fprintf(&b, "\nREADME excerpt:\n---\n%s\n---\n", i.ReadmeHead)
	}
	return b.String()
}

// Classify asks the model to name one of the registered scanner types.
// The reply must be a registered identifier; anything else is an error so
// the caller can fall back to heuristics.
func Classify(ctx context.Context, chatter llm.Chatter, insp *Inspection, scannerNames []string) (string, error) {
	prompt := fmt.Sprintf(`Analyze this directory summary and determine the collection type.

%s
Available collection types: %s

Return JSON:
{"collection_type": "one of the types above"}`, insp.Summary(), strings.Join(scannerNames, ", "))

	reply, err := chatter.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You are a collection type analyzer. Reply with a single JSON object naming one of the provided collection types."},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.1, MaxTokens: 200})
	if err != nil {
		return "", err
	}

	name := parseTypeReply(reply)
	for _, known := range scannerNames {
		if name == known {
			return name, nil
		}
	}
	return "", fmt.Errorf("model named unknown collection type %q", name)
}

// parseTypeReply accepts either a JSON object with collection_type or a
// bare identifier.
func parseTypeReply(reply string) string {
	reply = strings.TrimSpace(reply)
	if start := strings.Index(reply, "{"); start >= 0 {
		if end := strings.LastIndex(reply, "}"); end > start {
			var parsed struct {
				CollectionType string `json:"collection_type"`
			}
			if err := json.Unmarshal([]byte(reply[start:end+1]), &parsed); err == nil && parsed.CollectionType != "" {
				return strings.TrimSpace(parsed.CollectionType)
			}
		}
	}
	return strings.Trim(reply, "\"' \n")
}

// mediaExts and docExts drive the heuristic fallback.
var mediaExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".mp3": true, ".mp4": true, ".mkv": true, ".wav": true, ".flac": true,
}

var docExts = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".txt": true,
	".md": true, ".rtf": true, ".odt": true, ".tex": true,
}

// HeuristicType applies the deterministic fallback priority: git
// presence, then media extensions, then document extensions, then
// fallback.
func HeuristicType(insp *Inspection) string {
	if insp.GitRepos > 0 {
		return "repositories"
	}
	for ext := range insp.Extensions {
		if mediaExts[ext] {
			return "media"
		}
	}
	for ext := range insp.Extensions {
		if docExts[ext] {
			return "documents"
		}
	}
	return "fallback"
}

// Analyzer classifies directories into collections.
type Analyzer struct {
	Registry *plugin.Registry
	Chatter  llm.Chatter
	Emitter  *events.Emitter
}

// Run produces and writes the collection config for root. forceType
// skips classification; overwrite permits replacing an existing config.
// The returned config has already been persisted.
func (a *Analyzer) Run(ctx context.Context, root, forceType string, overwrite bool) (*collection.Config, error) {
	configPath := collection.ConfigPath(root)
	if !overwrite {
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := collection.LoadConfig(configPath)
			if err != nil {
				return nil, err
			}
			a.Emitter.Info("collection.yaml already exists, keeping it")
			return cfg, nil
		}
	}

	insp, err := Inspect(root)
	if err != nil {
		return nil, err
	}

	typeName := forceType
	if typeName == "" {
		names := a.Registry.Names()
		typeName, err = Classify(ctx, a.Chatter, insp, names)
		if err != nil {
			typeName = HeuristicType(insp)
			a.Emitter.Warn(fmt.Sprintf("model classification failed (%v), using heuristic type %q", err, typeName))
		}
	}

	scanner, err := a.Registry.Get(typeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNoScannerForType, typeName)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInspectionIO, err)
	}

	cfg := &collection.Config{
		CollectionType: scanner.Name(),
		Name:           filepath.Base(abs),
		Path:           abs,
		Categories:     scanner.DefaultCategories(),
		ScannerConfig:  map[string]any{},
	}
	cfg.ApplyDefaults()
	cfg.Schedule.Enabled = collection.ModeManual

	if err := collection.SaveConfig(cfg, configPath, overwrite); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmitIO, err)
	}
	a.Emitter.Success(fmt.Sprintf("generated config for %s collection", cfg.CollectionType))
	return cfg, nil
}

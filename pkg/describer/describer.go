// Package describer fills in item descriptions and categories through the
// model, W items at a time.
//
// Workers never write the index themselves: each success is merged into
// the shared item list and saved under one mutex, so every on-disk
// snapshot is a superset of the previous one no matter how the workers
// interleave. Per-item model failures are counted and reported; only a
// failed save aborts the stage.
package describer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/indexstore"
	"github.com/collectivehq/collectivist/pkg/llm"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// Defaults and caps.
const (
	DefaultMaxWorkers = 5
	MaxDescriptionLen = 150 // runes
	MaxOverviewLen    = 500 // runes
	MaxExamples       = 5
)

// SaveFunc persists the full item list. The describer calls it under the
// merge mutex after every successful description.
type SaveFunc func(items []collection.Item) error

// Describer runs the description stage for one collection.
type Describer struct {
	Chatter    llm.Chatter
	Scanner    plugin.Scanner
	Categories []string
	MaxWorkers int
	Emitter    *events.Emitter

	// Limiter optionally throttles model calls across workers.
	Limiter *rate.Limiter
}

// Result summarizes one describer run.
type Result struct {
	Described int
	Failed    int
	Skipped   int
	Overview  string
}

// Run describes every item that lacks a description and refreshes the
// collection overview. Items are mutated in place; the returned slice is
// the same backing array. Already-described items are never touched.
func (d *Describer) Run(ctx context.Context, items []collection.Item, save SaveFunc) ([]collection.Item, *Result, error) {
	workers := d.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}

	var pending []int
	for i := range items {
		if !items[i].Described() {
			pending = append(pending, i)
		}
	}
	total := len(pending)
	if total == 0 {
		d.Emitter.Info("All items already have descriptions")
		return items, &Result{}, nil
	}

	d.Emitter.SetStage("describe", total)
	d.Emitter.Info(fmt.Sprintf("Found %d items needing descriptions", total))

	examples := buildExamples(items)

	var (
		mu        sync.Mutex
		done      int
		described int
		failed    int
		skipped   int
		saveErr   error
		saveOnce  sync.Once
	)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, idx := range pending {
		if runCtx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			item := items[idx]
			desc, cat, err := d.describeOne(runCtx, &item, examples)
			if err != nil {
				mu.Lock()
				if errors.Is(err, errNoContent) {
					skipped++
				} else {
					failed++
				}
				done++
				d.Emitter.SetProgress(done, item.ShortName)
				mu.Unlock()
				d.Emitter.Warn(fmt.Sprintf("%s: %v", item.ShortName, err))
				return
			}

			mu.Lock()
			items[idx].Description = desc
			items[idx].Category = cat
			described++
			if save != nil {
				if err := save(items); err != nil {
					saveOnce.Do(func() {
						saveErr = err
						cancel()
					})
					mu.Unlock()
					return
				}
			}
			// Progress counts completions under the merge mutex, so the
			// emitted sequence never regresses across workers.
			done++
			d.Emitter.SetProgress(done, item.ShortName)
			mu.Unlock()

			d.Emitter.Info(fmt.Sprintf("%s: %s [%s]", item.ShortName, desc, cat))
		}(idx)
	}
	wg.Wait()

	if saveErr != nil {
		return items, nil, fmt.Errorf("incremental save: %w", saveErr)
	}

	d.Emitter.CompleteStage(fmt.Sprintf("Completed: %d/%d descriptions generated", described, total))
	if failed+skipped > 0 {
		d.Emitter.Warn(fmt.Sprintf("Failed: %d items", failed+skipped))
	}

	res := &Result{Described: described, Failed: failed, Skipped: skipped}
	if described > 0 {
		d.Emitter.Info("Generating collection overview...")
		if overview, err := d.Overview(ctx, items); err != nil {
			d.Emitter.Warn(fmt.Sprintf("Failed to generate collection overview: %v", err))
		} else {
			res.Overview = overview
		}
	}
	return items, res, nil
}

// errNoContent marks items the scanner has nothing to say about; they
// are skipped, not failed.
var errNoContent = errors.New("no content")

// describeOne runs the model for a single item.
func (d *Describer) describeOne(ctx context.Context, item *collection.Item, examples string) (desc, cat string, err error) {
	content := d.Scanner.ContentForDescription(item)
	if strings.TrimSpace(content) == "" {
		return "", "", errNoContent
	}

	prompt := interpolate(d.Scanner.DescriptionPromptTemplate(), item, content)
	if examples != "" {
		prompt = "Example descriptions from other items:\n" + examples + "\n\n" + prompt
	}

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return "", "", err
		}
	}

	reply, err := d.Chatter.Chat(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.1, MaxTokens: 500})
	if err != nil {
		return "", "", err
	}

	desc, cat = d.parseReply(reply)
	return desc, cat, nil
}

// parseReply extracts description and category from the model reply.
// A JSON object is preferred; anything else is treated as a raw
// description and filed under the sink category. Unknown categories are
// downgraded to the sink.
func (d *Describer) parseReply(reply string) (string, string) {
	sink := d.Categories[len(d.Categories)-1]
	reply = strings.TrimSpace(reply)

	var parsed struct {
		Description string `json:"description"`
		Category    string `json:"category"`
	}
	jsonBody := reply
	if start := strings.Index(reply, "{"); start >= 0 {
		if end := strings.LastIndex(reply, "}"); end > start {
			jsonBody = reply[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(jsonBody), &parsed); err != nil || parsed.Description == "" {
		return TruncateRunes(reply, MaxDescriptionLen), sink
	}

	cat := parsed.Category
	if !d.validCategory(cat) {
		cat = sink
	}
	return TruncateRunes(strings.TrimSpace(parsed.Description), MaxDescriptionLen), cat
}

func (d *Describer) validCategory(cat string) bool {
	for _, c := range d.Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// buildExamples collects up to MaxExamples already-described items, in
// list order, as few-shot priming lines.
func buildExamples(items []collection.Item) string {
	var lines []string
	for _, it := range items {
		if !it.Described() {
			continue
		}
		cat := it.Category
		if cat == "" {
			cat = "utilities_misc"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s [category: %s]", it.ShortName, it.Description, cat))
		if len(lines) == MaxExamples {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// Overview asks the model for a 2-3 sentence collection summary, capped
// at MaxOverviewLen. Returns "" without error when nothing is described.
func (d *Describer) Overview(ctx context.Context, items []collection.Item) (string, error) {
	var described []collection.Item
	categories := map[string]int{}
	for _, it := range items {
		if it.Described() {
			described = append(described, it)
			if it.Category != "" {
				categories[it.Category]++
			}
		}
	}
	if len(described) == 0 {
		return "", nil
	}

	var catParts []string
	for _, c := range d.Categories {
		if n := categories[c]; n > 0 {
			catParts = append(catParts, fmt.Sprintf("%d %s", n, c))
		}
	}

	samples := described
	if len(samples) > 10 {
		samples = samples[:10]
	}
	var sampleLines []string
	for _, it := range samples {
		cat := it.Category
		if cat == "" {
			cat = "uncategorized"
		}
		sampleLines = append(sampleLines, fmt.Sprintf("- %s: %s [%s]", it.ShortName, it.Description, cat))
	}

	prompt := fmt.Sprintf(`Analyze this %s collection and generate a concise overview paragraph (2-3 sentences, max 200 words).

COLLECTION STATISTICS:
- Total items: %d
- Items with descriptions: %d
- Categories: %s

SAMPLE ITEMS:
%s

Generate a contextual overview that captures:
1. The main focus/theme of this collection
2. Key categories or types of content
3. Any notable patterns or characteristics

Return only the overview paragraph, no additional formatting or explanation.`,
		d.Scanner.Name(), len(items), len(described),
		strings.Join(catParts, ", "), strings.Join(sampleLines, "\n"))

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	reply, err := d.Chatter.Chat(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{Temperature: 0.3, MaxTokens: 300})
	if err != nil {
		return "", err
	}

	overview := strings.TrimSpace(reply)
	if utf8.RuneCountInString(overview) > MaxOverviewLen {
		overview = TruncateRunes(overview, MaxOverviewLen-3) + "..."
	}
	return overview, nil
}

// placeholderRe matches {field} placeholders. JSON braces in templates
// survive because their contents are never bare lowercase identifiers.
var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// interpolate fills a prompt template from the item and its metadata.
// Unknown placeholders become empty strings.
func interpolate(template string, item *collection.Item, content string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		field := m[1 : len(m)-1]
		switch field {
		case "content":
			return content
		case "name", "filename":
			return item.ShortName
		case "size":
			return fmt.Sprintf("%d", item.Size)
		case "metadata_tags":
			return joinMeta(item.Metadata["tags"])
		}
		if v, ok := item.Metadata[field]; ok {
			return fmt.Sprintf("%v", v)
		}
		return ""
	})
}

func joinMeta(v any) string {
	switch tags := v.(type) {
	case []string:
		return strings.Join(tags, ", ")
	case []any:
		parts := make([]string, 0, len(tags))
		for _, t := range tags {
			parts = append(parts, fmt.Sprintf("%v", t))
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// TruncateRunes caps s at n runes.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// SaveTo adapts an index path into a SaveFunc that preserves the given
// overview across incremental saves.
func SaveTo(path, overview string) SaveFunc {
	return func(items []collection.Item) error {
		return indexstore.Save(&indexstore.Index{Overview: overview, Items: items}, path)
	}
}

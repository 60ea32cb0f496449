package describer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/llm"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// scriptedChatter returns replies keyed by a substring of the prompt, or
// a default reply. failOn lists content markers whose prompts fail.
type scriptedChatter struct {
	mu      sync.Mutex
	reply   string
	failOn  []string
	prompts []string
}

func (s *scriptedChatter) Chat(_ context.Context, msgs []llm.Message, _ llm.ChatOptions) (string, error) {
	prompt := msgs[len(msgs)-1].Content
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	for _, marker := range s.failOn {
		if strings.Contains(prompt, marker) {
			return "", errors.New("model unavailable")
		}
	}
	return s.reply, nil
}

func (s *scriptedChatter) Probe(context.Context) error { return nil }

// contentScanner serves canned content per short name.
type contentScanner struct {
	content map[string]string
}

func (c *contentScanner) Name() string                { return "repositories" }
func (c *contentScanner) SupportedTypes() []string    { return []string{"dir"} }
func (c *contentScanner) DefaultCategories() []string { return []string{"dev_tools", "utilities_misc"} }
func (c *contentScanner) Detect(string) bool          { return false }
func (c *contentScanner) Scan(string, plugin.ScanConfig) ([]collection.Item, error) {
	return nil, nil
}
func (c *contentScanner) DescriptionPromptTemplate() string {
	return "Describe this repository.\n---\n{content}\n---"
}
func (c *contentScanner) ContentForDescription(item *collection.Item) string {
	return c.content[item.ShortName]
}

func testItems(names ...string) []collection.Item {
	items := make([]collection.Item, len(names))
	for i, n := range names {
		items[i] = collection.Item{ShortName: n, Type: "dir", Path: "/coll/" + n}
	}
	return items
}

func newDescriber(chatter llm.Chatter, scanner plugin.Scanner, workers int) *Describer {
	return &Describer{
		Chatter:    chatter,
		Scanner:    scanner,
		Categories: []string{"dev_tools", "utilities_misc"},
		MaxWorkers: workers,
		Emitter:    events.NewEmitter(nil),
	}
}

func contentFor(names ...string) map[string]string {
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[n] = "readme for " + n
	}
	return m
}

func TestRunDescribesAllItems(t *testing.T) {
	chatter := &scriptedChatter{reply: `{"description":"X","category":"dev_tools"}`}
	scanner := &contentScanner{content: contentFor("repo-a", "repo-b", "repo-c")}
	d := newDescriber(chatter, scanner, 3)

	items, res, err := d.Run(context.Background(), testItems("repo-a", "repo-b", "repo-c"), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Described)
	assert.NotEmpty(t, res.Overview)
	for _, it := range items {
		assert.Equal(t, "X", it.Description)
		assert.Equal(t, "dev_tools", it.Category)
	}
}

func TestRunAllAlreadyDescribedIsNoOp(t *testing.T) {
	bus := events.NewBus(16)
	sub := bus.Subscribe()
	defer sub.Close()

	chatter := &scriptedChatter{reply: `{"description":"new","category":"dev_tools"}`}
	d := newDescriber(chatter, &contentScanner{content: contentFor("a")}, 2)
	d.Emitter = events.NewEmitter(bus)

	items := testItems("a")
	items[0].Description = "existing"
	items[0].Category = "dev_tools"

	got, res, err := d.Run(context.Background(), items, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Described)
	assert.Empty(t, res.Overview)
	assert.Equal(t, "existing", got[0].Description)
	assert.Empty(t, chatter.prompts) // model never called

	ev, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, "All items already have descriptions", ev.Message)
}

func TestRunModelFailureResilience(t *testing.T) {
	// 10 items; the model fails on items 3 and 7.
	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("item-%02d", i+1)
	}
	chatter := &scriptedChatter{
		reply:  `{"description":"fine","category":"dev_tools"}`,
		failOn: []string{"readme for item-03", "readme for item-07"},
	}
	d := newDescriber(chatter, &contentScanner{content: contentFor(names...)}, 4)

	bus := events.NewBus(256)
	sub := bus.Subscribe()
	defer sub.Close()
	d.Emitter = events.NewEmitter(bus)

	items, res, err := d.Run(context.Background(), testItems(names...), nil)
	require.NoError(t, err) // per-item failures never fail the run
	assert.Equal(t, 8, res.Described)
	assert.Equal(t, 2, res.Failed)

	described := 0
	for _, it := range items {
		if it.Described() {
			described++
		} else {
			assert.Contains(t, []string{"item-03", "item-07"}, it.ShortName)
			assert.Empty(t, it.Category)
		}
	}
	assert.Equal(t, 8, described)

	var namedWarns []string
	for {
		ev, ok := sub.TryNext()
		if !ok {
			break
		}
		if ev.Level == events.LevelWarn {
			if strings.Contains(ev.Message, "item-03") || strings.Contains(ev.Message, "item-07") {
				namedWarns = append(namedWarns, ev.Message)
			}
		}
	}
	assert.Len(t, namedWarns, 2)
}

func TestRunUnknownCategoryDowngradedToSink(t *testing.T) {
	chatter := &scriptedChatter{reply: `{"description":"thing","category":"nonsense"}`}
	d := newDescriber(chatter, &contentScanner{content: contentFor("a")}, 1)

	items, _, err := d.Run(context.Background(), testItems("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, "utilities_misc", items[0].Category)
}

func TestRunRawReplyFallsBackToSink(t *testing.T) {
	chatter := &scriptedChatter{reply: "A plain sentence, not JSON."}
	d := newDescriber(chatter, &contentScanner{content: contentFor("a")}, 1)

	items, _, err := d.Run(context.Background(), testItems("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, "A plain sentence, not JSON.", items[0].Description)
	assert.Equal(t, "utilities_misc", items[0].Category)
}

func TestDescriptionTruncatedTo150Runes(t *testing.T) {
	long := strings.Repeat("é", 300)
	chatter := &scriptedChatter{reply: `{"description":"` + long + `","category":"dev_tools"}`}
	d := newDescriber(chatter, &contentScanner{content: contentFor("a")}, 1)

	items, _, err := d.Run(context.Background(), testItems("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, 150, len([]rune(items[0].Description)))
}

func TestNoContentItemsSkippedWithWarn(t *testing.T) {
	chatter := &scriptedChatter{reply: `{"description":"x","category":"dev_tools"}`}
	scanner := &contentScanner{content: map[string]string{"has-content": "readme"}}
	d := newDescriber(chatter, scanner, 2)

	items, res, err := d.Run(context.Background(), testItems("has-content", "empty"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Described)
	assert.Equal(t, 1, res.Skipped)
	for _, it := range items {
		if it.ShortName == "empty" {
			assert.False(t, it.Described())
		}
	}
}

func TestIncrementalSavesAreMonotonic(t *testing.T) {
	chatter := &scriptedChatter{reply: `{"description":"d","category":"dev_tools"}`}
	names := []string{"a", "b", "c", "d", "e", "f"}
	d := newDescriber(chatter, &contentScanner{content: contentFor(names...)}, 4)

	var mu sync.Mutex
	var snapshots [][]string
	save := func(items []collection.Item) error {
		var described []string
		for _, it := range items {
			if it.Described() {
				described = append(described, it.ShortName)
			}
		}
		mu.Lock()
		snapshots = append(snapshots, described)
		mu.Unlock()
		return nil
	}

	_, res, err := d.Run(context.Background(), testItems(names...), save)
	require.NoError(t, err)
	assert.Equal(t, len(names), res.Described)
	require.Len(t, snapshots, len(names))

	// Each snapshot strictly grows: save k holds k described items.
	for i, snap := range snapshots {
		assert.Len(t, snap, i+1)
	}
}

func TestSaveFailureAbortsRun(t *testing.T) {
	chatter := &scriptedChatter{reply: `{"description":"d","category":"dev_tools"}`}
	d := newDescriber(chatter, &contentScanner{content: contentFor("a", "b")}, 1)

	boom := errors.New("disk full")
	_, _, err := d.Run(context.Background(), testItems("a", "b"), func([]collection.Item) error {
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestWorkerCountInvariance(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	run := func(workers int) map[string][2]string {
		chatter := &scriptedChatter{reply: `{"description":"same","category":"dev_tools"}`}
		d := newDescriber(chatter, &contentScanner{content: contentFor(names...)}, workers)
		items, _, err := d.Run(context.Background(), testItems(names...), nil)
		require.NoError(t, err)
		out := map[string][2]string{}
		for _, it := range items {
			out[it.Path] = [2]string{it.Description, it.Category}
		}
		return out
	}

	assert.Equal(t, run(1), run(32))
}

func TestSecondRunTouchesNothing(t *testing.T) {
	chatter := &scriptedChatter{reply: `{"description":"first","category":"dev_tools"}`}
	scanner := &contentScanner{content: contentFor("a", "b")}
	d := newDescriber(chatter, scanner, 2)

	items, _, err := d.Run(context.Background(), testItems("a", "b"), nil)
	require.NoError(t, err)
	callsAfterFirst := len(chatter.prompts)

	chatter.reply = `{"description":"second","category":"utilities_misc"}`
	items, res, err := d.Run(context.Background(), items, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Described)
	assert.Equal(t, callsAfterFirst, len(chatter.prompts))
	for _, it := range items {
		assert.Equal(t, "first", it.Description)
	}
}

func TestFewShotExamplesCapped(t *testing.T) {
	items := testItems("a", "b", "c", "d", "e", "f", "g", "new")
	for i := 0; i < 7; i++ {
		items[i].Description = fmt.Sprintf("desc-%d", i)
		items[i].Category = "dev_tools"
	}

	chatter := &scriptedChatter{reply: `{"description":"x","category":"dev_tools"}`}
	d := newDescriber(chatter, &contentScanner{content: contentFor("new")}, 1)

	_, _, err := d.Run(context.Background(), items, nil)
	require.NoError(t, err)
	require.Len(t, chatter.prompts, 2) // describe + overview

	prompt := chatter.prompts[0]
	assert.Contains(t, prompt, "Example descriptions from other items:")
	assert.Contains(t, prompt, "- a: desc-0 [category: dev_tools]")
	assert.Contains(t, prompt, "- e: desc-4 [category: dev_tools]")
	assert.NotContains(t, prompt, "desc-5") // capped at 5 examples
}

func TestOverviewTruncated(t *testing.T) {
	long := strings.Repeat("o", 600)
	chatter := &scriptedChatter{reply: long}
	d := newDescriber(chatter, &contentScanner{content: contentFor("a")}, 1)

	items := testItems("a")
	items[0].Description = "done"
	items[0].Category = "dev_tools"

	overview, err := d.Overview(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, overview, MaxOverviewLen)
	assert.True(t, strings.HasSuffix(overview, "..."))
}

func TestInterpolatePreservesJSONBraces(t *testing.T) {
	item := &collection.Item{ShortName: "note", Size: 42}
	item.SetMeta("word_count", 120)
	item.SetMeta("tags", []string{"go", "infra"})

	template := `Tags: {metadata_tags}
Words: {word_count}
Missing: {page_count}
Body: {content}
Return JSON like {"description": "...", "category": "..."}`

	got := interpolate(template, item, "the body")
	assert.Contains(t, got, "Tags: go, infra")
	assert.Contains(t, got, "Words: 120")
	assert.Contains(t, got, "Missing: \n")
	assert.Contains(t, got, "Body: the body")
	assert.Contains(t, got, `{"description": "...", "category": "..."}`)
}

func TestOverviewTruncationKeepsValidUTF8(t *testing.T) {
	// 506 runes, 516 bytes: a byte-boundary cut would land inside the
	// final run of two-byte runes.
	long := strings.Repeat("x", 496) + strings.Repeat("é", 10)
	chatter := &scriptedChatter{reply: long}
	d := newDescriber(chatter, &contentScanner{content: contentFor("a")}, 1)

	items := testItems("a")
	items[0].Description = "done"
	items[0].Category = "dev_tools"

	overview, err := d.Overview(context.Background(), items)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(overview))
	assert.Equal(t, MaxOverviewLen, utf8.RuneCountInString(overview))
	assert.True(t, strings.HasSuffix(overview, "..."))
}

func TestRateLimitedRunDescribesAll(t *testing.T) {
	chatter := &scriptedChatter{reply: `{"description":"X","category":"dev_tools"}`}
	scanner := &contentScanner{content: contentFor("a", "b", "c", "d", "e")}
	d := newDescriber(chatter, scanner, 3)
	d.Limiter = rate.NewLimiter(rate.Limit(1000), 1)

	_, res, err := d.Run(context.Background(), testItems("a", "b", "c", "d", "e"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Described)
}

func TestProgressCountsCompletions(t *testing.T) {
	names := make([]string, 12)
	content := map[string]string{}
	for i := range names {
		names[i] = fmt.Sprintf("item-%02d", i)
		content[names[i]] = "readme for " + names[i]
	}

	// Two model failures: failed items must advance progress too.
	chatter := &scriptedChatter{
		reply:  `{"description":"X","category":"dev_tools"}`,
		failOn: []string{"readme for item-04", "readme for item-09"},
	}

	bus := events.NewBus(0)
	sub := bus.Subscribe()
	d := newDescriber(chatter, &contentScanner{content: content}, 4)
	d.Emitter = events.NewEmitter(bus)

	_, res, err := d.Run(context.Background(), testItems(names...), nil)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Described)
	assert.Equal(t, 2, res.Failed)

	sub.Close()
	var progress []int
	for {
		ev, ok := sub.TryNext()
		if !ok {
			break
		}
		if ev.Stage == "describe" && ev.CurrentItem != "" && ev.Message == "" {
			progress = append(progress, ev.Current)
		}
	}

	require.Len(t, progress, len(names))
	for i, p := range progress {
		assert.Equal(t, i+1, p, "progress must count completions in order")
	}
	assert.Equal(t, len(names), progress[len(progress)-1])
}

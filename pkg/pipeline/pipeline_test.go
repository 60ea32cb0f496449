package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/indexstore"
	"github.com/collectivehq/collectivist/pkg/llm"
	"github.com/collectivehq/collectivist/pkg/plugin"
	"github.com/collectivehq/collectivist/pkg/plugin/builtin"
)

type stubChatter struct {
	reply    string
	chatErr  error
	probeErr error
	calls    int
}

func (s *stubChatter) Chat(context.Context, []llm.Message, llm.ChatOptions) (string, error) {
	s.calls++
	return s.reply, s.chatErr
}

func (s *stubChatter) Probe(context.Context) error { return s.probeErr }

func testRegistry() *plugin.Registry {
	reg := plugin.NewRegistry()
	builtin.RegisterAll(reg)
	return reg
}

func newPipeline(root string, chatter llm.Chatter) *Pipeline {
	return &Pipeline{
		Root:     root,
		Registry: testRegistry(),
		Emitter:  events.NewEmitter(nil),
		Chatter:  chatter,
	}
}

func seedTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "report.pdf"), make([]byte, 300), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "song.mp3"), make([]byte, 200), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("some notes"), 0o644))
}

func writeConfig(t *testing.T, root string, mode collection.ScheduleMode) *collection.Config {
	t.Helper()
	cfg := &collection.Config{
		CollectionType: "fallback",
		Name:           filepath.Base(root),
		Path:           root,
		Categories: []string{
			"documents", "media_files", "code_projects", "data_files",
			"archives", "configuration", "utilities", "miscellaneous",
		},
	}
	cfg.Schedule.Enabled = mode
	cfg.ApplyDefaults()
	require.NoError(t, collection.SaveConfig(cfg, collection.ConfigPath(root), false))
	return cfg
}

func TestRunFullPipeline(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root)

	chatter := &stubChatter{reply: `{"description":"Generated","category":"documents"}`}
	p := newPipeline(root, chatter)

	run, err := p.Run(context.Background(), Options{
		SkipOrganic: true,
		ForceType:   "fallback",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, []string{StageAnalyze, StageScan, StageDescribe, StageRender}, run.Stages)
	assert.Equal(t, 4, run.Items) // three seeded files plus collection.yaml
	assert.Equal(t, 4, run.Described)

	// Config, index, and artifacts all landed on disk.
	assert.FileExists(t, collection.ConfigPath(root))
	idx, err := indexstore.Load(collection.IndexPath(root))
	require.NoError(t, err)
	require.Len(t, idx.Items, 4)
	for _, it := range idx.Items {
		assert.Equal(t, "Generated", it.Description)
		assert.Equal(t, "documents", it.Category)
	}
	assert.FileExists(t, filepath.Join(root, "README.md"))
	assert.FileExists(t, filepath.Join(root, "index.html"))
	assert.FileExists(t, filepath.Join(root, "index.json"))
	assert.FileExists(t, filepath.Join(root, "collection.nu"))
}

func TestRunSkipAllIsNoOp(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root)
	writeConfig(t, root, collection.ModeManual)

	chatter := &stubChatter{chatErr: errors.New("model must not be called")}
	p := newPipeline(root, chatter)

	run, err := p.Run(context.Background(), Options{
		SkipOrganic: true, SkipAnalyze: true, SkipScan: true,
		SkipDescribe: true, SkipRender: true,
	})
	require.NoError(t, err)
	assert.Empty(t, run.Stages)
	assert.Zero(t, chatter.calls)
	assert.NoFileExists(t, filepath.Join(root, "README.md"))
}

func TestRunProbeFailureIsFatal(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root)
	writeConfig(t, root, collection.ModeManual)

	// An index with work to do so the describe stage actually runs.
	require.NoError(t, indexstore.Save(&indexstore.Index{Items: []collection.Item{
		{ShortName: "notes.txt", Type: "file", Size: 10, Path: filepath.Join(root, "notes.txt")},
	}}, collection.IndexPath(root)))

	chatter := &stubChatter{probeErr: errors.New("connection refused")}
	p := newPipeline(root, chatter)

	_, err := p.Run(context.Background(), Options{
		SkipOrganic: true, SkipAnalyze: true, SkipScan: true, SkipRender: true,
	})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDescribe, se.Stage)
	assert.Contains(t, err.Error(), "collectivist.yaml")
}

func TestRescanPreservesAnnotations(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root)
	writeConfig(t, root, collection.ModeManual)

	// Prior index carries a hand-edited description for notes.txt.
	notesPath := filepath.Join(root, "notes.txt")
	require.NoError(t, indexstore.Save(&indexstore.Index{
		Overview: "prior overview",
		Items: []collection.Item{
			{ShortName: "notes.txt", Type: "file", Size: 10, Path: notesPath,
				Description: "Hand-written description", Category: "documents"},
		},
	}, collection.IndexPath(root)))

	chatter := &stubChatter{chatErr: errors.New("model must not be called")}
	p := newPipeline(root, chatter)

	run, err := p.Run(context.Background(), Options{
		SkipOrganic: true, SkipAnalyze: true, SkipDescribe: true, SkipRender: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{StageScan}, run.Stages)

	idx, err := indexstore.Load(collection.IndexPath(root))
	require.NoError(t, err)
	assert.Equal(t, "prior overview", idx.Overview)

	var found bool
	for _, it := range idx.Items {
		if it.Path == notesPath {
			found = true
			assert.Equal(t, "Hand-written description", it.Description)
			assert.Equal(t, "documents", it.Category)
		}
	}
	assert.True(t, found)
	assert.Len(t, idx.Items, 4) // rescan picked up the rest of the tree
}

func TestScheduledModeForcesOrganicOff(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root)
	writeConfig(t, root, collection.ModeScheduled)

	chatter := &stubChatter{reply: `{"description":"D","category":"documents"}`}
	p := newPipeline(root, chatter)

	run, err := p.Run(context.Background(), Options{SkipDescribe: true, SkipRender: true})
	require.NoError(t, err)
	assert.Equal(t, collection.ModeScheduled, run.Mode)
	assert.NotContains(t, run.Stages, StageOrganic)
	assert.Contains(t, run.Stages, StageScan)
}

func TestOrganicModeForcesAllStagesOn(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, collection.ModeOrganic)

	chatter := &stubChatter{reply: `{"description":"D","category":"documents"}`}
	p := newPipeline(root, chatter)

	// Every skip flag set; organic mode overrides them all.
	run, err := p.Run(context.Background(), Options{
		SkipOrganic: true, SkipAnalyze: true, SkipScan: true,
		SkipDescribe: true, SkipRender: true,
	})
	require.NoError(t, err)
	assert.Equal(t, collection.ModeOrganic, run.Mode)
	assert.Equal(t, []string{StageOrganic, StageAnalyze, StageScan, StageDescribe, StageRender}, run.Stages)
}

func TestRunMissingConfigFails(t *testing.T) {
	root := t.TempDir()
	p := newPipeline(root, &stubChatter{})

	_, err := p.Run(context.Background(), Options{
		SkipOrganic: true, SkipAnalyze: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run analyze first")
}

func TestNormalizeItems(t *testing.T) {
	root := t.TempDir()
	cfg := &collection.Config{
		CollectionType: "fallback",
		Name:           "c",
		Path:           root,
		Categories:     []string{"documents", "miscellaneous"},
	}
	cfg.ApplyDefaults()

	items := []collection.Item{
		{ShortName: "a", Type: "file", Size: -5, Path: "a"},
		{ShortName: "a", Type: "file", Size: 1, Path: filepath.Join(root, "a")}, // duplicate path
		{ShortName: "b", Type: "file", Size: 2, Path: filepath.Join(root, "b"), Category: "undeclared"},
	}

	out := normalizeItems(items, root, cfg, events.NewEmitter(nil))
	require.Len(t, out, 2)
	assert.Equal(t, filepath.Join(root, "a"), out[0].Path)
	assert.Equal(t, int64(0), out[0].Size)
	assert.Empty(t, out[1].Category) // undeclared category cleared
}

type recordingPublisher struct {
	cfg   *collection.PublishConfig
	files map[string]string
}

func (r *recordingPublisher) Publish(_ context.Context, cfg *collection.PublishConfig, files map[string]string) error {
	r.cfg = cfg
	r.files = files
	return nil
}

func TestRenderStagePublishesArtifacts(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root)
	cfg := writeConfig(t, root, collection.ModeManual)
	cfg.Publish = &collection.PublishConfig{Bucket: "my-bucket"}
	require.NoError(t, collection.SaveConfig(cfg, collection.ConfigPath(root), true))

	pub := &recordingPublisher{}
	p := newPipeline(root, &stubChatter{reply: `{"description":"D","category":"documents"}`})
	p.Publisher = pub

	_, err := p.Run(context.Background(), Options{
		SkipOrganic: true, SkipAnalyze: true, SkipDescribe: true,
	})
	require.NoError(t, err)
	require.NotNil(t, pub.cfg)
	assert.Equal(t, "my-bucket", pub.cfg.Bucket)
	assert.Len(t, pub.files, 4)
}

func TestChatterLimiter(t *testing.T) {
	// Injected chatters have no config, so no limiter.
	assert.Nil(t, chatterLimiter(&stubChatter{}))

	unlimited, err := llm.NewClient(llm.Config{Provider: llm.ProviderOllama})
	require.NoError(t, err)
	assert.Nil(t, chatterLimiter(unlimited))

	throttled, err := llm.NewClient(llm.Config{Provider: llm.ProviderOllama, RateLimit: 2})
	require.NoError(t, err)
	limiter := chatterLimiter(throttled)
	require.NotNil(t, limiter)
	assert.InDelta(t, 2, float64(limiter.Limit()), 1e-9)
}

func TestRunSkipAllOnFreshTreeWritesNothing(t *testing.T) {
	root := t.TempDir()

	chatter := &stubChatter{chatErr: errors.New("model must not be called")}
	p := newPipeline(root, chatter)

	_, err := p.Run(context.Background(), Options{
		SkipOrganic: true, SkipAnalyze: true, SkipScan: true,
		SkipDescribe: true, SkipRender: true,
	})
	require.Error(t, err) // no config, and analyze was skipped

	// The failed run must not leave a state directory behind.
	assert.NoDirExists(t, filepath.Join(root, collection.StateDirName))
	entries, readErr := os.ReadDir(root)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestNormalizeItemsDropsHiddenPaths(t *testing.T) {
	root := t.TempDir()
	cfg := &collection.Config{
		CollectionType: "fallback",
		Name:           "c",
		Path:           root,
		Categories:     []string{"documents", "miscellaneous"},
	}
	cfg.ApplyDefaults()

	items := []collection.Item{
		{ShortName: "visible", Type: "file", Size: 1, Path: filepath.Join(root, "visible")},
		{ShortName: "secret", Type: "file", Size: 1, Path: filepath.Join(root, ".hidden", "secret")},
		{ShortName: ".env", Type: "file", Size: 1, Path: filepath.Join(root, ".env")},
	}

	out := normalizeItems(items, root, cfg, events.NewEmitter(nil))
	require.Len(t, out, 1)
	assert.Equal(t, "visible", out[0].ShortName)

	// With the exclusion off, hidden paths pass through.
	no := false
	cfg.ExcludeHidden = &no
	out = normalizeItems(items, root, cfg, events.NewEmitter(nil))
	assert.Len(t, out, 3)
}

// Package pipeline orchestrates the collection workflow as a fixed
// sequence of stages: organic placement, analysis, scan, describe,
// render. Stage order is strict; each stage can be skipped, and the
// workflow mode constrains which skips are honored.
//
// The orchestrator owns the index for the duration of a run. Scanners
// see prior annotations only through the preserve map, and the describer
// writes the index only through the save callback the orchestrator
// hands it.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/collectivehq/collectivist/pkg/analyzer"
	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/describer"
	"github.com/collectivehq/collectivist/pkg/events"
	"github.com/collectivehq/collectivist/pkg/indexstore"
	"github.com/collectivehq/collectivist/pkg/llm"
	"github.com/collectivehq/collectivist/pkg/organic"
	"github.com/collectivehq/collectivist/pkg/plugin"
	"github.com/collectivehq/collectivist/pkg/renderer"
)

// Stage names, in execution order.
const (
	StageOrganic  = "organic"
	StageAnalyze  = "analyze"
	StageScan     = "scan"
	StageDescribe = "describe"
	StageRender   = "render"
)

// StageError wraps a stage failure with the stage name.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ArtifactPublisher uploads rendered artifacts after the render stage.
type ArtifactPublisher interface {
	Publish(ctx context.Context, cfg *collection.PublishConfig, files map[string]string) error
}

// Options selects the stages and parameters of one run.
type Options struct {
	SkipOrganic  bool
	SkipAnalyze  bool
	SkipScan     bool
	SkipDescribe bool
	SkipRender   bool

	// ForceType re-runs the analyzer with a fixed collection type even
	// when a config exists.
	ForceType string

	// MaxWorkers sizes the describer pool. Zero means the default.
	MaxWorkers int

	// Mode overrides the workflow mode. Empty derives it from the
	// collection's schedule block.
	Mode collection.ScheduleMode

	// LLMConfigPath is an explicit model config file, taking precedence
	// over the discovery chain.
	LLMConfigPath string
}

// Run is the record of one pipeline invocation.
type Run struct {
	ID         string
	Root       string
	Mode       collection.ScheduleMode
	StartedAt  time.Time
	FinishedAt time.Time

	// Stages lists the stage names that actually executed.
	Stages []string

	// Items and Described summarize the final index state.
	Items     int
	Described int

	Err error
}

// Pipeline runs the workflow for one collection root.
type Pipeline struct {
	Root     string
	Registry *plugin.Registry
	Emitter  *events.Emitter

	// Chatter overrides model-client discovery when set; tests use it.
	Chatter llm.Chatter

	// Publisher optionally receives rendered artifacts. Nil disables
	// publishing.
	Publisher ArtifactPublisher

	chatter llm.Chatter
}

// getChatter returns the model client, discovering configuration on
// first use.
func (p *Pipeline) getChatter(opts Options) (llm.Chatter, error) {
	if p.Chatter != nil {
		return p.Chatter, nil
	}
	if p.chatter != nil {
		return p.chatter, nil
	}
	cfg, err := llm.DiscoverConfig(p.Root, opts.LLMConfigPath)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	p.chatter = client
	return client, nil
}

// chatterLimiter builds the model-call limiter from the client's
// configured llm_rate_limit. Injected chatters carry no config and run
// unthrottled.
func chatterLimiter(chatter llm.Chatter) *rate.Limiter {
	client, ok := chatter.(*llm.Client)
	if !ok {
		return nil
	}
	rl := client.Config().RateLimit
	if rl <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rl), 1)
}

// effectiveMode resolves the workflow mode: the explicit override wins,
// then the schedule block of an existing config, then manual.
func (p *Pipeline) effectiveMode(opts Options) collection.ScheduleMode {
	if opts.Mode != "" {
		return opts.Mode
	}
	cfg, err := collection.LoadConfig(collection.ConfigPath(p.Root))
	if err != nil {
		return collection.ModeManual
	}
	return cfg.Schedule.Enabled
}

// Run executes the pipeline. The returned Run record is always non-nil;
// its Err field mirrors the returned error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Root:      p.Root,
		StartedAt: time.Now().UTC(),
	}
	err := p.run(ctx, opts, run)
	run.FinishedAt = time.Now().UTC()
	run.Err = err
	return run, err
}

func (p *Pipeline) run(ctx context.Context, opts Options, run *Run) error {
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve collection root: %w", err)
	}
	p.Root = root

	// The state directory is created lazily by the first stage that
	// writes; a run with every stage skipped leaves the tree untouched.
	mode := p.effectiveMode(opts)
	run.Mode = mode
	p.Emitter.Info(fmt.Sprintf("Pipeline starting (mode: %s)", mode))

	// The mode constrains the skip flags: scheduled never touches new
	// arrivals, organic runs everything.
	switch mode {
	case collection.ModeScheduled:
		opts.SkipOrganic = true
	case collection.ModeOrganic:
		opts.SkipOrganic = false
		opts.SkipAnalyze = false
		opts.SkipScan = false
		opts.SkipDescribe = false
		opts.SkipRender = false
	}

	configPath := collection.ConfigPath(root)
	indexPath := collection.IndexPath(root)

	if !opts.SkipOrganic {
		if err := p.runOrganic(ctx, opts, mode, configPath, indexPath); err != nil {
			return &StageError{Stage: StageOrganic, Err: err}
		}
		run.Stages = append(run.Stages, StageOrganic)
	}

	if !opts.SkipAnalyze {
		if err := p.runAnalyze(ctx, opts, root, configPath); err != nil {
			return &StageError{Stage: StageAnalyze, Err: err}
		}
		run.Stages = append(run.Stages, StageAnalyze)
	}

	cfg, err := collection.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("%w; run analyze first", err)
	}
	scanner, err := p.Registry.Get(cfg.CollectionType)
	if err != nil {
		return err
	}

	var idx *indexstore.Index
	if !opts.SkipScan {
		idx, err = p.runScan(cfg, scanner, indexPath)
		if err != nil {
			return &StageError{Stage: StageScan, Err: err}
		}
		run.Stages = append(run.Stages, StageScan)
	} else {
		idx, err = indexstore.Load(indexPath)
		if err != nil {
			return err
		}
	}

	if !opts.SkipDescribe {
		idx, err = p.runDescribe(ctx, opts, cfg, scanner, idx, indexPath)
		if err != nil {
			return &StageError{Stage: StageDescribe, Err: err}
		}
		run.Stages = append(run.Stages, StageDescribe)
	}

	if !opts.SkipRender {
		if err := p.runRender(ctx, cfg, idx); err != nil {
			return &StageError{Stage: StageRender, Err: err}
		}
		run.Stages = append(run.Stages, StageRender)
	}

	run.Items = len(idx.Items)
	for i := range idx.Items {
		if idx.Items[i].Described() {
			run.Described++
		}
	}
	p.Emitter.Success(fmt.Sprintf("Pipeline complete: %d items, %d described", run.Items, run.Described))
	return nil
}

// runOrganic processes new arrivals. Without a config there is nothing
// to learn placement from, so the stage quietly steps aside and lets
// the analyzer run first.
func (p *Pipeline) runOrganic(ctx context.Context, opts Options, mode collection.ScheduleMode, configPath, indexPath string) error {
	cfg, err := collection.LoadConfig(configPath)
	if err != nil {
		p.Emitter.Info("No collection config yet; skipping new-content processing")
		return nil
	}
	// Scheduled runs never move files on their own.
	if mode == collection.ModeScheduled {
		cfg.Schedule.AutoFile = false
	}

	idx, err := indexstore.Load(indexPath)
	if err != nil {
		return err
	}
	chatter, err := p.getChatter(opts)
	if err != nil {
		return err
	}

	placer := &organic.Placer{Chatter: chatter, Emitter: p.Emitter}
	_, err = placer.Run(ctx, cfg, idx)
	return err
}

func (p *Pipeline) runAnalyze(ctx context.Context, opts Options, root, configPath string) error {
	if _, err := os.Stat(configPath); err == nil && opts.ForceType == "" {
		p.Emitter.Info(fmt.Sprintf("%s already exists", collection.ConfigFileName))
		return nil
	}

	chatter, err := p.getChatter(opts)
	if err != nil {
		return err
	}
	a := &analyzer.Analyzer{Registry: p.Registry, Chatter: chatter, Emitter: p.Emitter}
	_, err = a.Run(ctx, root, opts.ForceType, opts.ForceType != "")
	return err
}

// runDescribe gates on a model probe, then runs the describer pool with
// incremental saves into the index file.
func (p *Pipeline) runDescribe(ctx context.Context, opts Options, cfg *collection.Config, scanner plugin.Scanner, idx *indexstore.Index, indexPath string) (*indexstore.Index, error) {
	chatter, err := p.getChatter(opts)
	if err != nil {
		return nil, err
	}

	p.Emitter.Info("Testing model connection...")
	if err := chatter.Probe(ctx); err != nil {
		return nil, fmt.Errorf(
			"cannot reach model endpoint: %w; configure the provider in %s or ~/.collectivist/config.yaml",
			err, filepath.Join(collection.StateDirName, "collectivist.yaml"))
	}

	d := &describer.Describer{
		Chatter:    chatter,
		Scanner:    scanner,
		Categories: cfg.Categories,
		MaxWorkers: opts.MaxWorkers,
		Emitter:    p.Emitter,
		Limiter:    chatterLimiter(chatter),
	}
	items, res, err := d.Run(ctx, idx.Items, describer.SaveTo(indexPath, idx.Overview))
	if err != nil {
		return nil, err
	}

	overview := idx.Overview
	if res.Overview != "" {
		overview = res.Overview
	}
	out := &indexstore.Index{Overview: overview, Items: items}
	if err := indexstore.Save(out, indexPath); err != nil {
		return nil, err
	}
	return out, nil
}

// runRender projects the index into the artifacts and hands them to the
// publisher when one is configured. Publish failures are reported, never
// fatal.
func (p *Pipeline) runRender(ctx context.Context, cfg *collection.Config, idx *indexstore.Index) error {
	p.Emitter.SetStage("render", 0)

	out, err := renderer.Render(idx.Items, cfg, idx.Overview)
	if err != nil {
		return err
	}
	if err := out.Write(cfg.Path); err != nil {
		return err
	}
	p.Emitter.CompleteStage(fmt.Sprintf("Rendered %d artifacts", len(out.Files())))

	if cfg.Publish != nil && p.Publisher != nil {
		if err := p.Publisher.Publish(ctx, cfg.Publish, out.Files()); err != nil {
			p.Emitter.Warn(fmt.Sprintf("Artifact publish failed: %v", err))
		} else {
			p.Emitter.Success(fmt.Sprintf("Published artifacts to %s", cfg.Publish.Bucket))
		}
	}
	return nil
}

// IsFatalPersist reports whether err is an index write failure, which
// terminates a run regardless of stage.
func IsFatalPersist(err error) bool {
	return indexstore.IsPersistError(err)
}

// Package repositories scans a directory of software checkouts. Each
// immediate subdirectory becomes one item; git state is gathered by
// shelling out to the git binary with per-command timeouts.
package repositories

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/collectivehq/collectivist/pkg/collection"
	"github.com/collectivehq/collectivist/pkg/plugin"
)

// Git status vocabulary written into item metadata.
const (
	StatusUpToDate         = "up_to_date"
	StatusUpdatesAvailable = "updates_available"
	StatusAheadOfRemote    = "ahead_of_remote"
	StatusModified         = "modified"
	StatusNoRemote         = "no_remote"
	StatusNotARepo         = "not_a_repo"
	StatusError            = "error"
)

const (
	gitQueryTimeout = 10 * time.Second
	gitFetchTimeout = 30 * time.Second
	gitPullTimeout  = 60 * time.Second
)

// Options is the repositories scanner_config bag.
type Options struct {
	// AlwaysPull names repos to fast-forward when updates are available.
	AlwaysPull map[string]bool `mapstructure:"always_pull"`

	// SkipFetch disables remote fetches; status falls back to local state.
	SkipFetch bool `mapstructure:"skip_fetch"`
}

// Scanner indexes repository collections.
type Scanner struct{}

var _ plugin.Scanner = (*Scanner)(nil)

// New returns the repositories scanner.
func New() *Scanner { return &Scanner{} }

func (s *Scanner) Name() string { return "repositories" }

func (s *Scanner) SupportedTypes() []string { return []string{"dir"} }

func (s *Scanner) DefaultCategories() []string {
	return []string{
		"ai_llm_agents",
		"terminal_ui",
		"creative_aesthetic",
		"dev_tools",
		"system_infrastructure",
		"utilities_misc",
	}
}

// Detect reports a repository collection when at least half of the
// visible subdirectories carry a .git entry.
func (s *Scanner) Detect(root string) bool {
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}
	var subdirs, repos int
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		subdirs++
		if _, err := os.Stat(filepath.Join(root, e.Name(), ".git")); err == nil {
			repos++
		}
	}
	return subdirs > 0 && float64(repos)/float64(subdirs) >= 0.5
}

func (s *Scanner) Scan(root string, cfg plugin.ScanConfig) ([]collection.Item, error) {
	var opts Options
	if cfg.Options != nil {
		if err := mapstructure.Decode(cfg.Options, &opts); err != nil {
			return nil, &plugin.ScannerError{Scanner: s.Name(), Err: fmt.Errorf("invalid scanner_config: %w", err)}
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &plugin.ScannerError{Scanner: s.Name(), Err: err}
	}

	var items []collection.Item
	for _, e := range entries {
		if !e.IsDir() || cfg.Excluded(e.Name()) {
			continue
		}
		repoPath := filepath.Join(root, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}

		status, statusErr := gitStatus(repoPath, opts.SkipFetch)
		if opts.AlwaysPull[e.Name()] && status == StatusUpdatesAvailable {
			if err := runGit(repoPath, gitPullTimeout, "pull", "--quiet"); err != nil {
				status, statusErr = StatusError, "pull failed"
			} else {
				status, statusErr = StatusUpToDate, ""
			}
		}

		it := plugin.NewItem(repoPath, info)
		it.Size = plugin.DirSize(repoPath)
		it.SetMeta("git_status", status)
		if statusErr != "" {
			it.SetMeta("git_error", statusErr)
		}
		if remote := gitQuery(repoPath, "config", "--get", "remote.origin.url"); remote != "" {
			it.SetMeta("remote_url", remote)
		}
		if branch := gitQuery(repoPath, "rev-parse", "--abbrev-ref", "HEAD"); branch != "" {
			it.SetMeta("branch", branch)
		}
		if commit := gitQuery(repoPath, "log", "-1", "--format=%s"); commit != "" {
			it.SetMeta("last_commit", commit)
		}
		cfg.Apply(&it)
		items = append(items, it)
	}

	plugin.SortBySizeDesc(items)
	return items, nil
}

// gitStatus classifies one checkout. The order matters: repo-ness, then
// remote presence, then working-tree dirt, then ahead/behind counts.
func gitStatus(repoPath string, skipFetch bool) (status, detail string) {
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil {
		return StatusNotARepo, ""
	}
	if gitQuery(repoPath, "config", "--get", "remote.origin.url") == "" {
		return StatusNoRemote, ""
	}
	if dirty := gitQuery(repoPath, "status", "--porcelain"); dirty != "" {
		return StatusModified, ""
	}
	if gitQuery(repoPath, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}") == "" {
		return StatusError, "no upstream configured"
	}
	if !skipFetch {
		if err := runGit(repoPath, gitFetchTimeout, "fetch", "--quiet"); err != nil {
			return StatusError, "fetch failed"
		}
	}

	behind := gitQuery(repoPath, "rev-list", "HEAD..@{u}", "--count")
	ahead := gitQuery(repoPath, "rev-list", "@{u}..HEAD", "--count")
	if n, err := strconv.Atoi(behind); err == nil && n > 0 {
		return StatusUpdatesAvailable, ""
	}
	if n, err := strconv.Atoi(ahead); err == nil && n > 0 {
		return StatusAheadOfRemote, ""
	}
	if behind == "" && ahead == "" {
		return StatusError, "rev-list failed"
	}
	return StatusUpToDate, ""
}

// gitQuery runs a read-only git command and returns trimmed stdout, or
// "" on any failure.
func gitQuery(repoPath string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), gitQueryTimeout)
	defer cancel()
	full := append([]string{"-C", repoPath}, args...)
	out, err := exec.CommandContext(ctx, "git", full...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func runGit(repoPath string, timeout time.Duration, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	full := append([]string{"-C", repoPath}, args...)
	return exec.CommandContext(ctx, "git", full...).Run()
}

func (s *Scanner) DescriptionPromptTemplate() string {
	return `You are a technical documentation assistant. Generate a one-sentence description and category for a software repository based on its README.

Available categories (choose ONE):
- ai_llm_agents: AI agents, LLMs, machine learning infrastructure, agent frameworks
- terminal_ui: Terminal UI frameworks, TUI components, CLI styling libraries
- creative_aesthetic: Music, art, visualization, color schemes, aesthetic tools
- dev_tools: Development utilities, scaffolding, IDEs, build tools
- system_infrastructure: System-level tools, SSH, networking, infrastructure
- utilities_misc: General utilities, miscellaneous tools

README content:
---
{content}
---

Generate a JSON response with:
1. "description": A single-sentence description (max 150 characters) that captures the repository's core purpose. Be concise and technical. Do not include 'This is' or 'A repository for'. Start directly with the purpose.
2. "category": ONE category from the list above that best matches this repository.`
}

var readmeNames = []string{"README.md", "readme.md", "README", "Readme.md"}

// ContentForDescription returns the first 3000 bytes of the repo README.
func (s *Scanner) ContentForDescription(item *collection.Item) string {
	for _, name := range readmeNames {
		if content := plugin.ReadHead(filepath.Join(item.Path, name), 3000); content != "" {
			return content
		}
	}
	return ""
}

package llm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported provider identifiers.
const (
	ProviderOpenRouter   = "openrouter"
	ProviderLMStudio     = "lmstudio"
	ProviderPollinations = "pollinations"
	ProviderAnthropic    = "anthropic"
	ProviderOpenAI       = "openai"
	ProviderOllama       = "ollama"
	ProviderCustom       = "custom"
)

// DefaultBaseURLs maps each provider to its chat-completions endpoint root.
var DefaultBaseURLs = map[string]string{
	ProviderOpenRouter:   "https://openrouter.ai/api/v1",
	ProviderLMStudio:     "http://localhost:1234/v1",
	ProviderPollinations: "https://text.pollinations.ai/openai",
	ProviderAnthropic:    "https://api.anthropic.com/v1",
	ProviderOpenAI:       "https://api.openai.com/v1",
	ProviderOllama:       "http://localhost:11434/v1",
}

// DefaultModels maps each provider to a sensible default model.
var DefaultModels = map[string]string{
	ProviderLMStudio:     "local-model",
	ProviderOpenRouter:   "openai/gpt-oss-120b:free",
	ProviderPollinations: "openai",
	ProviderOllama:       "llama3.1",
	ProviderOpenAI:       "gpt-4o-mini",
	ProviderAnthropic:    "claude-3-haiku-20240307",
}

// cloudProviders require an API key.
var cloudProviders = map[string]bool{
	ProviderOpenRouter: true,
	ProviderAnthropic:  true,
	ProviderOpenAI:     true,
}

// Providers lists the known provider identifiers in a stable order.
func Providers() []string {
	return []string{
		ProviderOpenRouter, ProviderLMStudio, ProviderPollinations,
		ProviderAnthropic, ProviderOpenAI, ProviderOllama,
	}
}

// Config is the model-client configuration.
type Config struct {
	Provider string        `mapstructure:"llm_provider" json:"provider"`
	APIKey   string        `mapstructure:"llm_api_key" json:"api_key,omitempty"`
	BaseURL  string        `mapstructure:"llm_base_url" json:"base_url,omitempty"`
	Model    string        `mapstructure:"llm_model" json:"model,omitempty"`
	Timeout  time.Duration `mapstructure:"-" json:"-"`

	// RateLimit caps model calls in requests per second across all
	// workers. Zero means unlimited.
	RateLimit float64 `mapstructure:"llm_rate_limit" json:"rate_limit,omitempty"`
}

// ApplyDefaults resolves the base URL, model, and timeout from the
// provider tables when unset.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderLMStudio
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURLs[c.Provider]
	}
	if c.Model == "" {
		if m, ok := DefaultModels[c.Provider]; ok {
			c.Model = m
		} else {
			c.Model = DefaultModels[ProviderOpenAI]
		}
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate rejects configs with no resolvable endpoint and cloud
// providers without credentials.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("no base URL configured for provider %q", c.Provider)
	}
	if cloudProviders[c.Provider] && c.APIKey == "" {
		return fmt.Errorf("provider %q requires an API key", c.Provider)
	}
	return nil
}

// ConfigSearchPaths returns the discovery chain for root, lowest
// precedence first. callerPath, when non-empty, is appended as the
// highest-precedence entry.
func ConfigSearchPaths(root, callerPath string) []string {
	paths := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".collectivist", "config.yaml"))
	}
	paths = append(paths,
		filepath.Join(root, "collectivist.md"),
		filepath.Join(root, ".collection", "collectivist.md"),
		filepath.Join(root, ".collection", "collectivist.yaml"),
	)
	if callerPath != "" {
		paths = append(paths, callerPath)
	}
	return paths
}

// DiscoverConfig builds a Config by merging the discovery chain for the
// collection at root. Later (higher-precedence) files override earlier
// ones key by key. Environment variables are a last resort used only
// when no file contributes anything.
func DiscoverConfig(root, callerPath string) (Config, error) {
	merged := map[string]string{}
	for _, path := range ConfigSearchPaths(root, callerPath) {
		kv, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		for k, v := range kv {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		merged = envConfig()
	}

	cfg := Config{
		Provider: merged["llm_provider"],
		APIKey:   merged["llm_api_key"],
		BaseURL:  merged["llm_base_url"],
		Model:    merged["llm_model"],
	}
	if raw := merged["llm_rate_limit"]; raw != "" {
		rl, err := strconv.ParseFloat(raw, 64)
		if err != nil || rl < 0 {
			return Config{}, fmt.Errorf("invalid llm_rate_limit %q", raw)
		}
		cfg.RateLimit = rl
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

var markdownYAMLBlock = regexp.MustCompile("(?si)```yaml\\s*\\n(.*?)\\n```")

func loadConfigFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read LLM config %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".md") {
		m := markdownYAMLBlock.FindSubmatch(data)
		if m == nil {
			return nil, nil
		}
		data = m[1]
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("invalid YAML in LLM config %s: %w", path, err)
	}

	out := map[string]string{}
	for _, key := range []string{"llm_provider", "llm_api_key", "llm_base_url", "llm_model", "llm_rate_limit"} {
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				out[key] = s
			}
		}
	}
	return out, nil
}

func envConfig() map[string]string {
	out := map[string]string{}
	for env, key := range map[string]string{
		"LLM_PROVIDER":   "llm_provider",
		"LLM_API_KEY":    "llm_api_key",
		"LLM_BASE_URL":   "llm_base_url",
		"LLM_MODEL":      "llm_model",
		"LLM_RATE_LIMIT": "llm_rate_limit",
	} {
		if v := os.Getenv(env); v != "" {
			out[key] = v
		}
	}

	// Provider-specific key variants, e.g. OPENROUTER_API_KEY.
	if out["llm_api_key"] == "" {
		provider := out["llm_provider"]
		candidates := Providers()
		if provider != "" {
			candidates = []string{provider}
		}
		for _, p := range candidates {
			env := strings.ToUpper(p) + "_API_KEY"
			if v := os.Getenv(env); v != "" {
				out["llm_api_key"] = v
				if out["llm_provider"] == "" {
					out["llm_provider"] = p
				}
				break
			}
		}
	}
	return out
}

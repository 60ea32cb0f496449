package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/collectivehq/collectivist/pkg/llm"
)

// probeTimeout bounds the connectivity test against a model endpoint.
const probeTimeout = 15 * time.Second

// llmConfigBody is the JSON shape for GET and PUT /config/llm.
type llmConfigBody struct {
	Provider  string  `json:"provider"`
	APIKey    string  `json:"api_key,omitempty"`
	BaseURL   string  `json:"base_url,omitempty"`
	Model     string  `json:"model,omitempty"`
	RateLimit float64 `json:"rate_limit,omitempty"`
}

// providerInfo describes one known provider for the UI.
type providerInfo struct {
	ID             string `json:"id"`
	BaseURL        string `json:"base_url"`
	DefaultModel   string `json:"default_model"`
	RequiresAPIKey bool   `json:"requires_api_key"`
}

// maskKey hides all but the last four characters of a credential.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func (s *Server) getLLMConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := llm.DiscoverConfig(".", s.llmConfigPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, llmConfigBody{
		Provider:  cfg.Provider,
		APIKey:    maskKey(cfg.APIKey),
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		RateLimit: cfg.RateLimit,
	})
}

func (s *Server) putLLMConfig(w http.ResponseWriter, r *http.Request) {
	var body llmConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if body.Provider == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "provider is required")
		return
	}

	if body.RateLimit < 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "rate_limit must not be negative")
		return
	}

	// A masked or omitted key keeps whatever is already on disk, so a
	// GET response can be edited and PUT back without losing credentials.
	// An omitted rate limit likewise keeps the stored one.
	if prior, err := llm.DiscoverConfig(".", s.llmConfigPath); err == nil {
		if body.APIKey == "" || strings.Contains(body.APIKey, "*") {
			body.APIKey = prior.APIKey
		}
		if body.RateLimit == 0 {
			body.RateLimit = prior.RateLimit
		}
	}

	doc := map[string]string{"llm_provider": body.Provider}
	if body.APIKey != "" {
		doc["llm_api_key"] = body.APIKey
	}
	if body.BaseURL != "" {
		doc["llm_base_url"] = body.BaseURL
	}
	if body.Model != "" {
		doc["llm_model"] = body.Model
	}
	if body.RateLimit > 0 {
		doc["llm_rate_limit"] = strconv.FormatFloat(body.RateLimit, 'f', -1, 64)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.llmConfigPath), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if err := os.WriteFile(s.llmConfigPath, data, 0o600); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	cfg := llm.Config{Provider: body.Provider, APIKey: body.APIKey, BaseURL: body.BaseURL, Model: body.Model, RateLimit: body.RateLimit}
	cfg.ApplyDefaults()
	writeJSON(w, http.StatusOK, llmConfigBody{
		Provider:  cfg.Provider,
		APIKey:    maskKey(cfg.APIKey),
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		RateLimit: cfg.RateLimit,
	})
}

func (s *Server) testLLMConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := llm.DiscoverConfig(".", s.llmConfigPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	// An optional body overrides the stored config, so the UI can test
	// settings before saving them.
	var body llmConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Provider != "" {
		cfg = llm.Config{Provider: body.Provider, APIKey: body.APIKey, BaseURL: body.BaseURL, Model: body.Model}
		cfg.ApplyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	client, err := llm.NewClient(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()
	if err := client.Probe(ctx); err != nil {
		writeError(w, http.StatusBadGateway, CodeUpstream, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": cfg.Provider,
		"model":    cfg.Model,
	})
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	out := make([]providerInfo, 0, len(llm.Providers()))
	for _, p := range llm.Providers() {
		probe := llm.Config{Provider: p, BaseURL: llm.DefaultBaseURLs[p]}
		out = append(out, providerInfo{
			ID:             p,
			BaseURL:        llm.DefaultBaseURLs[p],
			DefaultModel:   llm.DefaultModels[p],
			RequiresAPIKey: probe.Validate() != nil,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

// Package llm is the model client: one chat-completions contract reused
// across every provider. Provider neutrality is contractual, not
// structural — each provider is reached as an OpenAI-style
// /chat/completions endpoint, differing only in base URL, default model,
// and credential handling.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // system, user, or assistant
	Content string `json:"content"`
}

// ChatOptions tune a single completion request.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// Chatter is the capability the rest of the engine depends on. Tests
// substitute stubs; production code uses *Client.
type Chatter interface {
	// Chat sends the conversation and returns the assistant's text.
	// It never retries.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

	// Probe sends a minimal request (max_tokens=10) and succeeds iff a
	// non-empty reply comes back. Used as a fast-fail gate before the
	// describe stage.
	Probe(ctx context.Context) error
}

// Client talks to one configured provider endpoint. Safe for concurrent
// use; the underlying http.Client pools connections.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ Chatter = (*Client)(nil)

// NewClient builds a client from cfg. Defaults are applied and the config
// validated; a config without a resolvable endpoint is rejected here, not
// at first call.
func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Config returns the effective client configuration.
func (c *Client) Config() Config { return c.cfg }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat implements Chatter.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ProviderError{
			Provider: c.cfg.Provider, Endpoint: endpoint,
			Kind: ErrTransport, Err: err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ProviderError{
			Provider: c.cfg.Provider, Endpoint: endpoint,
			Kind: ErrTransport, Err: err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ProviderError{
			Provider: c.cfg.Provider, Endpoint: endpoint,
			StatusCode: resp.StatusCode, Kind: ErrHTTPStatus,
			Err: fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ProviderError{
			Provider: c.cfg.Provider, Endpoint: endpoint,
			Kind: ErrMalformedResponse, Err: err,
		}
	}
	if len(parsed.Choices) == 0 {
		var detail error
		if parsed.Error != nil {
			detail = fmt.Errorf("%s", parsed.Error.Message)
		} else {
			detail = fmt.Errorf("no choices in response")
		}
		return "", &ProviderError{
			Provider: c.cfg.Provider, Endpoint: endpoint,
			Kind: ErrMalformedResponse, Err: detail,
		}
	}
	return parsed.Choices[0].Message.Content, nil
}

// Probe implements Chatter.
func (c *Client) Probe(ctx context.Context) error {
	reply, err := c.Chat(ctx, []Message{
		{Role: "user", Content: "Reply with the single word: ok"},
	}, ChatOptions{MaxTokens: 10})
	if err != nil {
		return err
	}
	if strings.TrimSpace(reply) == "" {
		return &ProviderError{
			Provider: c.cfg.Provider,
			Kind:     ErrMalformedResponse,
			Err:      fmt.Errorf("probe got an empty reply"),
		}
	}
	return nil
}

// DefaultTimeout bounds every model call.
const DefaultTimeout = 120 * time.Second

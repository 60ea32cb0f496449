package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		Provider: ProviderCustom,
		BaseURL:  srv.URL,
		Model:    "test-model",
	})
	require.NoError(t, err)
	return client
}

func TestChatReturnsCompletion(t *testing.T) {
	var gotAuth string
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello"}},
			},
		})
	})

	reply, err := client.Chat(context.Background(), []Message{
		{Role: "user", Content: "hi"},
	}, ChatOptions{Temperature: 0.2, MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	assert.Empty(t, gotAuth) // no key configured, no Bearer header
}

func TestChatSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		Provider: ProviderCustom,
		BaseURL:  srv.URL,
		Model:    "m",
		APIKey:   "sk-test",
	})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	require.NoError(t, err)
}

func TestChatHTTPStatusError(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	require.Error(t, err)
	assert.True(t, IsHTTPStatus(err))
	assert.True(t, IsProviderError(err))
	assert.Contains(t, err.Error(), "429")
}

func TestChatMalformedResponse(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	require.Error(t, err)
	assert.True(t, IsMalformedResponse(err))
}

func TestChatTransportError(t *testing.T) {
	client, err := NewClient(Config{
		Provider: ProviderCustom,
		BaseURL:  "http://127.0.0.1:1", // nothing listens here
		Model:    "m",
	})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestProbe(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 10, req["max_tokens"])
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	})
	assert.NoError(t, client.Probe(context.Background()))
}

func TestProbeEmptyReplyFails(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  "}},
			},
		})
	})
	err := client.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, IsMalformedResponse(err))
}

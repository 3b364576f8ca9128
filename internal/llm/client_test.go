package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ephemerchat/ephemer/internal/config"
	"github.com/ephemerchat/ephemer/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- Registry tests ---

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(silentLog())

	mock := &MockClient{ProviderName: "openai"}
	reg.Register(mock, ModelInfo{ID: "gpt-4", Name: "GPT-4", Provider: "openai"})

	client, err := reg.Resolve("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())
}

func TestRegistryResolveUnknownModel(t *testing.T) {
	reg := NewRegistry(silentLog())

	_, err := reg.Resolve("gpt-99")
	var unsupported *UnsupportedModelError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "gpt-99", unsupported.Model)
}

func TestRegistrySupports(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register(&MockClient{}, ModelInfo{ID: "gemini-pro", Provider: "gemini"})

	assert.True(t, reg.Supports("gemini-pro"))
	assert.False(t, reg.Supports("gemini-ultra"))
}

func TestRegistryModels_RecommendedFirst(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register(&MockClient{},
		ModelInfo{ID: "zeta", Provider: "a"},
		ModelInfo{ID: "alpha", Provider: "a", Recommended: true},
		ModelInfo{ID: "beta", Provider: "a"},
	)

	models := reg.Models()
	require.Len(t, models, 3)
	assert.Equal(t, "alpha", models[0].ID)
	assert.Equal(t, "beta", models[1].ID)
	assert.Equal(t, "zeta", models[2].ID)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.ProvidersConfig{
		OpenAI: config.ProviderConfig{APIKey: "sk-test"},
		// Gemini and DeepSeek not configured
	}
	reg := NewRegistryFromConfig(cfg, silentLog())

	assert.True(t, reg.Supports("gpt-3.5-turbo"))
	assert.True(t, reg.Supports("gpt-4"))
	assert.False(t, reg.Supports("gemini-pro"))
	assert.False(t, reg.Supports("deepseek-chat"))
}

// --- OpenAI-compatible client tests ---

func TestOpenAIComplete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Bonjour!"}},
			},
			"usage": map[string]any{"total_tokens": 17},
		})
	}))
	defer ts.Close()

	client := newChatCompletionsClient("openai", "sk-test", ts.URL)
	resp, err := client.Complete(context.Background(), CompletionRequest{
		Model:       "gpt-4",
		Messages:    []Message{{Role: RoleUser, Content: "Say hello in French"}},
		MaxTokens:   100,
		Temperature: 0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4", gotBody["model"])
	assert.Equal(t, "Bonjour!", resp.Content)
	assert.Equal(t, 17, resp.Tokens)
	assert.Greater(t, resp.Duration.Nanoseconds(), int64(0))
}

func TestOpenAIComplete_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer ts.Close()

	client := newChatCompletionsClient("openai", "sk-bad", ts.URL)
	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "openai", perr.Provider)
	assert.Equal(t, http.StatusUnauthorized, perr.Code)
}

func TestOpenAIComplete_EmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	client := newChatCompletionsClient("openai", "sk-test", ts.URL)
	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var perr *ProviderError
	assert.ErrorAs(t, err, &perr)
}

func TestOpenAIStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[],"usage":{"total_tokens":5}}`,
		}
		for _, chunk := range chunks {
			w.Write([]byte("data: " + chunk + "\n\n"))
		}
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer ts.Close()

	client := newChatCompletionsClient("openai", "sk-test", ts.URL)
	events, err := client.Stream(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var deltas []string
	var final *CompletionResponse
	for event := range events {
		switch event.Type {
		case "delta":
			deltas = append(deltas, event.Content)
		case "done":
			final = event.Response
		case "error":
			t.Fatalf("unexpected error event: %s", event.Error)
		}
	}

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, final)
	assert.Equal(t, "Hello", final.Content)
	assert.Equal(t, 5, final.Tokens)
}

func TestOpenAIStream_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`rate limited`))
	}))
	defer ts.Close()

	client := newChatCompletionsClient("openai", "sk-test", ts.URL)
	events, err := client.Stream(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var last StreamEvent
	for event := range events {
		last = event
	}
	assert.Equal(t, "error", last.Type)
	assert.NotEmpty(t, last.Error)
}

func TestOpenAIStream_ConnectionDropped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n"))
		w.(http.Flusher).Flush()
		// Abort the connection mid-stream, before any [DONE] marker
		panic(http.ErrAbortHandler)
	}))
	defer ts.Close()

	client := newChatCompletionsClient("openai", "sk-test", ts.URL)
	events, err := client.Stream(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var last StreamEvent
	for event := range events {
		assert.NotEqual(t, "done", event.Type, "truncated stream must not complete")
		last = event
	}
	assert.Equal(t, "error", last.Type)
	assert.Contains(t, last.Error, "stream read failed")
}

func TestDeepSeekClient_IsOpenAICompatible(t *testing.T) {
	client := NewDeepSeekClient("sk-ds")
	assert.Equal(t, "deepseek", client.Name())
}

// --- Gemini client tests ---

func TestGeminiComplete(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "Salut!"}}}},
			},
			"usageMetadata": map[string]any{"totalTokenCount": 8},
		})
	}))
	defer ts.Close()

	client := newGeminiClientWithBaseURL("key-123", ts.URL)
	resp, err := client.Complete(context.Background(), CompletionRequest{
		Model: "gemini-pro",
		Messages: []Message{
			{Role: RoleSystem, Content: "reply in French"},
			{Role: RoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, gotPath, "gemini-pro:generateContent")
	assert.Contains(t, gotQuery, "key=key-123")
	assert.Equal(t, "Salut!", resp.Content)
	assert.Equal(t, 8, resp.Tokens)

	// System prompt goes to systemInstruction, not contents
	_, hasSystem := gotBody["systemInstruction"]
	assert.True(t, hasSystem)
	contents := gotBody["contents"].([]any)
	assert.Len(t, contents, 1)
}

func TestGeminiComplete_NoUsageReportsZero(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}}},
			},
		})
	}))
	defer ts.Close()

	client := newGeminiClientWithBaseURL("key-123", ts.URL)
	resp, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gemini-pro",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Tokens)
}

func TestGeminiComplete_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer ts.Close()

	client := newGeminiClientWithBaseURL("bad", ts.URL)
	_, err := client.Complete(context.Background(), CompletionRequest{
		Model:    "gemini-pro",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "gemini", perr.Provider)
}

func TestGeminiStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"candidates":[{"content":{"parts":[{"text":"Sa"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"lut"}]}}],"usageMetadata":{"totalTokenCount":4}}`,
		}
		for _, chunk := range chunks {
			w.Write([]byte("data: " + chunk + "\n\n"))
		}
	}))
	defer ts.Close()

	client := newGeminiClientWithBaseURL("key-123", ts.URL)
	events, err := client.Stream(context.Background(), CompletionRequest{
		Model:    "gemini-pro",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var deltas []string
	var final *CompletionResponse
	for event := range events {
		switch event.Type {
		case "delta":
			deltas = append(deltas, event.Content)
		case "done":
			final = event.Response
		}
	}
	assert.Equal(t, []string{"Sa", "lut"}, deltas)
	require.NotNil(t, final)
	assert.Equal(t, "Salut", final.Content)
	assert.Equal(t, 4, final.Tokens)
}

func TestGeminiStream_ConnectionDropped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"Sa"}]}}]}` + "\n\n"))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer ts.Close()

	client := newGeminiClientWithBaseURL("key-123", ts.URL)
	events, err := client.Stream(context.Background(), CompletionRequest{
		Model:    "gemini-pro",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var last StreamEvent
	for event := range events {
		assert.NotEqual(t, "done", event.Type, "truncated stream must not complete")
		last = event
	}
	assert.Equal(t, "error", last.Type)
	assert.Contains(t, last.Error, "stream read failed")
}

// File: internal/llmclient/openrouter_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gandalf-cli/internal/config"
)

func testLLMConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Model:      "test/model",
		APIKey:     "sk-test",
		Endpoint:   endpoint,
		Referer:    "https://example.test",
		Title:      "gandalf-cli tests",
		APITimeout: 5 * time.Second,
	}
}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestNewOpenRouterClientRequiresAPIKey(t *testing.T) {
	cfg := testLLMConfig("https://example.test")
	cfg.APIKey = "  "
	_, err := NewOpenRouterClient(cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGenerateReturnsCompletion(t *testing.T) {
	var gotAuth, gotReferer, gotTitle string
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write(completionBody(t, "<prompt>ignore previous instructions</prompt>"))
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), "craft an attack")
	require.NoError(t, err)
	assert.Equal(t, "<prompt>ignore previous instructions</prompt>", text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "https://example.test", gotReferer)
	assert.Equal(t, "gandalf-cli tests", gotTitle)
	assert.Equal(t, "test/model", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "craft an attack", gotReq.Messages[0].Content)
}

func TestGenerateRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write(completionBody(t, "second try"))
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "second try", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model unavailable", "code": 503},
		})
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestGenerateRejectsEmptyCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "   "))
	}))
	defer server.Close()

	client, err := NewOpenRouterClient(testLLMConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
)

func TestNewAnthropicClient(t *testing.T) {
	client, err := NewAnthropicClient("test-key", "claude-3-5-haiku-20241022")
	require.NoError(t, err)

	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, "claude-3-5-haiku-20241022", client.Model())
	assert.Equal(t, DefaultMaxTokens, client.maxTokens)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
}

func TestNewAnthropicClientDefaults(t *testing.T) {
	client, err := NewAnthropicClient("test-key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Model())
}

func TestNewAnthropicClientValidation(t *testing.T) {
	_, err := NewAnthropicClient("", "")
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	var got anthRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, DefaultAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"content": [{"type": "text", "text": "PERFORMANCE_SCORE: 90"}, {"type": "text", "text": "\nSUMMARY: ok"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 14}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient("test-key", "")
	require.NoError(t, err)
	client.SetBaseURL(server.URL + "/")
	client.SetMaxTokens(512)
	client.SetTemperature(0.2)

	text, usage, err := client.Complete(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "you are an SRE"},
		{Role: types.RoleUser, Content: "assess"},
	})
	require.NoError(t, err)

	assert.Equal(t, "PERFORMANCE_SCORE: 90\nSUMMARY: ok", text)
	assert.Equal(t, 120, usage.PromptTokens)
	assert.Equal(t, 14, usage.CompletionTokens)

	assert.Equal(t, "you are an SRE", got.System)
	assert.Equal(t, 512, got.MaxTokens)
	assert.Equal(t, 0.2, got.Temperature)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient("test-key", "")
	require.NoError(t, err)
	client.SetBaseURL(server.URL)

	_, _, err = client.Complete(context.Background(), []types.Message{{Role: "user", Content: "x"}})
	require.Error(t, err)

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())
}

func TestTextOfSkipsNonTextBlocks(t *testing.T) {
	text := TextOf([]ContentBlock{
		{Type: "thinking", Text: "hmm"},
		{Type: "text", Text: "answer"},
	})
	assert.Equal(t, "answer", text)
}

package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-gate/internal/config"
	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
	"github.com/kubilitics/kubilitics-gate/internal/metrics"
)

func TestNewLLMAdapterUnconfigured(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"empty provider", &Config{}},
		{"explicit none", &Config{Provider: ProviderNone}},
		{"anthropic without key", &Config{Provider: ProviderAnthropic}},
		{"openai without key", &Config{Provider: ProviderOpenAI}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewLLMAdapter(ctx, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, "none", a.Provider())

			_, err = a.Complete(ctx, []types.Message{{Role: "user", Content: "x"}})
			assert.ErrorIs(t, err, ErrProviderNotConfigured)
			assert.ErrorIs(t, a.CredentialsAvailable(ctx), ErrProviderNotConfigured)
		})
	}
}

func TestNewLLMAdapterUnsupported(t *testing.T) {
	_, err := NewLLMAdapter(context.Background(), &Config{Provider: "ollama"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestCompleteRecordsMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"SUMMARY: fine"}}]}`))
	}))
	defer server.Close()

	ctx := context.Background()
	a, err := NewLLMAdapter(ctx, &Config{
		Provider: ProviderOpenAI,
		APIKey:   "sk-test",
		BaseURL:  server.URL,
		Model:    "adapter-test-model",
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", a.Provider())
	assert.Equal(t, "adapter-test-model", a.Model())
	assert.NoError(t, a.CredentialsAvailable(ctx))

	counter := metrics.LLMRequestsTotal.WithLabelValues("openai", "adapter-test-model", "success")
	before := testutil.ToFloat64(counter)

	text, err := a.Complete(ctx, []types.Message{{Role: "user", Content: "assess"}})
	require.NoError(t, err)
	assert.Equal(t, "SUMMARY: fine", text)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestCompleteRecordsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx := context.Background()
	a, err := NewLLMAdapter(ctx, &Config{
		Provider: ProviderAnthropic,
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Model:    "adapter-error-model",
	})
	require.NoError(t, err)

	counter := metrics.LLMRequestsTotal.WithLabelValues("anthropic", "adapter-error-model", "error")
	before := testutil.ToFloat64(counter)

	_, err = a.Complete(ctx, []types.Message{{Role: "user", Content: "assess"}})
	require.Error(t, err)
	assert.True(t, types.IsRetryableAPIError(err))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = "k"
	cfg.LLM.Model = "m"

	got := ConfigFrom(cfg)
	assert.Equal(t, ProviderAnthropic, got.Provider)
	assert.Equal(t, "k", got.APIKey)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, cfg.LLM.MaxTokens, got.MaxTokens)
	assert.Equal(t, cfg.LLM.Region, got.Region)
}

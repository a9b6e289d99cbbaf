package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kubilitics/kubilitics-gate/internal/config"
	"github.com/kubilitics/kubilitics-gate/internal/llm/provider/anthropic"
	"github.com/kubilitics/kubilitics-gate/internal/llm/provider/bedrock"
	"github.com/kubilitics/kubilitics-gate/internal/llm/provider/openai"
	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
	"github.com/kubilitics/kubilitics-gate/internal/metrics"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
)

// ProviderType identifies which LLM provider is configured
type ProviderType string

const (
	ProviderBedrock   ProviderType = "bedrock"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderNone      ProviderType = "none" // No LLM configured
)

// ErrProviderNotConfigured is returned when an LLM operation is attempted without a configured provider
var ErrProviderNotConfigured = errors.New("LLM provider not configured")

// Config holds LLM provider configuration
type Config struct {
	Provider    ProviderType
	APIKey      string
	BaseURL     string
	Region      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// ConfigFrom extracts the provider settings from the application config.
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Provider:    ProviderType(cfg.LLM.Provider),
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Region:      cfg.LLM.Region,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
}

// completer is implemented by every provider client.
type completer interface {
	Complete(ctx context.Context, messages []types.Message) (string, types.TokenUsage, error)
	Model() string
}

// llmAdapterImpl is the unified adapter implementation
type llmAdapterImpl struct {
	provider ProviderType
	model    string
	client   completer
}

// NewLLMAdapter creates the adapter for cfg. An API-key provider without a
// key yields an unconfigured adapter rather than an error.
func NewLLMAdapter(ctx context.Context, cfg *Config) (LLMAdapter, error) {
	if cfg == nil || cfg.Provider == "" || cfg.Provider == ProviderNone {
		return &llmAdapterImpl{provider: ProviderNone}, nil
	}

	var client completer

	switch cfg.Provider {
	case ProviderBedrock:
		c, err := bedrock.NewBedrockClient(ctx, cfg.Region, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bedrock client: %w", err)
		}
		if cfg.BaseURL != "" {
			c.SetEndpoint(cfg.BaseURL)
		}
		c.SetMaxTokens(cfg.MaxTokens)
		c.SetTemperature(cfg.Temperature)
		client = c

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return &llmAdapterImpl{provider: ProviderNone}, nil
		}
		c, err := anthropic.NewAnthropicClient(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		if cfg.BaseURL != "" {
			c.SetBaseURL(cfg.BaseURL)
		}
		c.SetMaxTokens(cfg.MaxTokens)
		c.SetTemperature(cfg.Temperature)
		client = c

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return &llmAdapterImpl{provider: ProviderNone}, nil
		}
		c, err := openai.NewOpenAIClient(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		if cfg.BaseURL != "" {
			c.SetBaseURL(cfg.BaseURL)
		}
		c.SetMaxTokens(cfg.MaxTokens)
		c.SetTemperature(cfg.Temperature)
		client = c

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	return &llmAdapterImpl{
		provider: cfg.Provider,
		model:    client.Model(),
		client:   client,
	}, nil
}

// Complete delegates to the provider client.
func (a *llmAdapterImpl) Complete(ctx context.Context, messages []types.Message) (string, error) {
	if a.provider == ProviderNone {
		return "", ErrProviderNotConfigured
	}

	ctx, span := tracing.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", string(a.provider)),
		attribute.String("llm.model", a.model),
	)
	defer span.End()

	start := time.Now()
	text, usage, err := a.client.Complete(ctx, messages)
	metrics.LLMRequestDuration.WithLabelValues(string(a.provider), a.model).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.LLMRequestsTotal.WithLabelValues(string(a.provider), a.model, status).Inc()

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", usage.PromptTokens),
		attribute.Int("llm.completion_tokens", usage.CompletionTokens),
	)

	return text, err
}

// CredentialsAvailable reports whether the provider can authenticate.
func (a *llmAdapterImpl) CredentialsAvailable(ctx context.Context) error {
	switch c := a.client.(type) {
	case nil:
		return ErrProviderNotConfigured
	case *bedrock.BedrockClientImpl:
		return c.CredentialsAvailable(ctx)
	}
	return nil
}

func (a *llmAdapterImpl) Provider() string { return string(a.provider) }

func (a *llmAdapterImpl) Model() string { return a.model }

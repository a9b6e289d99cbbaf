package adapter

import (
	"context"

	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
)

// Package adapter provides a single completion interface over the supported
// model providers.
//
// Supported Providers:
//   1. Bedrock: Anthropic models on Amazon Bedrock, default AWS credential chain
//   2. Anthropic: Messages API with a static API key
//   3. OpenAI: chat completions API, or any compatible endpoint via base_url
//
// Fallback Behavior (No Credentials):
//   - An API-key provider without a key yields an unconfigured adapter
//   - Complete on an unconfigured adapter returns ErrProviderNotConfigured
//   - Mode resolution checks CredentialsAvailable before choosing real mode

// LLMAdapter is the completion surface used by the analyzer.
type LLMAdapter interface {
	// Complete sends the conversation and returns the model's text reply.
	Complete(ctx context.Context, messages []types.Message) (string, error)

	// CredentialsAvailable reports whether a call could be authenticated.
	CredentialsAvailable(ctx context.Context) error

	// Provider returns the provider name used in metrics and audit events.
	Provider() string

	// Model returns the model identifier passed to the provider.
	Model() string
}

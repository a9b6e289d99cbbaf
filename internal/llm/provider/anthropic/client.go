// Package anthropic implements the Anthropic Messages API provider.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
)

// Anthropic API constants
const (
	DefaultBaseURL    = "https://api.anthropic.com/v1"
	DefaultModel      = "claude-sonnet-4-20250514"
	DefaultMaxTokens  = 1024
	DefaultAPIVersion = "2023-06-01"
	DefaultTimeout    = 60 * time.Second
)

// AnthropicClientImpl implements the Anthropic provider (exported for adapter)
type AnthropicClientImpl struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	baseURL     string
	httpClient  *http.Client
}

// ContentBlock is a single block of a Messages API response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// anthMessage represents an Anthropic API message
type anthMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthRequest represents an Anthropic API request
type anthRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []anthMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// anthResponse represents an Anthropic API response
type anthResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      anthUsage      `json:"usage"`
}

// anthUsage tracks token usage
type anthUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(apiKey string, model string) (*AnthropicClientImpl, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if model == "" {
		model = DefaultModel
	}

	return &AnthropicClientImpl{
		apiKey:    apiKey,
		model:     model,
		maxTokens: DefaultMaxTokens,
		baseURL:   DefaultBaseURL,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: tracing.Transport(nil),
		},
	}, nil
}

// Complete sends the conversation and returns the concatenated text blocks.
func (c *AnthropicClientImpl) Complete(ctx context.Context, messages []types.Message) (string, types.TokenUsage, error) {
	system, rest := types.SplitSystem(messages)

	req := anthRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Messages:    convertMessages(rest),
		System:      system,
		Temperature: c.temperature,
	}

	resp, err := c.makeRequest(ctx, req)
	if err != nil {
		return "", types.TokenUsage{}, err
	}

	usage := types.TokenUsage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}
	return TextOf(resp.Content), usage, nil
}

// TextOf joins the text blocks of a Messages API response.
func TextOf(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func convertMessages(messages []types.Message) []anthMessage {
	out := make([]anthMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, anthMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// makeRequest makes a non-streaming HTTP request to the Anthropic API
func (c *AnthropicClientImpl) makeRequest(ctx context.Context, req anthRequest) (*anthResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", DefaultAPIVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &types.APIError{StatusCode: httpResp.StatusCode, Body: string(body)}
	}

	var resp anthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// Model returns the configured model name.
func (c *AnthropicClientImpl) Model() string { return c.model }

// SetBaseURL overrides the API endpoint (used in tests and for proxies).
func (c *AnthropicClientImpl) SetBaseURL(url string) { c.baseURL = strings.TrimRight(url, "/") }

// SetMaxTokens sets the response token limit.
func (c *AnthropicClientImpl) SetMaxTokens(n int) {
	if n > 0 {
		c.maxTokens = n
	}
}

// SetTemperature sets the sampling temperature.
func (c *AnthropicClientImpl) SetTemperature(t float64) { c.temperature = t }

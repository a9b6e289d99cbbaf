package openai

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

// Package openai provides the OpenAI chat completions provider. Any
// OpenAI-compatible endpoint (vLLM, LocalAI, Azure-style proxies) works by
// setting the base URL.

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o"
	DefaultMaxTokens = 1024
	DefaultTimeout   = 60 * time.Second
)

// OpenAIClientImpl implements the LLM adapter interface for OpenAI.
type OpenAIClientImpl struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	baseURL     string
	httpClient  *http.Client
}

// OpenAI API structures
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient creates a new OpenAI client with configuration.
func NewOpenAIClient(apiKey, model string) (*OpenAIClientImpl, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	if model == "" {
		model = DefaultModel
	}

	return &OpenAIClientImpl{
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

// Complete implements LLMAdapter.Complete for OpenAI API.
func (c *OpenAIClientImpl) Complete(ctx context.Context, messages []types.Message) (string, types.TokenUsage, error) {
	openAIMessages := make([]openAIMessage, len(messages))
	for i, msg := range messages {
		openAIMessages[i] = openAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	request := openAIChatRequest{
		Model:       c.model,
		Messages:    openAIMessages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	body, err := c.makeRequest(ctx, "/chat/completions", request)
	if err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("OpenAI API request failed: %w", err)
	}

	var chatResponse openAIChatResponse
	if err := json.Unmarshal(body, &chatResponse); err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}

	usage := types.TokenUsage{
		PromptTokens:     chatResponse.Usage.PromptTokens,
		CompletionTokens: chatResponse.Usage.CompletionTokens,
	}
	if len(chatResponse.Choices) == 0 {
		return "", usage, nil
	}
	return chatResponse.Choices[0].Message.Content, usage, nil
}

// makeRequest posts a JSON payload and returns the raw response body.
func (c *OpenAIClientImpl) makeRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &types.APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// Model returns the configured model name.
func (c *OpenAIClientImpl) Model() string { return c.model }

// SetBaseURL points the client at an OpenAI-compatible endpoint.
func (c *OpenAIClientImpl) SetBaseURL(url string) { c.baseURL = strings.TrimRight(url, "/") }

// SetMaxTokens sets the response token limit.
func (c *OpenAIClientImpl) SetMaxTokens(n int) {
	if n > 0 {
		c.maxTokens = n
	}
}

// SetTemperature sets the sampling temperature.
func (c *OpenAIClientImpl) SetTemperature(t float64) { c.temperature = t }

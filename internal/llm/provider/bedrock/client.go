// Package bedrock invokes Anthropic models hosted on Amazon Bedrock.
//
// Requests go to the InvokeModel REST endpoint and are signed with SigV4
// using credentials from the default AWS chain (environment, shared config,
// web identity, instance role). The request and response bodies use the
// Anthropic Messages format with the bedrock anthropic_version.
package bedrock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/kubilitics/kubilitics-gate/internal/llm/provider/anthropic"
	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
)

const (
	DefaultRegion    = "us-east-1"
	DefaultModel     = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	DefaultMaxTokens = 1024
	DefaultTimeout   = 60 * time.Second
	AnthropicVersion = "bedrock-2023-05-31"
	signingService   = "bedrock"
	endpointTemplate = "https://bedrock-runtime.%s.amazonaws.com"
)

// BedrockClientImpl calls InvokeModel for a single model id.
type BedrockClientImpl struct {
	region      string
	model       string
	maxTokens   int
	temperature float64
	endpoint    string
	credentials aws.CredentialsProvider
	signer      *v4.Signer
	httpClient  *http.Client
}

type invokeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Messages         []types.Message `json:"messages"`
	System           string          `json:"system,omitempty"`
	Temperature      float64         `json:"temperature,omitempty"`
}

type invokeResponse struct {
	Content    []anthropic.ContentBlock `json:"content"`
	StopReason string                   `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockClient resolves the default AWS credential chain for region.
// Credentials are not retrieved here; see CredentialsAvailable.
func NewBedrockClient(ctx context.Context, region, model string) (*BedrockClientImpl, error) {
	if region == "" {
		region = DefaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewBedrockClientWithCredentials(region, model, cfg.Credentials), nil
}

// NewBedrockClientWithCredentials builds a client around an explicit
// credentials provider.
func NewBedrockClientWithCredentials(region, model string, creds aws.CredentialsProvider) *BedrockClientImpl {
	if region == "" {
		region = DefaultRegion
	}
	if model == "" {
		model = DefaultModel
	}
	return &BedrockClientImpl{
		region:      region,
		model:       model,
		maxTokens:   DefaultMaxTokens,
		endpoint:    fmt.Sprintf(endpointTemplate, region),
		credentials: creds,
		signer:      v4.NewSigner(),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: tracing.Transport(nil),
		},
	}
}

// CredentialsAvailable retrieves credentials once to confirm the chain
// resolves.
func (c *BedrockClientImpl) CredentialsAvailable(ctx context.Context) error {
	_, err := c.retrieve(ctx)
	return err
}

func (c *BedrockClientImpl) retrieve(ctx context.Context) (aws.Credentials, error) {
	if c.credentials == nil {
		return aws.Credentials{}, fmt.Errorf("%w: no AWS credentials provider configured", types.ErrMissingCredentials)
	}
	creds, err := c.credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("%w: %v", types.ErrMissingCredentials, err)
	}
	if !creds.HasKeys() {
		return aws.Credentials{}, fmt.Errorf("%w: AWS credentials have no access key", types.ErrMissingCredentials)
	}
	return creds, nil
}

// Complete invokes the model and returns the concatenated text blocks.
func (c *BedrockClientImpl) Complete(ctx context.Context, messages []types.Message) (string, types.TokenUsage, error) {
	system, rest := types.SplitSystem(messages)

	payload, err := json.Marshal(invokeRequest{
		AnthropicVersion: AnthropicVersion,
		MaxTokens:        c.maxTokens,
		Messages:         rest,
		System:           system,
		Temperature:      c.temperature,
	})
	if err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newSignedRequest(ctx, payload)
	if err != nil {
		return "", types.TokenUsage{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", types.TokenUsage{}, &types.APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out invokeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", types.TokenUsage{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	usage := types.TokenUsage{
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
	}
	return anthropic.TextOf(out.Content), usage, nil
}

func (c *BedrockClientImpl) newSignedRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	creds, err := c.retrieve(ctx)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid bedrock endpoint %q: %w", c.endpoint, err)
	}
	// Model ids contain ':' which Bedrock expects percent-encoded on the wire.
	u.Path = "/model/" + c.model + "/invoke"
	u.RawPath = "/model/" + strings.ReplaceAll(url.PathEscape(c.model), ":", "%3A") + "/invoke"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	sum := sha256.Sum256(payload)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), signingService, c.region, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	return req, nil
}

// Model returns the configured model id.
func (c *BedrockClientImpl) Model() string { return c.model }

// SetEndpoint overrides the bedrock-runtime endpoint (VPC endpoints, tests).
func (c *BedrockClientImpl) SetEndpoint(endpoint string) { c.endpoint = strings.TrimRight(endpoint, "/") }

// SetMaxTokens sets the response token limit.
func (c *BedrockClientImpl) SetMaxTokens(n int) {
	if n > 0 {
		c.maxTokens = n
	}
}

// SetTemperature sets the sampling temperature.
func (c *BedrockClientImpl) SetTemperature(t float64) { c.temperature = t }

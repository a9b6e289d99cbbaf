package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
)

const testModel = "anthropic.claude-3-haiku-20240307-v1:0"

func staticCreds() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")
}

func TestNewBedrockClientWithCredentialsDefaults(t *testing.T) {
	client := NewBedrockClientWithCredentials("", "", staticCreds())

	assert.Equal(t, DefaultRegion, client.region)
	assert.Equal(t, DefaultModel, client.Model())
	assert.Equal(t, "https://bedrock-runtime.us-east-1.amazonaws.com", client.endpoint)
	assert.Equal(t, DefaultMaxTokens, client.maxTokens)
}

func TestCompleteSignsAndParses(t *testing.T) {
	var got invokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/model/"+testModel+"/invoke", r.URL.Path)
		assert.Contains(t, r.URL.EscapedPath(), "v1%3A0")

		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/"), auth)
		assert.Contains(t, auth, "/eu-west-1/bedrock/aws4_request")
		assert.NotEmpty(t, r.Header.Get("X-Amz-Date"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "INFRASTRUCTURE_SCORE: 81"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 300, "output_tokens": 20}
		}`))
	}))
	defer server.Close()

	client := NewBedrockClientWithCredentials("eu-west-1", testModel, staticCreds())
	client.SetEndpoint(server.URL)
	client.SetMaxTokens(256)

	text, usage, err := client.Complete(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "you are an SRE"},
		{Role: types.RoleUser, Content: "assess"},
	})
	require.NoError(t, err)

	assert.Equal(t, "INFRASTRUCTURE_SCORE: 81", text)
	assert.Equal(t, 300, usage.PromptTokens)
	assert.Equal(t, 20, usage.CompletionTokens)

	assert.Equal(t, AnthropicVersion, got.AnthropicVersion)
	assert.Equal(t, 256, got.MaxTokens)
	assert.Equal(t, "you are an SRE", got.System)
	assert.Equal(t, []types.Message{{Role: "user", Content: "assess"}}, got.Messages)
}

func TestCompleteThrottled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"Too many requests, please wait before trying again."}`))
	}))
	defer server.Close()

	client := NewBedrockClientWithCredentials("us-east-1", testModel, staticCreds())
	client.SetEndpoint(server.URL)

	_, _, err := client.Complete(context.Background(), []types.Message{{Role: "user", Content: "x"}})
	require.Error(t, err)
	assert.True(t, types.IsRetryableAPIError(err))
}

func TestCredentialsAvailable(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewBedrockClientWithCredentials("", "", staticCreds()).CredentialsAvailable(ctx))

	failing := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no EC2 IMDS role found")
	})
	err := NewBedrockClientWithCredentials("", "", failing).CredentialsAvailable(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMissingCredentials)
	assert.Contains(t, err.Error(), "no EC2 IMDS role found")

	assert.Error(t, NewBedrockClientWithCredentials("", "", nil).CredentialsAvailable(ctx))
}

func TestCompleteFailsWithoutCredentials(t *testing.T) {
	client := NewBedrockClientWithCredentials("", "", nil)
	_, _, err := client.Complete(context.Background(), []types.Message{{Role: "user", Content: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMissingCredentials)
	assert.False(t, types.IsRetryableAPIError(err))
}

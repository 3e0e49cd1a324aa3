package generate

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rbright/storybook/internal/version"
)

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint,
// including Ollama's /v1 surface.
type OpenAIBackend struct {
	client openai.Client
}

// NewOpenAI constructs a backend for baseURL. Retries stay with Client, so
// the SDK's own retry loop is disabled.
func NewOpenAI(baseURL string, apiKey string, opts ...option.RequestOption) *OpenAIBackend {
	if apiKey == "" {
		// Ollama ignores the key but the SDK requires one.
		apiKey = "ollama"
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(openAIBaseURL(baseURL)))
	}
	return &OpenAIBackend{client: openai.NewClient(append(base, opts...)...)}
}

func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Options.Temperature),
		TopP:        openai.Float(req.Options.TopP),
	}
	if req.Options.NumPredict > 0 {
		params.MaxTokens = openai.Int(int64(req.Options.NumPredict))
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Code: apiErr.StatusCode, Body: apiErr.Message}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIBaseURL(raw string) string {
	base := strings.TrimRight(raw, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

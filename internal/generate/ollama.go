package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rbright/storybook/internal/version"
)

// OllamaBackend talks to Ollama's native /api endpoints.
type OllamaBackend struct {
	baseURL string
	client  *http.Client
}

// NewOllama constructs a backend. Timeouts come from the request context, so
// a nil client uses a plain http.Client.
func NewOllama(baseURL string, client *http.Client) *OllamaBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
	NumCtx      int     `json:"num_ctx"`
}

type ollamaGenerateRequest struct {
	Model     string        `json:"model"`
	Prompt    string        `json:"prompt"`
	Stream    bool          `json:"stream"`
	KeepAlive int           `json:"keep_alive"`
	Options   ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (b *OllamaBackend) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{
		Model:     req.Model,
		Prompt:    req.Prompt,
		Stream:    false,
		KeepAlive: req.KeepAlive,
		Options: ollamaOptions{
			Temperature: req.Options.Temperature,
			TopP:        req.Options.TopP,
			NumPredict:  req.Options.NumPredict,
			NumCtx:      req.Options.NumCtx,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out ollamaGenerateResponse
	if err := b.do(httpReq, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Response, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// ListModels returns the model names the server has pulled.
func (b *OllamaBackend) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}

	var out ollamaTagsResponse
	if err := b.do(httpReq, &out); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

// HasModel reports whether model (with or without an explicit ":latest" tag) is available.
func HasModel(models []string, model string) bool {
	want := normalizeModel(model)
	for _, m := range models {
		if normalizeModel(m) == want {
			return true
		}
	}
	return false
}

func normalizeModel(name string) string {
	name = strings.TrimSpace(name)
	if !strings.Contains(name, ":") {
		name += ":latest"
	}
	return name
}

func (b *OllamaBackend) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode ollama response: %w", err)
	}
	return nil
}

package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rbright/storybook/internal/capture"
	"github.com/rbright/storybook/internal/version"
)

// Recognizer sends one utterance to a whisper.cpp-compatible /inference endpoint.
type Recognizer struct {
	baseURL  string
	language string
	client   *http.Client
}

// NewRecognizer constructs a recognizer. A nil client uses a 30s-timeout default.
func NewRecognizer(baseURL string, language string, client *http.Client) *Recognizer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Recognizer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		client:   client,
	}
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Recognize transcribes 16kHz mono s16le PCM. Empty speech yields capture.ErrUnrecognized.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", capture.ErrUnrecognized
	}

	body, contentType, err := r.encodeRequest(pcm)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/inference", body)
	if err != nil {
		return "", fmt.Errorf("build recognizer request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognizer request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read recognizer response: %w", err)
	}

	var payload inferenceResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode recognizer response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognizer status %d: %s", resp.StatusCode, payload.Error)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("recognizer error: %s", payload.Error)
	}

	text := NormalizePrompt(payload.Text)
	if text == "" {
		return "", capture.ErrUnrecognized
	}
	return text, nil
}

// Ping checks that the recognizer endpoint answers HTTP.
func (r *Recognizer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (r *Recognizer) encodeRequest(pcm []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	file, err := form.CreateFormFile("file", "prompt.wav")
	if err != nil {
		return nil, "", err
	}
	if err := writePCM16WAV(file, pcm, sampleRate, 1); err != nil {
		return nil, "", fmt.Errorf("encode wav: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
		"temperature":     "0.0",
	}
	if r.language != "" {
		fields["language"] = r.language
	}
	for _, key := range []string{"response_format", "temperature", "language"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := form.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

var (
	annotations = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// NormalizePrompt removes recognizer annotations such as [BLANK_AUDIO] or
// (music) and collapses whitespace.
func NormalizePrompt(raw string) string {
	text := annotations.ReplaceAllString(raw, " ")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.Trim(text, " .,-")
}

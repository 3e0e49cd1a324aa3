// Package generate requests story text from a language-model backend.
//
// The Client never fails its caller: every outcome, including exhausted
// retries and unreachable backends, yields displayable text.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/storybook/internal/config"
)

// Failure classifies why a generation fell back.
type Failure int

const (
	FailureNone Failure = iota
	FailureUnreachable
	FailureTimeout
	FailureServer
	FailureCancelled
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureUnreachable:
		return "unreachable"
	case FailureTimeout:
		return "timeout"
	case FailureServer:
		return "server"
	case FailureCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("failure(%d)", int(f))
	}
}

// Options is the decoding bundle sent with each request.
type Options struct {
	Temperature float64
	TopP        float64
	NumPredict  int
	NumCtx      int
}

// Request is one backend call.
type Request struct {
	Model     string
	Prompt    string
	Options   Options
	KeepAlive int
}

// Backend performs one non-streaming completion. Implementations must honor ctx.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Result carries the text to show plus how it was obtained.
type Result struct {
	Text     string
	Failure  Failure
	Attempts int
	Err      error
}

// Fallback reports whether Text is a fallback message rather than a story.
func (r Result) Fallback() bool {
	return r.Failure != FailureNone
}

// Client applies the prompt template, per-attempt timeout, and retry policy.
type Client struct {
	backend    Backend
	mode       string
	model      string
	maxWords   int
	options    Options
	keepAlive  int
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// New builds a Client from the generation section of cfg.
func New(backend Backend, cfg config.Config, logger *slog.Logger) *Client {
	gen := cfg.Generation
	maxRetries := gen.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		backend:  backend,
		mode:     cfg.Mode,
		model:    gen.Model,
		maxWords: gen.MaxStoryWords,
		options: Options{
			Temperature: gen.Temperature,
			TopP:        gen.TopP,
			NumPredict:  gen.NumPredict,
			NumCtx:      gen.NumCtx,
		},
		keepAlive:  gen.KeepAlive,
		timeout:    gen.Timeout,
		maxRetries: maxRetries,
		retryDelay: gen.RetryDelay,
		logger:     logger,
	}
}

// Generate requests a story about topic. interrupted is polled before each
// attempt and after each retry delay; nil means never interrupted.
func (c *Client) Generate(ctx context.Context, topic string, interrupted func() bool) Result {
	if interrupted == nil {
		interrupted = func() bool { return false }
	}

	req := Request{
		Model:     c.model,
		Prompt:    BuildPrompt(topic, c.maxWords),
		Options:   c.options,
		KeepAlive: c.keepAlive,
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if interrupted() || ctx.Err() != nil {
			return c.fallback(FailureCancelled, attempt-1, lastErr)
		}

		text, err := c.attempt(ctx, req)
		if err == nil {
			text = strings.TrimSpace(text)
			if text == "" {
				return c.fallback(FailureServer, attempt, errEmptyResponse)
			}
			c.log(slog.LevelInfo, "story generated", "attempts", attempt, "chars", len(text))
			return Result{Text: text, Attempts: attempt}
		}
		lastErr = err

		failure := classify(ctx, err)
		switch failure {
		case FailureTimeout:
			c.log(slog.LevelWarn, "generation attempt timed out", "attempt", attempt, "max_attempts", c.maxRetries)
			if attempt < c.maxRetries && !sleep(ctx, c.retryDelay) {
				return c.fallback(FailureCancelled, attempt, err)
			}
		default:
			return c.fallback(failure, attempt, err)
		}
	}
	return c.fallback(FailureTimeout, c.maxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, req Request) (string, error) {
	if c.timeout <= 0 {
		return c.backend.Generate(ctx, req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.backend.Generate(attemptCtx, req)
}

func (c *Client) fallback(failure Failure, attempts int, err error) Result {
	if failure != FailureCancelled {
		c.log(slog.LevelError, "generation failed", "failure", failure.String(), "attempts", attempts, "error", errString(err))
	}
	return Result{
		Text:     FallbackText(c.mode, failure),
		Failure:  failure,
		Attempts: attempts,
		Err:      err,
	}
}

func (c *Client) log(level slog.Level, msg string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Log(context.Background(), level, msg, args...)
}

// BuildPrompt embeds topic and the length instruction in the story template.
func BuildPrompt(topic string, maxWords int) string {
	return fmt.Sprintf(
		"Tell a short, imaginative story for children about %s. "+
			"Keep it under %d words. "+
			"Make it fun and age-appropriate for kids ages 5-10. "+
			"Format: Title: [story title]\n\n[story text with paragraphs]",
		strings.TrimSpace(topic), maxWords,
	)
}

const fallbackTitle = "Title: Oops!\n\n"

// FallbackText returns the story shown in place of a generated one.
func FallbackText(mode string, failure Failure) string {
	server := mode == config.ModeServer
	switch failure {
	case FailureUnreachable:
		if server {
			return fallbackTitle + "The magic book can't reach the story server right now. Are we connected to the school network?"
		}
		return fallbackTitle + "The magic book's storyteller is sleeping. Please wake it up and try again!"
	default:
		if server {
			return fallbackTitle + "The story server seems to be having trouble. Try again in a moment!"
		}
		return fallbackTitle + "The magic had a little hiccup. Try again!"
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

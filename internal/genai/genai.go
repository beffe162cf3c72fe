// Package genai provides the resilient completion client used to turn a
// formatted intake report into a diagnostic narrative.
//
// Resilience is layered defense-in-depth: an inner bounded exponential
// backoff around the raw completion call handles transport failures
// (429/5xx/network/decode), and an outer application-level retry around the
// whole request-and-validate step handles empty or under-length responses.
// When every attempt is exhausted the caller receives the fixed FallbackText
// instead of an error, so the conversation can always complete.
package genai

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Default configuration values. They mirror a conservative production setup:
// short connect timeout, long read timeout, bounded retries on both layers.
const (
	DefaultModel            = "mistral-medium"
	DefaultBaseURL          = "https://api.mistral.ai/v1"
	DefaultConnectTimeout   = 15 * time.Second
	DefaultRequestTimeout   = 90 * time.Second
	DefaultOuterAttempts    = 3
	DefaultOuterInterval    = 2 * time.Second
	DefaultInnerAttempts    = 5
	DefaultInnerBaseDelay   = 1 * time.Second
	DefaultInnerMaxElapsed  = 2 * time.Minute
	DefaultMinContentLength = 50
	DefaultMaxTokens        = 2000
	DefaultTemperature      = 0.7
)

// chatService is the minimal completion interface, satisfied by the OpenAI
// SDK client and by test doubles.
type chatService interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Opts holds configuration options for the completion client.
type Opts struct {
	APIKey           string
	BaseURL          string
	Model            string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	OuterAttempts    int
	OuterInterval    time.Duration
	InnerAttempts    int
	InnerBaseDelay   time.Duration
	InnerMaxElapsed  time.Duration
	MinContentLength int
	RequestsPerSec   float64
}

// Option defines a configuration option for the completion client.
type Option func(*Opts)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL sets the OpenAI-compatible endpoint base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the completion model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeouts sets the connect and request timeouts.
func WithTimeouts(connect, request time.Duration) Option {
	return func(o *Opts) {
		o.ConnectTimeout = connect
		o.RequestTimeout = request
	}
}

// WithOuterRetry configures the application-level retry layer.
func WithOuterRetry(attempts int, interval time.Duration) Option {
	return func(o *Opts) {
		o.OuterAttempts = attempts
		o.OuterInterval = interval
	}
}

// WithInnerRetry configures the transport-level backoff layer.
func WithInnerRetry(attempts int, baseDelay, maxElapsed time.Duration) Option {
	return func(o *Opts) {
		o.InnerAttempts = attempts
		o.InnerBaseDelay = baseDelay
		o.InnerMaxElapsed = maxElapsed
	}
}

// WithMinContentLength sets the minimum accepted completion length; shorter
// responses are treated as retryable failures.
func WithMinContentLength(n int) Option {
	return func(o *Opts) { o.MinContentLength = n }
}

// WithRateLimit caps outbound completion attempts per second.
func WithRateLimit(rps float64) Option {
	return func(o *Opts) { o.RequestsPerSec = rps }
}

// Client is the resilient completion client.
type Client struct {
	chat    chatService
	limiter *rate.Limiter
	opts    Opts
}

// NewClient builds a completion client against an OpenAI-compatible
// endpoint. The API key is required; everything else has defaults.
func NewClient(options ...Option) (*Client, error) {
	opts := Opts{
		BaseURL:          DefaultBaseURL,
		Model:            DefaultModel,
		ConnectTimeout:   DefaultConnectTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		OuterAttempts:    DefaultOuterAttempts,
		OuterInterval:    DefaultOuterInterval,
		InnerAttempts:    DefaultInnerAttempts,
		InnerBaseDelay:   DefaultInnerBaseDelay,
		InnerMaxElapsed:  DefaultInnerMaxElapsed,
		MinContentLength: DefaultMinContentLength,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.APIKey == "" {
		return nil, &ProviderError{Kind: FailureUnauthorized, Message: "API key not set"}
	}

	config := openai.DefaultConfig(opts.APIKey)
	config.BaseURL = opts.BaseURL
	config.HTTPClient = &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
		},
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}

	slog.Debug("genai.NewClient: completion client configured",
		"baseURL", opts.BaseURL, "model", opts.Model,
		"outerAttempts", opts.OuterAttempts, "innerAttempts", opts.InnerAttempts)
	return &Client{
		chat:    openai.NewClientWithConfig(config),
		limiter: limiter,
		opts:    opts,
	}, nil
}

// Complete submits the prompts and returns the generated text or a
// classified *ProviderError. Both retry layers run inside this call; the
// caller decides what to surface (see TerminalMessage and FallbackText).
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr *ProviderError

	for attempt := 1; attempt <= c.opts.OuterAttempts; attempt++ {
		if attempt > 1 {
			// Application-level retry spacing grows linearly with the
			// attempt number, independent of the transport backoff below.
			delay := time.Duration(attempt-1) * c.opts.OuterInterval
			slog.Debug("genai.Complete: outer retry sleeping", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return "", classify(ctx.Err())
			case <-time.After(delay):
			}
		}

		content, err := c.requestWithBackoff(ctx, systemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			if !err.Retryable() {
				slog.Error("genai.Complete: terminal failure", "kind", err.Kind, "status", err.StatusCode)
				return "", err
			}
			slog.Warn("genai.Complete: attempt failed", "attempt", attempt, "kind", err.Kind, "error", err)
			continue
		}

		// A successful transport response is still not a success until it
		// carries enough content to be a plausible diagnosis.
		content = strings.TrimSpace(content)
		if len(content) < c.opts.MinContentLength {
			lastErr = &ProviderError{Kind: FailureInvalidResponse, Message: "completion content under minimum length"}
			slog.Warn("genai.Complete: under-length completion", "attempt", attempt, "length", len(content))
			continue
		}

		slog.Info("genai.Complete: completion succeeded", "attempt", attempt, "length", len(content))
		return content, nil
	}

	slog.Error("genai.Complete: all attempts exhausted", "attempts", c.opts.OuterAttempts, "lastError", lastErr)
	return "", lastErr
}

// TerminalMessage maps a terminally classified completion failure to its
// distinct user-facing message. The second return is false for exhausted
// transient failures, which degrade to FallbackText instead of a message.
func TerminalMessage(err error) (string, bool) {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return "", false
	}
	switch perr.Kind {
	case FailureUnauthorized:
		return MessageUnauthorized, true
	case FailureRateLimited:
		return MessageRateLimited, true
	case FailureServer:
		return MessageServerError, true
	}
	return "", false
}

// requestWithBackoff is the inner transport-level retry layer: bounded
// exponential backoff around one completion call, stopping early on
// non-retryable classification or when the elapsed budget runs out.
func (c *Client) requestWithBackoff(ctx context.Context, systemPrompt, userPrompt string) (string, *ProviderError) {
	req := openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}

	start := time.Now()
	var lastErr *ProviderError

	for attempt := 1; attempt <= c.opts.InnerAttempts; attempt++ {
		if attempt > 1 {
			delay := c.opts.InnerBaseDelay << (attempt - 2)
			if time.Since(start)+delay > c.opts.InnerMaxElapsed {
				slog.Warn("genai.requestWithBackoff: elapsed budget exhausted", "attempt", attempt, "elapsed", time.Since(start))
				break
			}
			select {
			case <-ctx.Done():
				return "", classify(ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", classify(err)
		}

		resp, err := c.chat.CreateChatCompletion(ctx, req)
		if err != nil {
			perr := classify(err)
			if !perr.Retryable() {
				return "", perr
			}
			lastErr = perr
			slog.Debug("genai.requestWithBackoff: retryable failure", "attempt", attempt, "kind", perr.Kind)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = &ProviderError{Kind: FailureNetwork, Message: "no choices in completion response"}
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}

	if lastErr == nil {
		lastErr = &ProviderError{Kind: FailureNetwork, Message: "completion attempts exhausted"}
	}
	return "", lastErr
}

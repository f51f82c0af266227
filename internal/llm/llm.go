package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// Backend failure kinds. Errors returned by Generate wrap exactly one of them.
var (
	ErrAuth              = errors.New("backend rejected credentials")
	ErrRateLimit         = errors.New("backend rate limit exceeded")
	ErrNetwork           = errors.New("backend unreachable")
	ErrMalformedResponse = errors.New("backend returned a malformed response")
)

// KindOf names the backend failure kind of err, or "" if err is not a backend error.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	}
	return ""
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	timeout     time.Duration
	temperature float32
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout     time.Duration
	temperature float32
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *clientOptions) { o.temperature = t }
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, opts ...Option) *Client {
	o := clientOptions{timeout: DefaultTimeout, temperature: 0.7}
	for _, opt := range opts {
		opt(&o)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		timeout:     o.timeout,
		temperature: o.temperature,
	}
}

// Generate sends prompt as a single user message and returns the generated text.
// It makes exactly one request; callers decide whether to resubmit.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		err = classify(err)
		slog.Warn("LLM call failed", "model", c.model, "kind", KindOf(err), "elapsed", time.Since(start), "error", err)
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	slog.Debug("LLM response",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start),
	)
	return text, nil
}

// Ping checks that the endpoint answers and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps a go-openai error onto one of the backend failure kinds.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", kindForStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %w", kindForStatus(reqErr.HTTPStatusCode), err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out: %w", ErrNetwork, err)
		}
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out: %w", ErrNetwork, err)
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

func kindForStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusTooManyRequests:
		return ErrRateLimit
	default:
		return ErrNetwork
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("empty completion response")

// BackendConfig describes one OpenAI-compatible chat completion backend.
// BaseURL left empty means the official OpenAI endpoint.
type BackendConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Config configures the client: a primary backend, an optional alternate
// used when a request opts in, and shared request limits.
type Config struct {
	Primary   BackendConfig
	Alternate BackendConfig
	MaxTokens int
	Timeout   time.Duration
}

// Option adjusts a single chat request.
type Option func(*requestOptions)

type requestOptions struct {
	temperature  float32
	maxTokens    int
	useAlternate bool
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *requestOptions) { o.temperature = t }
}

// WithMaxTokens overrides the completion token budget.
func WithMaxTokens(n int) Option {
	return func(o *requestOptions) { o.maxTokens = n }
}

// WithAlternate routes the request to the alternate backend, when one is
// configured.
func WithAlternate() Option {
	return func(o *requestOptions) { o.useAlternate = true }
}

type backend struct {
	client *openai.Client
	model  string
}

// Client talks to OpenAI-compatible chat completion backends.
type Client struct {
	primary   backend
	alternate *backend
	maxTokens int
	logger    *slog.Logger
}

// New creates a Client from the given config.
func New(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		primary:   newBackend(cfg.Primary, cfg.Timeout),
		maxTokens: cfg.MaxTokens,
		logger:    logger.With("component", "llm"),
	}
	if cfg.Alternate.APIKey != "" {
		alt := newBackend(cfg.Alternate, cfg.Timeout)
		c.alternate = &alt
	}
	return c
}

func newBackend(cfg BackendConfig, timeout time.Duration) backend {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}
	return backend{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

// Chat sends a single user prompt and returns the completion text.
func (c *Client) Chat(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return c.complete(ctx, "", prompt, opts)
}

// ChatWithSystem sends a system prompt plus a user prompt.
func (c *Client) ChatWithSystem(ctx context.Context, system, user string, opts ...Option) (string, error) {
	return c.complete(ctx, system, user, opts)
}

// ChatJSON asks for a structured answer and decodes it into out, running
// the completion text through the JSON recovery chain.
func (c *Client) ChatJSON(ctx context.Context, system, user string, out any, opts ...Option) error {
	text, err := c.complete(ctx, system, user, opts)
	if err != nil {
		return err
	}

	strategy, err := DecodeJSON(text, out)
	if err != nil {
		return err
	}
	if strategy != "strict" {
		c.logger.Warn("model returned malformed JSON, recovered",
			"strategy", strategy)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, system, user string, opts []Option) (string, error) {
	options := requestOptions{maxTokens: c.maxTokens}
	for _, opt := range opts {
		opt(&options)
	}

	b := c.primary
	if options.useAlternate {
		if c.alternate == nil {
			return "", errors.New("alternate backend not configured")
		}
		b = *c.alternate
	}

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		MaxTokens:   options.maxTokens,
		Temperature: options.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

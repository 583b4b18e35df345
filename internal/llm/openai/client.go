package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/internal/llm"
)

const (
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config describes an OpenAI-compatible chat completions endpoint. Gemini is
// reachable through its OpenAI-compatible BaseURL.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxRetries  int
	HTTPClient  *http.Client
}

// Client sends every llm.Request as a single chat completion.
type Client struct {
	api         openai.Client
	model       string
	temperature float64
}

// NewClient validates cfg and builds the SDK client.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "openai api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		api:         openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// Generate returns the text of the first choice.
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return nil, wrapError(err, req.Purpose)
	}
	if len(completion.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeLLMFailure, "completion has no choices",
			xerrors.WithMetadata("purpose", string(req.Purpose)))
	}
	return &llm.Response{Text: completion.Choices[0].Message.Content}, nil
}

func wrapError(err error, purpose llm.Purpose) error {
	opts := []xerrors.Option{xerrors.WithMetadata("purpose", string(purpose))}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		opts = append(opts, xerrors.WithMetadata("status", strconv.Itoa(apiErr.StatusCode)))
		opts = append(opts, xerrors.WithRetryable(xerrors.RetryableStatus(apiErr.StatusCode)))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("%s call timed out", purpose), opts...)
	}
	return xerrors.Wrap(xerrors.CodeLLMFailure, err, fmt.Sprintf("%s call failed", purpose), opts...)
}

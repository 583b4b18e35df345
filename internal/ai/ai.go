package ai

import (
	"context"
	"log/slog"
	"time"

	"OpenMCP-Salesforce/internal/knowledge"
	"OpenMCP-Salesforce/internal/llm"
	"OpenMCP-Salesforce/internal/observability/metrics"
	"OpenMCP-Salesforce/pkg/logger"
)

// Option configures the classifier, extractor and summarizer alike.
type Option func(*base)

// WithTimeout bounds every model call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(b *base) {
		if timeout < 0 {
			timeout = 0
		}
		b.timeout = timeout
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

// WithKnowledge adds matching schema notes to extraction prompts. The
// classifier and summarizer ignore it.
func WithKnowledge(p knowledge.Provider) Option {
	return func(b *base) {
		b.knowledge = p
	}
}

type base struct {
	client    llm.Client
	timeout   time.Duration
	knowledge knowledge.Provider
	log       *slog.Logger
}

func newBase(client llm.Client, component string, opts []Option) base {
	b := base{client: client, log: logger.Named(component)}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}

// generate performs one bounded model call and records its outcome.
func (b *base) generate(ctx context.Context, req llm.Request) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	resp, err := b.client.Generate(ctx, req)
	metrics.ObserveLLMCall(string(req.Purpose), err)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text, nil
}

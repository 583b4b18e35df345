package ai

import (
	"context"

	"OpenMCP-Salesforce/internal/llm"
	"OpenMCP-Salesforce/pkg/logger"
)

// Extractor turns a free-text request into operation arguments.
type Extractor struct {
	base
}

// NewExtractor builds an Extractor on top of client.
func NewExtractor(client llm.Client, opts ...Option) *Extractor {
	return &Extractor{base: newBase(client, "extractor", opts)}
}

// Query returns a sanitized SOQL statement for prompt.
func (e *Extractor) Query(ctx context.Context, prompt string) string {
	return Sanitize(e.extract(ctx, "query", e.notes(prompt)+queryPrompt+prompt))
}

// ObjectName returns the sanitized API name of the object prompt asks about.
func (e *Extractor) ObjectName(ctx context.Context, prompt string) string {
	return SanitizeName(e.extract(ctx, "object_name", e.notes(prompt)+objectNamePrompt+prompt))
}

func (e *Extractor) notes(prompt string) string {
	if e.knowledge == nil {
		return ""
	}
	return buildNotes(e.knowledge.Lookup(prompt))
}

// extract never fails. When the model call errors the best-effort output,
// usually empty, is returned and the remote side reports the missing value.
func (e *Extractor) extract(ctx context.Context, kind, prompt string) string {
	if e.client == nil {
		return ""
	}
	raw, err := e.generate(ctx, llm.Request{Purpose: llm.PurposeExtract, Prompt: prompt})
	if err != nil {
		logger.FromContext(ctx, e.log).Warn("extraction failed", "kind", kind, "error", err)
	}
	return raw
}

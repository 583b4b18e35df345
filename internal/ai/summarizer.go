package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"OpenMCP-Salesforce/internal/llm"
	"OpenMCP-Salesforce/pkg/logger"
)

// fallbackPrefix precedes the raw payload when no summary could be produced.
const fallbackPrefix = "Salesforce returned: "

// Summarizer renders a remote response as natural language.
type Summarizer struct {
	base
}

// NewSummarizer builds a Summarizer on top of client.
func NewSummarizer(client llm.Client, opts ...Option) *Summarizer {
	return &Summarizer{base: newBase(client, "summarizer", opts)}
}

// Summarize returns the model's summary of payload as-is. If the model
// fails or answers with nothing, the compacted payload is returned instead
// so the caller always gets non-empty text.
func (s *Summarizer) Summarize(ctx context.Context, payload json.RawMessage) string {
	if s.client != nil {
		text, err := s.generate(ctx, llm.Request{
			Purpose: llm.PurposeSummarize,
			Prompt:  summaryPrompt + string(payload),
		})
		if err != nil {
			logger.FromContext(ctx, s.log).Warn("summarization failed", "error", err)
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return fallbackPrefix + compact(payload)
}

func compact(payload json.RawMessage) string {
	if len(bytes.TrimSpace(payload)) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return string(payload)
	}
	return buf.String()
}

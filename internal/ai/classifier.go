package ai

import (
	"context"
	"strings"

	"OpenMCP-Salesforce/internal/llm"
	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/pkg/logger"
)

// Failback is returned when no operation fits the request.
const Failback = "failback"

// Classifier picks the operation best suited to a prompt.
type Classifier struct {
	base
}

// NewClassifier builds a Classifier on top of client.
func NewClassifier(client llm.Client, opts ...Option) *Classifier {
	return &Classifier{base: newBase(client, "classifier", opts)}
}

// Classify returns the name of one operation in ops, or Failback. It never
// fails: an empty list, a model error or an unrecognised answer all yield
// Failback.
func (c *Classifier) Classify(ctx context.Context, prompt string, ops []registry.Descriptor) string {
	log := logger.FromContext(ctx, c.log)
	if len(ops) == 0 || c.client == nil {
		return Failback
	}

	raw, err := c.generate(ctx, llm.Request{
		Purpose: llm.PurposeClassify,
		Prompt:  buildClassifyPrompt(prompt, ops),
	})
	if err != nil {
		log.Warn("classification failed", "error", err)
		return Failback
	}

	name := firstToken(raw)
	for _, op := range ops {
		if op.Name == name {
			return name
		}
	}
	if name != Failback {
		log.Info("classifier answer did not match any operation", "answer", truncate(raw, 120))
	}
	return Failback
}

// firstToken takes the first whitespace-separated word of s and strips the
// quoting a model tends to wrap around a bare identifier.
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], "`'\"")
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

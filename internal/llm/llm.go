package llm

import "context"

// Purpose tags a call with the workflow role that issued it.
type Purpose string

const (
	PurposeClassify  Purpose = "classify"
	PurposeExtract   Purpose = "extract"
	PurposeSummarize Purpose = "summarize"
)

// Request is a single text prompt.
type Request struct {
	Purpose Purpose
	Prompt  string
}

// Response carries the raw model output.
type Response struct {
	Text string
}

// Client is implemented by every language model provider.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/internal/registry"
)

const (
	callPath       = "/tools/call"
	toolsPath      = "/tools"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 2048
)

// Client sends envelopes to the tool server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	nextID     atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each round trip. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout < 0 {
			timeout = 0
		}
		c.timeout = timeout
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a client for the tool server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "tool server base url is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// NewRequest builds a call envelope with a fresh id.
func (c *Client) NewRequest(name string, args map[string]any) Request {
	return NewCallRequest(c.nextID.Add(1), name, args)
}

// Do sends req. A non-nil error means the exchange itself failed: the
// service was unreachable, timed out, answered with an HTTP error status or
// with something that is not an envelope. A reachable service rejecting the
// call is reported through Response.Error with a nil error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode envelope")
	}

	raw, err := c.send(ctx, http.MethodPost, callPath, body, req.Params.Name)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, transportError(req.Params.Name, err, "decode envelope")
	}
	if resp.Error == nil && len(resp.Result) == 0 {
		return nil, transportError(req.Params.Name, nil, "envelope has neither result nor error")
	}
	return &resp, nil
}

// ListTools fetches the tool descriptors advertised by the server.
func (c *Client) ListTools(ctx context.Context) ([]registry.Descriptor, error) {
	raw, err := c.send(ctx, http.MethodGet, toolsPath, nil, "tools")
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Result *ToolsResult `json:"result"`
		Error  *Error       `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, transportError("tools", err, "decode tool list")
	}
	if envelope.Error != nil {
		return nil, xerrors.Wrap(xerrors.CodeRemoteApplication, envelope.Error, "list tools")
	}
	if envelope.Result == nil {
		return nil, transportError("tools", nil, "tool list has no result")
	}
	return envelope.Result.Tools, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, tool string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, transportError(tool, err, "build request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "tool server call timed out",
				xerrors.WithMetadata("tool", tool))
		}
		return nil, transportError(tool, err, "tool server unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, xerrors.New(xerrors.CodeRemoteTransport,
			fmt.Sprintf("tool server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			xerrors.WithMetadata("tool", tool),
			xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode)),
			xerrors.WithRetryable(xerrors.RetryableStatus(resp.StatusCode)),
		)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(tool, err, "read response")
	}
	return raw, nil
}

func transportError(tool string, cause error, message string) error {
	opts := []xerrors.Option{xerrors.WithMetadata("tool", tool)}
	if cause == nil {
		return xerrors.New(xerrors.CodeRemoteTransport, message, opts...)
	}
	return xerrors.Wrap(xerrors.CodeRemoteTransport, cause, message, opts...)
}

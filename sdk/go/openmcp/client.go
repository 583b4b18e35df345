// Package openmcp is a Go client for the openmcpd chat backend.
package openmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// A chat round trip includes up to three model calls and one Salesforce call.
const DefaultHTTPTimeout = 2 * time.Minute

// Client wraps the HTTP interactions with the chat backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// CallLogEntry is one side of a remote interaction. Call entries carry the
// request envelope in Payload, response entries the response envelope or an
// {"error": text} object in Response.
type CallLogEntry struct {
	Type     string          `json:"type"`
	Tool     string          `json:"tool"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// ChatResponse is the backend's answer to a message.
type ChatResponse struct {
	Result  string         `json:"result"`
	CallLog []CallLogEntry `json:"call_log"`
}

// Operation describes one operation the backend can route to.
type Operation struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("openmcp api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("openmcp api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the backend at rawURL. When httpClient
// is nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat sends one message and returns the answer with its call log.
func (c *Client) Chat(ctx context.Context, message string) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/chat", map[string]string{"message": message}, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// Operations lists the operations the backend routes to.
func (c *Client) Operations(ctx context.Context) ([]Operation, error) {
	var body struct {
		Operations []Operation `json:"operations"`
	}
	if err := c.get(ctx, "/api/v1/operations", &body); err != nil {
		return nil, err
	}
	return body.Operations, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

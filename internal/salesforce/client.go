// Package salesforce is a minimal REST client for the three read operations
// the tool server exposes: listing sObjects, describing one and running SOQL.
package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	xerrors "OpenMCP-Salesforce/internal/errors"
)

// DefaultErrorCode is reported when Salesforce fails without an errorCode.
const DefaultErrorCode = "INVALID_SOQL_SYNTAX"

const (
	defaultVersion = "v60.0"
	defaultTimeout = 30 * time.Second
)

// Config holds the connection settings.
type Config struct {
	Domain      string
	Version     string
	AccessToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Field is the trimmed view of one describe field.
type Field struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Values      []string `json:"values,omitempty"`
	Formula     string   `json:"formula,omitempty"`
	ReferenceTo []string `json:"referenceTo,omitempty"`
}

// QueryResult is the body of a SOQL query response.
type QueryResult struct {
	TotalSize int              `json:"totalSize"`
	Done      bool             `json:"done"`
	Records   []map[string]any `json:"records"`
}

// Client talks to one Salesforce org.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	domain := strings.TrimRight(strings.TrimSpace(cfg.Domain), "/")
	if domain == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "salesforce domain is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "salesforce access token is required")
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = defaultVersion
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: domain + "/services/data/" + version,
		token:   cfg.AccessToken,
		http:    hc,
	}, nil
}

// ListObjects returns the API names of every sObject visible to the token.
func (c *Client) ListObjects(ctx context.Context) ([]string, error) {
	var body struct {
		SObjects []struct {
			Name string `json:"name"`
		} `json:"sobjects"`
	}
	if err := c.get(ctx, "/sobjects/", &body); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(body.SObjects))
	for _, o := range body.SObjects {
		names = append(names, o.Name)
	}
	return names, nil
}

// DescribeObject returns the fields of the named sObject. Picklist fields
// carry their active values and lookups their target objects.
func (c *Client) DescribeObject(ctx context.Context, name string) ([]Field, error) {
	var body struct {
		Fields []struct {
			Name              string   `json:"name"`
			Type              string   `json:"type"`
			Label             string   `json:"label"`
			CalculatedFormula string   `json:"calculatedFormula"`
			ReferenceTo       []string `json:"referenceTo"`
			PicklistValues    []struct {
				Value  string `json:"value"`
				Active *bool  `json:"active"`
			} `json:"picklistValues"`
		} `json:"fields"`
	}
	if err := c.get(ctx, "/sobjects/"+url.PathEscape(name)+"/describe/", &body); err != nil {
		return nil, err
	}

	fields := make([]Field, 0, len(body.Fields))
	for _, f := range body.Fields {
		field := Field{Name: f.Name, Type: f.Type, Label: f.Label, Formula: f.CalculatedFormula}
		if len(f.PicklistValues) > 0 {
			values := make([]string, 0, len(f.PicklistValues))
			for _, pv := range f.PicklistValues {
				if pv.Active == nil || *pv.Active {
					values = append(values, pv.Value)
				}
			}
			field.Values = values
		}
		if len(f.ReferenceTo) > 0 {
			field.ReferenceTo = f.ReferenceTo
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// Query runs a SOQL statement.
func (c *Client) Query(ctx context.Context, soql string) (*QueryResult, error) {
	var result QueryResult
	if err := c.get(ctx, "/query/?q="+strings.ReplaceAll(url.QueryEscape(soql), "+", "%20"), &result); err != nil {
		return nil, err
	}
	if result.Records == nil {
		result.Records = []map[string]any{}
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "build salesforce request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "salesforce request timed out")
		}
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "salesforce request failed",
			xerrors.WithMetadata("salesforce_error_code", DefaultErrorCode))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "read salesforce response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "decode salesforce response")
	}
	return nil
}

// apiError turns a Salesforce error body, a JSON list of errorCode and
// message pairs, into an error carrying the first code.
func apiError(status int, body []byte) error {
	code := DefaultErrorCode
	message := strings.TrimSpace(string(body))

	var problems []struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &problems); err == nil && len(problems) > 0 {
		if problems[0].ErrorCode != "" {
			code = problems[0].ErrorCode
		}
		if problems[0].Message != "" {
			message = problems[0].Message
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return xerrors.New(xerrors.CodeUpstreamFailure, message,
		xerrors.WithMetadata("salesforce_error_code", code),
		xerrors.WithMetadata("status", strconv.Itoa(status)),
		xerrors.WithRetryable(xerrors.RetryableStatus(status)),
	)
}

// ErrorCode returns the Salesforce errorCode carried by err.
func ErrorCode(err error) string {
	if e, ok := xerrors.From(err); ok {
		if code := e.Metadata()["salesforce_error_code"]; code != "" {
			return code
		}
	}
	return DefaultErrorCode
}

// Message returns the human-readable part of err.
func Message(err error) string {
	if e, ok := xerrors.From(err); ok {
		if e.Unwrap() != nil {
			return fmt.Sprintf("%s: %v", e.Message(), e.Unwrap())
		}
		return e.Message()
	}
	return err.Error()
}

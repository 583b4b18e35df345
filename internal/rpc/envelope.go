// Package rpc implements the JSON-RPC 2.0 envelope spoken between the chat
// backend and the tool server.
package rpc

import (
	"encoding/json"
	"fmt"

	"OpenMCP-Salesforce/internal/registry"
)

// Version is the only protocol version produced and accepted.
const Version = "2.0"

// MethodCall is the method name used for every tool invocation.
const MethodCall = "call"

// Error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

// CallParams names the tool and carries its arguments.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Request is a tool invocation.
type Request struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  CallParams `json:"params"`
	ID      any        `json:"id"`
}

// NewCallRequest builds a call request. Nil arguments are sent as {}.
func NewCallRequest(id int64, name string, args map[string]any) Request {
	if args == nil {
		args = map[string]any{}
	}
	return Request{
		JSONRPC: Version,
		Method:  MethodCall,
		Params:  CallParams{Name: name, Arguments: args},
		ID:      id,
	}
}

// Response carries exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      any             `json:"id"`
}

// NewResult wraps a successful payload.
func NewResult(id any, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{JSONRPC: Version, Result: raw, ID: id}, nil
}

// NewErrorResponse wraps a structured failure.
func NewErrorResponse(id any, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, Error: rpcErr, ID: id}
}

// Err returns the structured error, or nil on success.
func (r *Response) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return r.Error
}

// Error is a structured failure reported by the remote side.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the Salesforce error code and the offending input.
type ErrorData struct {
	SalesforceErrorCode string `json:"salesforce_error_code,omitempty"`
	Details             string `json:"details"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Data != nil && e.Data.SalesforceErrorCode != "" {
		return fmt.Sprintf("rpc error %d (%s): %s", e.Code, e.Data.SalesforceErrorCode, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ToolsResult is the result of GET /tools.
type ToolsResult struct {
	Status string                `json:"status"`
	Tools  []registry.Descriptor `json:"tools"`
}

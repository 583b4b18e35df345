package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpenMCP-Salesforce/internal/agent"
	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/internal/rpc"
)

type stubRunner struct {
	state   *agent.State
	err     error
	prompts []string
}

func (s *stubRunner) Run(ctx context.Context, prompt string) (*agent.State, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return nil, s.err
	}
	return s.state, nil
}

func (s *stubRunner) Operations() []registry.Descriptor {
	return registry.Builtin().List()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatReturnsResultAndCallLog(t *testing.T) {
	req := rpc.NewCallRequest(1, registry.OpListObjects, nil)
	resp, err := rpc.NewResult(1, map[string]any{"objects": []string{"Account", "Contact"}})
	require.NoError(t, err)

	runner := &stubRunner{state: &agent.State{
		FinalText: "The available objects are Account and Contact.",
		Audit: []agent.AuditEntry{
			{Type: agent.EntryCall, Tool: registry.OpListObjects, Payload: req},
			{Type: agent.EntryResponse, Tool: registry.OpListObjects, Response: resp},
		},
	}}
	h := NewServer(":0", runner).Handler()

	rec := doRequest(t, h, http.MethodPost, "/chat", `{"message":"list all objects"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"list all objects"}, runner.prompts)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	assert.JSONEq(t, `{
		"result": "The available objects are Account and Contact.",
		"call_log": [
			{"type":"call","tool":"list_salesforce_objects","payload":{"jsonrpc":"2.0","method":"call","params":{"name":"list_salesforce_objects","arguments":{}},"id":1}},
			{"type":"response","tool":"list_salesforce_objects","response":{"jsonrpc":"2.0","result":{"objects":["Account","Contact"]},"id":1}}
		]
	}`, rec.Body.String())
}

func TestChatFailbackHasEmptyCallLog(t *testing.T) {
	runner := &stubRunner{state: &agent.State{FinalText: agent.FailbackMessage, Audit: []agent.AuditEntry{}}}
	rec := doRequest(t, NewServer(":0", runner).Handler(), http.MethodPost, "/chat", `{"message":"what's the capital of France"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, agent.FailbackMessage, body.Result)
	assert.NotNil(t, body.CallLog)
	assert.Empty(t, body.CallLog)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "malformed body", body: `{"message":`, status: http.StatusBadRequest, code: string(xerrors.CodeInvalidArgument)},
		{name: "empty message", body: `{"message":""}`, err: xerrors.New(xerrors.CodeInvalidArgument, "message must not be empty"), status: http.StatusBadRequest, code: string(xerrors.CodeInvalidArgument)},
		{name: "unexpected", body: `{"message":"x"}`, err: errors.New("boom"), status: http.StatusInternalServerError, code: string(xerrors.CodeUnknown)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{err: tt.err}
			rec := doRequest(t, NewServer(":0", runner).Handler(), http.MethodPost, "/chat", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestChatWithoutRunner(t *testing.T) {
	rec := doRequest(t, NewServer(":0", nil).Handler(), http.MethodPost, "/chat", `{"message":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOperations(t *testing.T) {
	rec := doRequest(t, NewServer(":0", &stubRunner{}).Handler(), http.MethodGet, "/api/v1/operations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body OperationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Operations, 3)
	assert.Equal(t, registry.OpListObjects, body.Operations[0].Name)
}

func TestHealthzAndMetrics(t *testing.T) {
	h := NewServer(":0", &stubRunner{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openmcp_http_requests_total")
}

func TestCORS(t *testing.T) {
	h := NewServer(":0", &stubRunner{}).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	restricted := NewServer(":0", &stubRunner{}, WithAllowedOrigins([]string{"https://app.example.com"})).Handler()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	restricted.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWithContextRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := withContext(ctx, NewServer(":0", &stubRunner{}).Handler())
	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(xerrors.New(xerrors.CodeTimeout, "slow")))
	assert.Equal(t, http.StatusBadGateway, statusFor(xerrors.New(xerrors.CodeRemoteTransport, "down")))
	assert.Equal(t, http.StatusNotFound, statusFor(xerrors.New(xerrors.CodeUnknownOperation, "nope")))
}

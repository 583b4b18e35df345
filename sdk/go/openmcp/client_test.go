package openmcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "list all objects", body["message"])

		_, _ = io.WriteString(w, `{"result":"The available objects are Account and Contact.","call_log":[
			{"type":"call","tool":"list_salesforce_objects","payload":{"jsonrpc":"2.0","method":"call","params":{"name":"list_salesforce_objects","arguments":{}},"id":1}},
			{"type":"response","tool":"list_salesforce_objects","response":{"jsonrpc":"2.0","result":{"objects":["Account","Contact"]},"id":1}}
		]}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/v1", srv.Client())
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), "list all objects")
	require.NoError(t, err)
	assert.Equal(t, "The available objects are Account and Contact.", resp.Result)
	require.Len(t, resp.CallLog, 2)
	assert.Equal(t, "call", resp.CallLog[0].Type)
	assert.Equal(t, "response", resp.CallLog[1].Type)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":{"objects":["Account","Contact"]},"id":1}`, string(resp.CallLog[1].Response))
}

func TestOperations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/operations", r.URL.Path)
		_, _ = io.WriteString(w, `{"operations":[{"name":"query_salesforce_records","description":"Executes a SOQL query","parameters":{"type":"object"}}]}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, nil)
	require.NoError(t, err)

	ops, err := client.Operations(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "query_salesforce_records", ops[0].Name)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"message must not be empty","code":"INVALID_ARGUMENT"}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Code)
	assert.Equal(t, "message must not be empty", apiErr.Message)
}

func TestAPIErrorPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = client.Operations(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "server shutting down", apiErr.Message)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url", nil)
	require.Error(t, err)
	_, err = NewClient("://", nil)
	require.Error(t, err)
}

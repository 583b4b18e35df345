package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"OpenMCP-Salesforce/sdk/go/openmcp"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/operations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"operations": []openmcp.Operation{
			{Name: "list_salesforce_objects", Description: "List all SObjects"},
			{Name: "query_salesforce_records", Description: "Run a SOQL query"},
		}})
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(openmcp.ChatResponse{
			Result: "There are 2 accounts: Acme and Globex.",
			CallLog: []openmcp.CallLogEntry{
				{Type: "call", Tool: "query_salesforce_records", Payload: json.RawMessage(`{"jsonrpc":"2.0","method":"call","params":{"name":"query_salesforce_records","arguments":{"query":"SELECT Name FROM Account"}},"id":1}`)},
				{Type: "response", Tool: "query_salesforce_records", Response: json.RawMessage(`{"jsonrpc":"2.0","result":{"totalSize":2,"done":true,"records":[{"Name":"Acme"},{"Name":"Globex"}]},"id":1}`)},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := openmcp.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ops, err := client.Operations(ctx)
	if err != nil {
		panic(err)
	}
	for _, op := range ops {
		fmt.Printf("operation %s: %s\n", op.Name, op.Description)
	}

	resp, err := client.Chat(ctx, "show me all account names")
	if err != nil {
		panic(err)
	}
	fmt.Println(resp.Result)
	for _, entry := range resp.CallLog {
		fmt.Printf("%s %s\n", entry.Type, entry.Tool)
	}
}

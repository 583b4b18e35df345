package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/cors"

	"OpenMCP-Salesforce/internal/observability/metrics"
	"OpenMCP-Salesforce/internal/rpc"
	"OpenMCP-Salesforce/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Server serves the tool endpoints over HTTP.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	mcp        *server.MCPServer
}

// NewServer builds a tool server listening on addr.
func NewServer(addr string, d *Dispatcher) *Server {
	return &Server{addr: addr, dispatcher: d, mcp: NewMCPServer(d)}
}

// MCP returns the MCP server so it can also be served over stdio.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.AllowAll().Handler)

	r.Get("/tools", s.handleTools)
	r.Post("/tools/call", s.handleCall)
	r.Handle("/mcp", server.NewStreamableHTTPServer(s.mcp))
	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Named("toolserver").Info("tool server listening", "address", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	resp, err := rpc.NewResult(0, rpc.ToolsResult{Status: statusSuccess, Tools: s.dispatcher.Tools()})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCall answers every envelope with HTTP 200, failures included.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req rpc.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, rpc.NewErrorResponse(nil, &rpc.Error{
			Code:    rpc.CodeParseError,
			Message: "Parse error: " + err.Error(),
			Data:    &rpc.ErrorData{},
		}))
		return
	}
	ctx := logger.WithContext(r.Context(), logger.Named("toolserver").With("request_id", middleware.GetReqID(r.Context())))
	writeJSON(w, http.StatusOK, s.dispatcher.Dispatch(ctx, req))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"OpenMCP-Salesforce/internal/agent"
	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/internal/observability/metrics"
	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Runner executes one prompt. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, prompt string) (*agent.State, error)
	Operations() []registry.Descriptor
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the answer to POST /chat.
type ChatResponse struct {
	Result  string             `json:"result"`
	CallLog []agent.AuditEntry `json:"call_log"`
}

// OperationsResponse lists the operations the classifier may pick.
type OperationsResponse struct {
	Operations []registry.Descriptor `json:"operations"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server exposes the chat endpoint.
type Server struct {
	addr           string
	runner         Runner
	allowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins restricts CORS. Empty means every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// NewServer builds the API server.
func NewServer(addr string, runner Runner, opts ...Option) *Server {
	s := &Server{addr: addr, runner: runner}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(s.corsHandler().Handler)
	r.Use(requestLogger)

	r.Post("/chat", s.handleChat)
	r.Get("/api/v1/operations", s.handleOperations)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (s *Server) corsHandler() *cors.Cors {
	if len(s.allowedOrigins) == 0 {
		return cors.AllowAll()
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Named("api").Info("chat server listening", "address", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "agent not initialised"))
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid request body"))
		return
	}

	state, err := s.runner.Run(r.Context(), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Result: state.FinalText, CallLog: state.Audit})
}

func (s *Server) handleOperations(w http.ResponseWriter, _ *http.Request) {
	if s.runner == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "agent not initialised"))
		return
	}
	writeJSON(w, http.StatusOK, OperationsResponse{Operations: s.runner.Operations()})
}

// requestLogger tags each request with an id and stores a request-scoped
// logger in the context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		l := logger.Named("api").With("request_id", id)
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), l)))
	})
}

func statusFor(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeUnknownOperation:
		return http.StatusNotFound
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeLLMFailure, xerrors.CodeRemoteTransport, xerrors.CodeRemoteApplication, xerrors.CodeUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	writeJSON(w, statusFor(err), errorResponse{Error: message, Code: string(xerrors.CodeOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withContext rejects requests once the root context is cancelled.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

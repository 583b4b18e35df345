package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/internal/observability/alerting"
	"OpenMCP-Salesforce/internal/observability/metrics"
	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/internal/rpc"
	"OpenMCP-Salesforce/pkg/logger"
)

// FailbackMessage answers prompts that map to no operation.
const FailbackMessage = "Sorry, your question cannot be translated to a Salesforce context."

const (
	transportFailurePrefix = "MCP call failed: "
	rawFallbackPrefix      = "Salesforce returned: "
)

// alertTimeout bounds one alert delivery. Delivery runs after the request
// has been answered.
const alertTimeout = 5 * time.Second

// Classifier picks an operation name from ops, or any other value for
// failback. It must not fail.
type Classifier interface {
	Classify(ctx context.Context, prompt string, ops []registry.Descriptor) string
}

// Extractor pulls sanitized operation arguments out of a prompt.
type Extractor interface {
	Query(ctx context.Context, prompt string) string
	ObjectName(ctx context.Context, prompt string) string
}

// Summarizer renders a response envelope as text.
type Summarizer interface {
	Summarize(ctx context.Context, payload json.RawMessage) string
}

// Caller dispatches envelopes to the remote tool server. Do returns an error
// only when the exchange itself failed.
type Caller interface {
	NewRequest(name string, args map[string]any) rpc.Request
	Do(ctx context.Context, req rpc.Request) (*rpc.Response, error)
}

// Agent runs the workflow graph. It holds no per-request state and is safe
// for concurrent use.
type Agent struct {
	registry      *registry.Registry
	classifier    Classifier
	extractor     Extractor
	summarizer    Summarizer
	caller        Caller
	remoteTimeout time.Duration
	alerts        alerting.Dispatcher
	log           *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithRemoteTimeout bounds each remote call. Zero leaves it to the caller.
func WithRemoteTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.remoteTimeout = 0
			return
		}
		a.remoteTimeout = timeout
	}
}

// WithAlerts notifies d about transport failures whose code alerts.
func WithAlerts(d alerting.Dispatcher) Option {
	return func(a *Agent) {
		a.alerts = d
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// New creates an Agent.
func New(reg *registry.Registry, classifier Classifier, extractor Extractor, summarizer Summarizer, caller Caller, opts ...Option) (*Agent, error) {
	switch {
	case reg == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "operation registry is required")
	case classifier == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "classifier is required")
	case extractor == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "extractor is required")
	case summarizer == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "summarizer is required")
	case caller == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "remote caller is required")
	}
	ag := &Agent{
		registry:   reg,
		classifier: classifier,
		extractor:  extractor,
		summarizer: summarizer,
		caller:     caller,
		log:        logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag, nil
}

// Operations returns the snapshot the classifier chooses from.
func (a *Agent) Operations() []registry.Descriptor {
	return a.registry.List()
}

// Run drives one prompt through the graph. The only error is an empty
// prompt; every other failure is folded into State.FinalText.
func (a *Agent) Run(ctx context.Context, prompt string) (*State, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "message must not be empty")
	}
	log := logger.FromContext(ctx, a.log)
	state := &State{Prompt: prompt, Audit: []AuditEntry{}}

	state.enter(StepEntry)
	ops := a.registry.List()
	state.Route = a.route(ctx, prompt, ops)
	metrics.ObserveRoute(state.Route.String())
	log.Info("request routed", "route", state.Route.String())

	if state.Route == RouteFailback {
		state.enter(StepFailback)
		state.FinalText = FailbackMessage
		return state, nil
	}

	state.enter(state.Route.Step())
	if ok := a.act(ctx, state); !ok {
		return state, nil
	}

	state.enter(StepFinalize)
	a.finalize(ctx, state)
	return state, nil
}

// route accepts only names present in ops, so the executor never sees an
// operation the registry cannot validate.
func (a *Agent) route(ctx context.Context, prompt string, ops []registry.Descriptor) Route {
	name := a.classifier.Classify(ctx, prompt, ops)
	for _, op := range ops {
		if op.Name == name {
			return RouteFor(name)
		}
	}
	return RouteFailback
}

// act runs the action step for state.Route. It reports false when the call
// failed at the transport level and the request has been terminated.
func (a *Agent) act(ctx context.Context, state *State) bool {
	var args map[string]any
	switch state.Route {
	case RouteDescribeObject:
		args = map[string]any{"object_name": a.extractor.ObjectName(ctx, state.Prompt)}
	case RouteQueryRecords:
		args = map[string]any{"query": a.extractor.Query(ctx, state.Prompt)}
	default:
		args = map[string]any{}
	}

	resp, err := a.execute(ctx, state, state.Route.Operation(), args)
	if err != nil {
		logger.FromContext(ctx, a.log).Error("remote call failed", "tool", state.Route.Operation(),
			"retryable", xerrors.RetryableError(err), "error", err)
		a.alert(ctx, err, state)
		state.FinalText = transportFailurePrefix + err.Error()
		return false
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		state.FinalText = transportFailurePrefix + err.Error()
		return false
	}
	state.Raw = raw
	return true
}

// alert hands the failure to the dispatcher in the background so a slow
// channel never delays the answer.
func (a *Agent) alert(ctx context.Context, err error, state *State) {
	if a.alerts == nil || !xerrors.ShouldAlert(err) {
		return
	}
	event := alerting.EventFromError(err, state.Route.Operation(), state.Prompt)
	log := logger.FromContext(ctx, a.log)
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	go func() {
		defer cancel()
		if nerr := a.alerts.Notify(alertCtx, event); nerr != nil {
			log.Warn("alert delivery failed", "code", event.Code, "error", nerr)
		}
	}()
}

func (a *Agent) finalize(ctx context.Context, state *State) {
	text := strings.TrimSpace(a.summarizer.Summarize(ctx, state.Raw))
	if text == "" {
		text = rawFallbackPrefix + string(state.Raw)
	}
	state.FinalText = text
}

// execute records the call, dispatches it and records the outcome. Arguments
// that fail registry validation are answered locally with an invalid-params
// error and never reach the wire.
func (a *Agent) execute(ctx context.Context, state *State, name string, args map[string]any) (*rpc.Response, error) {
	req := a.caller.NewRequest(name, args)
	state.appendCall(name, req)
	audit := logger.Audit()
	audit.Info("remote call", "tool", name, "id", req.ID, "arguments", args)

	start := time.Now()
	if err := a.registry.Validate(name, args); err != nil {
		resp := rpc.NewErrorResponse(req.ID, invalidParams(err, args))
		state.appendResponse(name, resp)
		metrics.ObserveRemoteCall(name, metrics.OutcomeAppError, time.Since(start))
		audit.Info("remote response", "tool", name, "id", req.ID, "error", resp.Error.Message)
		return resp, nil
	}

	callCtx := ctx
	if a.remoteTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.remoteTimeout)
		defer cancel()
	}

	resp, err := a.caller.Do(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		state.appendResponse(name, map[string]string{"error": err.Error()})
		metrics.ObserveRemoteCall(name, metrics.OutcomeTransportError, elapsed)
		audit.Warn("remote response", "tool", name, "id", req.ID, "transport_error", err.Error())
		return nil, err
	}

	state.appendResponse(name, resp)
	if resp.Error != nil {
		metrics.ObserveRemoteCall(name, metrics.OutcomeAppError, elapsed)
		audit.Info("remote response", "tool", name, "id", req.ID, "error", resp.Error.Message, "code", resp.Error.Code)
		return resp, nil
	}
	metrics.ObserveRemoteCall(name, metrics.OutcomeSuccess, elapsed)
	audit.Info("remote response", "tool", name, "id", req.ID, "bytes", len(resp.Result))
	return resp, nil
}

func invalidParams(err error, args map[string]any) *rpc.Error {
	code := rpc.CodeInvalidParams
	if xerrors.CodeOf(err) == xerrors.CodeUnknownOperation {
		code = rpc.CodeMethodNotFound
	}
	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	details, _ := args["query"].(string)
	return &rpc.Error{Code: code, Message: message, Data: &rpc.ErrorData{Details: details}}
}

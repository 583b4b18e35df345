// Package toolserver exposes the Salesforce operations over the JSON-RPC
// envelope and as MCP tools.
package toolserver

import (
	"context"
	"log/slog"
	"time"

	xerrors "OpenMCP-Salesforce/internal/errors"
	"OpenMCP-Salesforce/internal/observability/metrics"
	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/internal/rpc"
	"OpenMCP-Salesforce/internal/salesforce"
	"OpenMCP-Salesforce/pkg/logger"
)

// Backend performs the Salesforce reads. *salesforce.Client implements it.
type Backend interface {
	ListObjects(ctx context.Context) ([]string, error)
	DescribeObject(ctx context.Context, name string) ([]salesforce.Field, error)
	Query(ctx context.Context, soql string) (*salesforce.QueryResult, error)
}

type listResult struct {
	Status   string   `json:"status"`
	ToolName string   `json:"tool_name"`
	Objects  []string `json:"objects"`
}

type describeResult struct {
	Status     string             `json:"status"`
	ToolName   string             `json:"tool_name"`
	ObjectName string             `json:"object_name"`
	Fields     []salesforce.Field `json:"fields"`
}

type queryResult struct {
	Status    string           `json:"status"`
	ToolName  string           `json:"tool_name"`
	Records   []map[string]any `json:"records"`
	TotalSize int              `json:"totalSize"`
	Done      bool             `json:"done"`
}

const statusSuccess = "success"

type handlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Dispatcher routes call envelopes to the backend.
type Dispatcher struct {
	registry *registry.Registry
	handlers map[string]handlerFunc
	log      *slog.Logger
}

// NewDispatcher wires the built-in operations to backend. Every descriptor in
// reg must name an operation the dispatcher implements.
func NewDispatcher(reg *registry.Registry, backend Backend) (*Dispatcher, error) {
	if reg == nil || backend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "registry and backend are required")
	}
	d := &Dispatcher{registry: reg, log: logger.Named("toolserver")}
	d.handlers = map[string]handlerFunc{
		registry.OpListObjects: func(ctx context.Context, _ map[string]any) (any, error) {
			objects, err := backend.ListObjects(ctx)
			if err != nil {
				return nil, err
			}
			return listResult{Status: statusSuccess, ToolName: registry.OpListObjects, Objects: objects}, nil
		},
		registry.OpDescribeObject: func(ctx context.Context, args map[string]any) (any, error) {
			name, _ := args["object_name"].(string)
			fields, err := backend.DescribeObject(ctx, name)
			if err != nil {
				return nil, err
			}
			return describeResult{Status: statusSuccess, ToolName: registry.OpDescribeObject, ObjectName: name, Fields: fields}, nil
		},
		registry.OpQueryRecords: func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			res, err := backend.Query(ctx, query)
			if err != nil {
				return nil, err
			}
			return queryResult{
				Status:    statusSuccess,
				ToolName:  registry.OpQueryRecords,
				Records:   res.Records,
				TotalSize: len(res.Records),
				Done:      true,
			}, nil
		},
	}
	for _, name := range reg.Names() {
		if _, ok := d.handlers[name]; !ok {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "no handler for operation "+name,
				xerrors.WithMetadata("tool", name))
		}
	}
	return d, nil
}

// Tools returns the advertised descriptors.
func (d *Dispatcher) Tools() []registry.Descriptor {
	return d.registry.List()
}

// Dispatch executes req and always returns an envelope. Failures are
// reported as server errors carrying the Salesforce error code and the
// query that was sent, if any.
func (d *Dispatcher) Dispatch(ctx context.Context, req rpc.Request) *rpc.Response {
	name := req.Params.Name
	args := req.Params.Arguments
	if args == nil {
		args = map[string]any{}
	}
	log := logger.FromContext(ctx, d.log).With("tool", name, "id", req.ID)
	start := time.Now()

	result, err := d.invoke(ctx, name, args)
	if err == nil {
		var resp *rpc.Response
		resp, err = rpc.NewResult(req.ID, result)
		if err == nil {
			metrics.ObserveRemoteCall(name, metrics.OutcomeSuccess, time.Since(start))
			log.Info("tool call succeeded", "duration", time.Since(start))
			return resp
		}
	}

	metrics.ObserveRemoteCall(name, metrics.OutcomeAppError, time.Since(start))
	log.Warn("tool call failed", "error", err)
	details, _ := args["query"].(string)
	return rpc.NewErrorResponse(req.ID, &rpc.Error{
		Code:    rpc.CodeServerError,
		Message: errorMessage(err),
		Data: &rpc.ErrorData{
			SalesforceErrorCode: salesforce.ErrorCode(err),
			Details:             details,
		},
	})
}

func (d *Dispatcher) invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	if err := d.registry.Validate(name, args); err != nil {
		return nil, err
	}
	handler, ok := d.handlers[name]
	if !ok {
		return nil, xerrors.New(xerrors.CodeUnknownOperation, "Unknown tool: "+name)
	}
	return handler(ctx, args)
}

// errorMessage keeps validation messages verbatim and appends the cause for
// wrapped backend failures.
func errorMessage(err error) string {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, xerrors.CodeUnknownOperation:
		if e, ok := xerrors.From(err); ok {
			return e.Message()
		}
	}
	return salesforce.Message(err)
}

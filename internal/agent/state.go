package agent

import (
	"encoding/json"

	"OpenMCP-Salesforce/internal/registry"
)

// Route is the branch chosen for a request. The zero value is RouteFailback
// so any unrecognised classification lands on the apology path.
type Route int

const (
	RouteFailback Route = iota
	RouteListObjects
	RouteDescribeObject
	RouteQueryRecords
)

var routeOperations = map[Route]string{
	RouteListObjects:    registry.OpListObjects,
	RouteDescribeObject: registry.OpDescribeObject,
	RouteQueryRecords:   registry.OpQueryRecords,
}

// RouteFor maps an operation name to its route.
func RouteFor(operation string) Route {
	for route, name := range routeOperations {
		if name == operation {
			return route
		}
	}
	return RouteFailback
}

// Operation returns the registry name the route invokes, or "" for failback.
func (r Route) Operation() string {
	return routeOperations[r]
}

// Step returns the action step the route branches to.
func (r Route) Step() Step {
	switch r {
	case RouteListObjects:
		return StepListObjects
	case RouteDescribeObject:
		return StepDescribeObject
	case RouteQueryRecords:
		return StepQueryRecords
	default:
		return StepFailback
	}
}

func (r Route) String() string {
	return string(r.Step())
}

// MarshalText renders the route by its step name.
func (r Route) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Step names a node in the workflow graph.
type Step string

const (
	StepEntry          Step = "entry"
	StepListObjects    Step = "list_objects"
	StepDescribeObject Step = "describe_object"
	StepQueryRecords   Step = "query_records"
	StepFailback       Step = "failback"
	StepFinalize       Step = "finalize"
)

// Audit entry kinds.
const (
	EntryCall     = "call"
	EntryResponse = "response"
)

// AuditEntry records one side of a remote interaction. Call entries carry
// the request envelope in Payload. Response entries carry the response
// envelope, or {"error": text} when the exchange failed, in Response.
type AuditEntry struct {
	Type     string `json:"type"`
	Tool     string `json:"tool"`
	Payload  any    `json:"payload,omitempty"`
	Response any    `json:"response,omitempty"`
}

// State is the per-request record threaded through the graph.
type State struct {
	Prompt string `json:"prompt"`
	Route  Route  `json:"route"`
	// Raw is the response envelope of the action step, nil on failback.
	Raw       json.RawMessage `json:"raw_result,omitempty"`
	Audit     []AuditEntry    `json:"call_log"`
	FinalText string          `json:"final_text"`
	Steps     []Step          `json:"steps"`
}

func (s *State) enter(step Step) {
	s.Steps = append(s.Steps, step)
}

func (s *State) appendCall(tool string, payload any) {
	s.Audit = append(s.Audit, AuditEntry{Type: EntryCall, Tool: tool, Payload: payload})
}

func (s *State) appendResponse(tool string, response any) {
	s.Audit = append(s.Audit, AuditEntry{Type: EntryResponse, Tool: tool, Response: response})
}

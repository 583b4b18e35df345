// Package registry holds the fixed set of remote operations the workflow may
// invoke. A Registry is built once at startup and only read afterwards.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	xerrors "OpenMCP-Salesforce/internal/errors"
)

// Names of the built-in Salesforce operations.
const (
	OpListObjects    = "list_salesforce_objects"
	OpDescribeObject = "describe_salesforce_object"
	OpQueryRecords   = "query_salesforce_records"
)

// Descriptor describes one invocable operation. Parameters is a JSON Schema
// object with type, properties and required keys.
type Descriptor struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
}

// Param is a flattened view of one schema property.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Params lists the declared properties sorted by name.
func (d Descriptor) Params() []Param {
	required := make(map[string]bool)
	for _, name := range stringList(d.Parameters["required"]) {
		required[name] = true
	}
	props, _ := d.Parameters["properties"].(map[string]any)
	params := make([]Param, 0, len(props))
	for name, raw := range props {
		p := Param{Name: name, Required: required[name]}
		if prop, ok := raw.(map[string]any); ok {
			p.Type, _ = prop["type"].(string)
			p.Description, _ = prop["description"].(string)
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// Registry is an immutable, ordered set of descriptors with compiled
// argument schemas. It is safe for concurrent use.
type Registry struct {
	ops     []Descriptor
	index   map[string]int
	schemas []*gojsonschema.Schema
}

// New compiles descs into a Registry. Names must be unique and non-empty.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		ops:     make([]Descriptor, 0, len(descs)),
		index:   make(map[string]int, len(descs)),
		schemas: make([]*gojsonschema.Schema, 0, len(descs)),
	}
	for _, d := range descs {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "operation name is empty")
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "duplicate operation "+d.Name)
		}
		if d.Parameters == nil {
			d.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(d.Parameters))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "compile schema for "+d.Name)
		}
		r.index[d.Name] = len(r.ops)
		r.ops = append(r.ops, d)
		r.schemas = append(r.schemas, schema)
	}
	return r, nil
}

// MustNew is New for descriptor sets known to be valid.
func MustNew(descs ...Descriptor) *Registry {
	r, err := New(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Builtin returns the three Salesforce operations served by the tool server.
func Builtin() *Registry {
	return MustNew(BuiltinDescriptors()...)
}

// BuiltinDescriptors returns fresh copies of the built-in descriptors.
func BuiltinDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        OpListObjects,
			Description: "Lists all accessible Salesforce object types (e.g., Account, Contact, Case). Useful for discovering what data can be queried.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []any{},
			},
		},
		{
			Name:        OpDescribeObject,
			Description: "Provides schema details (fields, types, labels) for a specific Salesforce object. Helps in understanding object structure for SOQL or record creation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"object_name": map[string]any{
						"type":        "string",
						"minLength":   1,
						"description": "The API name of the Salesforce object (e.g., 'Account', 'Case').",
					},
				},
				"required": []any{"object_name"},
			},
		},
		{
			Name:        OpQueryRecords,
			Description: "Executes a SOQL query against Salesforce to retrieve records. Use for searching or fetching specific data.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"minLength":   1,
						"description": "The SOQL query string to execute (e.g., 'SELECT Name, Phone FROM Account WHERE Industry = 'Technology'').",
					},
				},
				"required": []any{"query"},
			},
		},
	}
}

// LoadFile reads a YAML or JSON list of descriptors.
func LoadFile(path string) (*Registry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	var descs []Descriptor
	if err := yaml.Unmarshal(content, &descs); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return New(descs...)
}

// Lister discovers descriptors from a running tool server.
type Lister interface {
	ListTools(ctx context.Context) ([]Descriptor, error)
}

// FromRemote builds a Registry from the tool server's advertised tools.
func FromRemote(ctx context.Context, lister Lister) (*Registry, error) {
	descs, err := lister.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "tool server advertised no tools")
	}
	return New(descs...)
}

// List returns the descriptors in registration order. The slice is a copy.
func (r *Registry) List() []Descriptor {
	if r == nil {
		return nil
	}
	out := make([]Descriptor, len(r.ops))
	copy(out, r.ops)
	return out
}

// Names returns operation names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.ops))
	for i, d := range r.ops {
		names[i] = d.Name
	}
	return names
}

// Lookup finds a descriptor by exact name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.ops[i], true
}

// Validate checks args against the operation's schema. Missing or empty
// required strings are reported as "Missing required parameter: <name>".
func (r *Registry) Validate(name string, args map[string]any) error {
	if r == nil {
		return xerrors.New(xerrors.CodeUnknownOperation, "Unknown tool: "+name)
	}
	i, ok := r.index[name]
	if !ok {
		return xerrors.New(xerrors.CodeUnknownOperation, "Unknown tool: "+name,
			xerrors.WithMetadata("tool", name))
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := r.schemas[i].Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "validate arguments for "+name)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	message := ""
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
		if message != "" {
			continue
		}
		switch desc.Type() {
		case "required":
			if prop, ok := desc.Details()["property"].(string); ok {
				message = "Missing required parameter: " + prop
			}
		case "string_gte":
			message = "Missing required parameter: " + desc.Field()
		}
	}
	if message == "" {
		message = "Invalid parameters for " + name
	}
	return xerrors.New(xerrors.CodeInvalidArgument, message,
		xerrors.WithMetadata("tool", name),
		xerrors.WithMetadata("details", strings.Join(problems, "; ")),
	)
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

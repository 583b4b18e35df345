package toolserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/internal/rpc"
)

const (
	mcpServerName    = "openmcp-salesforce"
	mcpServerVersion = "0.1.0"
)

// NewMCPServer registers one MCP tool per descriptor. Each tool runs through
// the same dispatcher as the JSON-RPC endpoint.
func NewMCPServer(d *Dispatcher) *server.MCPServer {
	s := server.NewMCPServer(mcpServerName, mcpServerVersion, server.WithToolCapabilities(true))
	for _, desc := range d.Tools() {
		s.AddTool(toolFor(desc), d.mcpHandler(desc.Name))
	}
	return s
}

func toolFor(desc registry.Descriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(desc.Description)}
	for _, p := range desc.Params() {
		propOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		switch p.Type {
		case "number", "integer":
			opts = append(opts, mcp.WithNumber(p.Name, propOpts...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(p.Name, propOpts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, propOpts...))
		}
	}
	return mcp.NewTool(desc.Name, opts...)
}

func (d *Dispatcher) mcpHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := d.Dispatch(ctx, rpc.NewCallRequest(0, name, req.GetArguments()))
		if resp.Error != nil {
			return mcp.NewToolResultError(resp.Error.Message), nil
		}
		var structured map[string]any
		if err := json.Unmarshal(resp.Result, &structured); err != nil {
			return mcp.NewToolResultText(string(resp.Result)), nil
		}
		return mcp.NewToolResultStructured(structured, string(resp.Result)), nil
	}
}

package deckcap

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/deckcap/deckcap/internal/kit"
)

// RegisterMCP adds the deckcap tools to srv.
func (e *Exporter) RegisterMCP(srv *mcp.Server) {
	eps := e.endpoints(e.logger)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "deckcap_export",
		Description: "Export every slide of the deck to a single document. With wait=true the call returns the finished run, otherwise the started one.",
		InputSchema: inputSchema(map[string]any{
			"wait": map[string]any{"type": "boolean", "description": "Block until the export completes or fails"},
		}, nil),
	}, eps.export, kit.DecodeJSON[ExportRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "deckcap_status",
		Description: "Current export status and progress",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.status, noArgs)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "deckcap_formats",
		Description: "List supported export formats",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.formats, noArgs)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "deckcap_slides",
		Description: "Titles and sizes of the slides captured by the current or last export",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.slides, noArgs)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "deckcap_history",
		Description: "List past exports, newest first",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum runs to return (default 50)"},
		}, nil),
	}, eps.history, kit.DecodeJSON[HistoryRequest])
}

func noArgs(*mcp.CallToolRequest) (any, error) { return nil, nil }

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spacegate/spacegate/pkg/selection"
	"github.com/spacegate/spacegate/pkg/tools"
)

// registerBuiltIns adds every catalog tool enabled, then explicitly removes
// the ones the selection did not enable.
func (f *Factory) registerBuiltIns(s *server.MCPServer, sel selection.Result, req Request) {
	enabled := make(map[string]bool, len(sel.EnabledToolIDs))
	for _, id := range sel.EnabledToolIDs {
		enabled[id] = true
	}

	var disabled []string
	for _, def := range tools.Catalog() {
		tool := def.Tool
		if def.ID == tools.HubInspect {
			tool = tools.HubInspectTool(enabled[tools.MarkerReadmeInclude])
		}

		switch def.ID {
		case tools.UseSpace:
			s.AddTool(tool, f.useSpaceHandler(req))
		case tools.DynamicSpace:
			s.AddTool(tool, f.dynamicSpaceHandler(req, sel))
		default:
			id := def.ID
			s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return f.deps.Runner.Run(ctx, id, request)
			})
		}

		if !enabled[def.ID] {
			disabled = append(disabled, tool.Name)
		}
	}

	if len(disabled) > 0 {
		s.DeleteTools(disabled...)
	}
}

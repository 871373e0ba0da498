package server

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spacegate/spacegate/pkg/auth"
	"github.com/spacegate/spacegate/pkg/gradio"
	"github.com/spacegate/spacegate/pkg/hub"
	"github.com/spacegate/spacegate/pkg/logger"
	"github.com/spacegate/spacegate/pkg/selection"
	"github.com/spacegate/spacegate/pkg/tools"
	"github.com/spacegate/spacegate/pkg/transport"
)

// registerGradioTools discovers the selection's Gradio endpoints and
// registers their tools under synthesized outward names. Discovery failures
// surface as log events only; a failed space is simply absent.
func (f *Factory) registerGradioTools(ctx context.Context, s *server.MCPServer, sel selection.Result, req Request) {
	spaces := f.deps.Discoverer.GetGradioSpaces(ctx, sel.GradioSpaces, req.Options.Token, gradio.DiscoverOptions{})
	stripImages := stripImageContent(req, sel)

	for spaceIdx, space := range spaces {
		names := gradio.BuildToolNames(space.Info.Private, spaceIdx+1, space.Tools)
		for toolIdx, descriptor := range space.Tools {
			outward := names[toolIdx]
			tool := mcp.Tool{
				Name:        outward,
				Description: descriptor.Description,
				InputSchema: toInputSchema(descriptor.InputSchema),
			}
			s.AddTool(tool, f.gradioHandler(space.Info, descriptor.Name, outward, req, stripImages))
		}
	}
}

// gradioHandler invokes one upstream tool over a fresh per-call session,
// relays progress, and applies response post-processing.
func (f *Factory) gradioHandler(info *hub.SpaceInfo, upstreamName, outwardName string, req Request, stripImages bool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if seconds := req.Options.JobTimeoutSeconds; seconds > transport.JobTimeoutUnset {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
			defer cancel()
		}

		result, err := f.callUpstream(ctx, info, upstreamName, request)
		if err != nil {
			// Caller-initiated cancellation is not an upstream failure.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.deps.Stats.RecordUpstreamFailure()
			return mcp.NewToolResultErrorFromErr("upstream call failed", err), nil
		}

		if stripImages {
			result.Content = gradio.FilterImageContent(result.Content)
		}
		if req.ClientName == openAIClientName {
			gradio.AttachStructuredURL(result, info.Name)
		}
		gradio.EmbedUIResource(ctx, f.deps.HTTPClient, result, outwardName)
		return result, nil
	}
}

// callUpstream opens a per-call session against the space and forwards the
// caller's arguments, wiring the progress relay when the caller supplied a
// progress token.
func (f *Factory) callUpstream(ctx context.Context, info *hub.SpaceInfo, upstreamName string, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := gradio.CallOptions{}
	if meta := request.Params.Meta; meta != nil && meta.ProgressToken != nil {
		opts.ProgressToken = meta.ProgressToken
		if srv := server.ServerFromContext(ctx); srv != nil {
			opts.OnProgress = func(params map[string]any) {
				if err := srv.SendNotificationToClient(ctx, "notifications/progress", params); err != nil {
					logger.Debugf("failed to relay progress notification: %v", err)
				}
			}
		}
	}
	return f.deps.Caller.CallTool(ctx, info, upstreamName, request.GetArguments(), callerToken(ctx), opts)
}

// stripImageContent reports whether Gradio results should drop image blocks:
// the header or the selection marker enables it.
func stripImageContent(req Request, sel selection.Result) bool {
	if req.Options.NoImageContent {
		return true
	}
	for _, id := range sel.EnabledToolIDs {
		if id == tools.MarkerNoImageContent {
			return true
		}
	}
	return false
}

// callerToken returns the request identity's token, if any.
func callerToken(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity.Token
	}
	return ""
}

// toInputSchema converts a projected JSON-Schema map into the tool input
// schema wire shape.
func toInputSchema(projected map[string]any) mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}}
	if props, ok := projected["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	switch required := projected["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		for _, entry := range required {
			if name, ok := entry.(string); ok {
				schema.Required = append(schema.Required, name)
			}
		}
	}
	return schema
}

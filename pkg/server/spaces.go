package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spacegate/spacegate/pkg/gradio"
	"github.com/spacegate/spacegate/pkg/selection"
)

// useSpaceHandler discovers one space on demand and reports its tools with
// the outward names under which a reconnect would register them. Attaching is
// a client-side act: the client reconnects with the space in its gradio list.
func (f *Factory) useSpaceHandler(req Request) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Space string `json:"space"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !isSpaceID(args.Space) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid space id %q, expected owner/name", args.Space)), nil
		}

		space, result := f.discoverOne(ctx, args.Space, callerToken(ctx))
		if result != nil {
			return result, nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Space %s exposes %d tool(s):\n", space.Info.Name, len(space.Tools))
		names := gradio.BuildToolNames(space.Info.Private, 1, space.Tools)
		for i, tool := range space.Tools {
			fmt.Fprintf(&b, "- %s (%s): %s\n", names[i], tool.Name, tool.Description)
		}
		b.WriteString("Reconnect with this space in the gradio list to call these tools directly, " +
			"or invoke them now via " + DynamicSpaceUsage)
		return mcp.NewToolResultText(b.String()), nil
	}
}

// DynamicSpaceUsage is the hint appended to use-space results.
const DynamicSpaceUsage = `hf_dynamic_space {"space":"owner/name","tool":"<name>","arguments":{...}}`

// dynamicSpaceHandler invokes an upstream tool by its original name without
// registering it, discovering the space on demand. Results get the same
// post-processing as registered proxied tools.
func (f *Factory) dynamicSpaceHandler(req Request, sel selection.Result) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Space     string         `json:"space"`
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !isSpaceID(args.Space) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid space id %q, expected owner/name", args.Space)), nil
		}
		if args.Tool == "" {
			return mcp.NewToolResultError("tool name is required"), nil
		}

		space, errResult := f.discoverOne(ctx, args.Space, callerToken(ctx))
		if errResult != nil {
			return errResult, nil
		}
		found := false
		for _, tool := range space.Tools {
			if tool.Name == args.Tool {
				found = true
				break
			}
		}
		if !found {
			return mcp.NewToolResultError(fmt.Sprintf("space %s has no tool %q", args.Space, args.Tool)), nil
		}

		call := request
		if args.Arguments == nil {
			args.Arguments = map[string]any{}
		}
		call.Params.Arguments = args.Arguments
		result, err := f.callUpstream(ctx, space.Info, args.Tool, call)
		if err != nil {
			// Caller-initiated cancellation is not an upstream failure.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.deps.Stats.RecordUpstreamFailure()
			return mcp.NewToolResultErrorFromErr("upstream call failed", err), nil
		}
		if stripImageContent(req, sel) {
			result.Content = gradio.FilterImageContent(result.Content)
		}
		if req.ClientName == openAIClientName {
			gradio.AttachStructuredURL(result, space.Info.Name)
		}
		return result, nil
	}
}

// discoverOne runs discovery for a single space and turns the failure modes
// into tool-result errors.
func (f *Factory) discoverOne(ctx context.Context, name, token string) (gradio.Space, *mcp.CallToolResult) {
	spaces := f.deps.Discoverer.GetGradioSpaces(ctx, []string{name}, token, gradio.DiscoverOptions{})
	if len(spaces) == 0 {
		return gradio.Space{}, mcp.NewToolResultError(
			fmt.Sprintf("space %s is not reachable, is not a Gradio space, or exposes no tools", name))
	}
	return spaces[0], nil
}

func isSpaceID(id string) bool {
	owner, spaceName, ok := strings.Cut(id, "/")
	return ok && owner != "" && spaceName != "" && !strings.Contains(spaceName, "/")
}


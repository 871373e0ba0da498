package gradio

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spacegate/spacegate/pkg/hub"
	"github.com/spacegate/spacegate/pkg/logger"
)

// clientName identifies the gateway to upstream spaces.
const clientName = "spacegate"

// ProgressFunc receives upstream progress notification parameters, in
// upstream order, for relay to the downstream caller.
type ProgressFunc func(params map[string]any)

// CallOptions tunes one upstream tool invocation.
type CallOptions struct {
	// ProgressToken is the downstream caller's progress token. When set it
	// is passed upstream so progress notifications flow, and OnProgress is
	// invoked for each one.
	ProgressToken any

	// OnProgress relays upstream progress notifications. Ignored when
	// ProgressToken is nil.
	OnProgress ProgressFunc
}

// UpstreamCaller opens per-call sessions to Gradio spaces. Tool invocation
// never reuses a cached connection: each call gets a fresh session that is
// always closed on exit, cancellation included.
type UpstreamCaller struct {
	httpClient  *http.Client
	endpointURL func(subdomain string) string
}

// UpstreamOption configures an UpstreamCaller.
type UpstreamOption func(*UpstreamCaller)

// WithUpstreamEndpoint overrides the SSE endpoint builder, for tests.
func WithUpstreamEndpoint(f func(subdomain string) string) UpstreamOption {
	return func(u *UpstreamCaller) {
		u.endpointURL = f
	}
}

// WithUpstreamHTTPClient overrides the HTTP client for upstream sessions.
func WithUpstreamHTTPClient(hc *http.Client) UpstreamOption {
	return func(u *UpstreamCaller) {
		u.httpClient = hc
	}
}

// NewUpstreamCaller creates the caller used for all Gradio tool invocations.
func NewUpstreamCaller(opts ...UpstreamOption) *UpstreamCaller {
	u := &UpstreamCaller{
		httpClient: http.DefaultClient,
		endpointURL: func(subdomain string) string {
			return fmt.Sprintf("https://%s.hf.space/gradio_api/mcp/sse", subdomain)
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// tokenForwardRoundTripper adds the dedicated token-forward header to every
// upstream request of a private-space session.
type tokenForwardRoundTripper struct {
	base  http.RoundTripper
	token string
}

// RoundTrip implements http.RoundTripper.
func (t *tokenForwardRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set(TokenForwardHeader, "Bearer "+t.token)
	return t.base.RoundTrip(reqClone)
}

// CallTool invokes a tool on a space through a fresh upstream session.
// toolName is the tool's original upstream name. The caller's token is
// forwarded only for private spaces. Cancelling ctx cancels the upstream
// call; the session is closed on every exit path.
func (u *UpstreamCaller) CallTool(
	ctx context.Context,
	space *hub.SpaceInfo,
	toolName string,
	arguments map[string]any,
	token string,
	opts CallOptions,
) (*mcp.CallToolResult, error) {
	httpClient := u.httpClient
	if space.Private && token != "" {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		clone := *httpClient
		clone.Transport = &tokenForwardRoundTripper{base: base, token: token}
		httpClient = &clone
	}

	c, err := client.NewSSEMCPClient(
		u.endpointURL(space.Subdomain),
		transport.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client for %s: %w", space.Name, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Debugf("Failed to close upstream session for %s: %v", space.Name, err)
		}
	}()

	// Install the progress relay before any request so no notification can
	// be missed. The client delivers notifications in arrival order.
	if opts.ProgressToken != nil && opts.OnProgress != nil {
		c.OnNotification(func(n mcp.JSONRPCNotification) {
			if n.Method != "notifications/progress" {
				return
			}
			params := make(map[string]any, len(n.Params.AdditionalFields)+1)
			for k, v := range n.Params.AdditionalFields {
				params[k] = v
			}
			params["progressToken"] = opts.ProgressToken
			opts.OnProgress(params)
		})
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to open upstream session for %s: %w", space.Name, err)
	}

	if _, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: "1.0.0",
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize upstream session for %s: %w", space.Name, err)
	}

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: arguments,
		},
	}
	if opts.ProgressToken != nil {
		request.Params.Meta = &mcp.Meta{ProgressToken: opts.ProgressToken}
	}

	result, err := c.CallTool(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("upstream tool call %s on %s failed: %w", toolName, space.Name, err)
	}
	return result, nil
}

// Package server constructs per-request scoped MCP server instances: built-in
// tools wired to the Hub, plus proxied tools for any Gradio endpoints the
// selection strategy enabled.
package server

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/spacegate/spacegate/pkg/auth"
	"github.com/spacegate/spacegate/pkg/config"
	"github.com/spacegate/spacegate/pkg/gradio"
	"github.com/spacegate/spacegate/pkg/hub"
	"github.com/spacegate/spacegate/pkg/logger"
	"github.com/spacegate/spacegate/pkg/metrics"
	"github.com/spacegate/spacegate/pkg/selection"
	"github.com/spacegate/spacegate/pkg/tools"
	"github.com/spacegate/spacegate/pkg/transport"
)

// Name is the MCP server name reported on initialize.
const Name = "spacegate"

// openAIClientName is the client implementation that wants first-URL
// structured content attached to Gradio results.
const openAIClientName = "openai-mcp"

const instructionsAuthenticated = "Tools for the Hub: search models, " +
	"datasets, Spaces and papers, inspect repositories, read documentation, " +
	"manage compute jobs, and call tools exposed by hosted Spaces. The " +
	"connection is authenticated; private resources you can access are " +
	"available."

const instructionsAnonymous = "Tools for the Hub: search models, datasets, " +
	"Spaces and papers, inspect repositories, and read documentation. The " +
	"connection is anonymous; supply a Hub token to access private " +
	"resources and compute jobs."

// Deps are the factory's process-wide collaborators.
type Deps struct {
	Validator  auth.Validator
	Settings   hub.SettingsProvider
	Runner     tools.Runner
	Discoverer *gradio.Discoverer
	Caller     *gradio.UpstreamCaller
	Config     *config.Config
	HTTPClient *http.Client
	Stats      *metrics.Metrics
	Version    string
}

// Factory builds scoped MCP server instances. Construction must stay cheap:
// built-in descriptors are precomputed at process start, so a factory call
// only wires enable flags and, when requested, Gradio discovery.
type Factory struct {
	deps Deps
}

// NewFactory creates a server factory from its collaborators.
func NewFactory(deps Deps) *Factory {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Stats == nil {
		deps.Stats = metrics.New()
	}
	return &Factory{deps: deps}
}

// Stats exposes the factory's metrics object so the owning transport shares
// one counter set with the tool handlers.
func (f *Factory) Stats() *metrics.Metrics { return f.deps.Stats }

// Request carries the per-request facts the factory scopes a server to.
type Request struct {
	// Options are the parsed transport headers.
	Options transport.Options

	// SkipGradio bypasses all remote discovery. Used by the stateless
	// transport for requests that cannot touch a Gradio tool.
	SkipGradio bool

	// ClientName is the caller's client implementation name, when known.
	ClientName string
}

// Instance is a scoped server plus the caller details the transport needs.
type Instance struct {
	MCP           *server.MCPServer
	Identity      *auth.Identity
	Authenticated bool
	Selection     selection.Result
}

// New builds a scoped MCP server for one request. Returns
// auth.ErrUnauthorized when the authorization gate rejects the caller; the
// transport is responsible for the 401 response.
func (f *Factory) New(ctx context.Context, req Request) (*Instance, error) {
	gate := auth.Check(ctx, f.deps.Validator, req.Options.Token, req.Options.ForceAuth)
	if gate.Reject {
		return nil, auth.ErrUnauthorized
	}

	var settings *hub.UserSettings
	if f.deps.Settings != nil {
		var err error
		settings, err = f.deps.Settings.UserSettings(ctx, req.Options.Token)
		if err != nil {
			logger.Warnf("failed to fetch user settings: %v", err)
			settings = nil
		}
	}

	sel := selection.Select(selection.Inputs{
		Bouquet:            req.Options.Bouquet,
		Mix:                req.Options.Mix,
		GradioHeader:       req.Options.Gradio,
		Settings:           settings,
		SettingsExternal:   settings != nil,
		SearchEnablesFetch: f.deps.Config.SearchEnablesFetch,
	})

	instructions := instructionsAnonymous
	if gate.Authenticated {
		instructions = instructionsAuthenticated
	}

	mcpServer := server.NewMCPServer(
		Name,
		f.deps.Version,
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
	)

	f.registerBuiltIns(mcpServer, sel, req)

	if !req.SkipGradio && len(sel.GradioSpaces) > 0 {
		f.registerGradioTools(ctx, mcpServer, sel, req)
	}

	return &Instance{
		MCP:           mcpServer,
		Identity:      gate.Identity,
		Authenticated: gate.Authenticated,
		Selection:     sel,
	}, nil
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spacegate/spacegate/pkg/auth"
	"github.com/spacegate/spacegate/pkg/hub"
)

// Runner executes a built-in tool's business logic. The gateway treats tool
// logic as an external collaborator behind this narrow interface; the
// Space-backed tools (use-space, dynamic-space) are wired separately by the
// server factory because they need the discovery subsystem.
type Runner interface {
	Run(ctx context.Context, toolID string, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// HubRunner is the default Runner, projecting tools onto Hub API endpoints.
type HubRunner struct {
	hub        *hub.Client
	httpClient *http.Client
}

// NewHubRunner creates the default tool runner.
func NewHubRunner(hubClient *hub.Client) *HubRunner {
	return &HubRunner{hub: hubClient, httpClient: &http.Client{}}
}

// Run implements Runner.
func (r *HubRunner) Run(ctx context.Context, toolID string, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch toolID {
	case Whoami:
		return r.whoami(ctx)
	case ModelSearch:
		return r.search(ctx, "/api/models", request)
	case DatasetSearch:
		return r.search(ctx, "/api/datasets", request)
	case SpaceSearch:
		return r.search(ctx, "/api/spaces", request)
	case PaperSearch:
		return r.search(ctx, "/api/papers/search", request)
	case DocSearch:
		return r.search(ctx, "/api/docs/search", request)
	case ModelDetail:
		return r.detail(ctx, "/api/models/", request)
	case DatasetDetail:
		return r.detail(ctx, "/api/datasets/", request)
	case HubInspect:
		return r.inspect(ctx, request)
	case DocFetch:
		return r.docFetch(ctx, request)
	case Jobs:
		return r.jobs(ctx, request)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown tool %s", toolID)), nil
	}
}

// callerToken returns the validated caller's token, if any.
func callerToken(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity.Token
	}
	return ""
}

func (*HubRunner) whoami(ctx context.Context) (*mcp.CallToolResult, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return mcp.NewToolResultText("Not authenticated. Provide a bearer token to identify yourself."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Authenticated as %s (%s)", identity.Username, identity.FullName)), nil
}

func (r *HubRunner) search(ctx context.Context, path string, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}{Limit: 10}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	query := url.Values{}
	query.Set("search", args.Query)
	query.Set("limit", strconv.Itoa(args.Limit))

	raw, err := r.hub.GetJSON(ctx, path+"?"+query.Encode(), callerToken(ctx))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(raw)
}

func (r *HubRunner) detail(ctx context.Context, prefix string, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		RepoID string `json:"repo_id"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	raw, err := r.hub.GetJSON(ctx, prefix+args.RepoID, callerToken(ctx))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("detail fetch failed: %v", err)), nil
	}
	return jsonResult(raw)
}

func (r *HubRunner) inspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		RepoID        string `json:"repo_id"`
		RepoType      string `json:"repo_type"`
		IncludeReadme bool   `json:"include_readme"`
	}{RepoType: "model"}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	var path string
	switch args.RepoType {
	case "model":
		path = "/api/models/" + args.RepoID
	case "dataset":
		path = "/api/datasets/" + args.RepoID
	case "space":
		path = "/api/spaces/" + args.RepoID
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown repo type %q", args.RepoType)), nil
	}

	raw, err := r.hub.GetJSON(ctx, path, callerToken(ctx))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	result, err := jsonResult(raw)
	if err != nil || !args.IncludeReadme {
		return result, err
	}

	readme, err := r.fetchReadme(ctx, args.RepoType, args.RepoID)
	if err != nil {
		result.Content = append(result.Content, mcp.NewTextContent(fmt.Sprintf("README unavailable: %v", err)))
		return result, nil
	}
	result.Content = append(result.Content, mcp.NewTextContent(readme))
	return result, nil
}

func (r *HubRunner) fetchReadme(ctx context.Context, repoType, repoID string) (string, error) {
	prefix := ""
	switch repoType {
	case "dataset":
		prefix = "datasets/"
	case "space":
		prefix = "spaces/"
	}
	raw, err := r.fetchText(ctx, fmt.Sprintf("%s/%s%s/raw/main/README.md", r.hub.BaseURL(), prefix, repoID))
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (r *HubRunner) docFetch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		URL string `json:"url"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	parsed, err := url.Parse(args.URL)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return mcp.NewToolResultError(fmt.Sprintf("invalid documentation URL %q", args.URL)), nil
	}

	body, err := r.fetchText(ctx, args.URL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	return mcp.NewToolResultText(body), nil
}

// maxFetchBytes caps doc and README fetches.
const maxFetchBytes = 2 * 1024 * 1024

func (r *HubRunner) fetchText(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch of %s returned %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (r *HubRunner) jobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	token := callerToken(ctx)
	if token == "" {
		return mcp.NewToolResultError("jobs require authentication"), nil
	}

	switch args.Command {
	case "list":
		raw, err := r.hub.GetJSON(ctx, "/api/jobs", token)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("job listing failed: %v", err)), nil
		}
		return jsonResult(raw)
	case "status", "logs":
		if len(args.Args) == 0 {
			return mcp.NewToolResultError("job id required"), nil
		}
		path := "/api/jobs/" + args.Args[0]
		if args.Command == "logs" {
			path += "/logs"
		}
		raw, err := r.hub.GetJSON(ctx, path, token)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("job %s failed: %v", args.Command, err)), nil
		}
		return jsonResult(raw)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("job command %q is not available over this connection", args.Command)), nil
	}
}

// jsonResult wraps raw JSON as an indented text result.
func jsonResult(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var pretty []byte
	var buf any
	if err := json.Unmarshal(raw, &buf); err == nil {
		pretty, _ = json.MarshalIndent(buf, "", "  ")
	}
	if pretty == nil {
		pretty = raw
	}
	return mcp.NewToolResultText(string(pretty)), nil
}

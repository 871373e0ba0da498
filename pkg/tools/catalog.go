// Package tools defines the built-in tool catalog and the named bouquet
// presets. Tool descriptors are precomputed once at process start; the
// server factory only wires enable/disable flags per instance.
package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Built-in tool ids.
const (
	Whoami        = "hf_whoami"
	ModelSearch   = "hf_model_search"
	ModelDetail   = "hf_model_detail"
	DatasetSearch = "hf_dataset_search"
	DatasetDetail = "hf_dataset_detail"
	SpaceSearch   = "hf_space_search"
	PaperSearch   = "hf_paper_search"
	DocSearch     = "hf_doc_search"
	DocFetch      = "hf_doc_fetch"
	HubInspect    = "hub_inspect"
	Jobs          = "hf_jobs"
	UseSpace      = "hf_use_space"
	DynamicSpace  = "hf_dynamic_space"
)

// Behavioral markers. These appear in a selection's enabled tool ids but are
// not tools themselves.
const (
	// MarkerReadmeInclude makes hub_inspect expose its include_readme flag.
	MarkerReadmeInclude = "hf_readme_include"

	// MarkerNoImageContent strips image blocks from Gradio tool results.
	MarkerNoImageContent = "hf_no_image_content"
)

// IsMarker reports whether an id is a behavioral marker rather than a tool.
func IsMarker(id string) bool {
	return id == MarkerReadmeInclude || id == MarkerNoImageContent
}

// Definition is a precomputed built-in tool descriptor.
type Definition struct {
	ID   string
	Tool mcp.Tool
}

// catalog is built once at process start and never mutated afterwards.
var catalog = buildCatalog()

// Catalog returns the precomputed built-in tool definitions, in
// registration order.
func Catalog() []Definition {
	return catalog
}

// AllIDs returns every built-in tool id, in registration order.
func AllIDs() []string {
	ids := make([]string, len(catalog))
	for i, def := range catalog {
		ids[i] = def.ID
	}
	return ids
}

// Lookup returns the definition for an id.
func Lookup(id string) (Definition, bool) {
	for _, def := range catalog {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

func queryTool(id, description, queryDescription string) Definition {
	return Definition{
		ID: id,
		Tool: mcp.Tool{
			Name:        id,
			Description: description,
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": queryDescription,
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results",
						"default":     10,
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

func detailTool(id, description, idDescription string) Definition {
	return Definition{
		ID: id,
		Tool: mcp.Tool{
			Name:        id,
			Description: description,
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"repo_id": map[string]any{
						"type":        "string",
						"description": idDescription,
					},
				},
				Required: []string{"repo_id"},
			},
		},
	}
}

func buildCatalog() []Definition {
	return []Definition{
		{
			ID: Whoami,
			Tool: mcp.Tool{
				Name:        Whoami,
				Description: "Show the authenticated Hub account for this connection",
				InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
			},
		},
		queryTool(ModelSearch, "Search Hub models", "Model search query"),
		detailTool(ModelDetail, "Fetch detailed metadata for one model", "Model id, e.g. owner/name"),
		queryTool(DatasetSearch, "Search Hub datasets", "Dataset search query"),
		detailTool(DatasetDetail, "Fetch detailed metadata for one dataset", "Dataset id, e.g. owner/name"),
		queryTool(SpaceSearch, "Search hosted Spaces", "Space search query"),
		queryTool(PaperSearch, "Search indexed papers", "Paper search query"),
		queryTool(DocSearch, "Search the documentation", "Documentation search query"),
		{
			ID: DocFetch,
			Tool: mcp.Tool{
				Name:        DocFetch,
				Description: "Fetch a documentation page by URL",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"url": map[string]any{
							"type":        "string",
							"description": "Documentation page URL",
						},
					},
					Required: []string{"url"},
				},
			},
		},
		{
			ID:   HubInspect,
			Tool: HubInspectTool(false),
		},
		{
			ID: Jobs,
			Tool: mcp.Tool{
				Name:        Jobs,
				Description: "Run and inspect compute jobs",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"command": map[string]any{
							"type":        "string",
							"description": "Job subcommand",
							"enum":        []any{"run", "status", "logs", "cancel", "list"},
						},
						"args": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Subcommand arguments",
						},
					},
					Required: []string{"command"},
				},
			},
		},
		{
			ID: UseSpace,
			Tool: mcp.Tool{
				Name:        UseSpace,
				Description: "Attach a hosted Space's tools to this connection",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"space": map[string]any{
							"type":        "string",
							"description": "Space id, e.g. owner/name",
						},
					},
					Required: []string{"space"},
				},
			},
		},
		{
			ID: DynamicSpace,
			Tool: mcp.Tool{
				Name:        DynamicSpace,
				Description: "Invoke a hosted Space tool without attaching it",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"space": map[string]any{
							"type":        "string",
							"description": "Space id, e.g. owner/name",
						},
						"tool": map[string]any{
							"type":        "string",
							"description": "Upstream tool name",
						},
						"arguments": map[string]any{
							"type":        "object",
							"description": "Arguments to pass through",
						},
					},
					Required: []string{"space", "tool"},
				},
			},
		},
	}
}

// HubInspectTool builds the hub_inspect descriptor. The include_readme flag
// is exposed only when the selection carries the readme-include marker.
func HubInspectTool(includeReadme bool) mcp.Tool {
	properties := map[string]any{
		"repo_id": map[string]any{
			"type":        "string",
			"description": "Repository id, e.g. owner/name",
		},
		"repo_type": map[string]any{
			"type":        "string",
			"description": "Repository type",
			"enum":        []any{"model", "dataset", "space"},
			"default":     "model",
		},
	}
	if includeReadme {
		properties["include_readme"] = map[string]any{
			"type":        "boolean",
			"description": "Include the repository README in the response",
			"default":     false,
		}
	}
	return mcp.Tool{
		Name:        HubInspect,
		Description: "Inspect a Hub repository's metadata",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   []string{"repo_id"},
		},
	}
}

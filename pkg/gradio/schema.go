package gradio

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolDescriptor is the normalized description of one upstream tool.
// Both upstream schema forms are normalized into this shape at ingest so
// downstream consumers never branch on wire format.
type ToolDescriptor struct {
	// Name is the tool's original upstream name.
	Name string `json:"name"`

	// Description is the human description, possibly empty.
	Description string `json:"description,omitempty"`

	// InputSchema is the projected JSON-Schema-style input description.
	InputSchema map[string]any `json:"inputSchema"`
}

// lambdaMarker identifies anonymous-function artifacts Gradio leaks into
// schema listings; such tools are not callable and are filtered out.
const lambdaMarker = "<lambda"

// arrayFormTool is the array wire form: [{name, description?, inputSchema}].
type arrayFormTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ParseSchemaResponse parses a space's schema endpoint response. Both known
// forms are accepted: an array of tool records, or an object keyed by tool
// name whose values are the input schemas (description on the schema itself).
func ParseSchemaResponse(data []byte) ([]ToolDescriptor, error) {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, fmt.Errorf("empty schema response")
	}

	if data[0] == '[' {
		var tools []arrayFormTool
		if err := json.Unmarshal(data, &tools); err != nil {
			return nil, fmt.Errorf("failed to parse array-form schema: %w", err)
		}
		descriptors := make([]ToolDescriptor, 0, len(tools))
		for _, t := range tools {
			if strings.Contains(t.Name, lambdaMarker) {
				continue
			}
			descriptors = append(descriptors, ToolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: ProjectInputSchema(t.InputSchema),
			})
		}
		return descriptors, nil
	}

	var byName map[string]map[string]any
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("failed to parse object-form schema: %w", err)
	}
	descriptors := make([]ToolDescriptor, 0, len(byName))
	for name, schema := range byName {
		if strings.Contains(name, lambdaMarker) {
			continue
		}
		description, _ := schema["description"].(string)
		descriptors = append(descriptors, ToolDescriptor{
			Name:        name,
			Description: description,
			InputSchema: ProjectInputSchema(schema),
		})
	}
	return descriptors, nil
}

// fileDataProperties is the canonical projection of a Gradio FileData
// wrapper. Callers may also pass a bare URL string for such fields.
func fileDataProperties() map[string]any {
	return map[string]any{
		"path":      map[string]any{"type": "string"},
		"url":       map[string]any{"type": "string"},
		"size":      map[string]any{"type": []any{"integer", "null"}},
		"orig_name": map[string]any{"type": []any{"string", "null"}},
		"mime_type": map[string]any{"type": []any{"string", "null"}},
	}
}

// ProjectInputSchema projects an upstream JSON schema onto the supported
// shape: primitives with enums, arrays of primitives, shallow objects, and
// FileData wrappers. Defaults are kept only on optional fields.
func ProjectInputSchema(in map[string]any) map[string]any {
	out := map[string]any{"type": "object"}
	if in == nil {
		out["properties"] = map[string]any{}
		return out
	}

	required := requiredSet(in)
	if len(required) > 0 {
		names := make([]any, 0, len(required))
		if raw, ok := in["required"].([]any); ok {
			names = raw
		}
		out["required"] = names
	}

	props, _ := in["properties"].(map[string]any)
	projected := make(map[string]any, len(props))
	for name, raw := range props {
		schema, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		projected[name] = projectProperty(schema, required[name])
	}
	out["properties"] = projected
	return out
}

func requiredSet(schema map[string]any) map[string]bool {
	set := make(map[string]bool)
	if raw, ok := schema["required"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				set[s] = true
			}
		}
	}
	return set
}

// projectProperty projects a single property schema.
func projectProperty(schema map[string]any, isRequired bool) map[string]any {
	out := make(map[string]any)

	if isFileData(schema) {
		out["type"] = "object"
		out["properties"] = fileDataProperties()
		if desc, ok := schema["description"].(string); ok && desc != "" {
			out["description"] = desc
		} else {
			out["description"] = "File reference; a URL string is accepted"
		}
		return out
	}

	for _, key := range []string{"type", "description", "enum", "items", "properties"} {
		if v, ok := schema[key]; ok {
			out[key] = v
		}
	}
	// Defaults only make sense on optional fields.
	if def, ok := schema["default"]; ok && !isRequired {
		out["default"] = def
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "string"
	}
	return out
}

// isFileData detects Gradio FileData wrappers: the upstream marks them with
// a FileData title/$ref, or exposes the characteristic path/url/orig_name
// property trio.
func isFileData(schema map[string]any) bool {
	for _, key := range []string{"title", "$ref", "x-python-type"} {
		if v, ok := schema[key].(string); ok && strings.Contains(v, "FileData") {
			return true
		}
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return false
	}
	_, hasPath := props["path"]
	_, hasURL := props["url"]
	_, hasOrig := props["orig_name"]
	return hasPath && hasURL && hasOrig
}

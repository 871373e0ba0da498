package gradio

import (
	"strconv"
	"strings"
)

const (
	// maxToolNameLength caps generated outward tool names. Some MCP clients
	// reject longer names.
	maxToolNameLength = 49

	// truncationHeadLength is how much of a long sanitized name survives at
	// the front when middle truncation applies.
	truncationHeadLength = 20
)

// ToolNamePrefix returns the outward prefix for tools of a space: "gr" for
// public spaces, "grp" for private ones, followed by the 1-based space index.
func ToolNamePrefix(private bool, spaceIndex int) string {
	prefix := "gr"
	if private {
		prefix = "grp"
	}
	return prefix + strconv.Itoa(spaceIndex)
}

// BuildToolName synthesizes the outward name for an upstream tool.
// spaceIndex and toolIndex are 1-based. Names are capped at 49 characters;
// overlong sanitized names get middle truncation prefixed with the tool
// index so truncated names stay unique within a space.
func BuildToolName(private bool, spaceIndex, toolIndex int, toolName string) string {
	prefix := ToolNamePrefix(private, spaceIndex) + "_"
	sanitized := sanitizeToolName(toolName)

	budget := maxToolNameLength - len(prefix)
	if len(sanitized) <= budget {
		return prefix + sanitized
	}

	idx := strconv.Itoa(toolIndex)
	// head + "_" + tail, with the tool index spent from the budget first
	tailLen := budget - len(idx) - 1 - truncationHeadLength - 1
	if tailLen < 1 {
		// Degenerate budget; keep as much of the head as fits.
		return (prefix + idx + "_" + sanitized)[:maxToolNameLength]
	}
	head := sanitized[:truncationHeadLength]
	tail := sanitized[len(sanitized)-tailLen:]
	return prefix + idx + "_" + head + "_" + tail
}

// BuildToolNames synthesizes the outward names for a space's tools in order.
// Distinct upstream names can sanitize to the same string ("foo-bar" and
// "foo.bar" both become "foo_bar"); a collision gets the 1-based tool index
// spliced in after the prefix so every registered name stays unique.
func BuildToolNames(private bool, spaceIndex int, descriptors []ToolDescriptor) []string {
	seen := make(map[string]bool, len(descriptors))
	names := make([]string, len(descriptors))
	for i, descriptor := range descriptors {
		outward := BuildToolName(private, spaceIndex, i+1, descriptor.Name)
		if seen[outward] {
			prefix := ToolNamePrefix(private, spaceIndex) + "_" + strconv.Itoa(i+1) + "_"
			sanitized := sanitizeToolName(descriptor.Name)
			if len(prefix)+len(sanitized) > maxToolNameLength {
				sanitized = sanitized[:maxToolNameLength-len(prefix)]
			}
			outward = prefix + sanitized
		}
		seen[outward] = true
		names[i] = outward
	}
	return names
}

// IsProxiedToolName reports whether an outward tool name was synthesized by
// BuildToolName: a "gr" or "grp" prefix, a space index, then an underscore.
func IsProxiedToolName(name string) bool {
	rest, ok := strings.CutPrefix(name, "gr")
	if !ok {
		return false
	}
	rest = strings.TrimPrefix(rest, "p")
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	return digits > 0 && digits+1 < len(rest) && rest[digits] == '_'
}

// sanitizeToolName lowercases a tool name and collapses runs of special
// characters (dash, space, dot) into single underscores.
func sanitizeToolName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch r {
		case '-', ' ', '.', '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return b.String()
}

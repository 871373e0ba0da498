// Package gradio implements the Gradio endpoint proxy subsystem: space
// identifier parsing, the two-level metadata/schema cache, parallel
// discovery, per-call upstream sessions, and response post-processing.
package gradio

import (
	"strings"

	"github.com/spacegate/spacegate/pkg/logger"
)

// DisableSentinel in a space list disables all Gradio endpoints, including
// those from user settings.
const DisableSentinel = "none"

// ParseSpaceNames parses a comma-separated space list into valid
// "owner/name" identifiers. Each entry must contain exactly one slash with
// non-empty sides. The disable sentinel is filtered out; invalid entries are
// logged and skipped.
func ParseSpaceNames(list string) []string {
	var names []string
	for _, raw := range strings.Split(list, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" || entry == DisableSentinel {
			continue
		}
		if !validSpaceName(entry) {
			logger.Warnf("Skipping invalid space identifier %q", entry)
			continue
		}
		names = append(names, entry)
	}
	return names
}

// DisablesGradio reports whether the list is the literal disable sentinel.
func DisablesGradio(list string) bool {
	return strings.TrimSpace(list) == DisableSentinel
}

func validSpaceName(entry string) bool {
	owner, name, found := strings.Cut(entry, "/")
	return found && owner != "" && name != "" && !strings.Contains(name, "/")
}

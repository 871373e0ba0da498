// Package selection implements the tool-selection strategy: precedence
// between bouquet override, mix, user settings, and fallback, plus the
// orthogonal Gradio endpoint overlay.
package selection

import (
	"slices"

	"github.com/spacegate/spacegate/pkg/gradio"
	"github.com/spacegate/spacegate/pkg/hub"
	"github.com/spacegate/spacegate/pkg/tools"
)

// Mode labels which precedence rule produced a selection.
type Mode string

// Selection modes, in decreasing precedence order.
const (
	ModeBouquetOverride Mode = "BOUQUET_OVERRIDE"
	ModeMix             Mode = "MIX"
	ModeExternalAPI     Mode = "EXTERNAL_API"
	ModeInternalAPI     Mode = "INTERNAL_API"
	ModeFallback        Mode = "FALLBACK"
)

// Inputs are the request-scoped facts the strategy evaluates.
type Inputs struct {
	// Bouquet is the tool preset override header value.
	Bouquet string

	// Mix is the additive preset header value.
	Mix string

	// GradioHeader is the raw comma-separated Gradio space list, or the
	// disable sentinel.
	GradioHeader string

	// Settings is the user's stored tool configuration, nil when absent.
	Settings *hub.UserSettings

	// SettingsExternal notes whether Settings came from the external
	// settings API (as opposed to local configuration).
	SettingsExternal bool

	// SearchEnablesFetch adds hf_doc_fetch whenever hf_doc_search lands in
	// the enabled set.
	SearchEnablesFetch bool
}

// Result is the outcome of the selection strategy.
type Result struct {
	// Mode is the precedence rule that matched.
	Mode Mode

	// EnabledToolIDs is the enabled tool set, including behavioral markers.
	EnabledToolIDs []string

	// Reason is a human-readable explanation for observability.
	Reason string

	// MixedBouquet names the preset merged into user settings, for MIX.
	MixedBouquet string

	// GradioSpaces are the "owner/name" endpoints to register, already
	// merged between header and settings and deduplicated.
	GradioSpaces []string
}

// Select applies the precedence rules: bouquet > mix > user settings >
// fallback. Unknown preset names fall through silently. The Gradio endpoint
// overlay is computed orthogonally.
func Select(in Inputs) Result {
	result := selectBuiltIns(in)
	result.GradioSpaces = gradioOverlay(in)
	result.EnabledToolIDs = expandDocFetch(in, result.EnabledToolIDs)
	return result
}

func selectBuiltIns(in Inputs) Result {
	if in.Bouquet != "" {
		if preset, ok := tools.LookupBouquet(in.Bouquet); ok {
			return Result{
				Mode:           ModeBouquetOverride,
				EnabledToolIDs: slices.Clone(preset.BuiltInTools),
				Reason:         "bouquet " + preset.Name + " overrides user settings",
			}
		}
	}

	if in.Mix != "" && in.Settings != nil {
		if preset, ok := tools.LookupBouquet(in.Mix); ok {
			return Result{
				Mode:           ModeMix,
				EnabledToolIDs: dedup(in.Settings.BuiltInTools, preset.BuiltInTools),
				Reason:         "user settings mixed with bouquet " + preset.Name,
				MixedBouquet:   preset.Name,
			}
		}
	}

	if in.Settings != nil {
		mode := ModeInternalAPI
		reason := "user settings (local)"
		if in.SettingsExternal {
			mode = ModeExternalAPI
			reason = "user settings (settings API)"
		}
		return Result{
			Mode:           mode,
			EnabledToolIDs: slices.Clone(in.Settings.BuiltInTools),
			Reason:         reason,
		}
	}

	return Result{
		Mode:           ModeFallback,
		EnabledToolIDs: tools.AllIDs(),
		Reason:         "no settings available, every built-in tool enabled",
	}
}

// gradioOverlay computes the Gradio endpoints for a request.
//
// The literal disable sentinel wins over everything. Explicitly listed
// endpoints are always included. Settings-provided endpoints are skipped
// when a non-"all" bouquet is in effect without an explicit list, so a
// bouquet override stays truly exclusive.
func gradioOverlay(in Inputs) []string {
	if gradio.DisablesGradio(in.GradioHeader) {
		return nil
	}

	explicit := gradio.ParseSpaceNames(in.GradioHeader)

	var fromSettings []string
	if in.Settings != nil {
		fromSettings = in.Settings.GradioSpaces
	}

	_, bouquetKnown := tools.LookupBouquet(in.Bouquet)
	exclusiveBouquet := bouquetKnown && in.Bouquet != tools.BouquetAll
	if exclusiveBouquet && len(explicit) == 0 {
		return nil
	}
	if exclusiveBouquet {
		return explicit
	}

	return dedup(explicit, fromSettings)
}

// expandDocFetch applies the conditional doc-fetch expansion.
func expandDocFetch(in Inputs, enabled []string) []string {
	if !in.SearchEnablesFetch {
		return enabled
	}
	if !slices.Contains(enabled, tools.DocSearch) || slices.Contains(enabled, tools.DocFetch) {
		return enabled
	}
	return append(enabled, tools.DocFetch)
}

// dedup concatenates two lists preserving insertion order, first
// occurrence wins.
func dedup(first, second []string) []string {
	seen := make(map[string]bool, len(first)+len(second))
	out := make([]string, 0, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

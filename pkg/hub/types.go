// Package hub provides the outbound client for the Hub API: space metadata
// with conditional revalidation, token validation, and user settings.
package hub

// SpaceRuntime describes the runtime state the Hub reports for a space.
type SpaceRuntime struct {
	// Stage is the lifecycle stage (e.g. "RUNNING", "SLEEPING").
	Stage string `json:"stage"`

	// Hardware is the current hardware flavor, if any.
	Hardware string `json:"hardware,omitempty"`
}

// SpaceInfo is the metadata the Hub reports for a single space.
type SpaceInfo struct {
	// Name is the canonical "owner/name" identifier.
	Name string `json:"name"`

	// Subdomain is the derived *.hf.space subdomain.
	Subdomain string `json:"subdomain"`

	// Emoji is the space's display emoji.
	Emoji string `json:"emoji,omitempty"`

	// Private reports whether the space is private. Private spaces are
	// never cached.
	Private bool `json:"private"`

	// SDK is the space SDK tag; only "gradio" spaces are proxied.
	SDK string `json:"sdk"`

	// Runtime is the optional runtime state.
	Runtime *SpaceRuntime `json:"runtime,omitempty"`

	// ETag is the opaque revalidation token from the Hub response.
	ETag string `json:"-"`
}

// SDKGradio is the only SDK tag the Gradio proxy handles.
const SDKGradio = "gradio"

// IsGradio reports whether the proxy can mediate this space.
func (s *SpaceInfo) IsGradio() bool {
	return s.SDK == SDKGradio && s.Subdomain != ""
}

// UserSettings is the per-user tool configuration from the settings API.
type UserSettings struct {
	// BuiltInTools are the tool ids the user enabled.
	BuiltInTools []string `json:"builtInTools"`

	// GradioSpaces are the "owner/name" spaces the user attached.
	GradioSpaces []string `json:"gradioSpaces"`
}

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SettingsProvider returns the caller's tool configuration, if any.
// Implementations return (nil, nil) when the user has no stored settings.
type SettingsProvider interface {
	UserSettings(ctx context.Context, token string) (*UserSettings, error)
}

// UserSettings fetches the caller's tool configuration from the settings API.
// An unauthenticated caller (empty token) has no settings.
func (c *Client) UserSettings(ctx context.Context, token string) (*UserSettings, error) {
	if token == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/settings/mcp", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build settings request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settings request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, statusError("settings", "user", resp)
	}

	var settings UserSettings
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode user settings: %w", err)
	}
	return &settings, nil
}

// StaticSettings is a SettingsProvider returning fixed settings; used when
// settings are supplied locally instead of via the settings API.
type StaticSettings struct {
	Settings *UserSettings
}

// UserSettings implements SettingsProvider.
func (s *StaticSettings) UserSettings(context.Context, string) (*UserSettings, error) {
	return s.Settings, nil
}

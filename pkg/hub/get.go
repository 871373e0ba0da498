package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GetJSON performs an authenticated GET against a Hub API path and returns
// the raw JSON body. Used by built-in tools whose business logic is a thin
// projection over Hub endpoints.
func (c *Client) GetJSON(ctx context.Context, path, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request for %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("hub API", path, resp)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response for %s: %w", path, err)
	}
	return raw, nil
}

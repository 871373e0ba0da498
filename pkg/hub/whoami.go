package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spacegate/spacegate/pkg/auth"
)

// whoamiResponse is the wire shape of the Hub's token validation endpoint.
type whoamiResponse struct {
	Name     string `json:"name"`
	Fullname string `json:"fullname"`
}

// Validate implements auth.Validator against the Hub's whoami endpoint.
// A 401 or 403 answer means the token is definitively invalid; any other
// failure is a transient validation error.
func (c *Client) Validate(ctx context.Context, token string) (*auth.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/whoami-v2", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build whoami request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whoami request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: hub rejected token with %d", auth.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, statusError("whoami", "token", resp)
	}

	var body whoamiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode whoami response: %w", err)
	}

	return &auth.Identity{
		Username: body.Name,
		FullName: body.Fullname,
		Token:    token,
	}, nil
}

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/spacegate/spacegate/pkg/logger"
)

const (
	// maxErrorBodyBytes caps how much of an upstream error body is echoed
	// into error messages, so secrets in upstream bodies never leak whole.
	maxErrorBodyBytes = 500

	// defaultClientTimeout is a hard ceiling on any single Hub request.
	// Callers set tighter per-call deadlines via context.
	defaultClientTimeout = 30 * time.Second
)

// ErrSpaceNotFound is returned when the Hub reports a space does not exist
// or the caller cannot see it.
var ErrSpaceNotFound = errors.New("space not found")

// Client talks to the Hub API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Hub API client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultClientTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the Hub base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SpaceInfoResult is the outcome of a metadata fetch.
type SpaceInfoResult struct {
	// Info is the parsed metadata; nil when NotModified is true.
	Info *SpaceInfo

	// NotModified is true when the Hub answered 304 to a conditional fetch.
	NotModified bool
}

// spaceInfoResponse is the wire shape of the Hub's space metadata endpoint.
type spaceInfoResponse struct {
	Subdomain string        `json:"subdomain"`
	Private   bool          `json:"private"`
	SDK       string        `json:"sdk"`
	Emoji     string        `json:"emoji"`
	CardData  *struct {
		Emoji string `json:"emoji"`
	} `json:"cardData"`
	Runtime *struct {
		Stage    string `json:"stage"`
		Hardware *struct {
			Current string `json:"current"`
		} `json:"hardware"`
	} `json:"runtime"`
}

// SpaceInfo fetches metadata for a space. When ifNoneMatch is non-empty it is
// sent as If-None-Match; a 304 answer yields NotModified without a body.
// Connection-class failures are retried once with exponential backoff inside
// the caller's deadline.
func (c *Client) SpaceInfo(ctx context.Context, name, token, ifNoneMatch string) (*SpaceInfoResult, error) {
	endpoint := fmt.Sprintf("%s/api/spaces/%s", c.baseURL, name)

	operation := func() (*SpaceInfoResult, error) {
		result, err := c.fetchSpaceInfo(ctx, endpoint, name, token, ifNoneMatch)
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugf("Retrying space metadata fetch for %s in %s: %v", name, d, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) fetchSpaceInfo(ctx context.Context, endpoint, name, token, ifNoneMatch string) (*SpaceInfoResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build space metadata request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("space metadata fetch failed for %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &SpaceInfoResult{NotModified: true}, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSpaceNotFound, name)
	case resp.StatusCode != http.StatusOK:
		return nil, statusError("space metadata", name, resp)
	}

	var body spaceInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode space metadata for %s: %w", name, err)
	}

	info := &SpaceInfo{
		Name:      name,
		Subdomain: body.Subdomain,
		Private:   body.Private,
		SDK:       body.SDK,
		Emoji:     body.Emoji,
		ETag:      resp.Header.Get("ETag"),
	}
	if info.Emoji == "" && body.CardData != nil {
		info.Emoji = body.CardData.Emoji
	}
	if body.Runtime != nil {
		info.Runtime = &SpaceRuntime{Stage: body.Runtime.Stage}
		if body.Runtime.Hardware != nil {
			info.Runtime.Hardware = body.Runtime.Hardware.Current
		}
	}
	return &SpaceInfoResult{Info: info}, nil
}

// statusError builds an error echoing at most maxErrorBodyBytes of the body.
func statusError(operation, subject string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return fmt.Errorf("%s request for %s returned %d: %s", operation, subject, resp.StatusCode, snippet)
}

// isRetryable reports whether an error is connection-class and worth one
// more attempt. Definitive upstream answers and cancellations are not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

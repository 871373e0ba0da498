package streamable

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacegate/spacegate/pkg/auth"
	"github.com/spacegate/spacegate/pkg/config"
	"github.com/spacegate/spacegate/pkg/gradio"
	"github.com/spacegate/spacegate/pkg/hub"
	serverpkg "github.com/spacegate/spacegate/pkg/server"
	"github.com/spacegate/spacegate/pkg/tools"
	"github.com/spacegate/spacegate/pkg/transport"
)

type allowValidator struct{}

func (allowValidator) Validate(_ context.Context, token string) (*auth.Identity, error) {
	return &auth.Identity{Username: "tester", Token: token}, nil
}

type echoRunner struct{}

func (echoRunner) Run(_ context.Context, toolID string, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(toolID), nil
}

// blockingRunner parks until its request context is cancelled, signalling
// both ends so tests can observe the call's lifecycle.
type blockingRunner struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, toolID string, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	close(r.started)
	select {
	case <-ctx.Done():
		close(r.cancelled)
		return nil, ctx.Err()
	case <-time.After(3 * time.Second):
		return mcp.NewToolResultText(toolID), nil
	}
}

func testConfig() *config.Config {
	return &config.Config{
		HubBaseURL:           "http://hub.invalid",
		HeartbeatInterval:    50 * time.Millisecond,
		StaleCheckInterval:   50 * time.Millisecond,
		StaleTimeoutHTTP:     time.Hour,
		PingEnabled:          false,
		PingInterval:         50 * time.Millisecond,
		PingFailureThreshold: 1,
	}
}

func newTestTransport(t *testing.T) (*Transport, *httptest.Server) {
	t.Helper()
	return newTestTransportWith(t, testConfig(), echoRunner{})
}

func newTestTransportWith(t *testing.T, cfg *config.Config, runner tools.Runner) (*Transport, *httptest.Server) {
	t.Helper()
	factory := serverpkg.NewFactory(serverpkg.Deps{
		Validator:  allowValidator{},
		Settings:   &hub.StaticSettings{},
		Runner:     runner,
		Discoverer: gradio.NewDiscoverer(hub.NewClient(cfg.HubBaseURL), gradio.DiscoveryConfig{}),
		Caller:     gradio.NewUpstreamCaller(),
		Config:     cfg,
		Version:    "test",
	})
	tr := New(factory, cfg)
	require.NoError(t, tr.Initialize(context.Background()))
	srv := httptest.NewServer(tr)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tr.Cleanup(ctx)
	})
	return tr, srv
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{` +
	`"protocolVersion":"2025-03-26","clientInfo":{"name":"test-client","version":"1.0"},"capabilities":{}}}`

func initialize(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(initializeBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	id := resp.Header.Get(transport.HeaderSessionID)
	require.NotEmpty(t, id)
	return id
}

func postWithSession(t *testing.T, url, sessionID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(transport.HeaderSessionID, sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestInitializeCreatesSession(t *testing.T) {
	t.Parallel()
	tr, srv := newTestTransport(t)

	id := initialize(t, srv.URL)

	assert.Equal(t, 1, tr.ActiveConnectionCount())
	infos := tr.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)
	require.NotNil(t, infos[0].ClientInfo)
	assert.Equal(t, "test-client", infos[0].ClientInfo.Name)
}

func TestToolsListOnSession(t *testing.T) {
	t.Parallel()
	_, srv := newTestTransport(t)
	id := initialize(t, srv.URL)

	resp := postWithSession(t, srv.URL, id, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	names := make([]string, 0, len(decoded.Result.Tools))
	for _, tool := range decoded.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, tools.Whoami)
}

func TestMissingSessionIDIsInvalidParams(t *testing.T) {
	t.Parallel()
	_, srv := newTestTransport(t)

	resp := postWithSession(t, srv.URL, "", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), transport.MsgInvalidParams)
}

func TestUnknownSessionIDIsSessionNotFound(t *testing.T) {
	t.Parallel()
	_, srv := newTestTransport(t)

	resp := postWithSession(t, srv.URL, "nope", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), transport.MsgSessionNotFound)
}

func TestDeleteTerminatesSession(t *testing.T) {
	t.Parallel()
	tr, srv := newTestTransport(t)
	id := initialize(t, srv.URL)

	req, err := http.NewRequest(http.MethodDelete, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(transport.HeaderSessionID, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 0, tr.ActiveConnectionCount())

	again := postWithSession(t, srv.URL, id, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	defer again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestDrainingRejectsNewWork(t *testing.T) {
	t.Parallel()
	tr, srv := newTestTransport(t)
	tr.Shutdown()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(initializeBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), transport.MsgServerShuttingDown)
}

func TestSSEStreamDeliversNotifications(t *testing.T) {
	t.Parallel()
	tr, srv := newTestTransport(t)
	id := initialize(t, srv.URL)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(transport.HeaderSessionID, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	live := tr.lookup(id)
	require.NotNil(t, live)
	live.notifications <- mcp.JSONRPCNotification{
		JSONRPC:      mcp.JSONRPC_VERSION,
		Notification: mcp.Notification{Method: "notifications/progress"},
	}

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(2 * time.Second)
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- line
				return
			}
		}
	}()
	select {
	case line := <-lines:
		assert.Contains(t, line, "notifications/progress")
	case <-deadline:
		t.Fatal("timed out waiting for SSE notification")
	}
}

func TestDeleteCancelsInFlightToolCall(t *testing.T) {
	t.Parallel()
	runner := &blockingRunner{
		started:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}
	_, srv := newTestTransportWith(t, testConfig(), runner)
	id := initialize(t, srv.URL)

	callBody := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"` + tools.Whoami + `"}}`
	go func() {
		req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(callBody))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(transport.HeaderSessionID, id)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("tool call never reached the runner")
	}

	del, err := http.NewRequest(http.MethodDelete, srv.URL, nil)
	require.NoError(t, err)
	del.Header.Set(transport.HeaderSessionID, id)
	resp, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-runner.cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight call kept running after session termination")
	}
}

func TestStaleSweepUsesSSETimeoutForStreamingSessions(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.StaleCheckInterval = 25 * time.Millisecond
	cfg.StaleTimeoutHTTP = 75 * time.Millisecond
	cfg.StaleTimeoutSSE = time.Hour
	tr, srv := newTestTransportWith(t, cfg, echoRunner{})

	streaming := initialize(t, srv.URL)
	idle := initialize(t, srv.URL)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(transport.HeaderSessionID, streaming)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return tr.lookup(idle) == nil
	}, 2*time.Second, 20*time.Millisecond, "idle session should age out on the HTTP timeout")

	assert.NotNil(t, tr.lookup(streaming), "session with an open event stream keeps the SSE timeout")
	assert.Equal(t, 1, tr.ActiveConnectionCount())
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

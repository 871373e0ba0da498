package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacegate/spacegate/pkg/config"
	"github.com/spacegate/spacegate/pkg/metrics"
	"github.com/spacegate/spacegate/pkg/transport/session"
)

// fakeTransport stands in for a real transport so routing can be tested in
// isolation.
type fakeTransport struct {
	stats    *metrics.Metrics
	sessions []session.Info
	panics   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{stats: metrics.New()}
}

func (f *fakeTransport) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	if f.panics {
		panic("boom")
	}
	w.WriteHeader(http.StatusAccepted)
}

func (*fakeTransport) Initialize(context.Context) error { return nil }
func (*fakeTransport) Cleanup(context.Context) error    { return nil }
func (*fakeTransport) Shutdown()                        {}

func (f *fakeTransport) ActiveConnectionCount() int { return len(f.sessions) }

func (f *fakeTransport) Sessions() []session.Info { return f.sessions }

func (f *fakeTransport) Metrics() metrics.Snapshot { return f.stats.Snapshot() }

func (f *fakeTransport) PrometheusHandler() http.Handler { return f.stats.Handler() }

func (*fakeTransport) Configuration() map[string]any {
	return map[string]any{"mode": "fake"}
}

func testConfig() *config.Config {
	return &config.Config{
		Host:                 "127.0.0.1",
		Port:                 0,
		HubBaseURL:           "https://hub.example",
		SpaceMetadataTTL:     time.Minute,
		SchemaTTL:            time.Minute,
		DiscoveryConcurrency: 1,
		PingFailureThreshold: 1,
	}
}

func newTestServer(t *testing.T, tr *fakeTransport) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(testConfig(), tr, "test").Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeTransport())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
}

func TestSessionsEndpoint(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	tr.sessions = []session.Info{
		{ID: "s-1", State: session.StateConnected, IsAuthenticated: true},
	}
	srv := newTestServer(t, tr)

	resp, err := http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body sessionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.ActiveConnections)
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "s-1", body.Sessions[0].ID)
}

func TestSessionsEndpointEmpty(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeTransport())

	resp, err := http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body sessionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body.Sessions)
	assert.Empty(t, body.Sessions)
}

func TestConfigEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeTransport())

	resp, err := http.Get(srv.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Version   string         `json:"version"`
		Transport map[string]any `json:"transport"`
		Config    config.Config  `json:"config"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, "fake", body.Transport["mode"])
	assert.Equal(t, "https://hub.example", body.Config.HubBaseURL)
}

func TestMetricsJSONEndpoint(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	tr.stats.RecordRequest("tools/list", "test-client", time.Millisecond, false)
	srv := newTestServer(t, tr)

	resp, err := http.Get(srv.URL + "/api/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.Requests)
}

func TestPrometheusEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeTransport())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMCPEndpointMounted(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeTransport())

	resp, err := http.Post(srv.URL+"/mcp", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestRecovererWritesProtocolError(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	tr.panics = true
	srv := newTestServer(t, tr)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var envelope struct {
		JSONRPC string `json:"jsonrpc"`
		Error   struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "2.0", envelope.JSONRPC)
	assert.Equal(t, -32603, envelope.Error.Code)
	assert.Equal(t, "internal_error", envelope.Error.Message)
}

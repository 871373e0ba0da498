package transport

import (
	"context"
	"net/http"

	"github.com/spacegate/spacegate/pkg/metrics"
	"github.com/spacegate/spacegate/pkg/transport/session"
)

// StatelessConnections is the sentinel connection count reported by
// transports that do not hold connections open.
const StatelessConnections = -1

// Transport is the contract shared by the streaming HTTP and stateless JSON
// transports. Implementations bind their endpoints on Initialize and must be
// safe for concurrent request handling.
type Transport interface {
	// ServeHTTP handles the /mcp endpoint.
	http.Handler
	// Initialize binds endpoints and starts background timers.
	Initialize(ctx context.Context) error
	// Cleanup closes all sessions and stops timers.
	Cleanup(ctx context.Context) error
	// Shutdown marks the transport as draining; new requests are rejected
	// with server_shutting_down.
	Shutdown()
	// ActiveConnectionCount returns the number of live sessions, or
	// StatelessConnections.
	ActiveConnectionCount() int
	// Sessions returns a snapshot of session metadata.
	Sessions() []session.Info
	// Metrics returns the transport's counter snapshot.
	Metrics() metrics.Snapshot
	// PrometheusHandler serves the transport's prometheus registry.
	PrometheusHandler() http.Handler
	// Configuration returns the effective settings for the management
	// surface.
	Configuration() map[string]any
}

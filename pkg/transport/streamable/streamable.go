// Package streamable implements the stateful streaming HTTP transport:
// POST for initialize and subsequent calls, GET for SSE stream attachment,
// DELETE for explicit session termination.
package streamable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spacegate/spacegate/pkg/auth"
	"github.com/spacegate/spacegate/pkg/config"
	"github.com/spacegate/spacegate/pkg/logger"
	"github.com/spacegate/spacegate/pkg/metrics"
	serverpkg "github.com/spacegate/spacegate/pkg/server"
	"github.com/spacegate/spacegate/pkg/transport"
	"github.com/spacegate/spacegate/pkg/transport/session"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 4 * 1024 * 1024

// notificationBuffer is the per-session outbound notification queue depth.
const notificationBuffer = 64

// liveSession is one connected client: its scoped server instance, its
// outbound notification queue, and the stream state the heartbeat watches.
type liveSession struct {
	id            string
	instance      *serverpkg.Instance
	notifications chan mcp.JSONRPCNotification
	clientName    string

	// ctx spans the session's lifetime; cancel fires on termination so
	// in-flight upstream calls stop with the session.
	ctx    context.Context
	cancel context.CancelFunc

	initialized    atomic.Bool
	streamAttached atomic.Bool
	streamClosed   atomic.Bool

	// mu serializes message handling within the session.
	mu sync.Mutex
}

// SessionID implements the client session contract.
func (s *liveSession) SessionID() string { return s.id }

// NotificationChannel implements the client session contract.
func (s *liveSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

// Initialize implements the client session contract.
func (s *liveSession) Initialize() { s.initialized.Store(true) }

// Initialized implements the client session contract.
func (s *liveSession) Initialized() bool { return s.initialized.Load() }

// Transport is the stateful streaming HTTP transport.
type Transport struct {
	factory *serverpkg.Factory
	cfg     *config.Config
	stats   *metrics.Metrics
	meta    *session.Manager

	mu   sync.RWMutex
	live map[string]*liveSession

	draining atomic.Bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a stateful transport around the given server factory. The
// transport shares the factory's metrics object so tool handlers and request
// plumbing feed one counter set.
func New(factory *serverpkg.Factory, cfg *config.Config) *Transport {
	return &Transport{
		factory: factory,
		cfg:     cfg,
		stats:   factory.Stats(),
		meta:    session.NewManager(),
		live:    make(map[string]*liveSession),
		stop:    make(chan struct{}),
	}
}

// Initialize starts the background timers.
func (t *Transport) Initialize(_ context.Context) error {
	t.wg.Add(3)
	go t.staleSweepLoop()
	go t.heartbeatLoop()
	go t.pingLoop()
	return nil
}

// Cleanup stops the timers and closes all sessions.
func (t *Transport) Cleanup(ctx context.Context) error {
	close(t.stop)
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, id := range t.meta.IDs() {
		t.removeSession(id, metrics.SessionCleaned)
	}
	return nil
}

// Shutdown marks the transport as draining.
func (t *Transport) Shutdown() { t.draining.Store(true) }

// ActiveConnectionCount returns the number of live sessions.
func (t *Transport) ActiveConnectionCount() int { return t.meta.Count() }

// Sessions returns a snapshot of session metadata.
func (t *Transport) Sessions() []session.Info { return t.meta.Snapshot() }

// Metrics returns the transport's counter snapshot.
func (t *Transport) Metrics() metrics.Snapshot { return t.stats.Snapshot() }

// PrometheusHandler serves the transport's prometheus registry.
func (t *Transport) PrometheusHandler() http.Handler { return t.stats.Handler() }

// Configuration reports the effective transport settings.
func (t *Transport) Configuration() map[string]any {
	return map[string]any{
		"transport":            "streamable-http",
		"heartbeatInterval":    t.cfg.HeartbeatInterval.String(),
		"staleCheckInterval":   t.cfg.StaleCheckInterval.String(),
		"staleTimeoutHTTP":     t.cfg.StaleTimeoutHTTP.String(),
		"staleTimeoutSSE":      t.cfg.StaleTimeoutSSE.String(),
		"pingEnabled":          t.cfg.PingEnabled,
		"pingInterval":         t.cfg.PingInterval.String(),
		"pingFailureThreshold": t.cfg.PingFailureThreshold,
	}
}

// ServeHTTP dispatches the protocol endpoint.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		transport.WriteError(w, http.StatusMethodNotAllowed,
			transport.CodeMethodNotAllowed, transport.MsgMethodNotAllowed, nil)
	}
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		transport.WriteError(w, http.StatusServiceUnavailable,
			transport.CodeServerShuttingDown, transport.MsgServerShuttingDown, nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest,
			transport.CodeInvalidParams, transport.MsgInvalidParams, nil)
		return
	}

	opts := transport.ParseOptions(r)
	method := transport.RequestMethod(body)
	requestID := transport.RequestID(body)

	t.stats.RecordIP(remoteIP(r))

	if method == "initialize" {
		t.handleInitialize(w, r, body, opts)
		return
	}

	if opts.SessionID == "" {
		transport.WriteError(w, http.StatusBadRequest,
			transport.CodeInvalidParams, transport.MsgInvalidParams, requestID)
		t.stats.RecordError(http.StatusBadRequest)
		return
	}
	live := t.lookup(opts.SessionID)
	if live == nil {
		transport.WriteError(w, http.StatusNotFound,
			transport.CodeSessionNotFound, transport.MsgSessionNotFound, requestID)
		t.stats.RecordError(http.StatusNotFound)
		return
	}

	t.meta.Touch(live.id)
	started := time.Now()
	response := t.dispatch(r.Context(), live, body)
	isError := responseIsError(response)
	t.stats.RecordRequest(method, live.clientName, time.Since(started), isError)
	if method == "tools/call" {
		t.stats.RecordToolCall(live.clientName)
	}

	if response == nil {
		// Notification: acknowledge with no body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, response)
}

func (t *Transport) handleInitialize(w http.ResponseWriter, r *http.Request, body []byte, opts transport.Options) {
	instance, err := t.factory.New(r.Context(), serverpkg.Request{
		Options:    opts,
		ClientName: clientNameFromInitialize(body),
	})
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			auth.WriteUnauthorized(w, t.cfg.HubBaseURL)
			t.stats.RecordError(http.StatusUnauthorized)
			return
		}
		logger.Errorf("server factory failed: %v", err)
		transport.WriteError(w, http.StatusInternalServerError,
			transport.CodeInternalError, transport.MsgInternalError, transport.RequestID(body))
		t.stats.RecordError(http.StatusInternalServerError)
		return
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	live := &liveSession{
		id:            uuid.NewString(),
		instance:      instance,
		notifications: make(chan mcp.JSONRPCNotification, notificationBuffer),
		ctx:           sessionCtx,
		cancel:        cancel,
	}
	clientInfo, capabilities := parseInitialize(body)
	live.clientName = clientInfo.Name

	if err := instance.MCP.RegisterSession(r.Context(), live); err != nil {
		logger.Errorf("failed to register session: %v", err)
		transport.WriteError(w, http.StatusInternalServerError,
			transport.CodeInternalError, transport.MsgInternalError, transport.RequestID(body))
		return
	}

	t.mu.Lock()
	t.live[live.id] = live
	t.mu.Unlock()
	t.meta.Create(live.id, remoteIP(r), instance.Authenticated)
	t.meta.SetClientInfo(live.id, clientInfo, capabilities)
	t.stats.RecordSession(metrics.SessionCreated)
	t.stats.RecordConnection(clientInfo.Name, clientInfo.Version, instance.Authenticated)

	started := time.Now()
	response := t.dispatch(r.Context(), live, body)
	t.stats.RecordRequest("initialize", live.clientName, time.Since(started), responseIsError(response))

	w.Header().Set(transport.HeaderSessionID, live.id)
	writeJSON(w, response)
}

// dispatch runs one message through the session's scoped server, serialized
// per session, with the session bound into the context so notifications
// route to this client. The request context is tied to the session context
// so terminating the session cancels in-flight upstream calls.
func (t *Transport) dispatch(ctx context.Context, live *liveSession, body []byte) mcp.JSONRPCMessage {
	live.mu.Lock()
	defer live.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(live.ctx, cancel)
	defer stop()

	if live.instance.Identity != nil {
		ctx = auth.WithIdentity(ctx, live.instance.Identity)
	}
	ctx = live.instance.MCP.WithContext(ctx, live)
	return live.instance.MCP.HandleMessage(ctx, body)
}

func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(transport.HeaderSessionID)
	if sessionID == "" {
		transport.WriteError(w, http.StatusBadRequest,
			transport.CodeInvalidParams, transport.MsgInvalidParams, nil)
		return
	}
	live := t.lookup(sessionID)
	if live == nil {
		transport.WriteError(w, http.StatusNotFound,
			transport.CodeSessionNotFound, transport.MsgSessionNotFound, nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		transport.WriteError(w, http.StatusInternalServerError,
			transport.CodeInternalError, transport.MsgInternalError, nil)
		return
	}

	// Last-Event-Id is observed but not used for replay.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	live.streamAttached.Store(true)
	defer live.streamClosed.Store(true)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-live.ctx.Done():
			return
		case <-t.stop:
			return
		case notification := <-live.notifications:
			data, err := json.Marshal(notification)
			if err != nil {
				logger.Debugf("failed to marshal notification: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(transport.HeaderSessionID)
	if sessionID == "" {
		transport.WriteError(w, http.StatusBadRequest,
			transport.CodeInvalidParams, transport.MsgInvalidParams, nil)
		return
	}
	if t.lookup(sessionID) == nil {
		transport.WriteError(w, http.StatusNotFound,
			transport.CodeSessionNotFound, transport.MsgSessionNotFound, nil)
		return
	}
	t.removeSession(sessionID, metrics.SessionDeleted)
	w.WriteHeader(http.StatusOK)
}

func (t *Transport) lookup(id string) *liveSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live[id]
}

// removeSession is the single exit path for a session, whatever triggered it.
func (t *Transport) removeSession(id, event string) {
	t.mu.Lock()
	live := t.live[id]
	delete(t.live, id)
	t.mu.Unlock()
	if live == nil {
		return
	}

	live.cancel()
	live.instance.MCP.UnregisterSession(context.Background(), id)
	t.meta.Delete(id)
	t.stats.RecordSession(event)
	t.stats.RecordDisconnection(live.clientName)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, message mcp.JSONRPCMessage) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(message); err != nil {
		logger.Debugf("failed to write response: %v", err)
	}
}

func responseIsError(message mcp.JSONRPCMessage) bool {
	_, isError := message.(mcp.JSONRPCError)
	return isError
}

// parseInitialize extracts clientInfo and capabilities from an initialize
// request body.
func parseInitialize(body []byte) (session.ClientInfo, map[string]any) {
	var envelope struct {
		Params struct {
			ClientInfo   session.ClientInfo `json:"clientInfo"`
			Capabilities map[string]any     `json:"capabilities"`
		} `json:"params"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return session.ClientInfo{}, nil
	}
	return envelope.Params.ClientInfo, envelope.Params.Capabilities
}

func clientNameFromInitialize(body []byte) string {
	info, _ := parseInitialize(body)
	return info.Name
}

// Package stateless implements the per-request JSON transport: every POST
// builds a fresh scoped server, processes one message, and tears it down.
package stateless

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spacegate/spacegate/pkg/auth"
	"github.com/spacegate/spacegate/pkg/config"
	"github.com/spacegate/spacegate/pkg/gradio"
	"github.com/spacegate/spacegate/pkg/logger"
	"github.com/spacegate/spacegate/pkg/metrics"
	serverpkg "github.com/spacegate/spacegate/pkg/server"
	"github.com/spacegate/spacegate/pkg/tools"
	"github.com/spacegate/spacegate/pkg/transport"
	"github.com/spacegate/spacegate/pkg/transport/session"
)

const maxBodyBytes = 4 * 1024 * 1024

// resumeLogBudget caps the diagnostic entries emitted on session-resume
// failure. The counter only ever decrements.
const resumeLogBudget = 25

// fullSurfaceMethods are the methods that get a fully built scoped server.
// Everything else is answered by the stub responder.
var fullSurfaceMethods = map[string]bool{
	"initialize":   true,
	"tools/list":   true,
	"tools/call":   true,
	"prompts/list": true,
	"prompts/get":  true,
}

// resourceClients are client implementations whose resources/* requests also
// get the full surface instead of the stub.
var resourceClients = map[string]bool{
	"claude-ai": true,
}

// Transport is the stateless JSON transport, with an optional analytics-only
// session table.
type Transport struct {
	factory *serverpkg.Factory
	cfg     *config.Config
	stats   *metrics.Metrics
	meta    *session.Manager

	draining       atomic.Bool
	resumeLogsLeft atomic.Int64

	// stub answers protocol bookkeeping without any tool registration.
	stub *stubResponder
}

// New creates a stateless transport around the given server factory. The
// transport shares the factory's metrics object so tool handlers and request
// plumbing feed one counter set.
func New(factory *serverpkg.Factory, cfg *config.Config) *Transport {
	t := &Transport{
		factory: factory,
		cfg:     cfg,
		stats:   factory.Stats(),
		meta:    session.NewManager(),
		stub:    newStubResponder(),
	}
	t.resumeLogsLeft.Store(resumeLogBudget)
	return t
}

// Initialize is a no-op: the stateless transport has no background timers.
func (t *Transport) Initialize(context.Context) error { return nil }

// Cleanup drops the analytics session table.
func (t *Transport) Cleanup(context.Context) error {
	for _, id := range t.meta.IDs() {
		t.meta.Delete(id)
	}
	return nil
}

// Shutdown marks the transport as draining.
func (t *Transport) Shutdown() { t.draining.Store(true) }

// ActiveConnectionCount reports the stateless sentinel.
func (t *Transport) ActiveConnectionCount() int { return transport.StatelessConnections }

// Sessions returns the analytics session table, empty outside analytics mode.
func (t *Transport) Sessions() []session.Info { return t.meta.Snapshot() }

// Metrics returns the transport's counter snapshot.
func (t *Transport) Metrics() metrics.Snapshot { return t.stats.Snapshot() }

// PrometheusHandler serves the transport's prometheus registry.
func (t *Transport) PrometheusHandler() http.Handler { return t.stats.Handler() }

// Configuration reports the effective transport settings.
func (t *Transport) Configuration() map[string]any {
	return map[string]any{
		"transport":        "stateless-http",
		"analytics":        t.cfg.Analytics,
		"strictCompliance": t.cfg.StrictCompliance,
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

	clientName := t.resolveClientName(body, method, opts.SessionID)

	if !fullSurface(method, clientName) {
		started := time.Now()
		response := t.stub.handle(r.Context(), body)
		t.stats.RecordRequest(method, clientName, time.Since(started), responseIsError(response))
		t.writeResult(w, response)
		return
	}

	instance, err := t.factory.New(r.Context(), serverpkg.Request{
		Options:    opts,
		SkipGradio: skipGradio(method, body),
		ClientName: clientName,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			auth.WriteUnauthorized(w, t.cfg.HubBaseURL)
			t.stats.RecordError(http.StatusUnauthorized)
			return
		}
		logger.Errorf("server factory failed: %v", err)
		transport.WriteError(w, http.StatusInternalServerError,
			transport.CodeInternalError, transport.MsgInternalError, requestID)
		t.stats.RecordError(http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	if instance.Identity != nil {
		ctx = auth.WithIdentity(ctx, instance.Identity)
	}

	started := time.Now()
	response := instance.MCP.HandleMessage(ctx, body)
	t.stats.RecordRequest(method, clientName, time.Since(started), responseIsError(response))
	if method == "tools/call" {
		t.stats.RecordToolCall(clientName)
	}

	if method == "initialize" {
		t.afterInitialize(w, r, body, instance)
	}
	t.writeResult(w, response)
}

// afterInitialize issues an analytics session id and records the connection.
func (t *Transport) afterInitialize(w http.ResponseWriter, r *http.Request, body []byte, instance *serverpkg.Instance) {
	clientInfo, capabilities := parseInitialize(body)
	t.stats.RecordConnection(clientInfo.Name, clientInfo.Version, instance.Authenticated)

	if !t.cfg.Analytics {
		return
	}
	id := uuid.NewString()
	t.meta.Create(id, remoteIP(r), instance.Authenticated)
	t.meta.SetClientInfo(id, clientInfo, capabilities)
	t.stats.RecordSession(metrics.SessionCreated)
	w.Header().Set(transport.HeaderSessionID, id)
}

// resolveClientName prefers the analytics session's recorded client, falling
// back to the initialize body.
func (t *Transport) resolveClientName(body []byte, method, sessionID string) string {
	if sessionID != "" {
		if info, ok := t.meta.Get(sessionID); ok {
			t.meta.Touch(sessionID)
			if info.ClientInfo != nil {
				return info.ClientInfo.Name
			}
			return ""
		}
		t.stats.RecordSession(metrics.SessionResumeFailed)
		t.logResumeFailure(sessionID, method)
	}
	if method == "initialize" {
		info, _ := parseInitialize(body)
		return info.Name
	}
	return ""
}

// logResumeFailure emits a bounded number of diagnostics for unknown session
// ids. Resume failures are expected here (restarts, load balancing), so they
// never fail the request.
func (t *Transport) logResumeFailure(sessionID, method string) {
	for {
		left := t.resumeLogsLeft.Load()
		if left <= 0 {
			return
		}
		if t.resumeLogsLeft.CompareAndSwap(left, left-1) {
			logger.Infof("unknown session %s on %s (%d diagnostics left)", sessionID, method, left-1)
			return
		}
	}
}

func (t *Transport) handleGet(w http.ResponseWriter, _ *http.Request) {
	if t.cfg.StrictCompliance {
		transport.WriteError(w, http.StatusMethodNotAllowed,
			transport.CodeMethodNotAllowed, transport.MsgMethodNotAllowed, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, welcomePage); err != nil {
		logger.Debugf("failed to write welcome page: %v", err)
	}
}

func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !t.cfg.Analytics {
		transport.WriteError(w, http.StatusMethodNotAllowed,
			transport.CodeMethodNotAllowed, transport.MsgMethodNotAllowed, nil)
		return
	}
	sessionID := r.Header.Get(transport.HeaderSessionID)
	if sessionID == "" {
		transport.WriteError(w, http.StatusBadRequest,
			transport.CodeInvalidParams, transport.MsgInvalidParams, nil)
		return
	}
	if !t.meta.Delete(sessionID) {
		transport.WriteError(w, http.StatusNotFound,
			transport.CodeSessionNotFound, transport.MsgSessionNotFound, nil)
		return
	}
	t.stats.RecordSession(metrics.SessionDeleted)
	w.WriteHeader(http.StatusOK)
}

func (t *Transport) writeResult(w http.ResponseWriter, message mcp.JSONRPCMessage) {
	if message == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(message); err != nil {
		logger.Debugf("failed to write response: %v", err)
	}
}

// fullSurface reports whether the method needs a fully built server.
func fullSurface(method, clientName string) bool {
	if fullSurfaceMethods[method] {
		return true
	}
	return strings.HasPrefix(method, "resources/") && resourceClients[clientName]
}

// skipGradio reports whether the request can bypass remote discovery:
// initialize never lists Gradio tools, and a tools/call needs discovery only
// when its target is a proxied tool or one of the space built-ins.
func skipGradio(method string, body []byte) bool {
	switch method {
	case "initialize":
		return true
	case "tools/call":
		name := toolCallTarget(body)
		if gradio.IsProxiedToolName(name) {
			return false
		}
		return name != tools.UseSpace && name != tools.DynamicSpace
	default:
		return false
	}
}

func toolCallTarget(body []byte) string {
	var partial struct {
		Params struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	if err := json.Unmarshal(body, &partial); err != nil {
		return ""
	}
	return partial.Params.Name
}

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

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func responseIsError(message mcp.JSONRPCMessage) bool {
	_, isError := message.(mcp.JSONRPCError)
	return isError
}

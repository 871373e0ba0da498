// Package metrics tracks per-process request, session, and ping counters.
// The metrics object is exclusively owned by its transport; counters are
// updated from every request path and must stay cheap.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// windowMinutes is the longest rolling window tracked.
const windowMinutes = 180

// ClientStats aggregates activity per client implementation.
type ClientStats struct {
	Name              string    `json:"name"`
	Version           string    `json:"version"`
	FirstSeen         time.Time `json:"firstSeen"`
	LastSeen          time.Time `json:"lastSeen"`
	ActiveConnections int64     `json:"activeConnections"`
	TotalConnections  int64     `json:"totalConnections"`
	ToolCalls         int64     `json:"toolCalls"`
}

// MethodStats aggregates per-method request outcomes.
type MethodStats struct {
	Count         int64            `json:"count"`
	Errors        int64            `json:"errors"`
	TotalDuration time.Duration    `json:"-"`
	AvgLatencyMS  float64          `json:"avgLatencyMs"`
	ByClient      map[string]int64 `json:"byClient"`
}

// minuteBucket is one slot in the rolling request window.
type minuteBucket struct {
	minute   int64
	requests int64
}

// Metrics is the per-process counter state plus the prometheus mirror.
type Metrics struct {
	startedAt time.Time

	requests            atomic.Int64
	errors4xx           atomic.Int64
	errors5xx           atomic.Int64
	authenticatedConns  atomic.Int64
	anonymousConns      atomic.Int64
	sessionsCreated     atomic.Int64
	sessionsDeleted     atomic.Int64
	sessionsCleaned     atomic.Int64
	sessionResumeFailed atomic.Int64
	pingsSent           atomic.Int64
	pingsOK             atomic.Int64
	pingsFailed         atomic.Int64
	upstreamFailures    atomic.Int64

	mu        sync.Mutex
	byClient  map[string]*ClientStats
	byMethod  map[string]*MethodStats
	uniqueIPs map[string]struct{}
	window    [windowMinutes]minuteBucket

	registry     *prometheus.Registry
	promReqs     *prometheus.CounterVec
	promErrs     *prometheus.CounterVec
	promSess     *prometheus.CounterVec
	promPing     *prometheus.CounterVec
	promUpstream prometheus.Counter
}

// New creates a Metrics object with its own prometheus registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		startedAt: time.Now(),
		byClient:  make(map[string]*ClientStats),
		byMethod:  make(map[string]*MethodStats),
		uniqueIPs: make(map[string]struct{}),
		registry:  registry,
		promReqs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spacegate_requests_total",
			Help: "MCP requests by method.",
		}, []string{"method"}),
		promErrs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spacegate_errors_total",
			Help: "Request errors by status class.",
		}, []string{"class"}),
		promSess: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spacegate_sessions_total",
			Help: "Session lifecycle events.",
		}, []string{"event"}),
		promPing: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spacegate_pings_total",
			Help: "Keep-alive pings by result.",
		}, []string{"result"}),
		promUpstream: factory.NewCounter(prometheus.CounterOpts{
			Name: "spacegate_gradio_failures_total",
			Help: "Upstream Gradio tool invocations that failed.",
		}),
	}
}

// Handler serves the prometheus exposition of this metrics object.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one request with its latency and outcome.
func (m *Metrics) RecordRequest(method, clientID string, duration time.Duration, isError bool) {
	m.requests.Add(1)
	m.promReqs.WithLabelValues(method).Inc()

	now := time.Now()
	minute := now.Unix() / 60

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.byMethod[method]
	if stats == nil {
		stats = &MethodStats{ByClient: make(map[string]int64)}
		m.byMethod[method] = stats
	}
	stats.Count++
	stats.TotalDuration += duration
	if isError {
		stats.Errors++
	}
	if clientID != "" {
		stats.ByClient[clientID]++
	}

	bucket := &m.window[minute%windowMinutes]
	if bucket.minute != minute {
		bucket.minute = minute
		bucket.requests = 0
	}
	bucket.requests++
}

// RecordError counts a protocol or HTTP error by status class.
func (m *Metrics) RecordError(statusCode int) {
	switch {
	case statusCode >= 500:
		m.errors5xx.Add(1)
		m.promErrs.WithLabelValues("5xx").Inc()
	case statusCode >= 400:
		m.errors4xx.Add(1)
		m.promErrs.WithLabelValues("4xx").Inc()
	}
}

// RecordConnection counts a new logical connection by auth status and
// registers the client implementation.
func (m *Metrics) RecordConnection(clientName, clientVersion string, authenticated bool) {
	if authenticated {
		m.authenticatedConns.Add(1)
	} else {
		m.anonymousConns.Add(1)
	}

	if clientName == "" {
		return
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.byClient[clientName]
	if stats == nil {
		stats = &ClientStats{Name: clientName, Version: clientVersion, FirstSeen: now}
		m.byClient[clientName] = stats
	}
	stats.LastSeen = now
	stats.Version = clientVersion
	stats.ActiveConnections++
	stats.TotalConnections++
}

// RecordDisconnection decrements a client's active connection count.
func (m *Metrics) RecordDisconnection(clientName string) {
	if clientName == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if stats := m.byClient[clientName]; stats != nil && stats.ActiveConnections > 0 {
		stats.ActiveConnections--
	}
}

// RecordToolCall counts a tool invocation for a client.
func (m *Metrics) RecordToolCall(clientName string) {
	if clientName == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if stats := m.byClient[clientName]; stats != nil {
		stats.ToolCalls++
	}
}

// Session lifecycle events.
const (
	SessionCreated      = "created"
	SessionDeleted      = "deleted"
	SessionCleaned      = "cleaned"
	SessionResumeFailed = "resume_failed"
)

// RecordSession counts a session lifecycle event.
func (m *Metrics) RecordSession(event string) {
	switch event {
	case SessionCreated:
		m.sessionsCreated.Add(1)
	case SessionDeleted:
		m.sessionsDeleted.Add(1)
	case SessionCleaned:
		m.sessionsCleaned.Add(1)
	case SessionResumeFailed:
		m.sessionResumeFailed.Add(1)
	default:
		return
	}
	m.promSess.WithLabelValues(event).Inc()
}

// RecordPing counts a keep-alive ping attempt and its outcome.
func (m *Metrics) RecordPing(ok bool) {
	m.pingsSent.Add(1)
	if ok {
		m.pingsOK.Add(1)
		m.promPing.WithLabelValues("ok").Inc()
	} else {
		m.pingsFailed.Add(1)
		m.promPing.WithLabelValues("failed").Inc()
	}
}

// RecordUpstreamFailure counts a failed upstream Gradio tool invocation.
// Caller-initiated cancellation does not count as a failure.
func (m *Metrics) RecordUpstreamFailure() {
	m.upstreamFailures.Add(1)
	m.promUpstream.Inc()
}

// RecordIP registers a caller address for the unique-IP count.
func (m *Metrics) RecordIP(ip string) {
	if ip == "" {
		return
	}
	m.mu.Lock()
	m.uniqueIPs[ip] = struct{}{}
	m.mu.Unlock()
}

// Snapshot is a point-in-time JSON-friendly view of all counters.
type Snapshot struct {
	UptimeSeconds       int64                   `json:"uptimeSeconds"`
	Requests            int64                   `json:"requests"`
	Errors4xx           int64                   `json:"errors4xx"`
	Errors5xx           int64                   `json:"errors5xx"`
	AuthenticatedConns  int64                   `json:"authenticatedConnections"`
	AnonymousConns      int64                   `json:"anonymousConnections"`
	SessionsCreated     int64                   `json:"sessionsCreated"`
	SessionsDeleted     int64                   `json:"sessionsDeleted"`
	SessionsCleaned     int64                   `json:"sessionsCleaned"`
	SessionResumeFailed int64                   `json:"sessionResumeFailed"`
	PingsSent           int64                   `json:"pingsSent"`
	PingsOK             int64                   `json:"pingsOk"`
	PingsFailed         int64                   `json:"pingsFailed"`
	UpstreamFailures    int64                   `json:"upstreamFailures"`
	UniqueIPs           int                     `json:"uniqueIps"`
	RequestsLast1m      int64                   `json:"requestsLast1m"`
	RequestsLast60m     int64                   `json:"requestsLast60m"`
	RequestsLast180m    int64                   `json:"requestsLast180m"`
	ByClient            map[string]ClientStats  `json:"byClient"`
	ByMethod            map[string]*MethodStats `json:"byMethod"`
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		UptimeSeconds:       int64(time.Since(m.startedAt).Seconds()),
		Requests:            m.requests.Load(),
		Errors4xx:           m.errors4xx.Load(),
		Errors5xx:           m.errors5xx.Load(),
		AuthenticatedConns:  m.authenticatedConns.Load(),
		AnonymousConns:      m.anonymousConns.Load(),
		SessionsCreated:     m.sessionsCreated.Load(),
		SessionsDeleted:     m.sessionsDeleted.Load(),
		SessionsCleaned:     m.sessionsCleaned.Load(),
		SessionResumeFailed: m.sessionResumeFailed.Load(),
		PingsSent:           m.pingsSent.Load(),
		PingsOK:             m.pingsOK.Load(),
		PingsFailed:         m.pingsFailed.Load(),
		UpstreamFailures:    m.upstreamFailures.Load(),
		ByClient:            make(map[string]ClientStats),
		ByMethod:            make(map[string]*MethodStats),
	}

	nowMinute := time.Now().Unix() / 60

	m.mu.Lock()
	defer m.mu.Unlock()

	snap.UniqueIPs = len(m.uniqueIPs)
	for name, stats := range m.byClient {
		snap.ByClient[name] = *stats
	}
	for method, stats := range m.byMethod {
		copied := &MethodStats{
			Count:         stats.Count,
			Errors:        stats.Errors,
			TotalDuration: stats.TotalDuration,
			ByClient:      make(map[string]int64, len(stats.ByClient)),
		}
		if stats.Count > 0 {
			copied.AvgLatencyMS = float64(stats.TotalDuration.Milliseconds()) / float64(stats.Count)
		}
		for client, count := range stats.ByClient {
			copied.ByClient[client] = count
		}
		snap.ByMethod[method] = copied
	}

	for _, bucket := range m.window {
		age := nowMinute - bucket.minute
		if age < 0 || age >= windowMinutes {
			continue
		}
		snap.RequestsLast180m += bucket.requests
		if age < 60 {
			snap.RequestsLast60m += bucket.requests
		}
		if age < 1 {
			snap.RequestsLast1m += bucket.requests
		}
	}
	return snap
}

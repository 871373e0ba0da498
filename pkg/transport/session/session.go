// Package session tracks logical client connections for the stateful
// transport and the stateless transport's analytics mode.
package session

import (
	"sync"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	// StateConnected is the normal operating state.
	StateConnected State = "connected"
	// StateDistressed means ping failures reached the configured threshold.
	// The session is still tracked but flagged in observability.
	StateDistressed State = "distressed"
	// StateDisconnected is terminal; the session is removed on entry.
	StateDisconnected State = "disconnected"
)

// ClientInfo identifies the client implementation, as reported on initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Info is a point-in-time snapshot of one session's metadata.
type Info struct {
	ID              string         `json:"id"`
	State           State          `json:"state"`
	ConnectedAt     time.Time      `json:"connectedAt"`
	LastActivity    time.Time      `json:"lastActivity"`
	RequestCount    int64          `json:"requestCount"`
	IsAuthenticated bool           `json:"isAuthenticated"`
	ClientInfo      *ClientInfo    `json:"clientInfo,omitempty"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	PingFailures    int            `json:"pingFailures"`
	LastPingAttempt time.Time      `json:"lastPingAttempt,omitempty"`
	IPAddress       string         `json:"ipAddress,omitempty"`
}

type session struct {
	info         Info
	pingInFlight bool
}

// Manager is a concurrent-safe session table. Insertion happens on
// initialize, deletion by explicit delete or the stale sweep.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
}

// NewManager creates an empty session table.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Create registers a new session in the connected state.
func (m *Manager) Create(id, ipAddress string, authenticated bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &session{
		info: Info{
			ID:              id,
			State:           StateConnected,
			ConnectedAt:     now,
			LastActivity:    now,
			IsAuthenticated: authenticated,
			IPAddress:       ipAddress,
		},
	}
}

// Get returns a snapshot of one session's metadata.
func (m *Manager) Get(id string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Info{}, false
	}
	return s.info, true
}

// Touch refreshes lastActivity and increments the request count.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.info.LastActivity = m.now()
	s.info.RequestCount++
	return true
}

// SetClientInfo records the client implementation and capabilities reported
// on initialize.
func (m *Manager) SetClientInfo(id string, client ClientInfo, capabilities map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		clientCopy := client
		s.info.ClientInfo = &clientCopy
		s.info.Capabilities = capabilities
	}
}

// Delete removes a session. Returns false when the id is unknown.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Sweep evicts sessions whose lastActivity is older than the timeout
// timeoutFor picks for them, and returns the evicted ids. The selector lets
// the transport keep different idle budgets per session kind (an attached
// event stream tolerates more idleness than plain request/response).
func (m *Manager) Sweep(timeoutFor func(Info) time.Duration) []string {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []string
	for id, s := range m.sessions {
		if s.info.LastActivity.Before(now.Add(-timeoutFor(s.info))) {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// FixedTimeout adapts a single duration to Sweep's selector form.
func FixedTimeout(timeout time.Duration) func(Info) time.Duration {
	return func(Info) time.Duration { return timeout }
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Snapshot returns metadata for every tracked session.
func (m *Manager) Snapshot() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.info)
	}
	return infos
}

// IDs returns the ids of every tracked session.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// TryBeginPing marks a ping in flight for the session. Returns false when the
// session is unknown or a ping is already outstanding, so concurrent pings
// are deduplicated per session.
func (m *Manager) TryBeginPing(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.pingInFlight {
		return false
	}
	s.pingInFlight = true
	s.info.LastPingAttempt = m.now()
	return true
}

// PingSucceeded clears the in-flight marker, resets the failure count, moves
// a distressed session back to connected, and refreshes lastActivity.
func (m *Manager) PingSucceeded(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.pingInFlight = false
	s.info.PingFailures = 0
	s.info.State = StateConnected
	s.info.LastActivity = m.now()
}

// PingFailed clears the in-flight marker and increments the failure count.
// The session becomes distressed once failures reach the threshold. Returns
// the session's resulting state.
func (m *Manager) PingFailed(id string, threshold int) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return StateDisconnected
	}
	s.pingInFlight = false
	s.info.PingFailures++
	if s.info.PingFailures >= threshold {
		s.info.State = StateDistressed
	}
	return s.info.State
}

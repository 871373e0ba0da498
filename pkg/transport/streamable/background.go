package streamable

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spacegate/spacegate/pkg/logger"
	"github.com/spacegate/spacegate/pkg/metrics"
	"github.com/spacegate/spacegate/pkg/transport/session"
)

// staleSweepLoop evicts sessions whose lastActivity is older than the
// configured timeout. Sessions with an attached open event stream get the
// SSE timeout; plain request/response sessions get the HTTP timeout.
func (t *Transport) staleSweepLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			for _, id := range t.meta.Sweep(t.staleTimeoutFor) {
				logger.Infof("evicting stale session %s", id)
				// Sweep already dropped the metadata; removeSession still
				// has to release the live half.
				t.removeLive(id)
				t.stats.RecordSession(metrics.SessionCleaned)
			}
		}
	}
}

func (t *Transport) staleTimeoutFor(info session.Info) time.Duration {
	if live := t.lookup(info.ID); live != nil &&
		live.streamAttached.Load() && !live.streamClosed.Load() {
		return t.cfg.StaleTimeoutSSE
	}
	return t.cfg.StaleTimeoutHTTP
}

// removeLive drops the live session state after its metadata is gone.
func (t *Transport) removeLive(id string) {
	t.mu.Lock()
	live := t.live[id]
	delete(t.live, id)
	t.mu.Unlock()
	if live != nil {
		live.cancel()
		live.instance.MCP.UnregisterSession(context.Background(), id)
		t.stats.RecordDisconnection(live.clientName)
	}
}

// heartbeatLoop removes sessions whose response stream was attached and has
// since closed.
func (t *Transport) heartbeatLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.mu.RLock()
			var dead []string
			for id, live := range t.live {
				if live.streamAttached.Load() && live.streamClosed.Load() {
					dead = append(dead, id)
				}
			}
			t.mu.RUnlock()
			for _, id := range dead {
				logger.Infof("removing session %s with closed stream", id)
				t.removeSession(id, metrics.SessionCleaned)
			}
		}
	}
}

// pingLoop fires a protocol-level ping per session with an attached open
// stream. A ping that cannot be queued counts as a failure; queueing succeeds
// only while the stream consumer keeps draining.
func (t *Transport) pingLoop() {
	defer t.wg.Done()
	if !t.cfg.PingEnabled {
		return
	}
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.pingSessions()
		}
	}
}

func (t *Transport) pingSessions() {
	t.mu.RLock()
	candidates := make([]*liveSession, 0, len(t.live))
	for _, live := range t.live {
		if live.streamAttached.Load() && !live.streamClosed.Load() {
			candidates = append(candidates, live)
		}
	}
	t.mu.RUnlock()

	for _, live := range candidates {
		if !t.meta.TryBeginPing(live.id) {
			continue
		}
		ping := mcp.JSONRPCNotification{
			JSONRPC:      mcp.JSONRPC_VERSION,
			Notification: mcp.Notification{Method: "ping"},
		}
		select {
		case live.notifications <- ping:
			t.meta.PingSucceeded(live.id)
			t.stats.RecordPing(true)
		default:
			state := t.meta.PingFailed(live.id, t.cfg.PingFailureThreshold)
			t.stats.RecordPing(false)
			if state == session.StateDistressed {
				logger.Warnf("session %s is distressed", live.id)
			}
		}
	}
}

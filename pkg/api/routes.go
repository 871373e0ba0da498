package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/spacegate/spacegate/pkg/logger"
	"github.com/spacegate/spacegate/pkg/transport/session"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type sessionsResponse struct {
	ActiveConnections int            `json:"activeConnections"`
	Sessions          []session.Info `json:"sessions"`
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, healthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) getSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.tr.Sessions()
	if infos == nil {
		infos = []session.Info{}
	}
	writeJSON(w, sessionsResponse{
		ActiveConnections: s.tr.ActiveConnectionCount(),
		Sessions:          infos,
	})
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"version":   s.version,
		"transport": s.tr.Configuration(),
		"config":    s.cfg,
	})
}

func (s *Server) getMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.tr.Metrics())
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("failed to write management response: %v", err)
	}
}

// Package server exposes the range over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Micca1978/scadarange/internal/auth"
	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/internal/firewall"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/internal/network"
	"github.com/Micca1978/scadarange/internal/policy"
	"github.com/Micca1978/scadarange/internal/scada"
	"github.com/Micca1978/scadarange/internal/version"
)

// Server is the HTTP front end of the range.
type Server struct {
	cfg        config.ServerConfig
	firewall   *firewall.Firewall
	scada      *scada.Engine
	inventory  *network.Inventory
	monitor    *monitor.Monitor
	hub        *Hub
	log        *logrus.Logger
	handler    http.Handler
	httpServer *http.Server
}

// New creates a server over the range subsystems.
func New(cfg config.ServerConfig, fw *firewall.Firewall, sc *scada.Engine, inv *network.Inventory, mon *monitor.Monitor, hub *Hub) *Server {
	s := &Server{
		cfg:       cfg,
		firewall:  fw,
		scada:     sc,
		inventory: inv,
		monitor:   mon,
		hub:       hub,
		log:       mon.Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", hub.ServeWS)

	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/devices/{id}", s.handleDevice)
	mux.HandleFunc("GET /api/map", s.handleMap)
	mux.HandleFunc("GET /api/dirbuster", s.handleDirbuster)

	mux.HandleFunc("GET /api/firewall/rules", s.requireSession(s.handleListRules))
	mux.HandleFunc("POST /api/firewall/rules", s.requireSession(s.handleAddRule))
	mux.HandleFunc("PUT /api/firewall/rules/{id}", s.requireSession(s.handleUpdateRule))
	mux.HandleFunc("DELETE /api/firewall/rules/{id}", s.requireSession(s.handleRemoveRule))
	mux.HandleFunc("PUT /api/firewall/ips", s.requireSession(s.handleToggleIPS))
	mux.HandleFunc("PUT /api/firewall/vulnerabilities/{name}", s.requireSession(s.handleSetVulnerability))
	mux.HandleFunc("GET /api/firewall/status", s.handleFirewallStatus)
	mux.HandleFunc("GET /api/firewall/logs", s.handleFirewallLogs)
	mux.HandleFunc("POST /api/firewall/login", s.handleLogin)
	mux.HandleFunc("POST /api/firewall/logout", s.handleLogout)
	mux.HandleFunc("GET /api/firewall/session", s.handleSession)
	mux.HandleFunc("POST /api/firewall/test", s.handleTestConnection)
	mux.HandleFunc("POST /api/firewall/exploit", s.handleFirewallExploit)

	mux.HandleFunc("GET /api/scada/status", s.handleScadaStatus)
	mux.HandleFunc("GET /api/scada/devices", s.handleScadaDevices)
	mux.HandleFunc("POST /api/scada/command", s.handleCommand)
	mux.HandleFunc("POST /api/scada/exploit", s.handleScadaExploit)
	mux.HandleFunc("GET /api/scada/portal", s.handlePortal)

	s.handler = s.cors(s.rateLimit(mux))
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server. It blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.Addr).Info("Range listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and disconnects WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// OriginMatcher reports whether an origin is in allowed. "*" admits every origin.
func OriginMatcher(allowed []string) func(origin string) bool {
	return func(origin string) bool {
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case slices.Contains(s.cfg.AllowedOrigins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && OriginMatcher(s.cfg.AllowedOrigins)(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.monitor.CheckRateLimit(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireSession rejects requests while the firewall admin session is closed.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.firewall.Authenticated() {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// statusFor maps a subsystem error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, policy.ErrRuleNotFound),
		errors.Is(err, scada.ErrDeviceNotFound),
		errors.Is(err, network.ErrDeviceNotFound),
		errors.Is(err, firewall.ErrUnknownVulnerability):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, scada.ErrDeviceOffline):
		return http.StatusConflict
	case errors.Is(err, scada.ErrUnknownCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

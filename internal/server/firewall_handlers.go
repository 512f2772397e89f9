package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Micca1978/scadarange/pkg/types"
)

func (s *Server) broadcastRules() {
	s.hub.Broadcast(Event{Type: "firewall_updated", Subsystem: "firewall", Data: map[string]any{"rules": s.firewall.ListRules()}})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.firewall.ListRules())
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var spec types.RuleSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := s.firewall.AddRule(spec)
	s.broadcastRules()
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "rule": rule})
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var spec types.RuleSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := s.firewall.UpdateRule(r.PathValue("id"), spec)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.broadcastRules()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "rule": rule})
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	s.firewall.RemoveRule(r.PathValue("id"))
	s.broadcastRules()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleToggleIPS(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.firewall.ToggleIPS(*req.Enabled)
	s.hub.Broadcast(Event{Type: "firewall_updated", Subsystem: "firewall", Data: map[string]any{"status": s.firewall.Status()}})
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "ips_enabled": *req.Enabled})
}

func (s *Server) handleSetVulnerability(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.firewall.SetVulnerability(r.PathValue("name"), *req.Enabled); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "vulnerabilities": s.firewall.Vulnerabilities()})
}

func (s *Server) handleFirewallStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.firewall.Status())
}

func (s *Server) handleFirewallLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.firewall.Logs(limit))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.firewall.Login(req.Username, req.Password)
	if err != nil {
		s.log.WithError(err).WithField("username", req.Username).Debug("Firewall login rejected")
		writeJSON(w, statusFor(err), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.firewall.Logout()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Logged out"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}
	if err := s.firewall.ValidateToken(token); err != nil {
		writeError(w, statusFor(err), "Invalid or expired session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true, "authenticated": s.firewall.Authenticated()})
}

// handleTestConnection evaluates source -> destination:service from query
// parameters. The requester identity defaults to the source.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := connectionTest{
		Source:      q.Get("source"),
		Destination: q.Get("destination"),
		Service:     q.Get("service"),
		Identity:    q.Get("identity"),
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Identity == "" {
		req.Identity = req.Source
	}

	writeJSON(w, http.StatusOK, s.firewall.EvaluateConnection(req.Source, req.Destination, req.Service, req.Identity))
}

func (s *Server) handleFirewallExploit(w http.ResponseWriter, r *http.Request) {
	result := s.firewall.AttemptExploit()
	if result.Success {
		s.hub.Broadcast(Event{Type: "firewall_compromised", Subsystem: "firewall", Data: result})
	}
	writeJSON(w, http.StatusOK, result)
}

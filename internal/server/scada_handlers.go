package server

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/Micca1978/scadarange/pkg/types"
)

// commonPaths are the paths the dirbuster simulation reports as present.
var commonPaths = []string{
	"/scada-portal",
	"/admin",
	"/login",
	"/firewall-login",
	"/api",
	"/static",
	"/dashboard",
	"/control",
	"/ot-control",
	"/hmi",
	"/scada",
}

func (s *Server) handleScadaStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scada.Status())
}

func (s *Server) handleScadaDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scada.Devices())
}

// handleCommand gates a device command through the firewall as the attacker
// principal, then runs it.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision := s.firewall.EvaluateConnection(types.AttackerIdentity, req.DeviceID, "scada", types.AttackerIdentity)
	if !decision.Allowed {
		writeJSON(w, http.StatusOK, map[string]string{"status": "blocked", "message": "Firewall blocking access"})
		return
	}

	result, err := s.scada.Execute(req.DeviceID, req.Command, req.Parameters)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"status": "error", "message": err.Error()})
		return
	}

	s.hub.Broadcast(Event{Type: "scada_update", Subsystem: "scada", Data: map[string]any{"status": s.scada.Status()}})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleScadaExploit(w http.ResponseWriter, r *http.Request) {
	if !s.firewall.CheckPortalAccess() {
		writeError(w, http.StatusForbidden, "Access denied. Firewall rule required.")
		return
	}

	result := s.scada.AttemptExploit()
	if result.Success {
		s.hub.Broadcast(Event{Type: "scada_compromised", Subsystem: "scada", Data: result})
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePortal is the SCADA operator portal: reachable only through the
// firewall and only with an open admin session.
func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	if !s.firewall.CheckPortalAccess() {
		writeError(w, http.StatusForbidden, "Access denied. Firewall rule required.")
		return
	}
	if !s.firewall.Authenticated() {
		writeError(w, http.StatusUnauthorized, "Authentication required. Please login to firewall first.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "granted",
		"scada":   s.scada.Status(),
		"devices": s.scada.Devices(),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory.Devices())
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.inventory.Device(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), "Device not found")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stations":    s.inventory.MapStations(),
		"connections": s.inventory.Connections(),
		"grid_status": s.scada.Grid(),
	})
}

func (s *Server) handleDirbuster(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	switch {
	case path == "":
		writeJSON(w, http.StatusOK, map[string]any{
			"found":        false,
			"hint":         "Try common paths like /scada-portal, /admin, /control",
			"common_paths": commonPaths,
		})
	case slices.Contains(commonPaths, path):
		writeJSON(w, http.StatusOK, map[string]any{
			"found":       true,
			"path":        path,
			"status_code": http.StatusOK,
			"message":     fmt.Sprintf("Path %s found", path),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"found":       false,
			"path":        path,
			"status_code": http.StatusNotFound,
			"message":     fmt.Sprintf("Path %s not found", path),
		})
	}
}

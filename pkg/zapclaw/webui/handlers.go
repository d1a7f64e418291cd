package webui

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleSettings serves GET (current settings) and POST (replace settings).
// Temperature outside [0, 2] is rejected with 400 before anything persists.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		prompt, temperature, err := s.api.Settings()
		if err != nil {
			s.logger.Error("loading settings", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}
		writeJSON(w, http.StatusOK, SettingsInfo{SystemPrompt: prompt, Temperature: temperature})

	case http.MethodPost:
		var req SettingsInfo
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.SystemPrompt == "" {
			writeError(w, http.StatusBadRequest, "system_prompt must not be empty")
			return
		}
		if req.Temperature < 0 || req.Temperature > 2 {
			writeError(w, http.StatusBadRequest, "temperature must be between 0 and 2")
			return
		}
		if err := s.api.UpdateSettings(req.SystemPrompt, req.Temperature); err != nil {
			s.logger.Error("updating settings", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update settings")
			return
		}
		writeJSON(w, http.StatusOK, req)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	diag := s.api.Diagnostics()
	diag["transport_connected"] = s.transport.IsConnected()
	writeJSON(w, http.StatusOK, diag)
}

// handleTest runs one completion against the live settings, bypassing all
// conversation history. Each request gets a UUID so the log line and the
// response can be correlated.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	requestID := uuid.NewString()
	s.logger.Info("test completion", "request_id", requestID)

	reply, err := s.api.TestCompletion(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("test completion failed", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": requestID,
		"reply":      reply,
	})
}

// handleQRPNG renders the pending pairing QR code as a PNG. Responds 204
// when there is no code to scan (already paired or not generated yet).
func (s *Server) handleQRPNG(w http.ResponseWriter, r *http.Request) {
	code := s.transport.LatestQR()
	if code == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 300)
	if err != nil {
		s.logger.Error("encoding QR PNG", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": s.transport.IsConnected(),
		"has_qr":    s.transport.LatestQR() != "",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

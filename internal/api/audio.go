package api

import (
	"errors"
	"net/http"
)

var errNoAudio = errors.New("audio routing unavailable")

func (s *Server) handleAudioDevices(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audio == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": errNoAudio.Error(), "kind": "unavailable"})
		return
	}
	devices, err := s.deps.Audio.ListOutputDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleAudioRoute moves a process's playback. Without a pid, the running
// session's target is routed.
func (s *Server) handleAudioRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PID      int    `json:"pid"`
		DeviceID string `json:"deviceId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.DeviceID == "" {
		writeError(w, badRequest("deviceId is required"))
		return
	}
	if req.PID == 0 {
		if ctrl := s.deps.Sessions.Current(); ctrl != nil {
			req.PID = ctrl.Target().PID
		}
	}
	if req.PID <= 0 {
		writeError(w, badRequest("pid is required without a running session"))
		return
	}
	if err := s.deps.Sessions.RouteAudio(r.Context(), req.PID, req.DeviceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pid": req.PID, "deviceId": req.DeviceID})
}

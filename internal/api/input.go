package api

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

type keepaliveRequest struct {
	Hwnd        protocol.WindowHandle `json:"hwnd"`
	Enable      bool                  `json:"enable"`
	X           int                   `json:"x"`
	Y           int                   `json:"y"`
	PeriodMs    int                   `json:"periodMs"`
	StickBottom bool                  `json:"stickBottom"`
}

type keepaliveEntry struct {
	Hwnd        protocol.WindowHandle `json:"hwnd"`
	PeriodMs    int64                 `json:"periodMs"`
	X           int                   `json:"x"`
	Y           int                   `json:"y"`
	StickBottom bool                  `json:"stickBottom"`
}

func toEntry(h protocol.WindowHandle, o keepalive.Options) keepaliveEntry {
	return keepaliveEntry{
		Hwnd:        h,
		PeriodMs:    o.Period.Milliseconds(),
		X:           o.X,
		Y:           o.Y,
		StickBottom: o.StickBottom,
	}
}

func (s *Server) handleGetKeepalive(w http.ResponseWriter, r *http.Request) {
	active := s.deps.Keepalive.Active()
	entries := make([]keepaliveEntry, 0, len(active))
	for h, o := range active {
		entries = append(entries, toEntry(h, o))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hwnd < entries[j].Hwnd })
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSetKeepalive(w http.ResponseWriter, r *http.Request) {
	var req keepaliveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Hwnd == 0 {
		writeError(w, badRequest("hwnd is required"))
		return
	}

	if !req.Enable {
		writeJSON(w, http.StatusOK, map[string]bool{"removed": s.deps.Keepalive.Disable(req.Hwnd)})
		return
	}
	opts := s.deps.Keepalive.Enable(req.Hwnd, keepalive.Options{
		Period:      config.Ms(req.PeriodMs),
		X:           req.X,
		Y:           req.Y,
		StickBottom: req.StickBottom,
	})
	writeJSON(w, http.StatusOK, toEntry(req.Hwnd, opts))
}

// handleMouse passes one operation straight through to the worker.
func (s *Server) handleMouse(w http.ResponseWriter, r *http.Request) {
	op, err := protocol.ParseOp(mux.Vars(r)["op"])
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	var p protocol.Payload
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if p.Hwnd == 0 {
		writeError(w, badRequest("hwnd is required"))
		return
	}

	resp, err := s.deps.Worker.Invoke(r.Context(), op, p, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

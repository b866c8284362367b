package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/session"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
)

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.deps.Capture.ListSources()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

// handleWindows lists top-level windows, optionally narrowed by ?title= or
// resolved to the main window of ?pid=.
func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if pidStr := q.Get("pid"); pidStr != "" {
		pid, err := strconv.Atoi(pidStr)
		if err != nil || pid <= 0 {
			writeError(w, badRequest("invalid pid %q", pidStr))
			return
		}
		h, err := s.deps.Windows.FindByPID(pid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"hwnd": h, "pid": pid})
		return
	}

	var (
		windows []window.WindowInfo
		err     error
	)
	if title := q.Get("title"); title != "" {
		windows, err = s.deps.Windows.FindByTitle(title)
	} else {
		windows, err = s.deps.Windows.ListTop()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

func (s *Server) handleWindowPIDs(w http.ResponseWriter, r *http.Request) {
	windows, err := s.deps.Windows.ListTop()
	if err != nil {
		writeError(w, err)
		return
	}
	pids := window.PIDsByTitle(windows, r.URL.Query().Get("title"))
	if pids == nil {
		pids = []int{}
	}
	writeJSON(w, http.StatusOK, pids)
}

// handleGeometry reports the worker's geometry for a window. With ?w= and ?h=
// it also reports the mapping a frame of that size would get.
func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	h, err := parseHandle(mux.Vars(r)["hwnd"])
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := s.deps.Worker.Geometry(r.Context(), h)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"hwnd": h, "geometry": g, "scale": g.Scale()}
	q := r.URL.Query()
	if q.Get("w") != "" || q.Get("h") != "" {
		fw, errW := strconv.Atoi(q.Get("w"))
		fh, errH := strconv.Atoi(q.Get("h"))
		if errW != nil || errH != nil {
			writeError(w, badRequest("frame size needs integer w and h"))
			return
		}
		m, err := mapping.New(mapping.Size{W: fw, H: fh}, g, session.Tuning(s.deps.Config.Get()))
		if err != nil {
			writeError(w, badRequest("%v", err))
			return
		}
		resp["mapping"] = m
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnsureCapturable(w http.ResponseWriter, r *http.Request) {
	h, err := parseHandle(mux.Vars(r)["hwnd"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Windows.EnsureCapturable(h); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

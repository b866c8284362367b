package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/session"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Config.Get())
}

// handlePatchSettings overlays a partial settings document. Click-through is
// applied to the running session right away.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	cfg, err := s.deps.Config.Update(patch)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deps.Sessions.SetSuspended(cfg.Viewer.ClickThrough)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Config.ListProfiles())
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var p config.Profile
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	saved, err := s.deps.Config.SaveProfile(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Config.FindProfile(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Config.DeleteProfile(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.applyProfile(r, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ctrl.Info())
}

// applyProfile starts a session from a profile id or name and marks the
// profile active.
func (s *Server) applyProfile(r *http.Request, ref string) (*session.Controller, error) {
	p, err := s.deps.Config.FindProfile(ref)
	if err != nil {
		return nil, err
	}
	ctrl, err := s.deps.Sessions.ApplyProfile(r.Context(), *p)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Config.SetActiveProfile(p.ID); err != nil && !errors.Is(err, config.ErrProfileNotFound) {
		return nil, err
	}
	return ctrl, nil
}

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/FocusRelay/internal/gesture"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/session"
)

const writeWait = 5 * time.Second

type startSessionRequest struct {
	session.Request
	Profile string `json:"profile,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		ctrl *session.Controller
		err  error
	)
	if req.Profile != "" {
		ctrl, err = s.applyProfile(r, req.Profile)
	} else {
		if req.Handle == 0 && req.PID == 0 && req.Title == "" {
			writeError(w, badRequest("one of hwnd, pid, title or profile is required"))
			return
		}
		ctrl, err = s.deps.Sessions.Start(r.Context(), req.Request)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ctrl.Info())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl := s.deps.Sessions.Current()
	if ctrl == nil {
		writeError(w, session.ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Info())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Sessions.Stop() {
		writeError(w, session.ErrNoSession)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionInput carries viewer pointer events in and session messages out
// for the running session.
func (s *Server) handleSessionInput(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	ctrl := s.deps.Sessions.Current()
	if ctrl == nil {
		writeError(w, session.ErrNoSession)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("session", ctrl.ID()).Msg("Viewer connected")

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-ctrl.Messages():
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
						time.Now().Add(writeWait))
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug().Err(err).Msg("Viewer write failed")
					return
				}
			}
		}
	}()

	for {
		var ev gesture.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("Viewer read ended")
			}
			break
		}
		if err := ctrl.Submit(ev); errors.Is(err, session.ErrEnded) {
			break
		}
	}

	close(stop)
	<-writerDone
	log.Info().Str("session", ctrl.ID()).Msg("Viewer disconnected")
}

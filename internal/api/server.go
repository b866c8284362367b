package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/FocusRelay/internal/audio"
	"github.com/bryanchriswhite/FocusRelay/internal/capture"
	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/output"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/session"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
	"github.com/bryanchriswhite/FocusRelay/internal/worker"
)

const version = "0.2.0"

// Worker is the part of the worker manager the API exposes.
type Worker interface {
	Invoke(ctx context.Context, op protocol.Op, p protocol.Payload, timeout time.Duration) (*protocol.Response, error)
	Geometry(ctx context.Context, h protocol.WindowHandle) (protocol.Geometry, error)
	Stats() worker.Stats
}

// Keepalive is the keepalive registry.
type Keepalive interface {
	Enable(h protocol.WindowHandle, opts keepalive.Options) keepalive.Options
	Disable(h protocol.WindowHandle) bool
	Active() map[protocol.WindowHandle]keepalive.Options
}

// Deps are the services behind the API.
type Deps struct {
	Config    *config.Manager
	Sessions  *session.Manager
	Windows   window.Resolver
	Capture   capture.Provider
	Worker    Worker
	Keepalive Keepalive
	// Audio may be nil when no sound server is reachable.
	Audio  audio.Router
	Stream *output.MJPEGOutput
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	deps     Deps
	upgrader websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Targets
	api.HandleFunc("/sources", s.handleSources).Methods("GET")
	api.HandleFunc("/windows", s.handleWindows).Methods("GET")
	api.HandleFunc("/windows/pids", s.handleWindowPIDs).Methods("GET")
	api.HandleFunc("/windows/{hwnd}/geometry", s.handleGeometry).Methods("GET")
	api.HandleFunc("/windows/{hwnd}/ensure-capturable", s.handleEnsureCapturable).Methods("POST")

	// Mirroring session
	api.HandleFunc("/session", s.handleStartSession).Methods("POST")
	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session", s.handleStopSession).Methods("DELETE")
	api.HandleFunc("/session/input", s.handleSessionInput)

	// Direct input
	api.HandleFunc("/keepalive", s.handleGetKeepalive).Methods("GET")
	api.HandleFunc("/keepalive", s.handleSetKeepalive).Methods("POST")
	api.HandleFunc("/mouse/{op}", s.handleMouse).Methods("POST")

	// Audio
	api.HandleFunc("/audio/devices", s.handleAudioDevices).Methods("GET")
	api.HandleFunc("/audio/route", s.handleAudioRoute).Methods("POST")

	// Settings and profiles
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handlePatchSettings).Methods("PATCH")
	api.HandleFunc("/profiles", s.handleListProfiles).Methods("GET")
	api.HandleFunc("/profiles", s.handleSaveProfile).Methods("POST")
	api.HandleFunc("/profiles/{id}", s.handleGetProfile).Methods("GET")
	api.HandleFunc("/profiles/{id}", s.handleDeleteProfile).Methods("DELETE")
	api.HandleFunc("/profiles/{id}/apply", s.handleApplyProfile).Methods("POST")

	// Diagnostics
	api.HandleFunc("/worker", s.handleWorkerStats).Methods("GET")
	api.HandleFunc("/logs", s.handleAppendLog).Methods("POST")

	if s.deps.Stream != nil {
		s.router.HandleFunc("/stream", s.deps.Stream.GetHTTPHandler()).Methods("GET")
	}
	s.router.HandleFunc("/", output.GetViewerHandler()).Methods("GET")
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Run serves on port until ctx is done.
func (s *Server) Run(ctx context.Context, port int) error {
	log := logger.WithComponent("api")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("url", fmt.Sprintf("http://localhost:%d", port)).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a {"error","kind"} body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := worker.Kind(err)
	switch {
	case errors.Is(err, errBadRequest):
		status, kind = http.StatusBadRequest, "bad_request"
	case errors.Is(err, config.ErrInvalid):
		status, kind = http.StatusBadRequest, "invalid"
	case errors.Is(err, window.ErrNotFound), errors.Is(err, config.ErrProfileNotFound),
		errors.Is(err, capture.ErrSourceNotFound), errors.Is(err, audio.ErrDeviceNotFound),
		errors.Is(err, session.ErrNoSession):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, audio.ErrNoStreams):
		status, kind = http.StatusConflict, "no_streams"
	case errors.Is(err, protocol.ErrBadHandle), errors.Is(err, session.ErrTargetGone):
		status, kind = http.StatusGone, "target_gone"
	case errors.Is(err, worker.ErrTimeout):
		status = http.StatusGatewayTimeout
	case kind == "worker":
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("%v", err)
	}
	return nil
}

// parseHandle accepts a handle in hex ("0x1a00007") or decimal.
func parseHandle(s string) (protocol.WindowHandle, error) {
	h, err := protocol.ParseWindowHandle(s)
	if err != nil {
		return 0, badRequest("%v", err)
	}
	return h, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":  "healthy",
		"version": version,
	}
	if s.deps.Stream != nil {
		var out output.Output = s.deps.Stream
		body["output"] = out.Name()
		body["output_state"] = "stopped"
		if out.IsRunning() {
			body["output_state"] = "running"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleWorkerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Worker.Stats())
}

// handleAppendLog writes a viewer-side line into the host log.
func (s *Server) handleAppendLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Message == "" {
		writeError(w, badRequest("message is required"))
		return
	}
	logger.WithComponent("viewer").WithLevel(logger.ParseLevel(req.Level)).Msg(req.Message)
	w.WriteHeader(http.StatusNoContent)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/FocusRelay/internal/audio"
	"github.com/bryanchriswhite/FocusRelay/internal/capture"
	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
)

// ErrNoSession is returned when no session is running.
var ErrNoSession = errors.New("no active session")

// FrameSink consumes a stream of captured frames.
type FrameSink interface {
	Pump(ctx context.Context, frames <-chan *image.RGBA)
}

// IdleInhibitor keeps the desktop from blanking until release is called.
type IdleInhibitor interface {
	Inhibit(reason string) (release func(), err error)
}

// Deps are the collaborators a session manager wires together.
type Deps struct {
	Capture   capture.Provider
	Output    FrameSink
	Worker    Worker
	Keepalive Keepalive
	Windows   window.Resolver
	// Audio may be nil when no sound server is reachable.
	Audio audio.Router
	// Idle may be nil when no screensaver service is reachable.
	Idle     IdleInhibitor
	Settings func() *config.Config
}

// Request names the window to mirror. The first non-empty of Handle, PID and
// Title wins; AudioDeviceID optionally routes the target's audio.
type Request struct {
	Handle        protocol.WindowHandle `json:"hwnd,omitempty"`
	PID           int                   `json:"pid,omitempty"`
	Title         string                `json:"title,omitempty"`
	AudioDeviceID string                `json:"audio_device_id,omitempty"`
}

// Manager runs at most one session at a time.
type Manager struct {
	deps Deps

	// startMu serializes Start from stopping the old session until the new
	// one is current.
	startMu sync.Mutex

	mu      sync.Mutex
	current *Controller
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// Start resolves the target, stops any running session, and starts mirroring.
func (m *Manager) Start(ctx context.Context, req Request) (*Controller, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	log := logger.WithComponent("session")
	cfg := m.deps.Settings()

	h, err := window.Resolve(m.deps.Windows, window.Lookup{Handle: req.Handle, PID: req.PID, Title: req.Title})
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	target := m.describe(h)
	if target.PID == 0 {
		target.PID = req.PID
	}

	if err := m.deps.Windows.EnsureCapturable(h); err != nil {
		if errors.Is(err, protocol.ErrBadHandle) {
			return nil, fmt.Errorf("%w: %s", ErrTargetGone, h)
		}
		log.Warn().Err(err).Str("hwnd", h.String()).Msg("Could not prepare window for capture")
	}

	m.Stop()

	// sessions outlive the request that started them
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := m.deps.Capture.Open(sessCtx, capture.SourceID(h))
	if err != nil {
		cancel()
		if errors.Is(err, protocol.ErrBadHandle) {
			return nil, fmt.Errorf("%w: %s", ErrTargetGone, h)
		}
		return nil, fmt.Errorf("open capture: %w", err)
	}

	ctrl := Start(sessCtx, Options{
		Target:           target,
		Frame:            stream.FrameSize,
		Worker:           m.deps.Worker,
		Gesture:          GestureOptions(cfg),
		Tuning:           Tuning(cfg),
		CallTimeout:      config.Ms(cfg.Worker.DefaultTimeoutMs),
		RemapTimeout:     config.Ms(cfg.Input.RemapTimeoutMs),
		Keepalive:        m.deps.Keepalive,
		KeepaliveOptions: KeepaliveOptions(cfg),
	})
	if cfg.Viewer.ClickThrough {
		ctrl.SetSuspended(true)
	}

	if m.deps.Output != nil {
		go m.deps.Output.Pump(sessCtx, stream.Frames())
	}
	go supervise(ctrl, stream, cancel)
	if m.deps.Idle != nil && cfg.Keepalive.InhibitIdle {
		m.inhibitIdle(ctrl)
	}

	m.mu.Lock()
	m.current = ctrl
	m.mu.Unlock()

	if req.AudioDeviceID != "" {
		if err := m.RouteAudio(ctx, target.PID, req.AudioDeviceID); err != nil {
			log.Warn().Err(err).Int("pid", target.PID).Msg("Audio routing failed")
		}
	}
	return ctrl, nil
}

func (m *Manager) inhibitIdle(ctrl *Controller) {
	release, err := m.deps.Idle.Inhibit("Mirroring " + ctrl.Target().Title)
	if err != nil {
		logger.WithComponent("session").Warn().Err(err).Msg("Screensaver stays active")
		return
	}
	go func() {
		<-ctrl.Done()
		release()
	}()
}

// supervise ties the capture stream and the controller together: whichever
// ends first ends the other.
func supervise(ctrl *Controller, stream *capture.Stream, cancel context.CancelFunc) {
	select {
	case <-stream.Done():
		err := stream.Err()
		if errors.Is(err, protocol.ErrBadHandle) {
			err = ErrTargetGone
		}
		ctrl.end(err)
		<-ctrl.Done()
	case <-ctrl.Done():
	}
	stream.Close()
	cancel()
}

// ApplyProfile starts a session for p, trying the handle hint first, then
// the pid hint, then the title.
func (m *Manager) ApplyProfile(ctx context.Context, p config.Profile) (*Controller, error) {
	req := Request{
		Handle:        protocol.WindowHandle(p.HwndHint),
		PID:           p.PidHint,
		Title:         p.WindowTitle,
		AudioDeviceID: p.AudioDeviceID,
	}
	if req.Handle != 0 && !m.exists(req.Handle) {
		req.Handle = 0
	}
	if req.PID != 0 && req.Handle == 0 {
		if _, err := m.deps.Windows.FindByPID(req.PID); err != nil {
			req.PID = 0
		}
	}
	ctrl, err := m.Start(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("apply profile %q: %w", p.Name, err)
	}
	return ctrl, nil
}

// Current returns the running session, or nil.
func (m *Manager) Current() *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	select {
	case <-m.current.Done():
		return nil
	default:
		return m.current
	}
}

// Stop ends the running session. It reports whether one was running.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	ctrl := m.current
	m.current = nil
	m.mu.Unlock()

	if ctrl == nil {
		return false
	}
	ctrl.Stop()
	return true
}

// SetSuspended applies click-through to the running session, if any.
func (m *Manager) SetSuspended(on bool) {
	if ctrl := m.Current(); ctrl != nil {
		ctrl.SetSuspended(on)
	}
}

// RouteAudio moves the playback of pid to deviceID.
func (m *Manager) RouteAudio(ctx context.Context, pid int, deviceID string) error {
	if m.deps.Audio == nil {
		return errors.New("audio routing unavailable")
	}
	if pid <= 0 {
		return fmt.Errorf("%w: unknown pid", audio.ErrNoStreams)
	}
	return m.deps.Audio.RouteProcess(ctx, pid, deviceID)
}

func (m *Manager) describe(h protocol.WindowHandle) Target {
	t := Target{Handle: h}
	windows, err := m.deps.Windows.ListTop()
	if err != nil {
		return t
	}
	for _, w := range windows {
		if w.Handle == h {
			t.PID = w.PID
			t.Title = w.Title
			break
		}
	}
	return t
}

func (m *Manager) exists(h protocol.WindowHandle) bool {
	windows, err := m.deps.Windows.ListTop()
	if err != nil {
		return false
	}
	for _, w := range windows {
		if w.Handle == h {
			return true
		}
	}
	return false
}

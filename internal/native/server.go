package native

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

const (
	// DefaultStepDelay separates the messages of a double click or drag.
	DefaultStepDelay = 8 * time.Millisecond

	defaultWheelDelta = 120
	maxLineBytes      = 1 << 20
)

// Server answers protocol requests using a Surface.
type Server struct {
	surface   Surface
	stepDelay time.Duration
	sleep     func(time.Duration)

	outMu sync.Mutex
	out   io.Writer
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithStepDelay sets the pause between the steps of multi-message gestures.
func WithStepDelay(d time.Duration) ServerOption {
	return func(s *Server) {
		if d >= 0 {
			s.stepDelay = d
		}
	}
}

// WithSleep replaces time.Sleep for the step delay.
func WithSleep(fn func(time.Duration)) ServerOption {
	return func(s *Server) { s.sleep = fn }
}

func NewServer(surface Surface, opts ...ServerOption) *Server {
	s := &Server{
		surface:   surface,
		stepDelay: DefaultStepDelay,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve emits the ready notice, then handles one request per input line until
// in is exhausted or ctx is cancelled. Requests are answered in arrival order.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	log := logger.WithComponent("native")
	s.out = out

	if err := s.emit(protocol.Notice{Type: protocol.NoticeReady}); err != nil {
		return fmt.Errorf("failed to announce readiness: %w", err)
	}
	log.Info().Msg("Worker ready")

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		req, err := protocol.DecodeRequest(line)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownOp) {
				s.emit(protocol.ErrorResponse(req.ID, protocol.ErrUnknownOp))
				continue
			}
			log.Warn().Err(err).Msg("Ignoring malformed request")
			continue
		}

		if err := s.emit(s.handle(req)); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read requests: %w", err)
	}
	log.Info().Msg("Input closed, worker exiting")
	return nil
}

// handle runs one request and turns panics into an error notice plus a failed
// response so the process keeps serving.
func (s *Server) handle(req protocol.Request) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%s: %v", req.Op, r)
			logger.WithComponent("native").Error().Str("panic", msg).Msg("Recovered from handler panic")
			s.emit(protocol.Notice{Type: protocol.NoticeError, Message: msg})
			resp = protocol.ErrorResponse(req.ID, errors.New(msg))
		}
	}()

	if !s.surface.Alive(req.Hwnd) {
		return protocol.ErrorResponse(req.ID, protocol.ErrBadHandle)
	}

	if req.Op == protocol.OpGeom {
		g, err := s.surface.Geometry(req.Hwnd)
		if err != nil {
			return protocol.ErrorResponse(req.ID, err)
		}
		return protocol.GeometryResponse(req.ID, g)
	}

	if err := s.dispatch(req.Op, req.Payload); err != nil {
		logger.WithComponent("native").Debug().
			Err(err).
			Int64("id", req.ID).
			Str("op", string(req.Op)).
			Msg("Request failed")
		return protocol.ErrorResponse(req.ID, err)
	}
	return protocol.OKResponse(req.ID)
}

func (s *Server) dispatch(op protocol.Op, p protocol.Payload) error {
	button := protocol.ParseButton(string(p.Button))

	switch op {
	case protocol.OpGeom:
		_, err := s.surface.Geometry(p.Hwnd)
		return err
	case protocol.OpSmart:
		return s.post(p.Hwnd, p.X, p.Y,
			Event{Kind: EventMotion},
			Event{Kind: EventPress, Button: protocol.ButtonLeft},
			Event{Kind: EventRelease, Button: protocol.ButtonLeft},
		)
	case protocol.OpSendInput:
		return s.surface.InjectClick(p.Hwnd, p.X, p.Y)
	case protocol.OpMove:
		return s.post(p.Hwnd, p.X, p.Y, Event{Kind: EventMotion})
	case protocol.OpDown:
		return s.post(p.Hwnd, p.X, p.Y, Event{Kind: EventPress, Button: button})
	case protocol.OpUp:
		return s.post(p.Hwnd, p.X, p.Y, Event{Kind: EventRelease, Button: button})
	case protocol.OpDblClick:
		return s.doubleClick(p.Hwnd, p.X, p.Y, button)
	case protocol.OpWheel:
		return s.wheel(p)
	case protocol.OpDrag:
		return s.drag(p, button)
	case protocol.OpKeepalive:
		return s.keepalive(p)
	default:
		return protocol.ErrUnknownOp
	}
}

// post hit-tests once and delivers evs to the same target with no delay.
func (s *Server) post(h protocol.WindowHandle, x, y int, evs ...Event) error {
	t, err := s.surface.ChildAt(h, x, y)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		if err := s.surface.Post(t, ev); err != nil {
			return fmt.Errorf("post %s: %w", ev.Kind, err)
		}
	}
	return nil
}

// steps delivers evs to t with the step delay between them.
func (s *Server) steps(t Target, evs ...Event) error {
	for i, ev := range evs {
		if i > 0 && s.stepDelay > 0 {
			s.sleep(s.stepDelay)
		}
		if err := s.surface.Post(t, ev); err != nil {
			return fmt.Errorf("post %s: %w", ev.Kind, err)
		}
	}
	return nil
}

func (s *Server) doubleClick(h protocol.WindowHandle, x, y int, b protocol.Button) error {
	t, err := s.surface.ChildAt(h, x, y)
	if err != nil {
		return err
	}
	return s.steps(t,
		Event{Kind: EventPress, Button: b},
		Event{Kind: EventRelease, Button: b},
		Event{Kind: EventDoublePress, Button: b},
		Event{Kind: EventRelease, Button: b},
	)
}

// wheel goes to the top-level window so scrolling works even when the child
// under the point ignores wheel messages.
func (s *Server) wheel(p protocol.Payload) error {
	t, err := s.surface.ChildAt(p.Hwnd, p.X, p.Y)
	if err != nil {
		return err
	}
	t.Window = p.Hwnd
	t.X, t.Y = p.X, p.Y

	delta := p.Delta
	if delta == 0 {
		delta = defaultWheelDelta
	}
	return s.surface.Post(t, Event{Kind: EventWheel, Delta: delta, Horiz: p.Horiz})
}

func (s *Server) drag(p protocol.Payload, b protocol.Button) error {
	from, err := s.surface.ChildAt(p.Hwnd, p.X, p.Y)
	if err != nil {
		return err
	}
	to, err := s.surface.ChildAt(p.Hwnd, p.ToX, p.ToY)
	if err != nil {
		return err
	}
	// the pressed window keeps receiving events until release, as under a pointer grab
	end := Target{
		Window: from.Window,
		X:      from.X + p.ToX - p.X,
		Y:      from.Y + p.ToY - p.Y,
		RootX:  to.RootX,
		RootY:  to.RootY,
	}

	if err := s.steps(from, Event{Kind: EventMotion}, Event{Kind: EventPress, Button: b}); err != nil {
		return err
	}
	if s.stepDelay > 0 {
		s.sleep(s.stepDelay)
	}
	return s.steps(end, Event{Kind: EventMotion}, Event{Kind: EventRelease, Button: b})
}

// keepalive restores a minimized target, optionally keeps it at the bottom of
// the stack while it is not focused, and pings a motion event at (x, y).
func (s *Server) keepalive(p protocol.Payload) error {
	log := logger.WithComponent("native")

	if err := s.surface.RestoreIfMinimized(p.Hwnd); err != nil {
		log.Debug().Err(err).Str("hwnd", p.Hwnd.String()).Msg("Restore failed")
	}
	if p.StickBottom && !s.surface.IsForeground(p.Hwnd) {
		if err := s.surface.Lower(p.Hwnd); err != nil {
			log.Debug().Err(err).Str("hwnd", p.Hwnd.String()).Msg("Lower failed")
		}
	}
	return s.post(p.Hwnd, p.X, p.Y, Event{Kind: EventMotion})
}

func (s *Server) emit(v interface{}) error {
	line, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, err = s.out.Write(line)
	return err
}

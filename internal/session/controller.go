// Package session mirrors one target window: viewer pointer events go through
// the gesture machine and out to the native worker, while failures and cursor
// updates flow back to the viewer.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/FocusRelay/internal/clock"
	"github.com/bryanchriswhite/FocusRelay/internal/gesture"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/worker"
)

var (
	// ErrTargetGone ends a session whose window no longer exists.
	ErrTargetGone = errors.New("target window is gone")
	// ErrEnded is returned when submitting to a finished session.
	ErrEnded = errors.New("session ended")
)

const (
	eventBuffer   = 256
	messageBuffer = 64

	defaultRemapTimeout = 250 * time.Millisecond
)

// Worker is the part of the worker manager a session drives.
type Worker interface {
	Go(op protocol.Op, p protocol.Payload, timeout time.Duration) *worker.Call
	Geometry(ctx context.Context, h protocol.WindowHandle) (protocol.Geometry, error)
}

// Keepalive registers periodic pings for a window.
type Keepalive interface {
	Enable(h protocol.WindowHandle, opts keepalive.Options) keepalive.Options
	Disable(h protocol.WindowHandle) bool
}

// Target identifies the mirrored window.
type Target struct {
	Handle protocol.WindowHandle `json:"hwnd"`
	PID    int                   `json:"pid,omitempty"`
	Title  string                `json:"title,omitempty"`
}

// Message is sent to the viewer. Type is "indicator", "failure" or "ended".
type Message struct {
	Type    string  `json:"type"`
	Visible bool    `json:"visible,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Op      string  `json:"op,omitempty"`
	Kind    string  `json:"kind,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Options configure a controller.
type Options struct {
	Target Target
	// Frame reports the current captured frame size.
	Frame   func() mapping.Size
	Worker  Worker
	Gesture gesture.Options
	Tuning  mapping.Tuning
	// CallTimeout bounds each forwarded operation; zero uses the worker default.
	CallTimeout time.Duration
	// RemapTimeout bounds the geometry query behind each remap. When it
	// expires the last good mapping is reused.
	RemapTimeout time.Duration

	Keepalive        Keepalive
	KeepaliveOptions *keepalive.Options

	Clock clock.Clock
}

// Info is a snapshot of a running session.
type Info struct {
	ID        string          `json:"id"`
	Target    Target          `json:"target"`
	StartedAt time.Time       `json:"started_at"`
	State     string          `json:"state"`
	Mapping   mapping.Mapping `json:"mapping"`
	Suspended bool            `json:"suspended"`
	Keepalive bool            `json:"keepalive"`
}

// Controller runs one session's event loop.
type Controller struct {
	id      string
	opts    Options
	started time.Time
	log     zerolog.Logger
	machine *gesture.Machine
	// lastGood is owned by the event loop.
	lastGood mapping.Mapping

	ctx    context.Context
	cancel context.CancelFunc
	events chan gesture.Event
	done   chan struct{}

	suspended atomic.Bool

	outMu  sync.Mutex
	out    chan Message
	closed bool

	endOnce sync.Once
	errMu   sync.Mutex
	err     error
}

// Start creates a controller and starts its loop. The session ends when ctx
// is done, Stop is called, or the target disappears.
func Start(ctx context.Context, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Frame == nil {
		opts.Frame = func() mapping.Size { return mapping.Size{} }
	}
	if opts.RemapTimeout <= 0 {
		opts.RemapTimeout = defaultRemapTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		id:      uuid.NewString(),
		opts:    opts,
		started: opts.Clock.Now(),
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan gesture.Event, eventBuffer),
		done:    make(chan struct{}),
		out:     make(chan Message, messageBuffer),
	}
	c.log = logger.WithComponent("session").With().
		Str("session", c.id).
		Str("hwnd", opts.Target.Handle.String()).
		Logger()
	c.machine = gesture.New(opts.Gesture, gesture.RemapFunc(c.remap), sink{c}, opts.Clock)

	if opts.Keepalive != nil && opts.KeepaliveOptions != nil {
		opts.Keepalive.Enable(opts.Target.Handle, *opts.KeepaliveOptions)
	}

	c.log.Info().Int("pid", opts.Target.PID).Str("title", opts.Target.Title).Msg("Session started")
	go c.run()
	return c
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) Target() Target { return c.opts.Target }

// Done is closed once the loop has exited and the ended message was queued.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Messages delivers viewer messages. It is closed after the "ended" message.
func (c *Controller) Messages() <-chan Message { return c.out }

// Err reports why the session ended; nil for a plain Stop.
func (c *Controller) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Submit queues a viewer event. Events are handled in order; while
// suspended they are dropped.
func (c *Controller) Submit(ev gesture.Event) error {
	select {
	case <-c.done:
		return ErrEnded
	default:
	}
	if c.suspended.Load() {
		return nil
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrEnded
	}
}

// SetSuspended turns click-through on or off. While suspended, pointer events
// are dropped and any press in progress is abandoned.
func (c *Controller) SetSuspended(on bool) {
	if c.suspended.Swap(on) == on {
		return
	}
	if on {
		c.machine.Reset()
		c.emit(Message{Type: "indicator", Visible: false})
	}
	c.log.Debug().Bool("suspended", on).Msg("Forwarding toggled")
}

func (c *Controller) Suspended() bool { return c.suspended.Load() }

// Info returns a snapshot of the session.
func (c *Controller) Info() Info {
	return Info{
		ID:        c.id,
		Target:    c.opts.Target,
		StartedAt: c.started,
		State:     c.machine.State().String(),
		Mapping:   c.machine.Mapping(),
		Suspended: c.suspended.Load(),
		Keepalive: c.opts.Keepalive != nil && c.opts.KeepaliveOptions != nil,
	}
}

// Stop ends the session and waits for its loop to exit.
func (c *Controller) Stop() {
	c.end(nil)
	<-c.done
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.end(nil)
			c.finish()
			return
		case ev := <-c.events:
			c.machine.Handle(ev)
		}
	}
}

// end records the cause once and stops the loop.
func (c *Controller) end(err error) {
	c.endOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		c.cancel()
	})
}

func (c *Controller) finish() {
	c.machine.Reset()
	err := c.Err()
	if c.opts.Keepalive != nil && (c.opts.KeepaliveOptions != nil || errors.Is(err, ErrTargetGone)) {
		c.opts.Keepalive.Disable(c.opts.Target.Handle)
	}

	msg := Message{Type: "ended"}
	if err != nil {
		msg.Error = err.Error()
		c.log.Warn().Err(err).Msg("Session ended")
	} else {
		c.log.Info().Msg("Session stopped")
	}

	c.outMu.Lock()
	if !c.closed {
		select {
		case c.out <- msg:
		default:
			// make room: the ended message matters more than a stale indicator
			select {
			case <-c.out:
			default:
			}
			select {
			case c.out <- msg:
			default:
			}
		}
		c.closed = true
		close(c.out)
	}
	c.outMu.Unlock()
}

// emit sends to the viewer without blocking. Messages are dropped when the
// viewer falls behind.
func (c *Controller) emit(m Message) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- m:
	default:
		c.log.Debug().Str("type", m.Type).Msg("Viewer behind, message dropped")
	}
}

// remap runs on the event loop, so a slow worker costs at most RemapTimeout
// per discrete gesture.
func (c *Controller) remap() mapping.Mapping {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.RemapTimeout)
	defer cancel()
	m, err := mapping.Resolve(ctx, c.opts.Worker, c.opts.Target.Handle, c.opts.Frame(), c.opts.Tuning, c.lastGood)
	if err == nil {
		c.lastGood = m
	} else if errors.Is(err, context.DeadlineExceeded) {
		c.log.Debug().Dur("timeout", c.opts.RemapTimeout).Msg("Geometry slow, reusing last mapping")
	}
	return m
}

func (c *Controller) forward(a gesture.Action) {
	if c.ctx.Err() != nil {
		return
	}
	p := protocol.Payload{
		Hwnd:   c.opts.Target.Handle,
		X:      a.X,
		Y:      a.Y,
		Button: a.Button,
		Delta:  a.Delta,
		Horiz:  a.Horiz,
	}
	call := c.opts.Worker.Go(a.Op, p, c.opts.CallTimeout)
	go c.await(call)
}

// await reports the outcome of a forwarded call. Best-effort failures are
// only logged; a missing target ends the session either way.
func (c *Controller) await(call *worker.Call) {
	<-call.Done()
	_, err := call.Result()
	if err == nil {
		return
	}
	if errors.Is(err, protocol.ErrBadHandle) {
		c.end(ErrTargetGone)
		return
	}
	if call.Op.BestEffort() {
		c.log.Debug().Err(err).Str("op", string(call.Op)).Msg("Best-effort op failed")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	c.log.Warn().Err(err).Str("op", string(call.Op)).Str("kind", worker.Kind(err)).Msg("Input op failed")
	c.emit(Message{Type: "failure", Op: string(call.Op), Kind: worker.Kind(err), Error: err.Error()})
}

// sink adapts the controller to gesture.Sink.
type sink struct{ c *Controller }

func (s sink) Forward(a gesture.Action) { s.c.forward(a) }

func (s sink) Indicate(ind gesture.Indicator) {
	s.c.emit(Message{Type: "indicator", Visible: ind.Visible, X: ind.X, Y: ind.Y})
}

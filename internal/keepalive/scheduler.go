// Package keepalive periodically pings mirrored windows so that compositors and
// applications keep rendering them while they are not in front.
package keepalive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/clock"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

const (
	DefaultPeriod = 4 * time.Second
	MinPeriod     = time.Second
	defaultPoint  = 2
)

// Invoker sends one worker request and waits for its outcome.
type Invoker interface {
	Invoke(ctx context.Context, op protocol.Op, p protocol.Payload, timeout time.Duration) (*protocol.Response, error)
}

// Options describe one keepalive registration.
type Options struct {
	Period      time.Duration `json:"period"`
	X           int           `json:"x"`
	Y           int           `json:"y"`
	StickBottom bool          `json:"stickBottom"`
}

func (o Options) normalized() Options {
	if o.Period <= 0 {
		o.Period = DefaultPeriod
	}
	if o.Period < MinPeriod {
		o.Period = MinPeriod
	}
	if o.X == 0 {
		o.X = defaultPoint
	}
	if o.Y == 0 {
		o.Y = defaultPoint
	}
	return o
}

type entry struct {
	handle   protocol.WindowHandle
	opts     Options
	timer    clock.Timer
	inFlight atomic.Bool
	stopped  atomic.Bool
}

// Scheduler holds at most one registration per window handle.
type Scheduler struct {
	invoker Invoker
	clock   clock.Clock
	timeout time.Duration
	spawn   func(func())

	mu      sync.Mutex
	entries map[protocol.WindowHandle]*entry
	closed  bool
}

// New creates a scheduler. A nil clock means the system clock; timeout bounds
// each ping and falls back to the invoker default when zero.
func New(invoker Invoker, clk clock.Clock, timeout time.Duration) *Scheduler {
	if clk == nil {
		clk = clock.System{}
	}
	return &Scheduler{
		invoker: invoker,
		clock:   clk,
		timeout: timeout,
		spawn:   func(f func()) { go f() },
		entries: make(map[protocol.WindowHandle]*entry),
	}
}

// Enable replaces any registration for h and pings it immediately, then
// every period.
func (s *Scheduler) Enable(h protocol.WindowHandle, opts Options) Options {
	opts = opts.normalized()
	e := &entry{handle: h, opts: opts}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return opts
	}
	if old := s.entries[h]; old != nil {
		old.stop()
	}
	s.entries[h] = e
	s.arm(e)
	s.mu.Unlock()

	logger.WithComponent("keepalive").Debug().
		Str("hwnd", h.String()).
		Dur("period", opts.Period).
		Bool("stick_bottom", opts.StickBottom).
		Msg("Keepalive enabled")

	s.spawn(func() { s.ping(e) })
	return opts
}

// Disable removes the registration for h. It reports whether one existed.
func (s *Scheduler) Disable(h protocol.WindowHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[h]
	if e == nil {
		return false
	}
	e.stop()
	delete(s.entries, h)
	logger.WithComponent("keepalive").Debug().Str("hwnd", h.String()).Msg("Keepalive disabled")
	return true
}

// Active returns the registered handles and their options.
func (s *Scheduler) Active() map[protocol.WindowHandle]Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[protocol.WindowHandle]Options, len(s.entries))
	for h, e := range s.entries {
		out[h] = e.opts
	}
	return out
}

// Close cancels every registration. Enable is a no-op afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, e := range s.entries {
		e.stop()
		delete(s.entries, h)
	}
	s.closed = true
}

// arm schedules the next tick of e. Callers hold s.mu.
func (s *Scheduler) arm(e *entry) {
	e.timer = s.clock.AfterFunc(e.opts.Period, func() {
		s.mu.Lock()
		if e.stopped.Load() || s.entries[e.handle] != e {
			s.mu.Unlock()
			return
		}
		s.arm(e)
		s.mu.Unlock()
		s.ping(e)
	})
}

// ping sends one keepalive request. Failures are expected while windows come
// and go, so they are only logged at debug.
func (s *Scheduler) ping(e *entry) {
	if e.stopped.Load() || !e.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer e.inFlight.Store(false)

	_, err := s.invoker.Invoke(context.Background(), protocol.OpKeepalive, protocol.Payload{
		Hwnd:        e.handle,
		X:           e.opts.X,
		Y:           e.opts.Y,
		StickBottom: e.opts.StickBottom,
	}, s.timeout)
	if err != nil {
		logger.WithComponent("keepalive").Debug().
			Err(err).
			Str("hwnd", e.handle.String()).
			Msg("Keepalive ping failed")
	}
}

func (e *entry) stop() {
	e.stopped.Store(true)
	if e.timer != nil {
		e.timer.Stop()
	}
}

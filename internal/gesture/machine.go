// Package gesture turns raw viewer pointer events into native input operations.
//
// The machine is single-pointer: a new press always replaces the previous
// one. A primary press released without dragging is held back for ClickDelay
// so that a following double click can replace it; everything else is
// forwarded as soon as it is classified.
package gesture

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/clock"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

// Kind is the type of a viewer pointer event.
type Kind string

const (
	KindMove     Kind = "move"
	KindDown     Kind = "down"
	KindUp       Kind = "up"
	KindDblClick Kind = "dblclick"
	KindWheel    Kind = "wheel"
	KindLeave    Kind = "leave"
)

// Event is a pointer event in viewer-surface coordinates. Surface is where the
// captured frame is drawn at the time of the event.
type Event struct {
	Kind    Kind            `json:"kind"`
	X       float64         `json:"x"`
	Y       float64         `json:"y"`
	Button  protocol.Button `json:"button,omitempty"`
	DeltaX  float64         `json:"deltaX,omitempty"`
	DeltaY  float64         `json:"deltaY,omitempty"`
	Surface mapping.Rect    `json:"surface"`
}

// State is the classifier state.
type State int

const (
	StateIdle State = iota
	StatePressed
	StatePendingSingleClick
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePressed:
		return "pressed"
	case StatePendingSingleClick:
		return "pending_single_click"
	default:
		return "unknown"
	}
}

// Action is one native operation to forward, in client coordinates.
type Action struct {
	Op     protocol.Op
	X      int
	Y      int
	Button protocol.Button
	Delta  int
	Horiz  bool
}

// Indicator places (or hides) the cursor marker on the viewer surface.
type Indicator struct {
	Visible bool
	X, Y    float64
}

// Sink receives the machine's output in order. Implementations must not block.
type Sink interface {
	Forward(a Action)
	Indicate(ind Indicator)
}

// Remapper returns a freshly derived mapping for the current target. It is
// called without the machine lock held and may block.
type Remapper interface {
	Remap() mapping.Mapping
}

// RemapFunc adapts a function to Remapper.
type RemapFunc func() mapping.Mapping

func (f RemapFunc) Remap() mapping.Mapping { return f() }

// Options tune the classifier.
type Options struct {
	MoveThrottle  time.Duration
	DragThreshold int
	ClickDelay    time.Duration
	WheelNotch    int
	// UseHardwareClick delivers deferred primary clicks with sendinput.
	UseHardwareClick bool
	// RemapInterval bounds how stale the mapping may get during hover moves.
	RemapInterval time.Duration
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		MoveThrottle:  12 * time.Millisecond,
		DragThreshold: 4,
		ClickDelay:    260 * time.Millisecond,
		WheelNotch:    120,
		RemapInterval: 100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MoveThrottle < 0 {
		o.MoveThrottle = 0
	}
	if o.DragThreshold <= 0 {
		o.DragThreshold = d.DragThreshold
	}
	if o.ClickDelay <= 0 {
		o.ClickDelay = d.ClickDelay
	}
	if o.WheelNotch <= 0 {
		o.WheelNotch = d.WheelNotch
	}
	if o.RemapInterval <= 0 {
		o.RemapInterval = d.RemapInterval
	}
	return o
}

// pressContext lives from a down until its up or the next down.
type pressContext struct {
	button   protocol.Button
	start    mapping.Point
	last     mapping.Point
	downSent bool
	dragging bool
	started  time.Time
	// second marks a primary press that landed on a pending single click.
	second bool
}

// pendingClick is a deferred single click and the timer that will deliver it.
type pendingClick struct {
	point  mapping.Point
	button protocol.Button
	timer  clock.Timer
}

// Machine classifies pointer events. Handle and the deferred-click timer are
// serialized by an internal lock, so events are processed in arrival order.
// Handle must not be called concurrently with itself.
type Machine struct {
	opts  Options
	clock clock.Clock
	remap Remapper
	sink  Sink

	mu         sync.Mutex
	current    mapping.Mapping
	mappedAt   time.Time
	press      *pressContext
	pending    *pendingClick
	lastMove   time.Time
	lastDouble time.Time
}

// New creates a machine. A nil clock means the system clock.
func New(opts Options, remap Remapper, sink Sink, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Machine{
		opts:  opts.withDefaults(),
		clock: clk,
		remap: remap,
		sink:  sink,
	}
}

// State reports the current classifier state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.press != nil:
		return StatePressed
	case m.pending != nil:
		return StatePendingSingleClick
	default:
		return StateIdle
	}
}

// Mapping returns the mapping used for the most recent event.
func (m *Machine) Mapping() mapping.Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Reset drops any press and deferred click without forwarding anything.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPending()
	m.press = nil
}

// Handle processes one viewer event. A remap the event needs runs before the
// lock is taken, so a slow geometry query never holds up State, Mapping, Reset
// or the deferred click.
func (m *Machine) Handle(ev Event) {
	now := m.clock.Now()
	var fresh *mapping.Mapping
	if m.needsRemap(ev, now) {
		r := m.remap.Remap()
		fresh = &r
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if fresh != nil {
		m.current = *fresh
		m.mappedAt = now
	}

	switch ev.Kind {
	case KindMove:
		m.move(ev)
	case KindDown:
		m.down(ev)
	case KindUp:
		m.up(ev)
	case KindDblClick:
		m.dblclick(ev)
	case KindWheel:
		m.wheel(ev)
	case KindLeave:
		m.sink.Indicate(Indicator{Visible: false})
	}
}

// needsRemap reports whether ev will be mapped with fresh geometry. Discrete
// gestures always remap; hover moves only once the mapping is stale.
func (m *Machine) needsRemap(ev Event, now time.Time) bool {
	if !ev.Surface.Contains(ev.X, ev.Y) {
		return false
	}
	switch ev.Kind {
	case KindDown, KindWheel:
		return true
	case KindDblClick:
		m.mu.Lock()
		defer m.mu.Unlock()
		return !m.doubleDelivered(now)
	case KindMove:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.throttled(now) {
			return false
		}
		return m.mappedAt.IsZero() || now.Sub(m.mappedAt) >= m.opts.RemapInterval
	default:
		return false
	}
}

func (m *Machine) throttled(now time.Time) bool {
	return !m.lastMove.IsZero() && now.Sub(m.lastMove) < m.opts.MoveThrottle
}

// doubleDelivered reports a dblclick that trails a double click already
// forwarded from the second press.
func (m *Machine) doubleDelivered(now time.Time) bool {
	return m.pending == nil && !m.lastDouble.IsZero() && now.Sub(m.lastDouble) < m.opts.ClickDelay
}

func (m *Machine) point(ev Event) mapping.Point {
	return m.current.ToClient(ev.X, ev.Y, ev.Surface)
}

func (m *Machine) move(ev Event) {
	if !ev.Surface.Contains(ev.X, ev.Y) {
		m.sink.Indicate(Indicator{Visible: false})
		return
	}

	now := m.clock.Now()
	if m.throttled(now) {
		return
	}

	p := m.point(ev)
	m.lastMove = now

	ix, iy := m.current.ToSurface(p, ev.Surface)
	m.sink.Indicate(Indicator{Visible: true, X: ix, Y: iy})
	m.sink.Forward(Action{Op: protocol.OpMove, X: p.X, Y: p.Y})

	pc := m.press
	if pc == nil {
		return
	}
	pc.last = p
	if pc.downSent || !pc.button.Primary() {
		return
	}
	if abs(p.X-pc.start.X) >= m.opts.DragThreshold || abs(p.Y-pc.start.Y) >= m.opts.DragThreshold {
		// the press belongs where the gesture began
		m.sink.Forward(Action{Op: protocol.OpDown, X: pc.start.X, Y: pc.start.Y, Button: pc.button})
		pc.downSent = true
		pc.dragging = true
		pc.second = false
	}
}

func (m *Machine) down(ev Event) {
	if !ev.Surface.Contains(ev.X, ev.Y) {
		return
	}
	now := m.clock.Now()
	p := m.point(ev)
	button := protocol.ParseButton(string(ev.Button))

	second := false
	if pc := m.pending; pc != nil {
		second = button.Primary() && pc.button.Primary() && m.near(pc.point, p)
		m.cancelPending()
	}

	m.press = &pressContext{
		button:  button,
		start:   p,
		last:    p,
		started: now,
		second:  second,
	}
	if !button.Primary() {
		m.sink.Forward(Action{Op: protocol.OpDown, X: p.X, Y: p.Y, Button: button})
		m.press.downSent = true
	}
}

func (m *Machine) up(ev Event) {
	pc := m.press
	if pc == nil {
		return
	}
	m.press = nil

	inside := ev.Surface.Contains(ev.X, ev.Y)
	p := m.point(ev)

	if pc.downSent {
		// a held button is always released, even off the surface
		m.sink.Forward(Action{Op: protocol.OpUp, X: p.X, Y: p.Y, Button: pc.button})
		return
	}
	if !inside {
		return
	}
	if pc.second {
		m.sink.Forward(Action{Op: protocol.OpDblClick, X: pc.start.X, Y: pc.start.Y, Button: pc.button})
		m.lastDouble = m.clock.Now()
		return
	}

	click := &pendingClick{point: pc.start, button: pc.button}
	click.timer = m.clock.AfterFunc(m.opts.ClickDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.pending != click {
			return
		}
		m.pending = nil
		m.fireClick(click)
	})
	m.pending = click
}

func (m *Machine) fireClick(c *pendingClick) {
	if m.opts.UseHardwareClick && c.button.Primary() {
		m.sink.Forward(Action{Op: protocol.OpSendInput, X: c.point.X, Y: c.point.Y})
		return
	}
	m.sink.Forward(Action{Op: protocol.OpDown, X: c.point.X, Y: c.point.Y, Button: c.button})
	m.sink.Forward(Action{Op: protocol.OpUp, X: c.point.X, Y: c.point.Y, Button: c.button})
}

func (m *Machine) dblclick(ev Event) {
	if !ev.Surface.Contains(ev.X, ev.Y) {
		return
	}
	now := m.clock.Now()

	if m.doubleDelivered(now) {
		m.lastDouble = time.Time{}
		return
	}
	m.cancelPending()

	p := m.point(ev)
	m.sink.Forward(Action{Op: protocol.OpDblClick, X: p.X, Y: p.Y, Button: protocol.ButtonLeft})
	m.lastDouble = time.Time{}
}

func (m *Machine) wheel(ev Event) {
	if !ev.Surface.Contains(ev.X, ev.Y) {
		return
	}
	p := m.point(ev)

	notch := m.opts.WheelNotch
	switch {
	case ev.DeltaY != 0:
		delta := -notch
		if ev.DeltaY < 0 {
			delta = notch
		}
		m.sink.Forward(Action{Op: protocol.OpWheel, X: p.X, Y: p.Y, Delta: delta})
	case ev.DeltaX != 0:
		delta := notch
		if ev.DeltaX < 0 {
			delta = -notch
		}
		m.sink.Forward(Action{Op: protocol.OpWheel, X: p.X, Y: p.Y, Delta: delta, Horiz: true})
	}
}

func (m *Machine) cancelPending() {
	if m.pending == nil {
		return
	}
	if m.pending.timer != nil {
		m.pending.timer.Stop()
	}
	m.pending = nil
}

func (m *Machine) near(a, b mapping.Point) bool {
	return abs(a.X-b.X) < m.opts.DragThreshold && abs(a.Y-b.Y) < m.opts.DragThreshold
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

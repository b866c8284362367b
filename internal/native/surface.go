// Package native is the worker side of the input channel: it applies protocol
// requests to a platform Surface and answers on stdout.
package native

import (
	"errors"

	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

// ErrNoInjection is returned by surfaces that cannot synthesize hardware input.
var ErrNoInjection = errors.New("hardware input injection unavailable")

// Target is the innermost window under a client point, with the point
// expressed in that window's coordinates and in root coordinates.
type Target struct {
	Window protocol.WindowHandle
	X, Y   int
	RootX  int
	RootY  int
}

// EventKind is a synthetic pointer message.
type EventKind int

const (
	EventMotion EventKind = iota
	EventPress
	EventRelease
	// EventDoublePress is the second press of a double click. Platforms
	// without a distinct message treat it as EventPress.
	EventDoublePress
	EventWheel
)

func (k EventKind) String() string {
	switch k {
	case EventMotion:
		return "motion"
	case EventPress:
		return "press"
	case EventRelease:
		return "release"
	case EventDoublePress:
		return "double-press"
	case EventWheel:
		return "wheel"
	default:
		return "unknown"
	}
}

// Event is one synthetic pointer message. Delta and Horiz apply to EventWheel.
type Event struct {
	Kind   EventKind
	Button protocol.Button
	Delta  int
	Horiz  bool
}

// Surface is the platform capability the worker drives. Every method takes a
// handle that may have died since the last call.
type Surface interface {
	// Alive reports whether h still refers to a live window.
	Alive(h protocol.WindowHandle) bool
	Geometry(h protocol.WindowHandle) (protocol.Geometry, error)
	// ChildAt hit-tests the visible child of h at client point (x, y).
	// It returns h itself when no child covers the point.
	ChildAt(h protocol.WindowHandle, x, y int) (Target, error)
	// Post delivers ev to t without moving the real cursor.
	Post(t Target, ev Event) error
	// InjectClick warps the real cursor to client point (x, y) of h, injects a
	// hardware primary click and puts the cursor back.
	InjectClick(h protocol.WindowHandle, x, y int) error
	// RestoreIfMinimized unminimizes h without focusing it.
	RestoreIfMinimized(h protocol.WindowHandle) error
	// IsForeground reports whether h is the active window.
	IsForeground(h protocol.WindowHandle) bool
	// Lower pushes h to the bottom of the stacking order without activating it.
	Lower(h protocol.WindowHandle) error
}

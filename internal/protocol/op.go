package protocol

import (
	"fmt"
	"strings"
)

// Op identifies a worker operation. The set is closed; ParseOp rejects anything else.
type Op string

const (
	OpGeom      Op = "geom"
	OpSmart     Op = "smart"
	OpSendInput Op = "sendinput"
	OpMove      Op = "move"
	OpDown      Op = "down"
	OpUp        Op = "up"
	OpDblClick  Op = "dblclick"
	OpWheel     Op = "wheel"
	OpDrag      Op = "drag"
	OpKeepalive Op = "keepalive"
)

// Ops lists every operation in catalogue order.
var Ops = []Op{
	OpGeom,
	OpSmart,
	OpSendInput,
	OpMove,
	OpDown,
	OpUp,
	OpDblClick,
	OpWheel,
	OpDrag,
	OpKeepalive,
}

// ParseOp converts a wire string into an Op (case-insensitive).
func ParseOp(s string) (Op, error) {
	op := Op(strings.ToLower(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOp, s)
	}
	return op, nil
}

// Valid reports whether o is part of the operation catalogue.
func (o Op) Valid() bool {
	switch o {
	case OpGeom, OpSmart, OpSendInput, OpMove, OpDown, OpUp, OpDblClick, OpWheel, OpDrag, OpKeepalive:
		return true
	}
	return false
}

// BestEffort reports whether a failure of this op is expected to be dropped silently.
func (o Op) BestEffort() bool {
	return o == OpMove || o == OpKeepalive
}

func (o Op) String() string { return string(o) }

// Button names a pointer button on the wire.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ParseButton maps a wire value to a Button. Unknown or empty values mean left,
// which is how the worker has always treated them.
func ParseButton(s string) Button {
	switch Button(strings.ToLower(strings.TrimSpace(s))) {
	case ButtonRight:
		return ButtonRight
	case ButtonMiddle:
		return ButtonMiddle
	default:
		return ButtonLeft
	}
}

// Primary reports whether b is the primary (left) button.
func (b Button) Primary() bool {
	return b == "" || b == ButtonLeft
}

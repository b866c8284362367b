package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// WindowHandle is an opaque native window identifier. It is not owned by this
// process and may stop referring to a live window at any moment.
type WindowHandle uint32

func (h WindowHandle) String() string {
	return fmt.Sprintf("0x%x", uint32(h))
}

// ParseWindowHandle accepts a handle in hex ("0x1a00007") or decimal.
func ParseWindowHandle(s string) (WindowHandle, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid window handle %q", s)
	}
	return WindowHandle(v), nil
}

// Rect is an on-screen rectangle in device pixels.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// ClientArea is the drawable interior of a window and its offset from the
// origin of the outer rectangle.
type ClientArea struct {
	W    int `json:"w"`
	H    int `json:"h"`
	OffX int `json:"offX"`
	OffY int `json:"offY"`
}

// Geometry is the result of the geom operation.
type Geometry struct {
	Outer  Rect       `json:"outer"`
	Client ClientArea `json:"client"`
	// DPI is dots per inch, 96 at 100% scaling. Zero means unknown.
	DPI int `json:"dpi"`
}

// BaseDPI is the density of an unscaled display.
const BaseDPI = 96

// Scale is the effective display scale factor, DPI/96. It is 1 when the DPI is
// unknown.
func (g Geometry) Scale() float64 {
	if g.DPI <= 0 {
		return 1
	}
	return float64(g.DPI) / BaseDPI
}

// Valid reports whether both rectangles have positive extents.
func (g Geometry) Valid() bool {
	return g.Outer.W > 0 && g.Outer.H > 0 && g.Client.W > 0 && g.Client.H > 0
}

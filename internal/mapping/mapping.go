// Package mapping converts pointer positions on the viewer surface into client
// coordinates of the mirrored window.
//
// Three spaces are involved: the captured frame (pixels of the video image), the
// target's outer rectangle (including decorations) and its client rectangle. A
// capture backend may deliver either the outer or the client area, so the engine
// picks the rectangle whose aspect ratio best matches the frame.
package mapping

import (
	"context"
	"errors"
	"math"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

// ErrGeometryUnavailable is returned when geometry cannot anchor a mapping.
var ErrGeometryUnavailable = errors.New("geometry unavailable")

// Mode records which target rectangle a mapping is anchored to.
type Mode string

const (
	ModeClient Mode = "client"
	ModeOuter  Mode = "outer"
)

// Size is a width/height pair in pixels.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Valid reports whether both extents are positive.
func (s Size) Valid() bool { return s.W > 0 && s.H > 0 }

// Rect is the on-screen rectangle of the viewer surface, in viewer units.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether (x, y) lies on the rectangle, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Point is a client-pixel position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Tuning holds the empirically chosen constants of mode selection.
type Tuning struct {
	// FrameSlack lets client mode win while its error is at most this multiple of
	// the outer error, when the window has a plausible frame.
	FrameSlack float64
	// TieTolerance is the relative error difference treated as a tie.
	TieTolerance float64
	// FrameMinOffX and FrameMinOffY are the client offsets above which the window
	// is assumed to have non-client decoration.
	FrameMinOffX int
	FrameMinOffY int
}

// DefaultTuning returns the stock constants.
func DefaultTuning() Tuning {
	return Tuning{
		FrameSlack:   1.2,
		TieTolerance: 0.05,
		FrameMinOffX: 4,
		FrameMinOffY: 16,
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.FrameSlack <= 0 {
		t.FrameSlack = d.FrameSlack
	}
	if t.TieTolerance <= 0 {
		t.TieTolerance = d.TieTolerance
	}
	if t.FrameMinOffX <= 0 {
		t.FrameMinOffX = d.FrameMinOffX
	}
	if t.FrameMinOffY <= 0 {
		t.FrameMinOffY = d.FrameMinOffY
	}
	return t
}

// Mapping is a viewer → client transform derived from one Geometry and FrameSize.
// It is never adjusted in place; a new one is built for every recomputation.
type Mapping struct {
	Mode     Mode    `json:"mode"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	OffX     int     `json:"offX"`
	OffY     int     `json:"offY"`
	ClientW  int     `json:"clientW"`
	ClientH  int     `json:"clientH"`
	Frame    Size    `json:"frame"`
	Identity bool    `json:"identity"`
}

// Errors are the log-ratio aspect errors used by ChooseMode.
type Errors struct {
	Outer  float64 `json:"outer"`
	Client float64 `json:"client"`
}

// AspectErrors computes |ln(capR/winR)| and |ln(capR/cliR)|.
func AspectErrors(frame Size, g protocol.Geometry) Errors {
	capR := float64(frame.W) / float64(max(1, frame.H))
	winR := float64(max(1, g.Outer.W)) / float64(max(1, g.Outer.H))
	cliR := float64(max(1, g.Client.W)) / float64(max(1, g.Client.H))
	return Errors{
		Outer:  math.Abs(math.Log(capR / winR)),
		Client: math.Abs(math.Log(capR / cliR)),
	}
}

// HasFrame reports whether the client offset suggests non-client decoration.
func HasFrame(g protocol.Geometry, t Tuning) bool {
	t = t.withDefaults()
	return g.Client.OffX >= t.FrameMinOffX || g.Client.OffY >= t.FrameMinOffY
}

// ChooseMode picks the rectangle the frame most plausibly shows. The rules are
// applied in order; the first match wins.
func ChooseMode(frame Size, g protocol.Geometry, t Tuning) Mode {
	return decide(AspectErrors(frame, g), HasFrame(g, t), t)
}

func decide(e Errors, hasFrame bool, t Tuning) Mode {
	t = t.withDefaults()
	if hasFrame && e.Client <= e.Outer*t.FrameSlack {
		return ModeClient
	}
	if math.Abs(e.Client-e.Outer) <= math.Max(e.Client, e.Outer)*t.TieTolerance {
		return ModeClient
	}
	if e.Client < e.Outer {
		return ModeClient
	}
	return ModeOuter
}

// New derives a Mapping for the given frame and geometry.
func New(frame Size, g protocol.Geometry, t Tuning) (Mapping, error) {
	if !frame.Valid() || !g.Valid() {
		return Mapping{}, ErrGeometryUnavailable
	}

	m := Mapping{
		Mode:    ChooseMode(frame, g, t),
		ClientW: g.Client.W,
		ClientH: g.Client.H,
		Frame:   frame,
	}
	switch m.Mode {
	case ModeClient:
		m.ScaleX = float64(frame.W) / float64(g.Client.W)
		m.ScaleY = float64(frame.H) / float64(g.Client.H)
	case ModeOuter:
		m.ScaleX = float64(frame.W) / float64(g.Outer.W)
		m.ScaleY = float64(frame.H) / float64(g.Outer.H)
		m.OffX = g.Client.OffX
		m.OffY = g.Client.OffY
	}
	return m, nil
}

// Identity is the fallback used when no geometry is available: frame pixels are
// treated as client pixels.
func Identity(frame Size) Mapping {
	return Mapping{
		Mode:     ModeOuter,
		ScaleX:   1,
		ScaleY:   1,
		ClientW:  frame.W,
		ClientH:  frame.H,
		Frame:    frame,
		Identity: true,
	}
}

// ToClient converts a viewer-surface position into a clamped client point.
func (m Mapping) ToClient(x, y float64, surface Rect) Point {
	u := (x - surface.X) / math.Max(surface.W, 1e-9)
	v := (y - surface.Y) / math.Max(surface.H, 1e-9)

	capX := u * float64(m.Frame.W)
	capY := v * float64(m.Frame.H)

	winX := capX / nonZero(m.ScaleX)
	winY := capY / nonZero(m.ScaleY)

	cx := clamp(int(math.Round(winX-float64(m.OffX))), m.limitW())
	cy := clamp(int(math.Round(winY-float64(m.OffY))), m.limitH())
	return Point{X: cx, Y: cy}
}

// ToSurface maps a client point back onto the viewer surface. It is the exact
// inverse of ToClient before rounding and clamping.
func (m Mapping) ToSurface(p Point, surface Rect) (float64, float64) {
	winX := float64(p.X + m.OffX)
	winY := float64(p.Y + m.OffY)
	capX := winX * m.ScaleX
	capY := winY * m.ScaleY
	u := capX / float64(max(1, m.Frame.W))
	v := capY / float64(max(1, m.Frame.H))
	return surface.X + u*surface.W, surface.Y + v*surface.H
}

func (m Mapping) limitW() int {
	if m.ClientW > 0 {
		return m.ClientW
	}
	return m.Frame.W
}

func (m Mapping) limitH() int {
	if m.ClientH > 0 {
		return m.ClientH
	}
	return m.Frame.H
}

func clamp(v, size int) int {
	hi := max(0, size-1)
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

func nonZero(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}

// GeometrySource fetches the current geometry of a window.
type GeometrySource interface {
	Geometry(ctx context.Context, h protocol.WindowHandle) (protocol.Geometry, error)
}

// Resolve queries fresh geometry and derives a mapping from it. When that
// fails it returns prev if prev is a derived mapping, otherwise Identity, along
// with the error. A zero prev means there is no earlier mapping.
func Resolve(ctx context.Context, src GeometrySource, h protocol.WindowHandle, frame Size, t Tuning, prev Mapping) (Mapping, error) {
	log := logger.WithComponent("mapping")

	g, err := src.Geometry(ctx, h)
	if err == nil {
		var m Mapping
		if m, err = New(frame, g, t); err == nil {
			log.Debug().
				Str("mode", string(m.Mode)).
				Int("cap_w", frame.W).Int("cap_h", frame.H).
				Int("win_w", g.Outer.W).Int("win_h", g.Outer.H).
				Int("client_w", g.Client.W).Int("client_h", g.Client.H).
				Float64("dpi_scale", g.Scale()).
				Float64("scale_x", m.ScaleX).Float64("scale_y", m.ScaleY).
				Int("off_x", m.OffX).Int("off_y", m.OffY).
				Msg("Mapping recomputed")
			return m, nil
		}
	}

	if !prev.Identity && prev.ClientW > 0 && prev.ClientH > 0 {
		log.Debug().Err(err).Str("hwnd", h.String()).Msg("Geometry unavailable, keeping previous mapping")
		return prev, err
	}
	log.Debug().Err(err).Str("hwnd", h.String()).Msg("Geometry unavailable, using identity mapping")
	return Identity(frame), err
}

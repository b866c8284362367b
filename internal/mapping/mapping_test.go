package mapping

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

func geom(outerW, outerH, clientW, clientH, offX, offY int) protocol.Geometry {
	return protocol.Geometry{
		Outer:  protocol.Rect{X: 100, Y: 100, W: outerW, H: outerH},
		Client: protocol.ClientArea{W: clientW, H: clientH, OffX: offX, OffY: offY},
		DPI:    96,
	}
}

func TestCenterScenario(t *testing.T) {
	frame := Size{W: 1920, H: 1080}
	m, err := New(frame, geom(960, 540, 960, 540, 0, 0), DefaultTuning())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if m.Mode != ModeClient {
		t.Fatalf("mode = %s, want client", m.Mode)
	}
	if m.ScaleX != 2.0 || m.ScaleY != 2.0 {
		t.Fatalf("scale = (%v, %v), want (2, 2)", m.ScaleX, m.ScaleY)
	}

	surface := Rect{X: 40, Y: 30, W: 1280, H: 720}
	got := m.ToClient(surface.X+surface.W/2, surface.Y+surface.H/2, surface)
	if got != (Point{X: 480, Y: 270}) {
		t.Fatalf("center maps to %+v, want (480, 270)", got)
	}
}

func TestChooseMode(t *testing.T) {
	tests := []struct {
		name  string
		frame Size
		g     protocol.Geometry
		want  Mode
	}{
		{
			name:  "decorated window captured as client area",
			frame: Size{W: 1600, H: 900},
			g:     geom(1616, 939, 1600, 900, 8, 31),
			want:  ModeClient,
		},
		{
			name:  "undecorated window ties toward client",
			frame: Size{W: 1280, H: 720},
			g:     geom(1280, 720, 1280, 720, 0, 0),
			want:  ModeClient,
		},
		{
			name:  "frame shows the whole outer rectangle",
			frame: Size{W: 1000, H: 1000},
			g:     geom(1000, 1000, 1000, 500, 0, 0),
			want:  ModeOuter,
		},
		{
			name:  "client aspect clearly closer",
			frame: Size{W: 1000, H: 500},
			g:     geom(1000, 1000, 1000, 500, 0, 0),
			want:  ModeClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := ChooseMode(tt.frame, tt.g, DefaultTuning())
			if first != tt.want {
				t.Fatalf("ChooseMode = %s, want %s", first, tt.want)
			}
			for i := 0; i < 10; i++ {
				if got := ChooseMode(tt.frame, tt.g, DefaultTuning()); got != first {
					t.Fatalf("ChooseMode not deterministic: %s then %s", first, got)
				}
			}
		})
	}
}

func TestDecideBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		e        Errors
		hasFrame bool
		tuning   Tuning
		want     Mode
	}{
		{
			name:     "frame slack exactly at limit",
			e:        Errors{Outer: 0.5, Client: 0.6},
			hasFrame: true,
			tuning:   DefaultTuning(),
			want:     ModeClient,
		},
		{
			name:     "frame slack just past limit",
			e:        Errors{Outer: 0.5, Client: 0.61},
			hasFrame: true,
			tuning:   DefaultTuning(),
			want:     ModeOuter,
		},
		{
			name:   "same errors without frame ignore slack",
			e:      Errors{Outer: 0.5, Client: 0.6},
			tuning: DefaultTuning(),
			want:   ModeOuter,
		},
		{
			name:   "tie exactly at tolerance",
			e:      Errors{Outer: 0.75, Client: 1.0},
			tuning: Tuning{TieTolerance: 0.25},
			want:   ModeClient,
		},
		{
			name:   "just outside tolerance",
			e:      Errors{Outer: 0.74, Client: 1.0},
			tuning: Tuning{TieTolerance: 0.25},
			want:   ModeOuter,
		},
		{
			name:   "default tolerance tie",
			e:      Errors{Outer: 0.96, Client: 1.0},
			tuning: DefaultTuning(),
			want:   ModeClient,
		},
		{
			name:   "smaller error wins",
			e:      Errors{Outer: 0.2, Client: 0.1},
			tuning: DefaultTuning(),
			want:   ModeClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(tt.e, tt.hasFrame, tt.tuning); got != tt.want {
				t.Fatalf("decide(%+v, frame=%v) = %s, want %s", tt.e, tt.hasFrame, got, tt.want)
			}
		})
	}
}

func TestHasFrameThresholds(t *testing.T) {
	tuning := DefaultTuning()
	tests := []struct {
		offX, offY int
		want       bool
	}{
		{0, 0, false},
		{3, 15, false},
		{4, 0, true},
		{0, 16, true},
	}
	for _, tt := range tests {
		g := geom(800, 600, 780, 560, tt.offX, tt.offY)
		if got := HasFrame(g, tuning); got != tt.want {
			t.Errorf("HasFrame(off=%d,%d) = %v, want %v", tt.offX, tt.offY, got, tt.want)
		}
	}
}

func TestOuterModeAppliesClientOffset(t *testing.T) {
	frame := Size{W: 1000, H: 1000}
	m, err := New(frame, geom(1000, 1000, 1000, 500, 0, 0), DefaultTuning())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if m.Mode != ModeOuter {
		t.Fatalf("mode = %s, want outer", m.Mode)
	}

	g := geom(500, 500, 480, 440, 10, 50)
	m, err = New(Size{W: 500, H: 500}, g, DefaultTuning())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if m.Mode != ModeOuter {
		t.Fatalf("mode = %s, want outer", m.Mode)
	}
	surface := Rect{W: 500, H: 500}
	got := m.ToClient(110, 150, surface)
	if got != (Point{X: 100, Y: 100}) {
		t.Fatalf("ToClient = %+v, want (100, 100)", got)
	}
}

func TestRoundTripWithinOnePixel(t *testing.T) {
	frame := Size{W: 1366, H: 768}
	m, err := New(frame, geom(1382, 807, 1366, 768, 8, 31), DefaultTuning())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	surface := Rect{X: 12, Y: 48, W: 911, H: 512}
	pxX := surface.W / float64(frame.W) * m.ScaleX
	pxY := surface.H / float64(frame.H) * m.ScaleY

	for _, pt := range [][2]float64{{12, 48}, {300.4, 200.7}, {467.5, 303.25}, {920, 555}} {
		p := m.ToClient(pt[0], pt[1], surface)
		x, y := m.ToSurface(p, surface)
		if math.Abs(x-pt[0]) > pxX || math.Abs(y-pt[1]) > pxY {
			t.Fatalf("round trip of %v via %+v gave (%v, %v)", pt, p, x, y)
		}
	}
}

func TestClampOutsideSurface(t *testing.T) {
	frame := Size{W: 800, H: 600}
	m, err := New(frame, geom(816, 639, 800, 600, 8, 31), DefaultTuning())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	surface := Rect{X: 0, Y: 0, W: 400, H: 300}

	for _, pt := range [][2]float64{{-50, -50}, {1000, 1000}, {-1, 299}, {401, 0}} {
		p := m.ToClient(pt[0], pt[1], surface)
		if p.X < 0 || p.X > m.ClientW-1 || p.Y < 0 || p.Y > m.ClientH-1 {
			t.Fatalf("point %v mapped outside client: %+v", pt, p)
		}
	}
}

func TestNewRejectsDegenerateGeometry(t *testing.T) {
	if _, err := New(Size{W: 100, H: 100}, protocol.Geometry{}, DefaultTuning()); !errors.Is(err, ErrGeometryUnavailable) {
		t.Fatalf("error = %v, want ErrGeometryUnavailable", err)
	}
	if _, err := New(Size{}, geom(10, 10, 10, 10, 0, 0), DefaultTuning()); !errors.Is(err, ErrGeometryUnavailable) {
		t.Fatalf("error = %v, want ErrGeometryUnavailable", err)
	}
}

type fakeSource struct {
	g   protocol.Geometry
	err error
}

func (f fakeSource) Geometry(context.Context, protocol.WindowHandle) (protocol.Geometry, error) {
	return f.g, f.err
}

func TestResolveFallsBackToIdentity(t *testing.T) {
	frame := Size{W: 640, H: 480}
	m, err := Resolve(context.Background(), fakeSource{err: protocol.ErrBadHandle}, 7, frame, DefaultTuning(), Mapping{})
	if !errors.Is(err, protocol.ErrBadHandle) {
		t.Fatalf("Resolve error = %v, want ErrBadHandle", err)
	}
	if !m.Identity || m.ScaleX != 1 || m.ClientW != 640 || m.ClientH != 480 {
		t.Fatalf("Resolve fallback = %+v, want identity", m)
	}

	p := m.ToClient(320, 240, Rect{W: 640, H: 480})
	if p != (Point{X: 320, Y: 240}) {
		t.Fatalf("identity ToClient = %+v", p)
	}

	m, err = Resolve(context.Background(), fakeSource{g: geom(640, 480, 640, 480, 0, 0)}, 7, frame, DefaultTuning(), Mapping{})
	if err != nil || m.Identity {
		t.Fatalf("Resolve with geometry = %+v, %v", m, err)
	}
}

func TestResolveKeepsPreviousMapping(t *testing.T) {
	frame := Size{W: 1920, H: 1080}
	prev, err := New(frame, geom(960, 540, 960, 540, 0, 0), DefaultTuning())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m, err := Resolve(context.Background(), fakeSource{err: context.DeadlineExceeded}, 7, frame, DefaultTuning(), prev)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Resolve error = %v, want DeadlineExceeded", err)
	}
	if m != prev {
		t.Fatalf("Resolve fallback = %+v, want previous %+v", m, prev)
	}

	// an identity fallback is not worth keeping
	m, _ = Resolve(context.Background(), fakeSource{err: context.DeadlineExceeded}, 7, frame, DefaultTuning(), Identity(Size{W: 10, H: 10}))
	if !m.Identity || m.ClientW != 1920 {
		t.Fatalf("Resolve fallback = %+v, want identity for the current frame", m)
	}
}

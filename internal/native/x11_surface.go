package native

import (
	"fmt"
	"math"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

const (
	maxHitDepth = 8
	wheelNotch  = 120
)

// X11Surface drives windows on an X server. Synthetic events go through
// SendEvent; hardware clicks need the XTEST extension.
type X11Surface struct {
	xu   *xgbutil.XUtil
	root xproto.Window
	dpi  int

	mu    sync.Mutex
	xtest bool
}

// NewX11Surface connects to the display named by $DISPLAY.
func NewX11Surface() (*X11Surface, error) {
	log := logger.WithComponent("x11-surface")

	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	s := &X11Surface{
		xu:   xu,
		root: xu.RootWin(),
		dpi:  screenDPI(xu.Screen()),
	}
	if err := xtest.Init(xu.Conn()); err != nil {
		log.Warn().Err(err).Msg("XTEST unavailable, sendinput will fail")
	} else {
		s.xtest = true
	}

	log.Debug().Int("dpi", s.dpi).Bool("xtest", s.xtest).Msg("Connected to X server")
	return s, nil
}

func (s *X11Surface) Close() {
	s.xu.Conn().Close()
}

func screenDPI(screen *xproto.ScreenInfo) int {
	if screen == nil || screen.WidthInMillimeters == 0 {
		return 96
	}
	return int(math.Round(float64(screen.WidthInPixels) * 25.4 / float64(screen.WidthInMillimeters)))
}

func (s *X11Surface) Alive(h protocol.WindowHandle) bool {
	if h == 0 {
		return false
	}
	attrs, err := xproto.GetWindowAttributes(s.xu.Conn(), xproto.Window(h)).Reply()
	return err == nil && attrs != nil
}

// Geometry reports the client window plus the frame extents the window
// manager publishes. Without _NET_FRAME_EXTENTS the outer and client
// rectangles coincide.
func (s *X11Surface) Geometry(h protocol.WindowHandle) (protocol.Geometry, error) {
	conn := s.xu.Conn()
	win := xproto.Window(h)

	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return protocol.Geometry{}, fmt.Errorf("get geometry: %w", err)
	}
	origin, err := xproto.TranslateCoordinates(conn, win, s.root, 0, 0).Reply()
	if err != nil {
		return protocol.Geometry{}, fmt.Errorf("translate coordinates: %w", err)
	}

	var left, right, top, bottom int
	if ext, err := ewmh.FrameExtentsGet(s.xu, win); err == nil && ext != nil {
		left, right, top, bottom = ext.Left, ext.Right, ext.Top, ext.Bottom
	}

	w, hgt := int(geom.Width), int(geom.Height)
	return protocol.Geometry{
		Outer: protocol.Rect{
			X: int(origin.DstX) - left,
			Y: int(origin.DstY) - top,
			W: w + left + right,
			H: hgt + top + bottom,
		},
		Client: protocol.ClientArea{W: w, H: hgt, OffX: left, OffY: top},
		DPI:    s.dpi,
	}, nil
}

// ChildAt descends through mapped children containing the point. X only
// reports viewable children, so hidden controls are skipped.
func (s *X11Surface) ChildAt(h protocol.WindowHandle, x, y int) (Target, error) {
	conn := s.xu.Conn()
	top := xproto.Window(h)

	rootPt, err := xproto.TranslateCoordinates(conn, top, s.root, int16(x), int16(y)).Reply()
	if err != nil {
		return Target{}, fmt.Errorf("translate to root: %w", err)
	}
	t := Target{Window: h, X: x, Y: y, RootX: int(rootPt.DstX), RootY: int(rootPt.DstY)}

	r, err := xproto.TranslateCoordinates(conn, top, top, int16(x), int16(y)).Reply()
	if err != nil {
		return t, nil
	}
	win, cx, cy, child := top, int16(x), int16(y), r.Child
	for depth := 0; child != xproto.WindowNone && depth < maxHitDepth; depth++ {
		r, err = xproto.TranslateCoordinates(conn, win, child, cx, cy).Reply()
		if err != nil {
			break
		}
		win, cx, cy, child = child, r.DstX, r.DstY, r.Child
	}

	t.Window = protocol.WindowHandle(win)
	t.X, t.Y = int(cx), int(cy)
	return t, nil
}

func buttonDetail(b protocol.Button) (xproto.Button, uint16) {
	switch b {
	case protocol.ButtonRight:
		return 3, xproto.ButtonMask3
	case protocol.ButtonMiddle:
		return 2, xproto.ButtonMask2
	default:
		return 1, xproto.ButtonMask1
	}
}

// wheelDetail maps a signed delta to buttons 4-7 and a notch count.
func wheelDetail(delta int, horiz bool) (xproto.Button, int) {
	notches := int(math.Abs(float64(delta))) / wheelNotch
	if notches < 1 {
		notches = 1
	}
	switch {
	case !horiz && delta > 0:
		return 4, notches
	case !horiz:
		return 5, notches
	case delta < 0:
		return 6, notches
	default:
		return 7, notches
	}
}

func (s *X11Surface) Post(t Target, ev Event) error {
	switch ev.Kind {
	case EventMotion:
		return s.send(t, xproto.EventMaskPointerMotion, xproto.MotionNotifyEvent{
			Detail:     xproto.MotionNormal,
			Time:       xproto.TimeCurrentTime,
			Root:       s.root,
			Event:      xproto.Window(t.Window),
			RootX:      int16(t.RootX),
			RootY:      int16(t.RootY),
			EventX:     int16(t.X),
			EventY:     int16(t.Y),
			SameScreen: true,
		}.Bytes())
	case EventPress, EventDoublePress:
		detail, _ := buttonDetail(ev.Button)
		return s.send(t, xproto.EventMaskButtonPress, s.buttonEvent(t, detail, 0).Bytes())
	case EventRelease:
		detail, mask := buttonDetail(ev.Button)
		return s.send(t, xproto.EventMaskButtonRelease, releaseBytes(s.buttonEvent(t, detail, mask)))
	case EventWheel:
		detail, notches := wheelDetail(ev.Delta, ev.Horiz)
		for i := 0; i < notches; i++ {
			if err := s.send(t, xproto.EventMaskButtonPress, s.buttonEvent(t, detail, 0).Bytes()); err != nil {
				return err
			}
			if err := s.send(t, xproto.EventMaskButtonRelease, releaseBytes(s.buttonEvent(t, detail, 0))); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported event kind %d", ev.Kind)
	}
}

func (s *X11Surface) buttonEvent(t Target, detail xproto.Button, state uint16) xproto.ButtonPressEvent {
	return xproto.ButtonPressEvent{
		Detail:     detail,
		Time:       xproto.TimeCurrentTime,
		Root:       s.root,
		Event:      xproto.Window(t.Window),
		RootX:      int16(t.RootX),
		RootY:      int16(t.RootY),
		EventX:     int16(t.X),
		EventY:     int16(t.Y),
		State:      state,
		SameScreen: true,
	}
}

// releaseBytes encodes ev as a ButtonRelease. xgb encodes ButtonReleaseEvent
// through the press encoder, which writes the ButtonPress code.
func releaseBytes(ev xproto.ButtonPressEvent) []byte {
	raw := ev.Bytes()
	raw[0] = xproto.ButtonRelease
	return raw
}

func (s *X11Surface) send(t Target, mask int, raw []byte) error {
	return xproto.SendEventChecked(s.xu.Conn(), true, xproto.Window(t.Window), uint32(mask), string(raw)).Check()
}

// InjectClick moves the real pointer, so concurrent calls are serialized.
func (s *X11Surface) InjectClick(h protocol.WindowHandle, x, y int) error {
	if !s.xtest {
		return ErrNoInjection
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conn := s.xu.Conn()
	pt, err := xproto.TranslateCoordinates(conn, xproto.Window(h), s.root, int16(x), int16(y)).Reply()
	if err != nil {
		return fmt.Errorf("translate to root: %w", err)
	}
	old, err := xproto.QueryPointer(conn, s.root).Reply()
	if err != nil {
		return fmt.Errorf("query pointer: %w", err)
	}

	if err := xproto.WarpPointerChecked(conn, xproto.WindowNone, s.root, 0, 0, 0, 0, pt.DstX, pt.DstY).Check(); err != nil {
		return fmt.Errorf("warp pointer: %w", err)
	}
	defer xproto.WarpPointer(conn, xproto.WindowNone, s.root, 0, 0, 0, 0, old.RootX, old.RootY)

	if err := xtest.FakeInputChecked(conn, xproto.ButtonPress, 1, 0, s.root, 0, 0, 0).Check(); err != nil {
		return fmt.Errorf("fake press: %w", err)
	}
	if err := xtest.FakeInputChecked(conn, xproto.ButtonRelease, 1, 0, s.root, 0, 0, 0).Check(); err != nil {
		return fmt.Errorf("fake release: %w", err)
	}
	return nil
}

func (s *X11Surface) RestoreIfMinimized(h protocol.WindowHandle) error {
	state, err := icccm.WmStateGet(s.xu, xproto.Window(h))
	if err != nil || state == nil || state.State != icccm.StateIconic {
		return nil
	}
	xwindow.New(s.xu, xproto.Window(h)).Map()
	return nil
}

func (s *X11Surface) IsForeground(h protocol.WindowHandle) bool {
	active, err := ewmh.ActiveWindowGet(s.xu)
	return err == nil && active == xproto.Window(h)
}

// Lower asks the window manager first; frames it does not manage are
// restacked directly.
func (s *X11Surface) Lower(h protocol.WindowHandle) error {
	win := xproto.Window(h)
	if err := ewmh.RestackWindowExtra(s.xu, win, xproto.StackModeBelow, xproto.WindowNone, 2); err == nil {
		return nil
	}
	xwindow.New(s.xu, win).Stack(xproto.StackModeBelow)
	return nil
}

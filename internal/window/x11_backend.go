package window

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/shirou/gopsutil/v3/process"
)

// X11Resolver implements Resolver using EWMH with a QueryTree fallback.
type X11Resolver struct {
	xu   *xgbutil.XUtil
	root xproto.Window

	mu    sync.Mutex
	names map[int]string
}

// NewX11Resolver connects to the display named by $DISPLAY.
func NewX11Resolver() (*X11Resolver, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	return &X11Resolver{
		xu:    xu,
		root:  xu.RootWin(),
		names: make(map[int]string),
	}, nil
}

// Close closes the X11 connection
func (r *X11Resolver) Close() error {
	r.xu.Conn().Close()
	return nil
}

// ListTop returns all titled windows using EWMH _NET_CLIENT_LIST with QueryTree fallback
func (r *X11Resolver) ListTop() ([]WindowInfo, error) {
	log := logger.WithComponent("x11-resolver")

	clients, err := ewmh.ClientListGet(r.xu)
	if err != nil || len(clients) == 0 {
		log.Debug().Err(err).Msg("ListTop: EWMH client list unavailable, falling back to QueryTree")
		tree, qerr := xproto.QueryTree(r.xu.Conn(), r.root).Reply()
		if qerr != nil {
			return nil, fmt.Errorf("failed to query window tree: %w", qerr)
		}
		clients = tree.Children
	}

	active, _ := ewmh.ActiveWindowGet(r.xu)

	windows := make([]WindowInfo, 0, len(clients))
	skipped := 0
	for _, win := range clients {
		info := r.windowInfo(win)
		if info.Title == "" {
			skipped++
			continue
		}
		info.Focused = win == active
		windows = append(windows, info)
	}

	log.Debug().
		Int("found", len(windows)).
		Int("skipped_untitled", skipped).
		Msg("ListTop: summary")
	return windows, nil
}

// FindByTitle returns windows whose title contains substr.
func (r *X11Resolver) FindByTitle(substr string) ([]WindowInfo, error) {
	windows, err := r.ListTop()
	if err != nil {
		return nil, err
	}
	return FilterByTitle(windows, substr), nil
}

// FindByPID returns the largest titled window owned by pid.
func (r *X11Resolver) FindByPID(pid int) (protocol.WindowHandle, error) {
	windows, err := r.ListTop()
	if err != nil {
		return 0, err
	}
	w, ok := MainWindow(windows, pid)
	if !ok {
		return 0, fmt.Errorf("%w: no window for pid %d", ErrNotFound, pid)
	}
	return w.Handle, nil
}

// EnsureCapturable maps an iconic window and restacks it below its siblings.
// The window manager is asked first so that it does not steal focus.
func (r *X11Resolver) EnsureCapturable(h protocol.WindowHandle) error {
	log := logger.WithComponent("x11-resolver")
	win := xproto.Window(h)

	if _, err := xproto.GetWindowAttributes(r.xu.Conn(), win).Reply(); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBadHandle, err)
	}

	if st, err := icccm.WmStateGet(r.xu, win); err == nil && st != nil && st.State == icccm.StateIconic {
		if err := ewmh.WmStateReq(r.xu, win, ewmh.StateRemove, "_NET_WM_STATE_HIDDEN"); err != nil {
			log.Debug().Err(err).Msg("EWMH unhide request failed")
		}
		xwindow.New(r.xu, win).Map()
		log.Debug().Str("hwnd", h.String()).Msg("Restored minimized window")
	}

	if active, err := ewmh.ActiveWindowGet(r.xu); err == nil && active == win {
		return nil
	}
	if err := ewmh.RestackWindowExtra(r.xu, win, xproto.StackModeBelow, xproto.WindowNone, 2); err != nil {
		xwindow.New(r.xu, win).Stack(xproto.StackModeBelow)
	}
	return nil
}

func (r *X11Resolver) windowInfo(win xproto.Window) WindowInfo {
	info := WindowInfo{Handle: protocol.WindowHandle(win), Desktop: -1}

	if title, err := ewmh.WmNameGet(r.xu, win); err == nil && title != "" {
		info.Title = title
	} else if title, err := icccm.WmNameGet(r.xu, win); err == nil {
		info.Title = title
	}

	if class, err := icccm.WmClassGet(r.xu, win); err == nil && class != nil {
		info.Class = class.Class
		if info.Class == "" {
			info.Class = class.Instance
		}
	}

	if pid, err := ewmh.WmPidGet(r.xu, win); err == nil {
		info.PID = int(pid)
		info.Process = r.processName(info.PID)
	}

	if d, err := ewmh.WmDesktopGet(r.xu, win); err == nil && d != 0xFFFFFFFF {
		info.Desktop = int(d)
	}

	if st, err := icccm.WmStateGet(r.xu, win); err == nil && st != nil {
		info.Minimized = st.State == icccm.StateIconic
	}

	if geom, err := xwindow.New(r.xu, win).DecorGeometry(); err == nil {
		info.Geometry = Geometry{X: geom.X(), Y: geom.Y(), Width: geom.Width(), Height: geom.Height()}
	}
	return info
}

// processName caches executable names by pid.
func (r *X11Resolver) processName(pid int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.names[pid]; ok {
		return name
	}
	name := ""
	if p, err := process.NewProcess(int32(pid)); err == nil {
		name, _ = p.Name()
	}
	r.names[pid] = name
	return name
}

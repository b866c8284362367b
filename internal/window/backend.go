package window

import (
	"errors"
	"sort"
	"strings"

	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

// ErrNotFound is returned when no window matches a lookup.
var ErrNotFound = errors.New("window not found")

// Geometry represents window geometry
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowInfo describes one top-level window.
type WindowInfo struct {
	Handle    protocol.WindowHandle `json:"hwnd"`
	Title     string                `json:"title"`
	Class     string                `json:"class"`
	PID       int                   `json:"pid"`
	Process   string                `json:"process,omitempty"`
	Focused   bool                  `json:"focused"`
	Minimized bool                  `json:"minimized"`
	Geometry  Geometry              `json:"geometry"`
	// Desktop is the virtual desktop number; -1 means all desktops.
	Desktop int `json:"desktop"`
}

// Resolver finds mirror targets among the top-level windows.
type Resolver interface {
	// ListTop returns every titled top-level window.
	ListTop() ([]WindowInfo, error)
	// FindByTitle returns windows whose title contains substr, case-insensitively.
	FindByTitle(substr string) ([]WindowInfo, error)
	// FindByPID returns the main window of a process.
	FindByPID(pid int) (protocol.WindowHandle, error)
	// EnsureCapturable restores a minimized window and lowers it to the
	// bottom of the stack without giving it focus.
	EnsureCapturable(h protocol.WindowHandle) error
	Close() error
}

// FilterByTitle keeps windows whose title contains substr, ignoring case. An
// empty substr keeps every window.
func FilterByTitle(windows []WindowInfo, substr string) []WindowInfo {
	needle := strings.ToLower(strings.TrimSpace(substr))
	out := make([]WindowInfo, 0, len(windows))
	for _, w := range windows {
		if needle == "" || strings.Contains(strings.ToLower(w.Title), needle) {
			out = append(out, w)
		}
	}
	return out
}

// MainWindow picks the main window of pid: the largest titled window, the
// earliest listed on ties.
func MainWindow(windows []WindowInfo, pid int) (WindowInfo, bool) {
	var best WindowInfo
	found := false
	for _, w := range windows {
		if w.PID != pid || w.Title == "" {
			continue
		}
		if !found || area(w) > area(best) {
			best, found = w, true
		}
	}
	return best, found
}

func area(w WindowInfo) int {
	return w.Geometry.Width * w.Geometry.Height
}

// PIDsByTitle returns the distinct non-zero pids owning a window whose title
// contains substr, in ascending order.
func PIDsByTitle(windows []WindowInfo, substr string) []int {
	seen := map[int]bool{}
	var pids []int
	for _, w := range FilterByTitle(windows, substr) {
		if w.PID > 0 && !seen[w.PID] {
			seen[w.PID] = true
			pids = append(pids, w.PID)
		}
	}
	sort.Ints(pids)
	return pids
}

// Lookup names a target the way a user gives it: a handle, a pid or a title
// fragment, tried in that order.
type Lookup struct {
	Handle protocol.WindowHandle
	PID    int
	Title  string
}

// Resolve applies l against r and returns the chosen window handle.
func Resolve(r Resolver, l Lookup) (protocol.WindowHandle, error) {
	if l.Handle != 0 {
		return l.Handle, nil
	}
	if l.PID > 0 {
		if h, err := r.FindByPID(l.PID); err == nil {
			return h, nil
		} else if l.Title == "" {
			return 0, err
		}
	}
	if strings.TrimSpace(l.Title) == "" {
		return 0, ErrNotFound
	}
	matches, err := r.FindByTitle(l.Title)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, ErrNotFound
	}
	return matches[0].Handle, nil
}

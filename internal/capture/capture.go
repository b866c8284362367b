package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
)

// ErrSourceNotFound is returned for an id that names no capturable window.
var ErrSourceNotFound = errors.New("capture source not found")

const sourcePrefix = "window:"

// Source is a capturable window.
type Source struct {
	ID     string                `json:"id"`
	Name   string                `json:"name"`
	Handle protocol.WindowHandle `json:"hwnd"`
	Width  int                   `json:"width"`
	Height int                   `json:"height"`
}

// SourceID returns the source id of a window handle.
func SourceID(h protocol.WindowHandle) string {
	return sourcePrefix + h.String()
}

// ParseSourceID accepts "window:0x1a00007" or a bare handle in hex or decimal.
func ParseSourceID(id string) (protocol.WindowHandle, error) {
	s := strings.TrimPrefix(strings.TrimSpace(id), sourcePrefix)
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: %q", ErrSourceNotFound, id)
	}
	return protocol.WindowHandle(v), nil
}

// Grabber captures the current contents of a window.
type Grabber interface {
	// Grab returns one frame. A window that no longer exists yields an error
	// matching protocol.ErrBadHandle.
	Grab(h protocol.WindowHandle) (*image.RGBA, error)
}

// Provider lists capture sources and opens frame streams on them.
type Provider interface {
	ListSources() ([]Source, error)
	Open(ctx context.Context, id string) (*Stream, error)
}

// Lister is the part of window.Resolver the provider needs.
type Lister interface {
	ListTop() ([]window.WindowInfo, error)
}

// WindowProvider offers every titled top-level window as a source.
type WindowProvider struct {
	lister  Lister
	grabber Grabber
	opts    StreamOptions
}

func NewWindowProvider(lister Lister, grabber Grabber, opts StreamOptions) *WindowProvider {
	return &WindowProvider{lister: lister, grabber: grabber, opts: opts}
}

func (p *WindowProvider) ListSources() ([]Source, error) {
	windows, err := p.lister.ListTop()
	if err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(windows))
	for _, w := range windows {
		if w.Minimized {
			continue
		}
		sources = append(sources, Source{
			ID:     SourceID(w.Handle),
			Name:   w.Title,
			Handle: w.Handle,
			Width:  w.Geometry.Width,
			Height: w.Geometry.Height,
		})
	}
	return sources, nil
}

// Open grabs a first frame so the stream knows its frame size, then starts
// pumping frames until ctx is done or the stream is closed.
func (p *WindowProvider) Open(ctx context.Context, id string) (*Stream, error) {
	h, err := ParseSourceID(id)
	if err != nil {
		return nil, err
	}
	return OpenStream(ctx, Source{ID: SourceID(h), Handle: h}, p.grabber, p.opts)
}

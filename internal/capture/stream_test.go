package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
)

type scriptGrabber struct {
	mu    sync.Mutex
	sizes []mapping.Size
	err   error
	calls int
}

func (g *scriptGrabber) Grab(protocol.WindowHandle) (*image.RGBA, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	sz := g.sizes[0]
	if len(g.sizes) > 1 {
		g.sizes = g.sizes[1:]
	}
	return image.NewRGBA(image.Rect(0, 0, sz.W, sz.H)), nil
}

func (g *scriptGrabber) setErr(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

func TestParseSourceID(t *testing.T) {
	tests := []struct {
		in      string
		want    protocol.WindowHandle
		wantErr bool
	}{
		{"window:0x1a00007", 0x1a00007, false},
		{"0x20", 0x20, false},
		{"42", 42, false},
		{"window:0", 0, true},
		{"screen:1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSourceID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSourceID(%q) = %v, %v", tt.in, got, err)
		}
	}
	if id := SourceID(0x1a00007); id != "window:0x1a00007" {
		t.Fatalf("SourceID = %q", id)
	}
}

func TestStreamReportsFrameSize(t *testing.T) {
	g := &scriptGrabber{sizes: []mapping.Size{{W: 960, H: 540}, {W: 1280, H: 720}}}
	s, err := OpenStream(context.Background(), Source{Handle: 0x10}, g, StreamOptions{FPS: 4})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()

	if got := s.FrameSize(); got != (mapping.Size{W: 960, H: 540}) {
		t.Fatalf("initial size = %+v", got)
	}
	first := <-s.Frames()
	if first.Bounds().Dx() != 960 {
		t.Fatalf("first frame width = %d", first.Bounds().Dx())
	}

	select {
	case img := <-s.Frames():
		if img.Bounds().Dx() != 1280 {
			t.Fatalf("next frame width = %d", img.Bounds().Dx())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from pump")
	}
	if got := s.FrameSize(); got != (mapping.Size{W: 1280, H: 720}) {
		t.Fatalf("size after resize = %+v", got)
	}
}

func TestStreamEndsWhenWindowGone(t *testing.T) {
	g := &scriptGrabber{sizes: []mapping.Size{{W: 10, H: 10}}}
	s, err := OpenStream(context.Background(), Source{Handle: 0x10}, g, StreamOptions{FPS: 60})
	if err != nil {
		t.Fatal(err)
	}
	g.setErr(protocol.ErrBadHandle)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
	if !errors.Is(s.Err(), protocol.ErrBadHandle) {
		t.Fatalf("Err = %v", s.Err())
	}
	for range s.Frames() {
	}
}

func TestOpenStreamFailsOnFirstGrab(t *testing.T) {
	g := &scriptGrabber{err: errors.New("not viewable")}
	if _, err := OpenStream(context.Background(), Source{Handle: 0x10}, g, StreamOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCloseStopsPump(t *testing.T) {
	g := &scriptGrabber{sizes: []mapping.Size{{W: 10, H: 10}}}
	s, err := OpenStream(context.Background(), Source{Handle: 0x10}, g, StreamOptions{FPS: 60})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if s.Err() != nil {
		t.Fatalf("Err after Close = %v", s.Err())
	}
	g.mu.Lock()
	calls := g.calls
	g.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls != calls {
		t.Fatal("grabber called after Close")
	}
}

type staticLister []window.WindowInfo

func (l staticLister) ListTop() ([]window.WindowInfo, error) { return l, nil }

func TestWindowProviderListSources(t *testing.T) {
	p := NewWindowProvider(staticLister{
		{Handle: 0x10, Title: "Game", Geometry: window.Geometry{Width: 800, Height: 600}},
		{Handle: 0x11, Title: "Hidden", Minimized: true},
	}, &scriptGrabber{sizes: []mapping.Size{{W: 1, H: 1}}}, StreamOptions{})

	sources, err := p.ListSources()
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 || sources[0].ID != "window:0x10" || sources[0].Width != 800 {
		t.Fatalf("sources = %+v", sources)
	}

	s, err := p.Open(context.Background(), sources[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Source().Handle != 0x10 {
		t.Fatalf("source handle = %v", s.Source().Handle)
	}
}

func TestConvertBGRA(t *testing.T) {
	img := convertBGRA([]byte{1, 2, 3, 0, 4, 5, 6, 0}, 2, 1, 24)
	want := []uint8{3, 2, 1, 255, 6, 5, 4, 255}
	for i, v := range want {
		if img.Pix[i] != v {
			t.Fatalf("Pix = %v, want %v", img.Pix, want)
		}
	}
	short := convertBGRA([]byte{1, 2, 3, 0}, 2, 1, 24)
	if short.Pix[4] != 0 || short.Pix[3] != 255 {
		t.Fatalf("short buffer Pix = %v", short.Pix)
	}
}

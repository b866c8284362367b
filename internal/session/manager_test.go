package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/audio"
	"github.com/bryanchriswhite/FocusRelay/internal/capture"
	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
)

type fakeResolver struct {
	windows []window.WindowInfo

	mu       sync.Mutex
	prepared []protocol.WindowHandle
}

func (r *fakeResolver) ListTop() ([]window.WindowInfo, error) { return r.windows, nil }

func (r *fakeResolver) FindByTitle(substr string) ([]window.WindowInfo, error) {
	return window.FilterByTitle(r.windows, substr), nil
}

func (r *fakeResolver) FindByPID(pid int) (protocol.WindowHandle, error) {
	w, ok := window.MainWindow(r.windows, pid)
	if !ok {
		return 0, window.ErrNotFound
	}
	return w.Handle, nil
}

func (r *fakeResolver) EnsureCapturable(h protocol.WindowHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prepared = append(r.prepared, h)
	return nil
}

func (r *fakeResolver) Close() error { return nil }

type fakeGrabber struct {
	gone atomic.Bool
}

func (g *fakeGrabber) Grab(h protocol.WindowHandle) (*image.RGBA, error) {
	if g.gone.Load() {
		return nil, protocol.ErrBadHandle
	}
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

type countingSink struct {
	frames atomic.Int64
}

func (s *countingSink) Pump(ctx context.Context, frames <-chan *image.RGBA) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-frames:
			if !ok {
				return
			}
			s.frames.Add(1)
		}
	}
}

type fakeRouter struct {
	mu     sync.Mutex
	routed map[int]string
}

func (r *fakeRouter) ListOutputDevices(ctx context.Context) ([]audio.Device, error) {
	return []audio.Device{{ID: "speakers", Default: true}, {ID: "headset"}}, nil
}

func (r *fakeRouter) RouteProcess(ctx context.Context, pid int, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed[pid] = deviceID
	return nil
}

func (r *fakeRouter) Close() error { return nil }

type fakeIdle struct {
	held atomic.Int32
}

func (f *fakeIdle) Inhibit(reason string) (func(), error) {
	f.held.Add(1)
	return func() { f.held.Add(-1) }, nil
}

type managerHarness struct {
	m        *Manager
	resolver *fakeResolver
	grabber  *fakeGrabber
	sink     *countingSink
	router   *fakeRouter
	ka       *fakeKeepalive
	idle     *fakeIdle
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	h := &managerHarness{
		resolver: &fakeResolver{windows: []window.WindowInfo{
			{Handle: 0x10, Title: "Editor", PID: 100, Geometry: window.Geometry{Width: 800, Height: 600}},
			{Handle: 0x20, Title: "Game Client", PID: 200, Geometry: window.Geometry{Width: 1280, Height: 720}},
		}},
		grabber: &fakeGrabber{},
		sink:    &countingSink{},
		router:  &fakeRouter{routed: map[int]string{}},
		ka:      &fakeKeepalive{},
		idle:    &fakeIdle{},
	}
	cfg := config.Defaults()
	cfg.Capture.FPS = 30
	h.m = NewManager(Deps{
		Capture:   capture.NewWindowProvider(h.resolver, h.grabber, capture.StreamOptions{FPS: cfg.Capture.FPS}),
		Output:    h.sink,
		Worker:    newFakeWorker(),
		Keepalive: h.ka,
		Windows:   h.resolver,
		Audio:     h.router,
		Idle:      h.idle,
		Settings:  func() *config.Config { return cfg },
	})
	t.Cleanup(func() { h.m.Stop() })
	return h
}

func TestManagerStartByTitle(t *testing.T) {
	h := newManagerHarness(t)

	ctrl, err := h.m.Start(context.Background(), Request{Title: "game", AudioDeviceID: "headset"})
	if err != nil {
		t.Fatal(err)
	}
	target := ctrl.Target()
	if target.Handle != 0x20 || target.PID != 200 || target.Title != "Game Client" {
		t.Fatalf("target = %+v", target)
	}
	if len(h.resolver.prepared) != 1 || h.resolver.prepared[0] != 0x20 {
		t.Fatalf("prepared = %v", h.resolver.prepared)
	}
	if h.m.Current() != ctrl {
		t.Fatal("Current should return the new session")
	}
	if got := h.router.routed[200]; got != "headset" {
		t.Fatalf("routed = %v", h.router.routed)
	}
	if enabled, _ := h.ka.counts(); enabled != 1 {
		t.Fatalf("keepalive enabled %d times", enabled)
	}
	waitFor(t, "frames", func() bool { return h.sink.frames.Load() > 0 })
}

func TestManagerReplacesSession(t *testing.T) {
	h := newManagerHarness(t)

	first, err := h.m.Start(context.Background(), Request{Handle: 0x10})
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.m.Start(context.Background(), Request{PID: 200})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first session still running")
	}
	if h.m.Current() != second {
		t.Fatal("second session should be current")
	}
	if !h.m.Stop() || h.m.Stop() {
		t.Fatal("Stop should report a running session exactly once")
	}
}

func TestManagerEndsWhenWindowCloses(t *testing.T) {
	h := newManagerHarness(t)

	ctrl, err := h.m.Start(context.Background(), Request{Handle: 0x10})
	if err != nil {
		t.Fatal(err)
	}
	h.grabber.gone.Store(true)

	select {
	case <-ctrl.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end")
	}
	if !errors.Is(ctrl.Err(), ErrTargetGone) {
		t.Fatalf("Err() = %v", ctrl.Err())
	}
	if h.m.Current() != nil {
		t.Fatal("ended session should not be current")
	}
}

func TestManagerUnknownTarget(t *testing.T) {
	h := newManagerHarness(t)
	if _, err := h.m.Start(context.Background(), Request{Title: "nothing like this"}); !errors.Is(err, window.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestApplyProfileFallsBackToTitle(t *testing.T) {
	h := newManagerHarness(t)

	ctrl, err := h.m.ApplyProfile(context.Background(), config.Profile{
		Name:        "editor",
		WindowTitle: "editor",
		HwndHint:    0x999,
		PidHint:     4242,
	})
	if err != nil {
		t.Fatal(err)
	}
	if ctrl.Target().Handle != 0x10 {
		t.Fatalf("target = %+v", ctrl.Target())
	}
}

func TestManagerHoldsIdleInhibition(t *testing.T) {
	h := newManagerHarness(t)

	ctrl, err := h.m.Start(context.Background(), Request{Handle: 0x10})
	if err != nil {
		t.Fatal(err)
	}
	if h.idle.held.Load() != 1 {
		t.Fatalf("held = %d", h.idle.held.Load())
	}

	h.m.Stop()
	<-ctrl.Done()
	waitFor(t, "inhibition released", func() bool { return h.idle.held.Load() == 0 })
}

func TestManagerConcurrentStartsKeepOneSession(t *testing.T) {
	h := newManagerHarness(t)

	const n = 8
	ctrls := make([]*Controller, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := "Editor"
			if i%2 == 1 {
				title = "Game"
			}
			c, err := h.m.Start(context.Background(), Request{Title: title})
			if err != nil {
				t.Errorf("Start: %v", err)
				return
			}
			ctrls[i] = c
		}(i)
	}
	wg.Wait()

	current := h.m.Current()
	if current == nil {
		t.Fatal("no current session")
	}
	running := 0
	for _, c := range ctrls {
		if c == nil {
			continue
		}
		select {
		case <-c.Done():
		default:
			running++
			if c != current {
				t.Errorf("session %s still running but not current", c.ID())
			}
		}
	}
	if running != 1 {
		t.Fatalf("running sessions = %d, want 1", running)
	}
	waitFor(t, "a single idle inhibition", func() bool { return h.idle.held.Load() == 1 })
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/FocusRelay/internal/capture"
	"github.com/bryanchriswhite/FocusRelay/internal/clock"
	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/gesture"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/output"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/session"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
	"github.com/bryanchriswhite/FocusRelay/internal/worker"
)

type fakeWorker struct {
	mu   sync.Mutex
	ops  []protocol.Op
	fail map[protocol.Op]error
}

func (f *fakeWorker) record(op protocol.Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	return f.fail[op]
}

func (f *fakeWorker) seen(op protocol.Op) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.ops {
		if o == op {
			return true
		}
	}
	return false
}

func (f *fakeWorker) Go(op protocol.Op, p protocol.Payload, timeout time.Duration) *worker.Call {
	if err := f.record(op); err != nil {
		return worker.Resolved(op, p, nil, err)
	}
	resp := protocol.OKResponse(1)
	return worker.Resolved(op, p, &resp, nil)
}

func (f *fakeWorker) Invoke(ctx context.Context, op protocol.Op, p protocol.Payload, timeout time.Duration) (*protocol.Response, error) {
	return f.Go(op, p, timeout).Wait(ctx)
}

func (f *fakeWorker) Geometry(ctx context.Context, h protocol.WindowHandle) (protocol.Geometry, error) {
	if h == 0xdead {
		return protocol.Geometry{}, protocol.ErrBadHandle
	}
	return protocol.Geometry{
		Outer:  protocol.Rect{X: 100, Y: 100, W: 1920, H: 1080},
		Client: protocol.ClientArea{W: 1920, H: 1080},
		DPI:    96,
	}, nil
}

func (f *fakeWorker) Stats() worker.Stats {
	return worker.Stats{State: "ready", PID: 4321}
}

type fakeResolver struct {
	windows []window.WindowInfo
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
	if h == 0xdead {
		return protocol.ErrBadHandle
	}
	return nil
}

func (r *fakeResolver) Close() error { return nil }

type staticGrabber struct{}

func (staticGrabber) Grab(h protocol.WindowHandle) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 960, 540)), nil
}

type testServer struct {
	*httptest.Server
	worker *fakeWorker
	config *config.Manager
	ka     *keepalive.Scheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfgMgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	w := &fakeWorker{fail: map[protocol.Op]error{}}
	resolver := &fakeResolver{windows: []window.WindowInfo{
		{Handle: 0x10, Title: "Editor", PID: 100, Geometry: window.Geometry{Width: 800, Height: 600}},
		{Handle: 0x20, Title: "Game Client", PID: 200, Geometry: window.Geometry{Width: 1920, Height: 1080}},
		{Handle: 0x21, Title: "Game Launcher", PID: 200, Geometry: window.Geometry{Width: 400, Height: 300}},
	}}
	provider := capture.NewWindowProvider(resolver, staticGrabber{}, capture.StreamOptions{FPS: 10})
	ka := keepalive.New(w, clock.NewFake(time.Now()), 0)
	stream := output.NewMJPEGOutput(output.Config{MaxWidth: 320})
	if err := stream.Start(); err != nil {
		t.Fatal(err)
	}

	sessions := session.NewManager(session.Deps{
		Capture:   provider,
		Output:    stream,
		Worker:    w,
		Keepalive: ka,
		Windows:   resolver,
		Settings:  cfgMgr.Get,
	})

	srv := NewServer(Deps{
		Config:    cfgMgr,
		Sessions:  sessions,
		Windows:   resolver,
		Capture:   provider,
		Worker:    w,
		Keepalive: ka,
		Stream:    stream,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		sessions.Stop()
		ka.Close()
		stream.Stop()
		ts.Close()
	})
	return &testServer{Server: ts, worker: w, config: cfgMgr, ka: ka}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var body map[string]string
	if code := ts.do(t, "GET", "/api/health", nil, &body); code != http.StatusOK || body["status"] != "healthy" || body["output"] == "" {
		t.Fatalf("health = %d %v", code, body)
	}
}

func TestWindows(t *testing.T) {
	ts := newTestServer(t)

	var all []window.WindowInfo
	if code := ts.do(t, "GET", "/api/windows", nil, &all); code != http.StatusOK || len(all) != 3 {
		t.Fatalf("list = %d %d", code, len(all))
	}

	var game []window.WindowInfo
	ts.do(t, "GET", "/api/windows?title=GAME", nil, &game)
	if len(game) != 2 {
		t.Fatalf("title filter = %+v", game)
	}

	var byPID map[string]int
	ts.do(t, "GET", "/api/windows?pid=200", nil, &byPID)
	if byPID["hwnd"] != 0x20 {
		t.Fatalf("main window = %v", byPID)
	}

	var pids []int
	ts.do(t, "GET", "/api/windows/pids?title=game", nil, &pids)
	if len(pids) != 1 || pids[0] != 200 {
		t.Fatalf("pids = %v", pids)
	}

	if code := ts.do(t, "GET", "/api/windows?pid=999", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown pid = %d", code)
	}
}

func TestGeometryWithMapping(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Geometry protocol.Geometry `json:"geometry"`
		Mapping  mapping.Mapping   `json:"mapping"`
	}
	if code := ts.do(t, "GET", "/api/windows/0x20/geometry?w=960&h=540", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Geometry.Client.W != 1920 || body.Mapping.ScaleX != 2 {
		t.Fatalf("body = %+v", body)
	}

	if code := ts.do(t, "GET", "/api/windows/0xdead/geometry", nil, nil); code != http.StatusGone {
		t.Fatalf("gone window = %d", code)
	}
	if code := ts.do(t, "GET", "/api/windows/nope/geometry", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad handle = %d", code)
	}
}

func TestMousePassthrough(t *testing.T) {
	ts := newTestServer(t)

	var resp protocol.Response
	code := ts.do(t, "POST", "/api/mouse/smart", protocol.Payload{Hwnd: 0x20, X: 5, Y: 5, Button: protocol.ButtonLeft}, &resp)
	if code != http.StatusOK || !resp.OK || !ts.worker.seen(protocol.OpSmart) {
		t.Fatalf("click = %d %+v", code, resp)
	}

	if code := ts.do(t, "POST", "/api/mouse/teleport", protocol.Payload{Hwnd: 0x20}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown op = %d", code)
	}

	ts.worker.mu.Lock()
	ts.worker.fail[protocol.OpWheel] = &worker.RemoteError{Op: protocol.OpWheel, Message: protocol.BadHandleMessage}
	ts.worker.mu.Unlock()
	var failure map[string]string
	code = ts.do(t, "POST", "/api/mouse/wheel", protocol.Payload{Hwnd: 0x20, Delta: 120}, &failure)
	if code != http.StatusGone || failure["kind"] != "target_gone" {
		t.Fatalf("wheel = %d %v", code, failure)
	}
}

func TestKeepalive(t *testing.T) {
	ts := newTestServer(t)

	var entry keepaliveEntry
	code := ts.do(t, "POST", "/api/keepalive", keepaliveRequest{Hwnd: 0x20, Enable: true, PeriodMs: 200}, &entry)
	if code != http.StatusOK || entry.PeriodMs != 1000 || entry.X != 2 {
		t.Fatalf("enable = %d %+v", code, entry)
	}

	var active []keepaliveEntry
	ts.do(t, "GET", "/api/keepalive", nil, &active)
	if len(active) != 1 || active[0].Hwnd != 0x20 {
		t.Fatalf("active = %+v", active)
	}

	var removed map[string]bool
	ts.do(t, "POST", "/api/keepalive", keepaliveRequest{Hwnd: 0x20}, &removed)
	if !removed["removed"] || len(ts.ka.Active()) != 0 {
		t.Fatalf("disable = %v", removed)
	}
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t)

	var cfg config.Config
	code := ts.do(t, "PATCH", "/api/settings", map[string]interface{}{
		"viewer": map[string]interface{}{"opacity": 0.5},
	}, &cfg)
	if code != http.StatusOK || cfg.Viewer.Opacity != 0.5 {
		t.Fatalf("patch = %d %+v", code, cfg.Viewer)
	}
	if ts.config.Get().Viewer.Opacity != 0.5 {
		t.Fatal("patch not persisted in manager")
	}

	code = ts.do(t, "PATCH", "/api/settings", map[string]interface{}{"server_port": 0}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("invalid patch = %d", code)
	}
}

func TestProfilesAndApply(t *testing.T) {
	ts := newTestServer(t)

	var saved config.Profile
	code := ts.do(t, "POST", "/api/profiles", config.Profile{Name: "Game", WindowTitle: "game client"}, &saved)
	if code != http.StatusOK || saved.ID == "" {
		t.Fatalf("save = %d %+v", code, saved)
	}

	var byName config.Profile
	if code := ts.do(t, "GET", "/api/profiles/game", nil, &byName); code != http.StatusOK || byName.ID != saved.ID {
		t.Fatalf("lookup by name = %d %+v", code, byName)
	}

	var info session.Info
	if code := ts.do(t, "POST", "/api/profiles/"+saved.ID+"/apply", nil, &info); code != http.StatusCreated {
		t.Fatalf("apply = %d", code)
	}
	if info.Target.Handle != 0x20 {
		t.Fatalf("applied target = %+v", info.Target)
	}
	if ts.config.Get().ActiveProfileID != saved.ID {
		t.Fatal("profile not marked active")
	}

	if code := ts.do(t, "DELETE", "/api/profiles/"+saved.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code := ts.do(t, "GET", "/api/profiles/"+saved.ID, nil, nil); code != http.StatusNotFound {
		t.Fatalf("deleted profile = %d", code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	if code := ts.do(t, "GET", "/api/session", nil, nil); code != http.StatusNotFound {
		t.Fatalf("no session = %d", code)
	}
	if code := ts.do(t, "POST", "/api/session", map[string]interface{}{}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty request = %d", code)
	}
	if code := ts.do(t, "POST", "/api/session", map[string]interface{}{"hwnd": 0xdead}, nil); code != http.StatusGone {
		t.Fatalf("gone target = %d", code)
	}

	var info session.Info
	if code := ts.do(t, "POST", "/api/session", map[string]interface{}{"title": "editor"}, &info); code != http.StatusCreated {
		t.Fatalf("start = %d", code)
	}
	if info.Target.Handle != 0x10 || info.Target.PID != 100 {
		t.Fatalf("target = %+v", info.Target)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/session/input"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ev := gesture.Event{
		Kind:    gesture.KindDblClick,
		X:       40,
		Y:       30,
		Button:  protocol.ButtonLeft,
		Surface: mapping.Rect{W: 960, H: 540},
	}
	if err := conn.WriteJSON(ev); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !ts.worker.seen(protocol.OpDblClick) {
		if time.Now().After(deadline) {
			t.Fatal("dblclick not forwarded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if code := ts.do(t, "DELETE", "/api/session", nil, nil); code != http.StatusNoContent {
		t.Fatalf("stop = %d", code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg session.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("no ended message: %v", err)
		}
		if msg.Type == "ended" {
			break
		}
	}
}

func TestAudioUnavailable(t *testing.T) {
	ts := newTestServer(t)
	if code := ts.do(t, "GET", "/api/audio/devices", nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("devices = %d", code)
	}
}

func TestWorkerStats(t *testing.T) {
	ts := newTestServer(t)
	var stats worker.Stats
	if code := ts.do(t, "GET", "/api/worker", nil, &stats); code != http.StatusOK || stats.PID != 4321 {
		t.Fatalf("stats = %d %+v", code, stats)
	}
}

func TestViewerAndLogs(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("viewer = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	if code := ts.do(t, "POST", "/api/logs", map[string]string{"level": "warn", "message": "frame stalled"}, nil); code != http.StatusNoContent {
		t.Fatalf("log = %d", code)
	}
	if code := ts.do(t, "POST", "/api/logs", map[string]string{}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty log = %d", code)
	}
}

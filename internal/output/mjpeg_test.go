package output

import (
	"bufio"
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1920, 1080))

	if got := Downscale(src, 0); got != image.Image(src) {
		t.Fatal("zero max width should return the frame unchanged")
	}
	if got := Downscale(src, 1920); got != image.Image(src) {
		t.Fatal("frame at max width should be unchanged")
	}
	got := Downscale(src, 960).Bounds()
	if got.Dx() != 960 || got.Dy() != 540 {
		t.Fatalf("downscaled to %v", got)
	}
}

func TestWriteFrameRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	if err := m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 2, 2))); err == nil {
		t.Fatal("expected error before Start")
	}
}

func TestStreamHandlerSendsParts(t *testing.T) {
	m := NewMJPEGOutput(Config{MaxWidth: 64, Quality: 50})
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	srv := httptest.NewServer(m.GetHTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := make(chan *image.RGBA, 1)
	frames <- image.NewRGBA(image.Rect(0, 0, 128, 72))
	go m.Pump(ctx, frames)

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "--frame\r\n" {
		t.Fatalf("boundary = %q", line)
	}
	line, _ = r.ReadString('\n')
	if line != "Content-Type: image/jpeg\r\n" {
		t.Fatalf("part header = %q", line)
	}
}

func TestViewerPageConnectsInput(t *testing.T) {
	rec := httptest.NewRecorder()
	GetViewerHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	body := rec.Body.String()
	for _, want := range []string{"/stream", "/api/session/input", "'dblclick'"} {
		if !strings.Contains(body, want) {
			t.Fatalf("viewer page missing %q", want)
		}
	}
}

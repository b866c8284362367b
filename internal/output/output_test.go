package output

import (
	"context"
	"errors"
	"image"
	"testing"
)

type recordOutput struct {
	running bool
	written int
	failAt  int
}

func (r *recordOutput) Start() error {
	r.running = true
	return nil
}

func (r *recordOutput) Stop() error {
	r.running = false
	return nil
}

func (r *recordOutput) Name() string { return "record" }

func (r *recordOutput) IsRunning() bool { return r.running }

func (r *recordOutput) WriteFrame(frame *image.RGBA) error {
	r.written++
	if r.written == r.failAt {
		return errors.New("encode failed")
	}
	return nil
}

func TestPumpWritesUntilClosed(t *testing.T) {
	out := &recordOutput{failAt: 2}
	frames := make(chan *image.RGBA, 3)
	for i := 0; i < 3; i++ {
		frames <- image.NewRGBA(image.Rect(0, 0, 2, 2))
	}
	close(frames)

	Pump(context.Background(), out, frames)
	if out.written != 3 {
		t.Fatalf("written = %d, want 3 (a failed frame does not stop the pump)", out.written)
	}
}

func TestPumpStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Pump(ctx, &recordOutput{}, make(chan *image.RGBA))
}

func TestMJPEGLifecycle(t *testing.T) {
	var out Output = NewMJPEGOutput(Config{Quality: 50})
	if out.IsRunning() {
		t.Fatal("running before Start")
	}
	if err := out.Start(); err != nil {
		t.Fatal(err)
	}
	if err := out.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
	if !out.IsRunning() {
		t.Fatal("not running after Start")
	}
	if err := out.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if err := out.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := out.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if out.IsRunning() {
		t.Fatal("running after Stop")
	}
	if err := out.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))); err == nil {
		t.Fatal("WriteFrame after Stop should fail")
	}
}

package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantKind MessageKind
		wantErr  bool
	}{
		{name: "ready", line: `{"type":"ready"}`, wantKind: KindReady},
		{name: "error notice", line: `{"type":"error","message":"boom"}`, wantKind: KindError},
		{name: "error notice without message", line: `{"type":"error"}`, wantErr: true},
		{name: "unknown notice", line: `{"type":"hello"}`, wantErr: true},
		{name: "ok response", line: `{"id":3,"ok":true}`, wantKind: KindResponse},
		{name: "failed response", line: `{"id":4,"ok":false,"err":"bad hwnd"}`, wantKind: KindResponse},
		{name: "missing id", line: `{"ok":true}`, wantErr: true},
		{name: "missing ok", line: `{"id":1}`, wantErr: true},
		{name: "fractional id", line: `{"id":1.5,"ok":true}`, wantErr: true},
		{name: "string ok", line: `{"id":1,"ok":"yes"}`, wantErr: true},
		{name: "not json", line: `WARNING: something on stdout`, wantErr: true},
		{name: "array", line: `[1,2,3]`, wantErr: true},
		{name: "null", line: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.line))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeMessage(%s) succeeded, want error", tt.line)
				}
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("error %v does not match ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessage(%s) error = %v", tt.line, err)
			}
			if msg.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", msg.Kind, tt.wantKind)
			}
		})
	}
}

func TestDecodeMessageDefaultsFailureText(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"id":9,"ok":false}`))
	if err != nil {
		t.Fatalf("DecodeMessage error = %v", err)
	}
	if msg.Response.Err != "worker error" {
		t.Fatalf("Err = %q, want default text", msg.Response.Err)
	}
}

func TestGeometryResponseRoundTrip(t *testing.T) {
	g := Geometry{
		Outer:  Rect{X: 10, Y: 20, W: 1000, H: 600},
		Client: ClientArea{W: 984, H: 561, OffX: 8, OffY: 31},
		DPI:    96,
	}
	line, err := Encode(GeometryResponse(7, g))
	if err != nil {
		t.Fatalf("Encode error = %v", err)
	}
	if !strings.HasSuffix(string(line), "\n") {
		t.Fatalf("encoded line lacks newline: %q", line)
	}

	msg, err := DecodeMessage(line[:len(line)-1])
	if err != nil {
		t.Fatalf("DecodeMessage error = %v", err)
	}
	got, err := msg.Response.Geometry()
	if err != nil {
		t.Fatalf("Geometry() error = %v", err)
	}
	if got != g {
		t.Fatalf("Geometry() = %+v, want %+v", got, g)
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"id":12,"op":"WHEEL","hwnd":4242,"x":5,"y":6,"delta":-120,"horiz":true}`))
	if err != nil {
		t.Fatalf("DecodeRequest error = %v", err)
	}
	if req.ID != 12 || req.Op != OpWheel || req.Hwnd != 4242 || req.Delta != -120 || !req.Horiz {
		t.Fatalf("unexpected request %+v", req)
	}

	req, err = DecodeRequest([]byte(`{"id":13,"op":"teleport","hwnd":1}`))
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("error = %v, want ErrUnknownOp", err)
	}
	if req.ID != 13 {
		t.Fatalf("id = %d, want 13 so the worker can still answer", req.ID)
	}

	if _, err := DecodeRequest([]byte(`{"op":"geom"}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing id error = %v, want ErrMalformed", err)
	}
}

func TestParseButton(t *testing.T) {
	cases := map[string]Button{
		"":       ButtonLeft,
		"left":   ButtonLeft,
		"RIGHT":  ButtonRight,
		"middle": ButtonMiddle,
		"x1":     ButtonLeft,
	}
	for in, want := range cases {
		if got := ParseButton(in); got != want {
			t.Errorf("ParseButton(%q) = %q, want %q", in, got, want)
		}
	}
}

package audio

import (
	"context"
	"os"
	"reflect"
	"testing"
)

func TestMatchStreams(t *testing.T) {
	streams := []Stream{
		{Index: 9, PID: 300, App: "renderer"},
		{Index: 2, PID: 100, App: "main"},
		{Index: 5, PID: 0, App: "system"},
		{Index: 7, PID: 400, App: "other"},
	}
	got := MatchStreams(streams, map[int]bool{100: true, 300: true})
	want := []Stream{{Index: 2, PID: 100, App: "main"}, {Index: 9, PID: 300, App: "renderer"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MatchStreams = %+v, want %+v", got, want)
	}
	if got := MatchStreams(streams, map[int]bool{0: true}); len(got) != 0 {
		t.Fatalf("pid 0 matched %+v", got)
	}
}

func TestProcessTreeIncludesSelf(t *testing.T) {
	pid := os.Getpid()
	tree := ProcessTree(context.Background(), pid)
	if !tree[pid] {
		t.Fatalf("tree %v lacks own pid", tree)
	}
}

func TestHasDevice(t *testing.T) {
	devices := []Device{{ID: "alsa_output.usb"}, {ID: "alsa_output.pci", Default: true}}
	if !hasDevice(devices, "alsa_output.pci") || hasDevice(devices, "missing") {
		t.Fatal("hasDevice mismatch")
	}
}

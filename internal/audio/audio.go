// Package audio moves a mirrored application's playback to a chosen output device.
package audio

import (
	"context"
	"errors"
	"sort"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	// ErrNoStreams means the process tree has no playback stream to move.
	ErrNoStreams = errors.New("no audio streams for process")
	// ErrDeviceNotFound is returned for an unknown output device id.
	ErrDeviceNotFound = errors.New("audio device not found")
)

// Device is an output device (a sink).
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// Router lists output devices and routes a process's audio to one of them.
type Router interface {
	ListOutputDevices(ctx context.Context) ([]Device, error)
	// RouteProcess moves every playback stream of pid and its descendants.
	RouteProcess(ctx context.Context, pid int, deviceID string) error
	Close() error
}

// Stream is one playback stream as the sound server reports it.
type Stream struct {
	Index uint32
	PID   int
	App   string
}

// MatchStreams returns the streams owned by any pid in pids, in index order.
func MatchStreams(streams []Stream, pids map[int]bool) []Stream {
	var out []Stream
	for _, s := range streams {
		if s.PID > 0 && pids[s.PID] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ProcessTree returns pid and all of its descendants. Multi-process
// applications often play audio from a child.
func ProcessTree(ctx context.Context, pid int) map[int]bool {
	tree := map[int]bool{pid: true}
	queue := []int32{int32(pid)}
	for len(queue) > 0 {
		p, err := process.NewProcessWithContext(ctx, queue[0])
		queue = queue[1:]
		if err != nil {
			continue
		}
		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			continue
		}
		for _, c := range children {
			if !tree[int(c.Pid)] {
				tree[int(c.Pid)] = true
				queue = append(queue, c.Pid)
			}
		}
	}
	return tree
}

//go:build linux

package audio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

const undefinedIndex = 0xFFFFFFFF

// PulseRouter routes audio through PulseAudio or the PipeWire pulse server.
type PulseRouter struct {
	mu     sync.Mutex
	client *pulse.Client
}

// NewPulseRouter connects to the sound server under the given application name.
func NewPulseRouter(appName string) (*PulseRouter, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(appName),
	)
	if err != nil {
		return nil, fmt.Errorf("pulse connect: %w", err)
	}
	return &PulseRouter{client: client}, nil
}

func (r *PulseRouter) Close() error {
	r.client.Close()
	return nil
}

func (r *PulseRouter) ListOutputDevices(ctx context.Context) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sinks, err := r.client.ListSinks()
	if err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}
	def := ""
	if s, err := r.client.DefaultSink(); err == nil && s != nil {
		def = s.ID()
	}

	devices := make([]Device, 0, len(sinks))
	for _, s := range sinks {
		devices = append(devices, Device{ID: s.ID(), Name: s.Name(), Default: s.ID() == def})
	}
	return devices, nil
}

func (r *PulseRouter) RouteProcess(ctx context.Context, pid int, deviceID string) error {
	log := logger.WithComponent("audio")

	devices, err := r.ListOutputDevices(ctx)
	if err != nil {
		return err
	}
	if !hasDevice(devices, deviceID) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	streams, err := r.streams()
	if err != nil {
		return err
	}
	matched := MatchStreams(streams, ProcessTree(ctx, pid))
	if len(matched) == 0 {
		return fmt.Errorf("%w: pid %d", ErrNoStreams, pid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range matched {
		err := r.client.RawRequest(&proto.MoveSinkInput{
			SinkInputIndex: s.Index,
			DeviceIndex:    undefinedIndex,
			DeviceName:     deviceID,
		}, nil)
		if err != nil {
			return fmt.Errorf("move stream %d: %w", s.Index, err)
		}
		log.Info().
			Uint32("stream", s.Index).
			Int("pid", s.PID).
			Str("app", s.App).
			Str("device", deviceID).
			Msg("Moved audio stream")
	}
	return nil
}

func (r *PulseRouter) streams() ([]Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reply proto.GetSinkInputInfoListReply
	if err := r.client.RawRequest(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("list sink inputs: %w", err)
	}
	out := make([]Stream, 0, len(reply))
	for _, in := range reply {
		out = append(out, Stream{
			Index: in.SinkInputIndex,
			PID:   propInt(in.Properties, "application.process.id"),
			App:   propString(in.Properties, "application.name"),
		})
	}
	return out, nil
}

func propString(props proto.PropList, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	return strings.TrimRight(string(v), "\x00")
}

func propInt(props proto.PropList, key string) int {
	n, err := strconv.Atoi(propString(props, key))
	if err != nil {
		return 0
	}
	return n
}

func hasDevice(devices []Device, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

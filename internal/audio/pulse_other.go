//go:build !linux

package audio

import "errors"

var errUnsupported = errors.New("audio routing requires a PulseAudio-compatible server")

// PulseRouter is unavailable on this platform.
type PulseRouter struct{ Router }

func NewPulseRouter(appName string) (*PulseRouter, error) {
	return nil, errUnsupported
}

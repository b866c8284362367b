package output

import (
	"context"
	"image"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
)

// Output is a destination for captured frames. The server owns its lifecycle:
// Start before the first session, Stop on shutdown.
type Output interface {
	Start() error
	// Stop is a no-op on a stopped output.
	Stop() error
	// WriteFrame fails when the output is not running.
	WriteFrame(frame *image.RGBA) error
	Name() string
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	// MaxWidth downscales wider frames, keeping the aspect ratio. Zero disables it.
	MaxWidth int
	Quality  int
}

// Pump writes frames to out until the channel closes or ctx is done. Frames
// that fail to write are dropped.
func Pump(ctx context.Context, out Output, frames <-chan *image.RGBA) {
	log := logger.WithComponent("output").With().Str("output", out.Name()).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := out.WriteFrame(frame); err != nil {
				log.Debug().Err(err).Msg("Dropping frame")
			}
		}
	}
}

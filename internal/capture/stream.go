package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

const (
	defaultFPS      = 15
	maxGrabFailures = 50
)

// StreamOptions configure the frame pump.
type StreamOptions struct {
	FPS int
}

func (o StreamOptions) interval() time.Duration {
	fps := o.FPS
	if fps <= 0 {
		fps = defaultFPS
	}
	return time.Second / time.Duration(fps)
}

// Stream pumps frames of one window. Only the newest frame is kept for a slow
// reader.
type Stream struct {
	source  Source
	grabber Grabber
	frames  chan *image.RGBA
	done    chan struct{}
	cancel  context.CancelFunc

	mu   sync.RWMutex
	size mapping.Size
	err  error
}

// OpenStream grabs the first frame synchronously and starts the pump.
func OpenStream(ctx context.Context, src Source, g Grabber, opts StreamOptions) (*Stream, error) {
	first, err := g.Grab(src.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to capture %s: %w", src.Handle, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		source:  src,
		grabber: g,
		frames:  make(chan *image.RGBA, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	s.publish(first)

	go s.run(ctx, opts.interval())
	return s, nil
}

func (s *Stream) Source() Source { return s.source }

// FrameSize is the pixel size of the most recent frame.
func (s *Stream) FrameSize() mapping.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Frames delivers captured frames. It is closed when the stream ends.
func (s *Stream) Frames() <-chan *image.RGBA { return s.frames }

// Done is closed when the stream ends.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err reports why the stream ended; nil after Close.
func (s *Stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Stream) Close() {
	s.cancel()
	<-s.done
}

func (s *Stream) run(ctx context.Context, interval time.Duration) {
	log := logger.WithComponent("capture")
	defer close(s.done)
	defer close(s.frames)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		img, err := s.grabber.Grab(s.source.Handle)
		if err != nil {
			failures++
			if errors.Is(err, protocol.ErrBadHandle) || failures >= maxGrabFailures {
				log.Info().Err(err).Str("hwnd", s.source.Handle.String()).Msg("Capture stream ended")
				s.fail(err)
				return
			}
			log.Debug().Err(err).Int("failures", failures).Msg("Frame grab failed")
			continue
		}
		failures = 0
		s.publish(img)
	}
}

func (s *Stream) publish(img *image.RGBA) {
	b := img.Bounds()
	s.mu.Lock()
	s.size = mapping.Size{W: b.Dx(), H: b.Dy()}
	s.mu.Unlock()

	select {
	case s.frames <- img:
		return
	default:
	}
	// drop the stale frame
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- img:
	default:
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

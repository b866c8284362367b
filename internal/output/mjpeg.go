package output

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"golang.org/x/image/draw"
)

const defaultQuality = 80

// MJPEGOutput streams frames as Motion JPEG over HTTP
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	frameMu    sync.RWMutex
	lastJPEG   []byte
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = defaultQuality
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("mjpeg").Info().
		Int("max_width", m.config.MaxWidth).
		Int("quality", m.config.Quality).
		Msg("MJPEG output started")
	return nil
}

// Stop closes every client connection.
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Uint64("frames", m.frameCount).
		Dur("uptime", time.Since(m.startTime)).
		Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes a frame once and fans it out to every client. Slow
// clients skip frames.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, Downscale(frame, m.config.MaxWidth), &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastJPEG = jpegData
	m.lastUpdate = time.Now()
	m.frameCount++
	m.frameMu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Pump writes frames until the channel closes or ctx is done.
func (m *MJPEGOutput) Pump(ctx context.Context, frames <-chan *image.RGBA) {
	Pump(ctx, m, frames)
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Clients reports the number of connected stream clients.
func (m *MJPEGOutput) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Downscale returns frame resized to maxWidth when it is wider, otherwise the
// frame itself.
func Downscale(frame *image.RGBA, maxWidth int) image.Image {
	b := frame.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return frame
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, b, draw.Src, nil)
	return dst
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithComponent("mjpeg")

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log.Info().Int("clients", clientCount).Msg("Stream client connected")

		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		defer func() {
			m.clientsMu.Lock()
			if _, ok := m.clients[frameChan]; ok {
				delete(m.clients, frameChan)
			}
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Stream client disconnected")
		}()

		// late joiners see the current picture right away
		m.frameMu.RLock()
		last := m.lastJPEG
		m.frameMu.RUnlock()
		if last != nil {
			if err := writePart(w, last); err != nil {
				return
			}
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

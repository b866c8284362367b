package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanchriswhite/FocusRelay/internal/capture"
	"github.com/bryanchriswhite/FocusRelay/internal/mapping"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/session"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show a window's geometry and coordinate mapping",
	Long: `Ask the native worker for a window's outer rectangle, client area and DPI,
then compute the mapping used to translate viewer coordinates into client
coordinates.

Without --frame-width/--frame-height one frame is captured to learn the
frame size.`,
	Example: `  # Probe a window by title
  focusrelay probe --title player

  # Probe against an explicit frame size
  focusrelay probe --hwnd 0x3a00007 --frame-width 1920 --frame-height 1080`,
	RunE: runProbe,
}

var (
	probeTarget targetFlags
	probeFrameW int
	probeFrameH int
)

type probeResult struct {
	Hwnd     string            `json:"hwnd"`
	Geometry protocol.Geometry `json:"geometry"`
	Scale    float64           `json:"scale"`
	Frame    mapping.Size      `json:"frame"`
	Errors   mapping.Errors    `json:"aspect_errors"`
	HasFrame bool              `json:"has_frame"`
	Mapping  mapping.Mapping   `json:"mapping"`
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeTarget.register(probeCmd)
	probeCmd.Flags().IntVar(&probeFrameW, "frame-width", 0, "captured frame width")
	probeCmd.Flags().IntVar(&probeFrameH, "frame-height", 0, "captured frame height")
}

func runProbe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	initLogging(cfg)

	resolver, err := openResolver()
	if err != nil {
		return err
	}
	defer resolver.Close()

	h, err := probeTarget.resolve(resolver)
	if err != nil {
		return err
	}

	frame := mapping.Size{W: probeFrameW, H: probeFrameH}
	if !frame.Valid() {
		if frame, err = grabFrameSize(h); err != nil {
			return err
		}
	}

	workerMgr, err := newWorker(cfg)
	if err != nil {
		return err
	}
	defer workerMgr.Close()
	tuning := session.Tuning(cfg)

	g, err := workerMgr.Geometry(context.Background(), h)
	if err != nil {
		return fmt.Errorf("geometry of %s: %w", h, err)
	}
	m, err := mapping.New(frame, g, tuning)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(probeResult{
		Hwnd:     h.String(),
		Geometry: g,
		Scale:    g.Scale(),
		Frame:    frame,
		Errors:   mapping.AspectErrors(frame, g),
		HasFrame: mapping.HasFrame(g, tuning),
		Mapping:  m,
	})
}

func grabFrameSize(h protocol.WindowHandle) (mapping.Size, error) {
	capturer, err := capture.NewX11Capturer()
	if err != nil {
		return mapping.Size{}, fmt.Errorf("failed to initialize capture: %w", err)
	}
	defer capturer.Close()

	img, err := capturer.Grab(h)
	if err != nil {
		return mapping.Size{}, fmt.Errorf("failed to capture %s: %w", h, err)
	}
	b := img.Bounds()
	return mapping.Size{W: b.Dx(), H: b.Dy()}, nil
}

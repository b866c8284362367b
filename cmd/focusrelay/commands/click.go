package commands

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/spf13/cobra"
)

var clickCmd = &cobra.Command{
	Use:   "click",
	Short: "Send a click or wheel event to a window without focusing it",
	Long: `Deliver one input operation to a window through the native worker.

Coordinates are client-area pixels. The window is neither raised nor focused
unless --hardware is given, which briefly moves the real cursor.`,
	Example: `  # Left click at (120, 80) in the window titled "player"
  focusrelay click --title player --x 120 --y 80

  # Double click with the right button
  focusrelay click --hwnd 0x3a00007 --x 10 --y 10 --button right --double

  # Scroll down three notches
  focusrelay click --pid 4242 --x 300 --y 300 --wheel -3`,
	RunE: runClick,
}

var (
	clickTarget   targetFlags
	clickX        int
	clickY        int
	clickButton   string
	clickDouble   bool
	clickHardware bool
	clickWheel    int
	clickHoriz    bool
)

func init() {
	rootCmd.AddCommand(clickCmd)

	clickTarget.register(clickCmd)
	clickCmd.Flags().IntVar(&clickX, "x", 0, "client x coordinate")
	clickCmd.Flags().IntVar(&clickY, "y", 0, "client y coordinate")
	clickCmd.Flags().StringVarP(&clickButton, "button", "b", "left", "mouse button (left, right or middle)")
	clickCmd.Flags().BoolVar(&clickDouble, "double", false, "send a double click")
	clickCmd.Flags().BoolVar(&clickHardware, "hardware", false, "inject a hardware click at the cursor")
	clickCmd.Flags().IntVar(&clickWheel, "wheel", 0, "scroll this many notches instead of clicking")
	clickCmd.Flags().BoolVar(&clickHoriz, "horizontal", false, "scroll horizontally")
}

func runClick(cmd *cobra.Command, args []string) error {
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

	h, err := clickTarget.resolve(resolver)
	if err != nil {
		return err
	}

	p := protocol.Payload{Hwnd: h, X: clickX, Y: clickY, Button: protocol.ParseButton(clickButton)}
	op := protocol.OpSmart
	switch {
	case clickWheel != 0:
		op = protocol.OpWheel
		p.Delta = clickWheel * cfg.Input.WheelNotch
		p.Horiz = clickHoriz
	case clickDouble:
		op = protocol.OpDblClick
	case clickHardware || cfg.Input.UseHardwareClick:
		op = protocol.OpSendInput
	}

	workerMgr, err := newWorker(cfg)
	if err != nil {
		return err
	}
	defer workerMgr.Close()

	if _, err := workerMgr.Invoke(context.Background(), op, p, 0); err != nil {
		return fmt.Errorf("%s on %s: %w", op, h, err)
	}
	fmt.Printf("✅ %s delivered to %s at (%d, %d)\n", op, h, clickX, clickY)
	return nil
}

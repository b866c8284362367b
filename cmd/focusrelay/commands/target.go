package commands

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
	"github.com/bryanchriswhite/FocusRelay/internal/worker"
	"github.com/spf13/cobra"
)

// targetFlags names a window on the command line.
type targetFlags struct {
	hwnd  string
	pid   int
	title string
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.hwnd, "hwnd", "", "window handle (hex or decimal)")
	cmd.Flags().IntVar(&t.pid, "pid", 0, "process id; its largest titled window is used")
	cmd.Flags().StringVarP(&t.title, "title", "t", "", "case-insensitive title fragment")
}

func (t *targetFlags) resolve(r window.Resolver) (protocol.WindowHandle, error) {
	l := window.Lookup{PID: t.pid, Title: t.title}
	if t.hwnd != "" {
		h, err := protocol.ParseWindowHandle(t.hwnd)
		if err != nil {
			return 0, err
		}
		l.Handle = h
	}
	if l.Handle == 0 && l.PID == 0 && l.Title == "" {
		return 0, errors.New("one of --hwnd, --pid or --title is required")
	}
	return window.Resolve(r, l)
}

// newWorker prepares a worker manager for a one-shot command. The subprocess
// is spawned by the first request.
func newWorker(cfg *config.Config) (*worker.Manager, error) {
	wcfg, err := workerConfig(cfg)
	if err != nil {
		return nil, err
	}
	return worker.NewManager(wcfg), nil
}

func openResolver() (*window.X11Resolver, error) {
	r, err := window.NewX11Resolver()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return r, nil
}

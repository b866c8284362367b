package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/FocusRelay/internal/audio"
	"github.com/spf13/cobra"
)

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "Inspect and route application audio",
}

var audioDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio output devices",
	RunE:  runAudioDevices,
}

var audioRouteCmd = &cobra.Command{
	Use:   "route",
	Short: "Move a process's audio to an output device",
	Long: `Move every playback stream of a process and its child processes to the
given output device.`,
	Example: `  # Route the audio of the window titled "player" to HDMI
  focusrelay audio route --title player --device alsa_output.hdmi`,
	RunE: runAudioRoute,
}

var (
	audioTarget targetFlags
	audioDevice string
)

func init() {
	rootCmd.AddCommand(audioCmd)
	audioCmd.AddCommand(audioDevicesCmd)
	audioCmd.AddCommand(audioRouteCmd)

	audioTarget.register(audioRouteCmd)
	audioRouteCmd.Flags().StringVarP(&audioDevice, "device", "d", "", "output device id (see 'audio devices')")
	audioRouteCmd.MarkFlagRequired("device")
}

func openRouter() (*audio.PulseRouter, error) {
	configMgr, err := openConfig()
	if err != nil {
		return nil, err
	}
	cfg := configMgr.Get()
	initLogging(cfg)
	return audio.NewPulseRouter(cfg.Audio.ApplicationName)
}

func runAudioDevices(cmd *cobra.Command, args []string) error {
	router, err := openRouter()
	if err != nil {
		return err
	}
	defer router.Close()

	devices, err := router.ListOutputDevices(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tNAME\tDEFAULT")
	fmt.Fprintln(w, "--\t----\t-------")
	for _, d := range devices {
		def := ""
		if d.Default {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Name, def)
	}
	return nil
}

func runAudioRoute(cmd *cobra.Command, args []string) error {
	pid := audioTarget.pid
	if audioTarget.hwnd != "" || audioTarget.title != "" {
		resolver, err := openResolver()
		if err != nil {
			return err
		}
		defer resolver.Close()

		h, err := audioTarget.resolve(resolver)
		if err != nil {
			return err
		}
		windows, err := resolver.ListTop()
		if err != nil {
			return err
		}
		for _, w := range windows {
			if w.Handle == h {
				pid = w.PID
			}
		}
	}
	if pid <= 0 {
		return errors.New("could not determine the target process")
	}

	router, err := openRouter()
	if err != nil {
		return err
	}
	defer router.Close()

	if err := router.RouteProcess(context.Background(), pid, audioDevice); err != nil {
		return err
	}
	fmt.Printf("✅ Routed audio of pid %d to %s\n", pid, audioDevice)
	return nil
}

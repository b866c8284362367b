package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/native"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run the native input worker (spawned by serve)",
	Hidden: true,
	Long: `Run the native input worker.

The worker reads one JSON request per line on stdin and writes one JSON
response or notice per line on stdout. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

var workerStepDelayMs int

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntVar(&workerStepDelayMs, "step-delay-ms", int(native.DefaultStepDelay/time.Millisecond), "pause between the steps of multi-message gestures")
}

func runWorker(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	logger.InitWriter(viper.GetString("log_level"), false, os.Stderr)
	log := logger.WithComponent("worker")

	surface, err := native.NewX11Surface()
	if err != nil {
		return fmt.Errorf("failed to open display: %w", err)
	}
	defer surface.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug().Int("pid", os.Getpid()).Int("step_delay_ms", workerStepDelayMs).Msg("Worker starting")
	server := native.NewServer(surface, native.WithStepDelay(time.Duration(workerStepDelayMs)*time.Millisecond))
	return server.Serve(ctx, os.Stdin, os.Stdout)
}

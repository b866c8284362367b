package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/FocusRelay/internal/audio"
	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/mcp"
	"github.com/bryanchriswhite/FocusRelay/internal/session"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve window and input tools over MCP (stdio)",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing window
listing, geometry probing, click, scroll, keepalive and audio routing tools.`,
	Example: `  # Register with an MCP client
  focusrelay mcp`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	// stdout carries the protocol
	logger.InitWriter(cfg.LogLevel, false, os.Stderr)
	log := logger.WithComponent("mcp")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, err := openResolver()
	if err != nil {
		return err
	}
	defer resolver.Close()

	workerMgr, err := newWorker(cfg)
	if err != nil {
		return err
	}
	defer workerMgr.Close()

	scheduler := keepalive.New(workerMgr, nil, config.Ms(cfg.Worker.DefaultTimeoutMs))
	defer scheduler.Close()

	var router audio.Router
	if pr, err := audio.NewPulseRouter(cfg.Audio.ApplicationName); err != nil {
		log.Warn().Err(err).Msg("Audio routing unavailable")
	} else {
		router = pr
		defer pr.Close()
	}

	server := mcp.NewServer(mcp.Deps{
		Windows:    resolver,
		Worker:     workerMgr,
		Keepalive:  scheduler,
		Audio:      router,
		Tuning:     session.Tuning(cfg),
		WheelNotch: cfg.Input.WheelNotch,
	})

	log.Info().Str("server", mcp.ServerName).Str("version", mcp.ServerVersion).Msg("MCP server starting on stdio")
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

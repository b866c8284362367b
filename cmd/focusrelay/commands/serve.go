package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bryanchriswhite/FocusRelay/internal/api"
	"github.com/bryanchriswhite/FocusRelay/internal/audio"
	"github.com/bryanchriswhite/FocusRelay/internal/capture"
	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/idle"
	"github.com/bryanchriswhite/FocusRelay/internal/keepalive"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/bryanchriswhite/FocusRelay/internal/output"
	"github.com/bryanchriswhite/FocusRelay/internal/session"
	"github.com/bryanchriswhite/FocusRelay/internal/window"
	"github.com/bryanchriswhite/FocusRelay/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FocusRelay server",
	Long: `Start the FocusRelay HTTP server.

The server captures the selected window, streams it as MJPEG, and forwards
viewer input to it through the native worker subprocess.`,
	Example: `  # Start server on default port (8080)
  focusrelay serve

  # Start server on custom port
  focusrelay serve --port 9090

  # Start mirroring a saved profile right away
  focusrelay serve --profile game

  # Start with debug logging
  focusrelay serve --log-level debug --log-pretty`,
	RunE: runServe,
}

var serveProfile string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveProfile, "profile", "", "profile id or name to apply on startup (default is the active profile)")
}

// workerConfig builds the worker manager configuration. Without an explicit
// command the worker is this executable's hidden worker subcommand.
func workerConfig(cfg *config.Config) (worker.Config, error) {
	command := cfg.Worker.Command
	if len(command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return worker.Config{}, fmt.Errorf("failed to locate executable: %w", err)
		}
		command = []string{
			exe, "worker",
			"--step-delay-ms", strconv.Itoa(cfg.Input.DblClickStepMs),
			"--log-level", cfg.LogLevel,
		}
	}
	return worker.Config{
		Command:         command,
		DefaultTimeout:  config.Ms(cfg.Worker.DefaultTimeoutMs),
		GeometryTimeout: config.Ms(cfg.Worker.GeometryTimeoutMs),
		StderrTail:      cfg.Worker.StderrTail,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	logger.Init(cfg.LogLevel, cfg.LogPretty || viper.GetBool("log_pretty"))
	log := logger.WithComponent("serve")

	logDir := cfg.LogDir
	if logDir == "" {
		if logDir, err = logger.DefaultDir(); err != nil {
			return err
		}
	}
	if f, err := logger.OpenLogFile(logDir); err != nil {
		log.Warn().Err(err).Msg("File logging disabled")
	} else {
		defer f.Close()
		logger.Tee(f)
		log.Info().Str("file", f.Name()).Msg("Logging to file")
	}

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wcfg, err := workerConfig(cfg)
	if err != nil {
		return err
	}
	workerMgr := worker.NewManager(wcfg)
	defer workerMgr.Close()

	resolver, err := window.NewX11Resolver()
	if err != nil {
		return fmt.Errorf("failed to connect to X11: %w", err)
	}
	defer resolver.Close()

	capturer, err := capture.NewX11Capturer()
	if err != nil {
		return fmt.Errorf("failed to initialize capture: %w", err)
	}
	defer capturer.Close()
	provider := capture.NewWindowProvider(resolver, capturer, capture.StreamOptions{FPS: cfg.Capture.FPS})

	stream := output.NewMJPEGOutput(output.Config{
		MaxWidth: cfg.Capture.MaxWidth,
		Quality:  cfg.Capture.Quality,
	})
	if err := startOutput(stream); err != nil {
		return err
	}
	defer stopOutput(stream)

	scheduler := keepalive.New(workerMgr, nil, config.Ms(cfg.Worker.DefaultTimeoutMs))
	defer scheduler.Close()

	var router audio.Router
	if pr, err := audio.NewPulseRouter(cfg.Audio.ApplicationName); err != nil {
		log.Warn().Err(err).Msg("Audio routing unavailable")
	} else {
		router = pr
		defer pr.Close()
	}

	var inhibitor session.IdleInhibitor
	if inh, err := idle.NewInhibitor("FocusRelay"); err != nil {
		log.Debug().Err(err).Msg("Screensaver inhibition unavailable")
	} else {
		inhibitor = inh
		defer inh.Close()
	}

	sessions := session.NewManager(session.Deps{
		Capture:   provider,
		Output:    stream,
		Worker:    workerMgr,
		Keepalive: scheduler,
		Windows:   resolver,
		Audio:     router,
		Idle:      inhibitor,
		Settings:  configMgr.Get,
	})
	defer sessions.Stop()

	if cfg.Worker.StartOnBoot {
		if err := workerMgr.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Worker did not start; it will be spawned on first use")
		}
	}

	if err := applyStartupProfile(ctx, configMgr, sessions); err != nil {
		log.Warn().Err(err).Msg("Startup profile not applied")
	}

	go func() {
		err := configMgr.Watch(ctx, func(c *config.Config) {
			sessions.SetSuspended(c.Viewer.ClickThrough)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config watcher stopped")
		}
	}()

	server := api.NewServer(api.Deps{
		Config:    configMgr,
		Sessions:  sessions,
		Windows:   resolver,
		Capture:   provider,
		Worker:    workerMgr,
		Keepalive: scheduler,
		Audio:     router,
		Stream:    stream,
	})

	log.Info().
		Str("viewer", fmt.Sprintf("http://localhost:%d", cfg.ServerPort)).
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Msg("FocusRelay is running, press Ctrl+C to stop")

	err = server.Run(ctx, cfg.ServerPort)
	log.Info().Msg("Shutting down gracefully")
	return err
}

func applyStartupProfile(ctx context.Context, configMgr *config.Manager, sessions *session.Manager) error {
	var p *config.Profile
	if serveProfile != "" {
		found, err := configMgr.FindProfile(serveProfile)
		if err != nil {
			return err
		}
		p = found
	} else {
		p = configMgr.ActiveProfile()
	}
	if p == nil {
		return nil
	}
	if _, err := sessions.ApplyProfile(ctx, *p); err != nil {
		return err
	}
	return configMgr.SetActiveProfile(p.ID)
}

func startOutput(out output.Output) error {
	if err := out.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", out.Name(), err)
	}
	return nil
}

func stopOutput(out output.Output) {
	if err := out.Stop(); err != nil {
		logger.WithComponent("serve").Warn().Err(err).Str("output", out.Name()).Msg("Output did not stop cleanly")
	}
}

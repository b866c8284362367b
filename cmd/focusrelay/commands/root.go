package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "focusrelay",
		Short: "FocusRelay - Mirror a window and drive it without focusing it",
		Long: `FocusRelay mirrors one application window into a viewer and forwards
the viewer's mouse input back to that window without ever focusing it.

Features:
  • Live MJPEG mirror of any top-level window
  • Click, double click, drag and wheel forwarding through a native worker
  • Automatic client/outer coordinate mapping
  • Keepalive pings for windows that stop rendering in the background
  • Per-application audio routing via PulseAudio
  • Saved target profiles
  • REST/WebSocket API and an MCP server for automation`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/focusrelay/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
	viper.SetEnvPrefix("focusrelay")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file and applies flag overrides for this run.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			if err := configMgr.SetPort(port); err != nil {
				return nil, err
			}
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			if err := configMgr.SetLogLevel(level); err != nil {
				return nil, err
			}
		}
	}
	return configMgr, nil
}

// initLogging configures the console logger for short-lived commands.
func initLogging(cfg *config.Config) {
	level := cfg.LogLevel
	if viper.IsSet("log_level") && viper.GetString("log_level") != "" {
		level = viper.GetString("log_level")
	}
	logger.InitWriter(level, cfg.LogPretty || viper.GetBool("log_pretty"), os.Stderr)
}

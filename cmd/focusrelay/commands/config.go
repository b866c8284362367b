package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage FocusRelay configuration",
	Long:  `View and manage FocusRelay configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current FocusRelay configuration.`,
	Example: `  # Show configuration as YAML (default)
  focusrelay config show

  # Show configuration as JSON
  focusrelay config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value. Keys use dotted paths and values
are parsed as YAML scalars, so numbers and booleans keep their type.`,
	Example: `  # Set server port
  focusrelay config set server_port 9090

  # Make the viewer click-through
  focusrelay config set viewer.click_through true

  # Set a custom worker command
  focusrelay config set worker.command '["/opt/focusrelay/worker"]'`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get server port
  focusrelay config get server_port

  # Get the click delay
  focusrelay config get input.click_delay_ms`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	RunE:  runConfigKeys,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func openConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return configMgr, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}
	return printFormatted(configMgr.Get(), formatFlag)
}

func printFormatted(v interface{}, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]

	var value interface{}
	if err := yaml.Unmarshal([]byte(args[1]), &value); err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}

	configMgr, err := openConfig()
	if err != nil {
		return err
	}
	if _, err := configMgr.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	fmt.Printf("✅ Configuration updated: %s = %s\n", key, args[1])
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}

	v, err := configMgr.Lookup(args[0])
	if err != nil {
		return fmt.Errorf("configuration key not found: %s", args[0])
	}
	if _, nested := v.(map[string]interface{}); nested {
		return printFormatted(v, "yaml")
	}
	fmt.Println(v)
	return nil
}

func runConfigKeys(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}
	keys, err := configMgr.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}

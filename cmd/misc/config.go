package misc

import (
	"encoding/json"
	"fmt"

	"docker-monitor/cmd/root"
	"docker-monitor/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration check and summary",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkConfig(&config.Config)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(config.Config.Summary(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

/**
 * Print validation errors and warnings
 * @param {*config.AppConfig} cfg - Configuration to check
 * @returns {error} Non-nil when the daemon would refuse to start
 */
func checkConfig(cfg *config.AppConfig) error {
	result := cfg.Validate()
	for _, w := range result.Warnings {
		fmt.Printf("WARNING: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("ERROR: %s\n", e)
	}
	if !result.Valid() {
		return fmt.Errorf("configuration has %d errors", len(result.Errors))
	}
	fmt.Println("Configuration OK")
	return nil
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configShowCmd)
	root.RootCmd.AddCommand(configCmd)

	configCmd.Example = `  docker-monitor config check
  DOCKER_MONITOR_CADDY_ENABLED=true docker-monitor config show`
}

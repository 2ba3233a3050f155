package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	configdomain "pulsedesk.ai/cli/internal/core/domain/config"
	configinfra "pulsedesk.ai/cli/internal/infrastructure/config"
	"pulsedesk.ai/cli/internal/interfaces/di"
)

// NewConfigCommand creates the config command
func NewConfigCommand(container *di.Container) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage configuration settings for the Pulse CLI.

Settings merge from defaults, the config file, PULSE_* environment
variables and command-line flags. 'config set' writes to the config file;
higher-priority sources still win at load time.`,
	}

	configCmd.AddCommand(NewConfigShowCommand(container))
	configCmd.AddCommand(NewConfigSetCommand(container))
	configCmd.AddCommand(NewConfigPathCommand(container))

	return configCmd
}

// NewConfigShowCommand creates the show subcommand
func NewConfigShowCommand(container *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the merged configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			printConfig(container.Config)
			return nil
		},
	}
}

func printConfig(cfg configdomain.Config) {
	fmt.Println("Current Configuration:")
	fmt.Printf("API URL:       %s\n", cfg.APIURL)
	fmt.Printf("Stream Path:   %s\n", cfg.StreamPath)
	fmt.Printf("Verbosity:     %s\n", cfg.Verbosity)
	fmt.Printf("Logger Format: %s\n", cfg.LoggerFormat)
	fmt.Printf("Retry:         base %s, factor %g, cap %s, max %d attempts\n",
		cfg.Retry.BaseDelay, cfg.Retry.Factor, cfg.Retry.MaxDelay, cfg.Retry.MaxAttempts)
}

// NewConfigSetCommand creates the set subcommand
func NewConfigSetCommand(container *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value in the config file",
		Long: `Set a configuration value and write it to the config file.

Supported keys: apiurl, streampath, verbosity, loggerformat,
retry.basedelay, retry.factor, retry.maxdelay, retry.maxattempts.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			cfg := container.Config
			if err := applyConfigValue(&cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("rejected: %w", err)
			}

			path, err := configinfra.Save(cfg, container.ConfigFile)
			if err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			fmt.Printf("Set %s = %s (%s)\n", key, value, path)
			return nil
		},
	}
}

// applyConfigValue sets one key on the configuration, parsing the value
// per the key's type
func applyConfigValue(cfg *configdomain.Config, key, value string) error {
	switch key {
	case "apiurl":
		cfg.APIURL = value
	case "streampath":
		cfg.StreamPath = value
	case "verbosity":
		cfg.Verbosity = value
	case "loggerformat":
		cfg.LoggerFormat = value
	case "retry.basedelay", "retry.maxdelay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		if key == "retry.basedelay" {
			cfg.Retry.BaseDelay = d
		} else {
			cfg.Retry.MaxDelay = d
		}
	case "retry.factor":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %w", key, err)
		}
		cfg.Retry.Factor = f
	case "retry.maxattempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %w", key, err)
		}
		cfg.Retry.MaxAttempts = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// NewConfigPathCommand creates the path subcommand
func NewConfigPathCommand(container *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := container.ConfigFile
			if path == "" {
				var err error
				if path, err = configinfra.DefaultConfigPath(); err != nil {
					return err
				}
			}
			fmt.Printf("Configuration file path: %s\n", path)
			return nil
		},
	}
}

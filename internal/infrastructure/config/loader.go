package configinfra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	yamlenc "gopkg.in/yaml.v3"

	configdomain "pulsedesk.ai/cli/internal/core/domain/config"
)

const envPrefix = "PULSE_"
const delimiter = "."

// DefaultConfigPath returns the location of the stored configuration,
// $HOME/.pulse/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".pulse", "config.yaml"), nil
}

// Load merges configuration from defaults, the config file, PULSE_*
// environment variables and command-line flags, in that order of
// increasing priority. configFile overrides the default file location;
// a missing file is not an error. flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (configdomain.Config, error) {
	k := koanf.New(delimiter)

	if err := k.Load(structs.Provider(configdomain.DefaultConfig(), "koanf"), nil); err != nil {
		return configdomain.Config{}, fmt.Errorf("loading config defaults: %w", err)
	}

	path := configFile
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return configdomain.Config{}, err
		}
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return configdomain.Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// PULSE_RETRY_MAXDELAY=10s becomes retry.maxdelay.
	envProvider := env.Provider(envPrefix, delimiter, func(rawKey string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(rawKey, envPrefix)), "_", delimiter)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return configdomain.Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	if flags != nil {
		// Flag names use dashes (--api-url), config keys don't.
		flagProvider := posflag.ProviderWithFlag(flags, delimiter, k, func(f *pflag.Flag) (string, interface{}) {
			return strings.ReplaceAll(f.Name, "-", ""), posflag.FlagVal(flags, f)
		})
		if err := k.Load(flagProvider, nil); err != nil {
			return configdomain.Config{}, fmt.Errorf("loading config from flags: %w", err)
		}
	}

	var cfg configdomain.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return configdomain.Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return configdomain.Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path, creating the
// directory if needed. An empty path uses the default location. Returns
// the path written.
func Save(cfg configdomain.Config, path string) (string, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", err
		}
	}

	// Durations are written in their string form so the file stays
	// human-editable.
	doc := map[string]interface{}{
		"apiurl":       cfg.APIURL,
		"streampath":   cfg.StreamPath,
		"verbosity":    cfg.Verbosity,
		"loggerformat": cfg.LoggerFormat,
		"retry": map[string]interface{}{
			"basedelay":   cfg.Retry.BaseDelay.String(),
			"factor":      cfg.Retry.Factor,
			"maxdelay":    cfg.Retry.MaxDelay.String(),
			"maxattempts": cfg.Retry.MaxAttempts,
		},
	}
	data, err := yamlenc.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

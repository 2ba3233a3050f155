package configdomain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the client configuration after all sources (defaults,
// config file, environment, flags) have been merged.
type Config struct {
	// APIURL is the base URL of the backend the client streams from.
	APIURL string `koanf:"apiurl"`
	// StreamPath is the path of the update stream endpoint, joined onto
	// APIURL.
	StreamPath string `koanf:"streampath"`
	// Verbosity is the log level (trace, debug, info, warn, error).
	Verbosity string `koanf:"verbosity"`
	// LoggerFormat is the log output format (text, json).
	LoggerFormat string `koanf:"loggerformat"`
	// Retry tunes the reconnection policy of the stream client.
	Retry RetryConfig `koanf:"retry"`
}

// RetryConfig tunes reconnection backoff.
type RetryConfig struct {
	BaseDelay   time.Duration `koanf:"basedelay"`
	Factor      float64       `koanf:"factor"`
	MaxDelay    time.Duration `koanf:"maxdelay"`
	MaxAttempts int           `koanf:"maxattempts"`
}

// DefaultConfig returns the configuration used when no source overrides
// anything.
func DefaultConfig() Config {
	return Config{
		APIURL:       "https://api.pulsedesk.ai",
		StreamPath:   "/v1/updates/stream",
		Verbosity:    "info",
		LoggerFormat: "text",
		Retry: RetryConfig{
			BaseDelay:   2 * time.Second,
			Factor:      2.0,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 5,
		},
	}
}

// Validate checks the merged configuration for values the client cannot
// work with.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api url cannot be empty")
	}
	parsed, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported api url scheme: %q (must be http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("api url must include a host")
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive")
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("retry factor must be at least 1")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry max delay cannot be below the base delay")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	return nil
}

// StreamURL resolves the full URL of the update stream endpoint.
func (c Config) StreamURL() string {
	base := strings.TrimSuffix(c.APIURL, "/")
	path := c.StreamPath
	if path == "" {
		path = DefaultConfig().StreamPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

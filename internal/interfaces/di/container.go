package di

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configdomain "pulsedesk.ai/cli/internal/core/domain/config"
	streamports "pulsedesk.ai/cli/internal/core/ports/streaming"
	"pulsedesk.ai/cli/internal/core/streaming"
	configinfra "pulsedesk.ai/cli/internal/infrastructure/config"
	httpinfra "pulsedesk.ai/cli/internal/infrastructure/http"
	"pulsedesk.ai/cli/internal/logging"
)

// Container holds the application dependencies shared by CLI commands.
// It starts empty; Initialize fills it once the command line has been
// parsed, since flags participate in configuration loading.
type Container struct {
	Config     configdomain.Config
	ConfigFile string
	Transport  streamports.StreamTransport
	Logger     *logrus.Entry
}

// NewContainer creates an uninitialized container.
func NewContainer() *Container {
	return &Container{
		Logger: logging.Logger("cli"),
	}
}

// Initialize loads configuration (defaults, file, environment, flags)
// and configures logging. Called from the root command's
// PersistentPreRunE so every subcommand sees the merged result.
func (c *Container) Initialize(cmd *cobra.Command, userAgent string) error {
	configFile, _ := cmd.Flags().GetString("config")
	c.ConfigFile = configFile

	cfg, err := configinfra.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	c.Config = cfg

	if err := logging.Configure(cfg.Verbosity, cfg.LoggerFormat); err != nil {
		return err
	}

	c.Transport = httpinfra.NewStreamRequester(userAgent)
	return nil
}

// RetryPolicy builds the stream client's reconnection policy from
// configuration.
func (c *Container) RetryPolicy() streaming.RetryPolicy {
	return streaming.RetryPolicy{
		BaseDelay:   c.Config.Retry.BaseDelay,
		Factor:      c.Config.Retry.Factor,
		MaxDelay:    c.Config.Retry.MaxDelay,
		MaxAttempts: c.Config.Retry.MaxAttempts,
	}
}

// NewStreamClient creates a stream client wired to the container's
// transport and the given observer. The caller owns the client and must
// Close it.
func (c *Container) NewStreamClient(observer streamports.StreamObserver) *streaming.Client {
	return streaming.New(c.Transport, observer, c.RetryPolicy())
}

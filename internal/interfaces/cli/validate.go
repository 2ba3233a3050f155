package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"pulsedesk.ai/cli/internal/interfaces/di"
)

// probeTimeout bounds the reachability check. The stream itself runs
// without a timeout; this is only for validate.
const probeTimeout = 10 * time.Second

// NewValidateCommand creates the validate command
func NewValidateCommand(container *di.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and backend reachability",
		Long: `Validate the Pulse CLI configuration and test that the configured
backend is reachable.

This command will:
- Check the merged configuration
- Probe the backend base URL
- Print the resolved stream endpoint`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), container)
		},
	}
}

// runValidate handles the validation process
func runValidate(ctx context.Context, container *di.Container) error {
	fmt.Println("Pulse CLI Validation")
	fmt.Println("")

	fmt.Print("Checking configuration... ")
	if err := container.Config.Validate(); err != nil {
		fmt.Println("failed")
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Println("ok")

	fmt.Print("Probing backend... ")
	status, err := probeBackend(ctx, container.Config.APIURL)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("backend not reachable: %w\n\nPlease check:\n- The API URL is correct\n- Your internet connection", err)
	}
	fmt.Printf("ok (status %d)\n", status)

	fmt.Println("")
	fmt.Println("Configuration Summary:")
	fmt.Printf("API URL:         %s\n", container.Config.APIURL)
	fmt.Printf("Stream Endpoint: %s\n", container.Config.StreamURL())
	fmt.Printf("Retry Policy:    base %s, cap %s, %d attempts\n",
		container.Config.Retry.BaseDelay, container.Config.Retry.MaxDelay, container.Config.Retry.MaxAttempts)
	fmt.Println("")
	fmt.Println("Run 'pulse stream' to follow the update stream.")

	return nil
}

// probeBackend issues a HEAD request against the backend base URL. Any
// HTTP response counts as reachable; only transport errors fail.
func probeBackend(ctx context.Context, baseURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

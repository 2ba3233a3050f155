package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	streamdomain "pulsedesk.ai/cli/internal/core/domain/streaming"
	"pulsedesk.ai/cli/internal/interfaces/di"
)

// StreamFlags holds command-line flags for the stream command
type StreamFlags struct {
	URL       string
	Plain     bool
	MaxEvents int
}

// NewStreamCommand creates the stream command
func NewStreamCommand(container *di.Container) *cobra.Command {
	flags := &StreamFlags{}

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Follow the backend's real-time update stream",
		Long: `Connect to the backend's update stream and follow pushed events live.

By default this opens an interactive terminal view showing the connection
state and the most recent events. Use --plain for line-oriented output
suitable for piping.

The client reconnects automatically with exponential backoff (2, 4, 8, 16,
30 seconds). After five failed attempts in a row it gives up; run the
command again to reconnect.

Examples:
  pulse stream                          # live view against the configured backend
  pulse stream --plain                  # line output
  pulse stream --url http://localhost:8080/v1/updates/stream`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := flags.URL
			if url == "" {
				url = container.Config.StreamURL()
			}
			if flags.Plain {
				return runStreamPlain(container, url)
			}
			return runStreamView(container, url, flags.MaxEvents)
		},
	}

	cmd.Flags().StringVar(&flags.URL, "url", "", "Stream endpoint URL (overrides the configured backend)")
	cmd.Flags().BoolVar(&flags.Plain, "plain", false, "Line-oriented output instead of the live view")
	cmd.Flags().IntVar(&flags.MaxEvents, "max-events", 100, "Maximum number of events kept in the live view")

	return cmd
}

// consoleStreamObserver prints events and state transitions as lines.
// idle is signalled when the client reports idle, which only happens when
// retries are exhausted (or on our own disconnect, after which nobody is
// listening anymore).
type consoleStreamObserver struct {
	idle chan struct{}
}

func (o *consoleStreamObserver) OnEvent(event streamdomain.UpdateEvent) {
	fmt.Printf("%s  %-14s seq=%d  %s\n",
		event.Timestamp.Format("15:04:05"), event.Kind, event.Seq, string(event.Payload))
}

func (o *consoleStreamObserver) OnStateChange(state streamdomain.ConnectionState) {
	fmt.Printf("-- %s\n", stateLine(state))
	if state.Phase == streamdomain.PhaseIdle {
		select {
		case o.idle <- struct{}{}:
		default:
		}
	}
}

// runStreamPlain follows the stream until interrupted or until the client
// gives up reconnecting.
func runStreamPlain(container *di.Container, url string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observer := &consoleStreamObserver{idle: make(chan struct{}, 1)}
	client := container.NewStreamClient(observer)
	defer client.Close()

	client.Connect(url)

	select {
	case <-ctx.Done():
		client.Disconnect()
		return nil
	case <-observer.idle:
		return fmt.Errorf("stream ended: reconnect attempts exhausted")
	}
}

// runStreamView follows the stream in an interactive terminal view.
func runStreamView(container *di.Container, url string, maxEvents int) error {
	observer := &programObserver{}
	client := container.NewStreamClient(observer)
	defer client.Close()

	model := newStreamModel(url, maxEvents)
	// Connecting from Init keeps the first transitions inside the
	// program's event loop.
	model.connect = func() tea.Msg {
		client.Connect(url)
		return nil
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	observer.attach(program)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("stream view failed: %w", err)
	}
	client.Disconnect()
	return nil
}

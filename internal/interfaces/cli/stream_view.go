package cli

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	streamdomain "pulsedesk.ai/cli/internal/core/domain/streaming"
)

// programObserver bridges stream client callbacks into Bubble Tea
// messages. The observer is registered before the program exists, so the
// program is attached afterwards; callbacks arriving before then are
// dropped (nothing is connected yet at that point).
type programObserver struct {
	mu      sync.Mutex
	program *tea.Program
}

func (o *programObserver) attach(program *tea.Program) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.program = program
}

func (o *programObserver) OnEvent(event streamdomain.UpdateEvent) {
	o.send(streamEventMsg(event))
}

func (o *programObserver) OnStateChange(state streamdomain.ConnectionState) {
	o.send(streamStateMsg(state))
}

func (o *programObserver) send(msg tea.Msg) {
	o.mu.Lock()
	program := o.program
	o.mu.Unlock()
	if program != nil {
		program.Send(msg)
	}
}

// streamEventMsg carries one decoded update event into the view
type streamEventMsg streamdomain.UpdateEvent

// streamStateMsg carries a connection state transition into the view
type streamStateMsg streamdomain.ConnectionState

// streamModel holds the state for the live stream view
type streamModel struct {
	url       string
	maxEvents int
	connect   func() tea.Msg

	state        streamdomain.ConnectionState
	events       []streamdomain.UpdateEvent
	received     int
	windowWidth  int
	windowHeight int
}

// newStreamModel creates a new stream view model
func newStreamModel(url string, maxEvents int) streamModel {
	return streamModel{
		url:       url,
		maxEvents: maxEvents,
		state:     streamdomain.Idle(),
	}
}

// Init implements the Bubble Tea init method
func (m streamModel) Init() tea.Cmd {
	return m.connect
}

// Update implements the Bubble Tea update method
func (m streamModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case streamStateMsg:
		m.state = streamdomain.ConnectionState(msg)
		return m, nil

	case streamEventMsg:
		m.received++
		m.events = append(m.events, streamdomain.UpdateEvent(msg))
		if m.maxEvents > 0 && len(m.events) > m.maxEvents {
			m.events = m.events[len(m.events)-m.maxEvents:]
		}
		return m, nil
	}

	return m, nil
}

// View implements the Bubble Tea view method
func (m streamModel) View() string {
	header := m.renderHeader()
	table := m.renderEventTable()
	footer := footerStyle.Render("q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, table, footer)
}

func (m streamModel) renderHeader() string {
	title := titleStyle.Render("Pulse Stream")
	info := fmt.Sprintf("%s | events: %d", m.url, m.received)

	line := lipgloss.JoinHorizontal(lipgloss.Left,
		title,
		"  ",
		info,
		"  ",
		renderState(m.state),
	)
	return line + "\n" + strings.Repeat("─", max(m.windowWidth, 40))
}

func (m streamModel) renderEventTable() string {
	if len(m.events) == 0 {
		return dimStyle.Render("waiting for events...")
	}

	visible := m.events
	// Leave room for header and footer.
	if rows := m.windowHeight - 4; rows > 0 && len(visible) > rows {
		visible = visible[len(visible)-rows:]
	}

	var b strings.Builder
	for _, event := range visible {
		b.WriteString(fmt.Sprintf("%s  %-14s %6d  %s\n",
			event.Timestamp.Format("15:04:05"),
			event.Kind,
			event.Seq,
			eventPreview(event, max(m.windowWidth-35, 20)),
		))
	}
	return strings.TrimRight(b.String(), "\n")
}

// eventPreview renders a single-line payload preview clipped to width
func eventPreview(event streamdomain.UpdateEvent, width int) string {
	preview := strings.ReplaceAll(string(event.Payload), "\n", " ")
	if len(preview) > width {
		preview = preview[:width-3] + "..."
	}
	return preview
}

// stateLine formats a connection state for line output
func stateLine(state streamdomain.ConnectionState) string {
	switch state.Phase {
	case streamdomain.PhaseFailed:
		return fmt.Sprintf("connection failed: %v (%s)", state.Reason, time.Now().Format("15:04:05"))
	default:
		return string(state.Phase)
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	stateStyles = map[streamdomain.ConnectionPhase]lipgloss.Style{
		streamdomain.PhaseIdle:       lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		streamdomain.PhaseConnecting: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226")),
		streamdomain.PhaseConnected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
		streamdomain.PhaseFailed:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
)

func renderState(state streamdomain.ConnectionState) string {
	style, ok := stateStyles[state.Phase]
	if !ok {
		return string(state.Phase)
	}
	return style.Render(strings.ToUpper(string(state.Phase)))
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/s4"
	"github.com/s4link/s4link/pkg/session"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	connInfo      string
	snapshot      func() []poll.Reading
	state         session.State
	identity      string
	connectedAt   time.Time
	stats         *s4.Statistics
	readings      table.Model
	spinner       spinner.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type stateMsg struct {
	from, to session.State
}
type messageMsg struct {
	message s4.Message
}
type changeMsg struct {
	change poll.Change
}
type eventMsg struct {
	message string
	isError bool
}

// formatUptime formats a duration to a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, snapshot func() []poll.Reading) model {
	columns := []table.Column{
		{Title: "Name", Width: 14},
		{Title: "Address", Width: 14},
		{Title: "Priority", Width: 8},
		{Title: "Value", Width: 10},
		{Title: "Updated", Width: 12},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(10),
		table.WithFocused(false),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	m := model{
		connInfo:      connInfo,
		snapshot:      snapshot,
		stats:         s4.NewStatistics(),
		readings:      t,
		spinner:       sp,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	m.refreshReadings()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		m.refreshReadings()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = msg.to
		switch msg.to {
		case session.ConnectedSupportedWaterRower:
			m.connectedAt = time.Now()
		case session.NotConnected:
			m.identity = ""
			m.connectedAt = time.Time{}
		}
		m.addLogEntry(fmt.Sprintf("%s -> %s", msg.from, msg.to), msg.to == session.NotConnected && msg.from.Connected())

	case messageMsg:
		m.stats.Update(msg.message, nil)
		if mi, ok := msg.message.(s4.ModelInformation); ok {
			m.identity = fmt.Sprintf("S%d firmware %s", mi.Model, mi.Firmware)
		}

	case changeMsg:
		m.refreshReadings()

	case eventMsg:
		m.addLogEntry(msg.message, msg.isError)
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m *model) refreshReadings() {
	if m.snapshot == nil {
		return
	}
	readings := m.snapshot()
	rows := make([]table.Row, 0, len(readings))
	for _, r := range readings {
		value, updated := "-", "-"
		if r.Valid {
			value = fmt.Sprintf("%d", r.Value)
			updated = r.Updated.Format("15:04:05.000")
		}
		rows = append(rows, table.Row{r.Name, r.Address.String(), r.Priority.String(), value, updated})
	}
	m.readings.SetRows(rows)
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("S4LINK - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n\n")

	// Session status
	switch {
	case m.state == session.ConnectedSupportedWaterRower:
		s.WriteString(statsValueStyle.Render("✓ " + m.state.String()))
		if m.identity != "" {
			s.WriteString(headerStyle.Render(" (" + m.identity + ")"))
		}
		s.WriteString(headerStyle.Render(" for " + formatUptime(time.Since(m.connectedAt))))
	case m.state == session.ConnectedWaterRower && m.identity != "":
		s.WriteString(errorStyle.Render("✗ Unsupported monitor: " + m.identity))
	default:
		s.WriteString(warningStyle.Render(m.spinner.View() + " " + m.state.String()))
	}
	s.WriteString("\n\n")

	// Statistics
	statsContent := fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Data:"), statsValueStyle.Render(fmt.Sprintf("%d",
			m.stats.ByIdentifier[s4.TagDataMemorySingle]+m.stats.ByIdentifier[s4.TagDataMemoryDouble]+m.stats.ByIdentifier[s4.TagDataMemoryTriple])),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
	)
	s.WriteString(boxStyle.Render(statsContent))
	s.WriteString("\n\n")

	// Readings
	s.WriteString(statsLabelStyle.Render("Readings:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.readings.View()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 24
	if logHeight < 3 {
		logHeight = 3
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}

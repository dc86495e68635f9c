package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

const pollInterval = 2 * time.Second

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	staleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

type feed interface {
	status() ([]statusItem, error)
	dismiss(id string) error
	dismissAll() (int, error)
}

type model struct {
	feed     feed
	items    []statusItem
	cursor   int
	message  string
	lastPoll time.Time
	quitting bool
}

type itemsMsg []statusItem
type dismissedMsg int
type pollTickMsg struct{}
type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func initialModel(f feed) model {
	return model{feed: f}
}

func (m model) Init() tea.Cmd {
	return fetch(m.feed)
}

func tickPoll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func fetch(f feed) tea.Cmd {
	return func() tea.Msg {
		items, err := f.status()
		if err != nil {
			return errMsg{err}
		}
		return itemsMsg(items)
	}
}

func dismiss(f feed, id string) tea.Cmd {
	return func() tea.Msg {
		if err := f.dismiss(id); err != nil {
			return errMsg{err}
		}
		return dismissedMsg(1)
	}
}

func dismissAll(f feed) tea.Cmd {
	return func() tea.Msg {
		n, err := f.dismissAll()
		if err != nil {
			return errMsg{err}
		}
		return dismissedMsg(n)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "d":
			if m.cursor < len(m.items) {
				return m, dismiss(m.feed, m.items[m.cursor].ID)
			}
		case "D":
			return m, dismissAll(m.feed)
		case "r":
			return m, fetch(m.feed)
		}

	case itemsMsg:
		m.items = []statusItem(msg)
		m.lastPoll = time.Now()
		if m.cursor >= len(m.items) {
			m.cursor = max(len(m.items)-1, 0)
		}
		return m, tickPoll()

	case pollTickMsg:
		return m, fetch(m.feed)

	case dismissedMsg:
		m.message = successStyle.Render(fmt.Sprintf("✓ Dismissed %d", int(msg)))
		return m, fetch(m.feed)

	case errMsg:
		m.message = errorStyle.Render("✗ " + msg.err.Error())
		return m, tickPoll()
	}

	return m, nil
}

func progressBar(it statusItem, width int) string {
	if it.Indeterminate {
		return mutedStyle.Render(strings.Repeat("·", width))
	}
	filled := it.Progress * width / 100
	return strings.Repeat("█", filled) + mutedStyle.Render(strings.Repeat("░", width-filled))
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("Fleet delivery status"))
	s.WriteString("\n")

	if len(m.items) == 0 {
		s.WriteString(mutedStyle.Render("Nothing in flight.\n"))
	}
	for i, it := range m.items {
		cursor := " "
		line := fmt.Sprintf("%-10s %-20s %-24s %-10s %s", it.Kind, it.DeviceName, it.Label, it.State, progressBar(it, 20))
		if it.FailureReason != "" {
			line += " " + errorStyle.Render(it.FailureReason)
		}
		if it.Stale {
			line += " " + staleStyle.Render("stale")
		}
		if m.cursor == i {
			cursor = ">"
			line = selectedStyle.Render(line)
		}
		s.WriteString(cursor + " " + line + "\n")
	}

	if m.message != "" {
		s.WriteString("\n" + m.message + "\n")
	}
	if !m.lastPoll.IsZero() {
		s.WriteString(mutedStyle.Render("\nupdated " + m.lastPoll.Format("15:04:05")))
	}
	s.WriteString("\nUse ↑/↓, d to dismiss, D to dismiss all, q to quit\n")
	return s.String()
}

func main() {
	base := os.Getenv("SIGNAGE_URL")
	if base == "" {
		base = "http://localhost:3536"
	}

	p := tea.NewProgram(initialModel(newClient(base, uuid.New().String())))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

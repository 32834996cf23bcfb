// Package tui is an optional live progress viewer, gated behind --tui
// for any variant. It renders the telemetry hub's event stream with
// bubbletea, using bubbles/spinner for the busy indicator and lipgloss
// for styling — declared in the teacher's go.mod alongside glamour and
// lipgloss but never wired to a real view there; this is the first
// caller that actually builds one.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aprbench/aprloop/internal/telemetry/server"
)

var (
	stateStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	terminalGood = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

// eventMsg wraps one telemetry event as a tea.Msg.
type eventMsg server.Event

// model is the bubbletea model driving the live view.
type model struct {
	events  <-chan server.Event
	last    server.Event
	sp      spinner.Model
	done    bool
}

// New builds the initial bubbletea model reading off events.
func New(events <-chan server.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return model{events: events, sp: sp}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.sp.Tick, waitForEvent(m.events))
}

func waitForEvent(events <-chan server.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case eventMsg:
		m.last = server.Event(msg)
		if m.last.State == "terminal" {
			m.done = true
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.sp, cmd = m.sp.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	if m.done {
		b.WriteString(terminalGood.Render("done") + "\n")
	} else {
		b.WriteString(m.sp.View() + " " + stateStyle.Render(string(m.last.State)) + "\n")
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("iteration %d · elapsed %dms", m.last.Iteration, m.last.ElapsedMS)) + "\n")
	if m.last.Metrics != nil {
		b.WriteString(labelStyle.Render(fmt.Sprintf(
			"api calls %d (localize %d / patch %d) · apply %d/%d · compile %d/%d",
			m.last.Metrics.TotalAPICalls,
			m.last.Metrics.Localization.APICalls, m.last.Metrics.Patch.APICalls,
			m.last.Metrics.ApplySuccessCount, m.last.Metrics.ApplyAttemptCount,
			m.last.Metrics.CompileSuccessCount, m.last.Metrics.CompileAttemptCount,
		)) + "\n")
	}
	b.WriteString(labelStyle.Render("press q to quit") + "\n")
	return b.String()
}

// Run starts the bubbletea program and blocks until the run reaches
// terminal state or the user quits.
func Run(events <-chan server.Event) error {
	_, err := tea.NewProgram(New(events)).Run()
	return err
}

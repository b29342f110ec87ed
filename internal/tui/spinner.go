// Package tui provides the small terminal UI pieces the CLI uses while
// waiting on remote operations.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DoneMsg signals that the watched operation finished.
type DoneMsg struct {
	Success bool
	Message string
}

// spinnerModel renders a spinner next to a status message until a DoneMsg
// arrives.
type spinnerModel struct {
	spinner      spinner.Model
	message      string
	done         bool
	success      bool
	finalMessage string
	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
}

func newSpinnerModel(message string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return spinnerModel{
		spinner:      s,
		message:      message,
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case DoneMsg:
		m.done = true
		m.success = msg.Success
		m.finalMessage = msg.Message
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m spinnerModel) View() string {
	if m.done {
		if m.success {
			return m.successStyle.Render("✓ "+m.finalMessage) + "\n"
		}
		return m.errorStyle.Render("✗ "+m.finalMessage) + "\n"
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.message)
}

// RunWhile shows a spinner with the given message while fn runs in the
// background. fn returns the final message and whether the operation
// succeeded.
func RunWhile(message string, fn func() (string, bool)) error {
	p := tea.NewProgram(newSpinnerModel(message))

	go func() {
		final, ok := fn()
		p.Send(DoneMsg{Success: ok, Message: final})
	}()

	_, err := p.Run()
	return err
}

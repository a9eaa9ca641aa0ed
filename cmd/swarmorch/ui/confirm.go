package ui

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user aborts a prompt with ctrl+c or esc.
var ErrCancelled = errors.New("cancelled")

// ErrNoInteraction is returned when a prompt is needed but the terminal is
// not interactive.
type ErrNoInteraction struct {
	Hint string
}

func (e *ErrNoInteraction) Error() string {
	if e.Hint == "" {
		return "interaction required but disabled"
	}
	return "interaction required but disabled: " + e.Hint
}

// RequireInteraction fails with *ErrNoInteraction in non-interactive mode.
func RequireInteraction(hint string) error {
	if IsNoInteraction() {
		return &ErrNoInteraction{Hint: hint}
	}
	return nil
}

// Confirm asks a yes/no question on stderr. bypassHint tells
// non-interactive callers how to skip the prompt, e.g. "use --yes to skip".
func Confirm(question, bypassHint string) (bool, error) {
	if err := RequireInteraction(bypassHint); err != nil {
		return false, fmt.Errorf("confirmation required: %w", err)
	}

	m := &confirmModel{question: question}
	if _, err := tea.NewProgram(m, tea.WithOutput(os.Stderr)).Run(); err != nil {
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	return m.result()
}

// confirmModel answers "no" unless the user explicitly types y.
type confirmModel struct {
	question  string
	confirmed bool
	cancelled bool
	done      bool
}

func (m *confirmModel) Init() tea.Cmd { return nil }

func (m *confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.confirmed, m.done = true, true
	case "n", "N", "enter":
		m.done = true
	case "ctrl+c", "esc":
		m.cancelled, m.done = true, true
	default:
		return m, nil
	}
	return m, tea.Quit
}

func (m *confirmModel) View() string {
	if m.done {
		return ""
	}
	return AccentStyle.Render("?") + " " + m.question + " " + MutedStyle.Render("[y/N]") + " "
}

func (m *confirmModel) result() (bool, error) {
	if m.cancelled {
		return false, ErrCancelled
	}
	return m.confirmed, nil
}

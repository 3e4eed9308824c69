package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	// ErrNoInteraction means a confirmation was needed but nobody can answer it
	ErrNoInteraction = errors.New("no interactive terminal")

	// ErrCancelled means the prompt was dismissed with ctrl+c or esc
	ErrCancelled = errors.New("cancelled")
)

// PromptConfirmer asks a y/N question on Out and reads the key press from In
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer

	// AssumeYes answers every prompt without asking, e.g. for --yes
	AssumeYes bool

	// BypassHint tells a non-interactive caller how to skip the prompt,
	// e.g. "use --yes to skip"
	BypassHint string

	// Interactive overrides terminal detection when set
	Interactive func() bool
}

// Confirm returns true only for an explicit yes. Enter and n answer no.
func (c *PromptConfirmer) Confirm(prompt string) (bool, error) {
	if c.AssumeYes {
		return true, nil
	}
	if !c.interactive() {
		err := ErrNoInteraction
		if c.BypassHint != "" {
			err = fmt.Errorf("%w: %s", ErrNoInteraction, c.BypassHint)
		}
		return false, fmt.Errorf("confirmation required: %w", err)
	}

	m := &confirmModel{question: prompt}
	p := tea.NewProgram(m,
		tea.WithInput(c.In),
		tea.WithOutput(c.Out),
	)
	if _, err := p.Run(); err != nil {
		return false, fmt.Errorf("confirm prompt: %w", err)
	}

	if m.cancelled {
		return false, ErrCancelled
	}
	return m.confirmed, nil
}

func (c *PromptConfirmer) interactive() bool {
	if c.Interactive != nil {
		return c.Interactive()
	}
	if envTruthy("NO_INTERACTION") || envTruthy("CI") {
		return false
	}
	return isTerminal(c.Out)
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// confirmModel is a one-key yes/no prompt
type confirmModel struct {
	question  string
	confirmed bool
	cancelled bool
	answered  bool
}

func (m *confirmModel) Init() tea.Cmd { return nil }

func (m *confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "y", "Y":
			m.confirmed = true
			m.answered = true
			return m, tea.Quit
		case "n", "N", "enter":
			m.answered = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *confirmModel) View() string {
	if m.answered || m.cancelled {
		return ""
	}
	return "? " + m.question + " [y/N] "
}

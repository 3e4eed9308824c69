package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/lei/runwatch/internal/backend"
	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/internal/poller"
	"github.com/lei/runwatch/internal/service"
	"github.com/lei/runwatch/pkg/logger"
)

// RunsMsg carries one poll result into the list view
type RunsMsg poller.Result[[]models.RunSummary]

// ListConfig holds what the run list view needs
type ListConfig struct {
	Service *service.Service
	Query   service.RunQuery
	Logger  *logger.Logger
	Now     func() time.Time
}

// ListModel is the live list of recent runs. Choosing a run quits the
// program with Selected set so the caller can open the detail view.
type ListModel struct {
	query  service.RunQuery
	logger *logger.Logger
	now    func() time.Time

	ctx     context.Context
	poll    *poller.Controller[[]models.RunSummary]
	results chan poller.Result[[]models.RunSummary]

	runs       []models.RunSummary
	err        error
	state      poller.State
	lastUpdate time.Time

	cursor   int
	selected *models.RunIdentity

	width int
}

// NewListModel creates the view; polling starts in Init
func NewListModel(ctx context.Context, cfg ListConfig) ListModel {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	results := make(chan poller.Result[[]models.RunSummary], 1)
	return ListModel{
		query:   cfg.Query,
		logger:  cfg.Logger,
		now:     cfg.Now,
		ctx:     ctx,
		results: results,
		poll:    cfg.Service.NewListPoller(cfg.Query, keepLatest(results)),
		state:   poller.StateIdle,
	}
}

// Selected returns the run chosen with enter, if any
func (m ListModel) Selected() (models.RunIdentity, bool) {
	if m.selected == nil {
		return models.RunIdentity{}, false
	}
	return *m.selected, true
}

// Init starts polling
func (m ListModel) Init() tea.Cmd {
	m.poll.Start(m.ctx)
	return m.wait()
}

func (m ListModel) wait() tea.Cmd {
	return waitForResult(m.results, func(r poller.Result[[]models.RunSummary]) tea.Msg {
		return RunsMsg(r)
	})
}

// Update handles messages
func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case RunsMsg:
		m.state = msg.State
		m.lastUpdate = msg.At
		if msg.Err != nil {
			m.err = msg.Err
			m.logger.Warn("tui: run list fetch failed", "error", msg.Err)
		} else {
			m.err = nil
			m.runs = msg.Value
			m.cursor = min(m.cursor, max(0, len(m.runs)-1))
		}
		return m, m.wait()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.poll.Stop()
			return m, tea.Quit
		case "j", "down":
			if m.cursor < len(m.runs)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "r":
			if m.poll.State() == poller.StateIdle {
				m.poll.Resume(m.ctx)
			} else {
				m.poll.Refresh(m.ctx)
			}
		case "enter":
			if m.cursor < len(m.runs) {
				id := m.runs[m.cursor].Identity
				m.selected = &id
				m.poll.Stop()
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

// View renders the run list
func (m ListModel) View() string {
	var b strings.Builder
	now := m.now()

	width := m.width
	if width == 0 {
		width = 80
	}

	title := " Recent runs"
	if m.query.Search != "" {
		title += fmt.Sprintf(" matching %q", m.query.Search)
	}
	b.WriteString(headerStyle.Width(width).Render(title))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(failedStyle.Render(backend.UserMessage(m.err)))
		b.WriteString("\n")
	}

	switch {
	case m.runs == nil && m.err == nil:
		b.WriteString("Loading...\n")
	case len(m.runs) == 0:
		b.WriteString(dimmedStyle.Render("No runs found"))
		b.WriteString("\n")
	default:
		lines := make([]string, 0, len(m.runs))
		for i, r := range m.runs {
			lines = append(lines, runLine(r, i == m.cursor, now))
		}
		b.WriteString(sectionStyle.Width(width - 2).Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	status := " " + string(m.state)
	if !m.lastUpdate.IsZero() {
		status += " · updated " + humanize.RelTime(m.lastUpdate, now, "ago", "from now")
	}
	b.WriteString(statusBarStyle.Width(width).Render(status))
	b.WriteString("\n")
	b.WriteString(dimmedStyle.Render("↑/↓ select · enter open · r refresh · q quit"))
	return b.String()
}

func runLine(r models.RunSummary, selected bool, now time.Time) string {
	cursor := "  "
	id := r.Identity.String()
	if selected {
		cursor = "> "
		id = selectedStyle.Render(id)
	}
	parts := []string{
		cursor + runStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
		id,
	}
	if r.WorkflowType != "" {
		parts = append(parts, dimmedStyle.Render(r.WorkflowType))
	}
	if r.CurrentPhase != "" {
		parts = append(parts, r.CurrentPhase)
	}
	if r.StartTime != nil {
		parts = append(parts, dimmedStyle.Render(humanize.RelTime(*r.StartTime, now, "ago", "from now")))
	}
	return strings.Join(parts, "  ")
}

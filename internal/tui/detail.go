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
	"github.com/lei/runwatch/internal/output"
	"github.com/lei/runwatch/internal/platform"
	"github.com/lei/runwatch/internal/poller"
	"github.com/lei/runwatch/internal/reconcile"
	"github.com/lei/runwatch/internal/service"
	"github.com/lei/runwatch/pkg/logger"
)

// SnapshotMsg carries one poll result into the detail view
type SnapshotMsg poller.Result[*models.RunSnapshot]

// ActionDoneMsg reports the outcome of a user-triggered action
type ActionDoneMsg struct {
	Action string
	Text   string
	Err    error
}

const (
	actionTerminate = "terminate"
	actionRetry     = "retry"
	actionExport    = "export"
	actionCopy      = "copy"
)

// DetailConfig holds what the run detail view needs
type DetailConfig struct {
	Service  *service.Service
	Identity models.RunIdentity
	Platform platform.Services
	Logger   *logger.Logger

	// Now is the clock used for relative times; nil means time.Now
	Now func() time.Time
}

// DetailModel is the live view of one run
type DetailModel struct {
	svc      *service.Service
	id       models.RunIdentity
	platform platform.Services
	logger   *logger.Logger
	now      func() time.Time

	ctx     context.Context
	poll    *poller.Controller[*models.RunSnapshot]
	results chan poller.Result[*models.RunSnapshot]

	snap       *models.RunSnapshot
	err        error
	state      poller.State
	lastUpdate time.Time

	cursor   int
	expanded bool

	// in-flight commands; a key is ignored while its own request is outstanding
	terminating bool
	retrying    bool

	confirming bool
	status     string
	manualCopy string

	width  int
	height int
}

// NewDetailModel creates the view; polling starts in Init
func NewDetailModel(ctx context.Context, cfg DetailConfig) DetailModel {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	results := make(chan poller.Result[*models.RunSnapshot], 1)
	m := DetailModel{
		svc:      cfg.Service,
		id:       cfg.Identity,
		platform: cfg.Platform,
		logger:   cfg.Logger,
		now:      cfg.Now,
		ctx:      ctx,
		results:  results,
		state:    poller.StateIdle,
	}
	m.poll = cfg.Service.NewDetailPoller(cfg.Identity, keepLatest(results))
	return m
}

// Init starts polling and waits for the first snapshot
func (m DetailModel) Init() tea.Cmd {
	m.poll.Start(m.ctx)
	return waitForResult(m.results, func(r poller.Result[*models.RunSnapshot]) tea.Msg {
		return SnapshotMsg(r)
	})
}

// Update handles messages
func (m DetailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case SnapshotMsg:
		m.state = msg.State
		m.lastUpdate = msg.At
		if msg.Err != nil {
			m.err = msg.Err
			m.logger.Warn("tui: snapshot fetch failed", "run", m.id.String(), "error", msg.Err)
		} else {
			m.err = nil
			m.snap = msg.Value
			m.cursor = min(m.cursor, max(0, len(m.stages())-1))
		}
		return m, waitForResult(m.results, func(r poller.Result[*models.RunSnapshot]) tea.Msg {
			return SnapshotMsg(r)
		})

	case ActionDoneMsg:
		return m.actionDone(msg)

	case tea.KeyMsg:
		if m.confirming {
			return m.confirmKey(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m DetailModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.poll.Stop()
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.stages())-1 {
			m.cursor++
		}
		m.manualCopy = ""
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
		m.manualCopy = ""
	case "enter", " ":
		m.expanded = !m.expanded
	case "r":
		if m.poll.State() == poller.StateIdle {
			m.poll.Resume(m.ctx)
			m.status = "Polling resumed"
		} else {
			m.poll.Refresh(m.ctx)
			m.status = "Refreshing"
		}
	case "t":
		if m.terminating || m.snap == nil || !m.snap.RunStatus.Active() {
			return m, nil
		}
		m.confirming = true
		m.status = "Terminate this run? (y/n)"
	case "R":
		if m.retrying {
			return m, nil
		}
		m.retrying = true
		stage := ""
		if st, ok := m.selected(); ok {
			stage = st.Name
		}
		m.status = "Retrying " + displayStage(stage, m.svc.Pipeline())
		return m, m.retryCmd(stage)
	case "e":
		return m, m.exportCmd(output.FormatJSON)
	case "h":
		return m, m.exportCmd(output.FormatHTML)
	case "c":
		st, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m.copy(output.Classify(st.Output).CopyText())
	case "i":
		return m.copy(m.id.String())
	}
	return m, nil
}

func (m DetailModel) confirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirming = false
	switch msg.String() {
	case "y", "Y":
		m.terminating = true
		m.status = "Terminating run"
		return m, m.terminateCmd()
	default:
		m.status = "Terminate cancelled"
		return m, nil
	}
}

func (m DetailModel) actionDone(msg ActionDoneMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case actionTerminate:
		m.terminating = false
	case actionRetry:
		m.retrying = false
	}

	if msg.Err != nil {
		m.status = fmt.Sprintf("%s failed: %s", msg.Action, backend.UserMessage(msg.Err))
		return m, nil
	}
	m.status = msg.Text

	switch msg.Action {
	case actionRetry:
		m.poll.Resume(m.ctx)
	case actionTerminate:
		m.poll.Refresh(m.ctx)
	}
	return m, nil
}

// copy puts text on the clipboard or keeps it on screen for manual selection
func (m DetailModel) copy(text string) (tea.Model, tea.Cmd) {
	if text == "" {
		m.status = "Nothing to copy"
		return m, nil
	}
	if m.platform.Clipboard != nil && m.platform.Clipboard.Copy(text) == nil {
		m.manualCopy = ""
		m.status = "Copied to clipboard"
		return m, nil
	}
	m.manualCopy = text
	m.status = "Clipboard unavailable; select the text below to copy it"
	return m, nil
}

func (m DetailModel) retryCmd(stage string) tea.Cmd {
	svc, ctx, id := m.svc, m.ctx, m.id
	return func() tea.Msg {
		res, err := svc.RetryStage(ctx, id, stage)
		if err != nil {
			return ActionDoneMsg{Action: actionRetry, Err: err}
		}
		return ActionDoneMsg{Action: actionRetry, Text: "Retry scheduled for " + res.Stage}
	}
}

func (m DetailModel) terminateCmd() tea.Cmd {
	svc, ctx, id := m.svc, m.ctx, m.id
	return func() tea.Msg {
		if _, err := svc.TerminateRun(ctx, id, "Terminated from terminal view"); err != nil {
			return ActionDoneMsg{Action: actionTerminate, Err: err}
		}
		return ActionDoneMsg{Action: actionTerminate, Text: "Run terminated"}
	}
}

func (m DetailModel) exportCmd(format string) tea.Cmd {
	st, ok := m.selected()
	if !ok || m.platform.Files == nil {
		return nil
	}
	svc, ctx, id, files := m.svc, m.ctx, m.id, m.platform.Files
	return func() tea.Msg {
		artifact, err := svc.ExportStage(ctx, id, st.Name, format)
		if err != nil {
			return ActionDoneMsg{Action: actionExport, Err: err}
		}
		path, err := files.Save(artifact.Filename, artifact.Data)
		if err != nil {
			return ActionDoneMsg{Action: actionExport, Err: err}
		}
		return ActionDoneMsg{
			Action: actionExport,
			Text:   fmt.Sprintf("Saved %s (%s)", path, humanize.Bytes(uint64(len(artifact.Data)))),
		}
	}
}

func (m DetailModel) stages() []models.NormalizedStage {
	if m.snap == nil {
		return nil
	}
	return m.snap.OrderedStages()
}

func (m DetailModel) selected() (models.NormalizedStage, bool) {
	stages := m.stages()
	if m.cursor < 0 || m.cursor >= len(stages) {
		return models.NormalizedStage{}, false
	}
	return stages[m.cursor], true
}

// View renders the run detail
func (m DetailModel) View() string {
	var b strings.Builder
	now := m.now()

	width := m.width
	if width == 0 {
		width = 80
	}

	b.WriteString(headerStyle.Width(width).Render(" Run " + m.id.String()))
	b.WriteString("\n")

	if m.snap == nil && m.err == nil {
		b.WriteString("Loading...\n")
		return b.String()
	}

	if m.err != nil {
		b.WriteString(failedStyle.Render(backend.UserMessage(m.err)))
		b.WriteString("\n")
		b.WriteString(dimmedStyle.Render("Press r to try again."))
		b.WriteString("\n")
	}

	if m.snap != nil {
		b.WriteString(m.renderSummary(now))
		b.WriteString("\n")
		b.WriteString(sectionStyle.Width(width - 2).Render(m.renderStages(now)))
		b.WriteString("\n")

		if st, ok := m.selected(); ok && m.expanded {
			body := titleStyle.Render("Output: "+st.Name) + "\n" + renderOutput(output.Classify(st.Output))
			b.WriteString(sectionStyle.Width(width - 2).Render(body))
			b.WriteString("\n")
		}
	}

	if m.manualCopy != "" {
		b.WriteString(sectionStyle.Width(width - 2).Render(m.manualCopy))
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatusBar(width, now))
	return b.String()
}

func (m DetailModel) renderSummary(now time.Time) string {
	snap := m.snap
	var lines []string

	lines = append(lines, fmt.Sprintf("%s  %s  %d/%d completed, %d failed",
		runStyle(snap.RunStatus).Render(string(snap.RunStatus)),
		progressBar(snap.Aggregate.ProgressPercent, 20),
		snap.Aggregate.CompletedCount,
		snap.Aggregate.Total,
		snap.Aggregate.FailedCount))

	d := snap.Diagnostics
	var meta []string
	if d.CurrentPhase != "" {
		meta = append(meta, "phase: "+d.CurrentPhase)
	}
	if d.StartTime != nil {
		meta = append(meta, "started "+humanize.RelTime(*d.StartTime, now, "ago", "from now"))
	}
	if d.ElapsedSeconds != nil {
		meta = append(meta, "elapsed "+formatDuration(d.ElapsedSeconds))
	}
	if d.DuplicateCount > 0 {
		meta = append(meta, fmt.Sprintf("%s events, %s retried", humanize.Comma(int64(d.RawEventCount)), humanize.Comma(int64(d.DuplicateCount))))
	}
	if len(meta) > 0 {
		lines = append(lines, dimmedStyle.Render(strings.Join(meta, " · ")))
	}
	if d.Warning != "" {
		lines = append(lines, warningStyle.Render("warning: "+d.Warning))
	}
	if d.DiagnosticError != "" {
		lines = append(lines, failedStyle.Render("diagnostic: "+d.DiagnosticError))
	}
	return strings.Join(lines, "\n")
}

func (m DetailModel) renderStages(now time.Time) string {
	stages := m.stages()
	if len(stages) == 0 {
		return dimmedStyle.Render("No stages reported yet")
	}
	pipeline := m.svc.Pipeline()
	lines := make([]string, 0, len(stages))
	for i, st := range stages {
		lines = append(lines, stageLine(st, pipeline.Label(st.Name), i == m.cursor, now))
	}
	return strings.Join(lines, "\n")
}

func (m DetailModel) renderStatusBar(width int, now time.Time) string {
	polling := string(m.state)
	if !m.lastUpdate.IsZero() {
		polling += " · updated " + humanize.RelTime(m.lastUpdate, now, "ago", "from now")
	}
	help := "↑/↓ select · enter output · r refresh · R retry · t terminate · e/h export · c copy · q quit"
	bar := statusBarStyle.Width(width).Render(" " + polling)
	if m.status != "" {
		bar += "\n" + m.status
	}
	return bar + "\n" + dimmedStyle.Render(help)
}

// displayStage labels a retry target; an empty stage means the terminal one
func displayStage(stage string, p reconcile.Pipeline) string {
	if stage == "" {
		stage = p.TerminalStage
	}
	return p.Label(stage)
}

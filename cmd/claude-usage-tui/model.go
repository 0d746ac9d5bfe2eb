package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/provider/claude"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

const clockRate = 30 * time.Second

var (
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Controller is the part of the poller the indicator drives.
type Controller interface {
	Trigger(ctx context.Context, reason engine.Trigger) bool
	TriggerAfter(ctx context.Context, reason engine.Trigger)
	InFlight() bool
}

type (
	updateMsg   engine.Update
	clockMsg    time.Time
	loginMsg    struct{ err error }
	openDoneMsg struct{ err error }
)

type model struct {
	ctx     context.Context
	poller  Controller
	updates <-chan engine.Update
	login   func(ctx context.Context) error
	open    func(url string) error
	now     func() time.Time

	spinner spinner.Model
	snap    usage.Snapshot
	status  string
	failed  bool
	busy    bool
}

func newModel(ctx context.Context, poller Controller, updates <-chan engine.Update, initial usage.Snapshot) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		ctx:     ctx,
		poller:  poller,
		updates: updates,
		now:     time.Now,
		spinner: s,
		snap:    initial,
		status:  "🔄 Updating...",
		busy:    true,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForUpdate(m.updates),
		clock(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case clockMsg:
		// Countdowns are relative to now.
		return m, clock()

	case updateMsg:
		m.applyUpdate(engine.Update(msg))
		return m, waitForUpdate(m.updates)

	case loginMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("Login: %v", msg.err))
			return m, nil
		}
		// A poll already running read the old cookies; fetch again after it.
		m.poller.TriggerAfter(m.ctx, engine.TriggerLogin)
		m.status, m.failed, m.busy = "✅ Login completed", false, true
		return m, nil

	case openDoneMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("Open settings: %v", msg.err))
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "r":
		if m.poller.Trigger(m.ctx, engine.TriggerManual) {
			m.status, m.failed, m.busy = "🔄 Updating...", false, true
		} else {
			m.status, m.failed = "🔄 Update already in progress", false
		}
		return m, nil

	case "l":
		if m.login == nil {
			return m, nil
		}
		m.status, m.failed = "🔑 Starting login...", false
		login, ctx := m.login, m.ctx
		return m, func() tea.Msg {
			return loginMsg{err: login(ctx)}
		}

	case "o":
		if m.open == nil {
			return m, nil
		}
		open := m.open
		return m, func() tea.Msg {
			return openDoneMsg{err: open(claude.SettingsURL)}
		}
	}
	return m, nil
}

func (m *model) applyUpdate(u engine.Update) {
	m.snap = u.Snapshot
	m.busy = m.poller.InFlight()

	switch {
	case u.Snapshot.Warning != "":
		m.setError(u.Snapshot.Warning)
	case u.Err != nil:
		m.setError(fmt.Sprintf("Last fetch failed: %v", u.Err))
	default:
		m.status, m.failed = "", false
	}
}

func (m *model) setError(text string) {
	m.status, m.failed = "❌ Error: "+text, true
}

func (m model) View() string {
	header := labelStyle.Render(usage.PanelLabel(m.snap))
	if m.busy {
		header += " " + m.spinner.View()
	}

	var body strings.Builder
	for _, line := range usage.Lines(m.snap, m.now()) {
		body.WriteString(line + "\n")
	}
	last := "never"
	if !m.snap.LastUpdate.IsZero() {
		last = m.snap.LastUpdate.Local().Format("2006-01-02 15:04")
	}
	body.WriteString(subtleStyle.Render(fmt.Sprintf("Last update: %s (%s)", last, m.snap.Source)))

	var status string
	switch {
	case m.status == "":
		status = okStyle.Render("Up to date")
	case m.failed:
		status = errorStyle.Render(m.status)
	default:
		status = m.status
	}
	footer := subtleStyle.Render("r update now • l renew session • o open settings • q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		paneStyle.Render(body.String()),
		status,
		footer,
	)
}

func waitForUpdate(updates <-chan engine.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}

func clock() tea.Cmd {
	return tea.Tick(clockRate, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

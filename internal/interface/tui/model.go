// Package tui is a live terminal view of the current agent session. It is a
// read-mostly projection of the session controller: all state changes flow
// through the controller's operations, never through the view.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/nexustext/nxagent/internal/core/models"
	"github.com/nexustext/nxagent/internal/core/session"
)

type tickMsg time.Time

type approvalResolvedMsg struct {
	err error
}

type Model struct {
	controller *session.Controller
	spinner    spinner.Model
	viewport   viewport.Model

	width  int
	height int
	ready  bool

	sess      models.Session
	resolving bool
	notice    string
}

func New(controller *session.Controller) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		controller: controller,
		spinner:    sp,
		sess:       controller.Session(),
	}
}

// refresh keeps the view at most half a second behind the store
func refresh() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 6
		footerHeight := 4
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.viewport.SetContent(m.renderLog())
		return m, nil

	case tickMsg:
		wasAtBottom := m.viewport.AtBottom()
		m.sess = m.controller.Session()
		if m.ready {
			m.viewport.SetContent(m.renderLog())
			if wasAtBottom {
				m.viewport.GotoBottom()
			}
		}
		return m, refresh()

	case approvalResolvedMsg:
		m.resolving = false
		if msg.err != nil {
			m.notice = fmt.Sprintf("Approval failed: %v", msg.err)
		} else {
			m.notice = ""
		}
		m.sess = m.controller.Session()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "a":
		if m.awaitingDecision() {
			return m.resolve(append([]string(nil), m.sess.PendingApproval.Hypotheses...))
		}

	case "n":
		if m.awaitingDecision() {
			// Approve nothing; the backend may treat it as a soft rejection.
			return m.resolve([]string{})
		}

	case "d":
		if m.awaitingDecision() {
			m.controller.DismissApproval()
			m.notice = "Panel dismissed. The backend is still waiting; resolve with 'nxagent approve'."
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) awaitingDecision() bool {
	return m.sess.Status == models.StatusPendingApproval &&
		m.sess.PendingApproval != nil &&
		!m.resolving &&
		!m.controller.ApprovalDismissed()
}

func (m Model) resolve(approved []string) (tea.Model, tea.Cmd) {
	m.resolving = true
	controller := m.controller
	return m, func() tea.Msg {
		_, err := controller.Resume(context.Background(), approved)
		return approvalResolvedMsg{err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("nxagent watch"))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Session %s  dataset %s  %s\n", m.sess.SessionID, m.sess.DatasetID, m.sess.ControlMode))
	if m.sess.Objective != "" {
		b.WriteString(fmt.Sprintf("Objective: %s\n", m.sess.Objective))
	} else {
		b.WriteString("\n")
	}

	status := m.renderStatus()
	updated := ""
	if !m.sess.UpdatedAt.IsZero() {
		updated = timestampStyle.Render("  updated " + humanize.Time(m.sess.UpdatedAt))
	}
	b.WriteString(status + updated + "\n\n")
	return b.String()
}

func (m Model) renderStatus() string {
	switch m.sess.Status {
	case models.StatusRunning:
		return m.spinner.View() + runningStyle.Render(" running")
	case models.StatusPendingApproval:
		return pendingStyle.Render("waiting for approval")
	case models.StatusCompleted:
		return completedStyle.Render(fmt.Sprintf("completed, %d insight(s)", len(m.sess.Insights)))
	case models.StatusError:
		return errorStyle.Render("error")
	default:
		return string(m.sess.Status)
	}
}

func (m Model) renderLog() string {
	var b strings.Builder
	for _, entry := range m.sess.LogEntries {
		ts := timestampStyle.Render(entry.Timestamp.Local().Format("15:04:05"))
		phase := phaseStyle.Render(fmt.Sprintf("%-11s", entry.Phase))
		b.WriteString(fmt.Sprintf("%s %s %s", ts, phase, entry.Thought))
		if entry.Action != "" {
			b.WriteString(" -> " + entry.Action)
		}
		b.WriteString(fmt.Sprintf("  [%.0f%%]\n", entry.Confidence*100))
	}

	if m.sess.Status == models.StatusCompleted {
		for _, ins := range m.sess.Insights {
			b.WriteString("\n" + insightStyle.Render("* "+ins.Title))
			b.WriteString(fmt.Sprintf(" (grounding %.0f%%)\n", ins.GroundingScore*100))
			if ins.Description != "" {
				b.WriteString("  " + ins.Description + "\n")
			}
		}
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var b strings.Builder

	if m.awaitingDecision() {
		req := m.sess.PendingApproval
		var panel strings.Builder
		panel.WriteString(req.Message + "\n")
		for i, h := range req.Hypotheses {
			panel.WriteString(fmt.Sprintf("[%d] %s\n", i+1, h))
		}
		b.WriteString(approvalBoxStyle.Render(strings.TrimRight(panel.String(), "\n")))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("a approve all · n approve nothing · d dismiss · q quit"))
	} else {
		if m.resolving {
			b.WriteString(m.spinner.View() + " resolving approval...\n")
		}
		if m.notice != "" {
			b.WriteString(m.notice + "\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ scroll · q quit"))
	}
	return b.String()
}

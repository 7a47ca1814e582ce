// Package tui implements the poolmon operator console: a periodic rescan of
// the pipeline namespaces rendered as pool, counter, and report panes.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/relaxpool/internal/config"
	"github.com/aristath/relaxpool/internal/layout"
)

// rescanInterval is how often the namespaces are re-read. Polling, like the
// workers themselves: a missed change is picked up next tick.
const rescanInterval = 2 * time.Second

const maxReportLines = 100

// tickMsg triggers a rescan.
type tickMsg time.Time

// Model is the root Bubble Tea model for poolmon.
type Model struct {
	root         layout.Root
	snap         Snapshot
	reportsView  viewport.Model
	settingsPane SettingsPaneModel
	showSettings bool
	width        int
	height       int
	quitting     bool
}

// New creates the poolmon model.
func New(root layout.Root, cfg *config.PipelineConfig, globalPath, projectPath string) Model {
	return Model{
		root:         root,
		reportsView:  viewport.New(80, 10),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
	}
}

// Init schedules the first rescan.
func (m Model) Init() tea.Cmd {
	return tea.Batch(rescan(m.root), tick())
}

func tick() tea.Cmd {
	return tea.Tick(rescanInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// rescan reads the namespaces off the Update goroutine.
func rescan(root layout.Root) tea.Cmd {
	return func() tea.Msg {
		return takeSnapshot(root, maxReportLines)
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Settings overlay is modal: it owns the keyboard while open.
		if m.showSettings {
			switch msg.String() {
			case "esc":
				m.showSettings = false
				m.settingsPane.SetVisible(false)
				return m, nil
			default:
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
				return m, cmd
			}
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			return m, m.settingsPane.Init()
		case KeyRefresh:
			return m, rescan(m.root)
		case KeyUp, KeyK:
			m.reportsView.ScrollUp(1)
			return m, nil
		case KeyDown, KeyJ:
			m.reportsView.ScrollDown(1)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.reportsView.Width = msg.Width - 4
		m.reportsView.Height = max(4, msg.Height/2-4)
		m.settingsPane.SetSize(msg.Width, msg.Height)
		return m, nil

	case tickMsg:
		return m, tea.Batch(rescan(m.root), tick())

	case Snapshot:
		m.snap = msg
		m.reportsView.SetContent(renderReports(msg.Reports))
		return m, nil
	}

	return m, nil
}

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	title := StyleTitle.Render(fmt.Sprintf("relaxpool @ %s", string(m.root)))
	counters := StyleCounters.Render(fmt.Sprintf(
		"screened: %d   refined: %d   pool: %d",
		m.snap.FastCount, m.snap.SlowCount, len(m.snap.Pool),
	))

	poolHeight := max(4, m.height/2-4)
	poolPane := StylePaneBorder.Render(
		StyleTitle.Render("waiting pool (best first)") + "\n" + renderPool(m.snap.Pool, poolHeight),
	)
	reportPane := StylePaneBorder.Render(
		StyleTitle.Render("reports (newest first)") + "\n" + m.reportsView.View(),
	)

	body := lipgloss.JoinVertical(lipgloss.Left, title, counters, poolPane, reportPane, HelpView())
	if m.snap.Err != nil {
		body = lipgloss.JoinVertical(lipgloss.Left, body, StyleError.Render("scan error: "+m.snap.Err.Error()))
	}
	return body
}

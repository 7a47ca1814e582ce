package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/relaxpool/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.PipelineConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget   string
	poolCapacity string
	pollInterval string
	idleSleep    string
	engineModel  string
	engineDevice string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.PipelineConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		visible:     false,
		saved:       false,

		// Initialize form field values from config
		saveTarget:   "global",
		poolCapacity: strconv.Itoa(cfg.PoolCapacity),
		pollInterval: strconv.Itoa(cfg.PollIntervalMS),
		idleSleep:    strconv.Itoa(cfg.IdleSleepMS),
		engineModel:  cfg.Engine.Model,
		engineDevice: cfg.Engine.Device,
	}

	m.buildForm()
	return m
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.relaxpool/config.json)", "global"),
					huh.NewOption("Project (.relaxpool/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("poolCapacity").
				Title("Pool Capacity").
				Value(&m.poolCapacity).
				Placeholder("128").
				Validate(validateInt),

			huh.NewInput().
				Key("pollInterval").
				Title("Fast Worker Poll Interval (ms)").
				Value(&m.pollInterval).
				Placeholder("50").
				Validate(validateInt),

			huh.NewInput().
				Key("idleSleep").
				Title("Slow Worker Idle Sleep (ms)").
				Value(&m.idleSleep).
				Placeholder("200").
				Validate(validateInt),
		).Title("Pipeline Settings"),

		huh.NewGroup(
			huh.NewInput().
				Key("engineModel").
				Title("Engine Model").
				Value(&m.engineModel).
				Placeholder("GRACE-2L-OMAT"),

			huh.NewInput().
				Key("engineDevice").
				Title("Engine Device").
				Value(&m.engineDevice).
				Placeholder("cpu"),
		).Title("Engine Settings"),
	)
}

func validateInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	// Check if form is completed
	if m.form.State == huh.StateCompleted {
		// Copy form values back to config
		m.applyFormToConfig()

		// Determine save path
		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		// Save config
		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
		}

		// Hide form after successful save
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
// Values were validated as positive integers by the form.
func (m *SettingsPaneModel) applyFormToConfig() {
	if n, err := strconv.Atoi(m.poolCapacity); err == nil {
		m.config.PoolCapacity = n
	}
	if n, err := strconv.Atoi(m.pollInterval); err == nil {
		m.config.PollIntervalMS = n
	}
	if n, err := strconv.Atoi(m.idleSleep); err == nil {
		m.config.IdleSleepMS = n
	}
	m.config.Engine.Model = m.engineModel
	m.config.Engine.Device = m.engineDevice
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string

	// Show saved message if just saved
	if m.saved && m.form.State == huh.StateCompleted {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true).
			Render("✓ Settings saved successfully!")
	} else if m.err != nil {
		// Show error if save failed
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		// Render form
		content = m.form.View()
	}

	// Wrap in styled border
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Reset form state when showing
	if v && m.form != nil {
		// Rebuild form to reset state
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

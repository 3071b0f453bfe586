package wizard

import (
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/devwatch/internal/application"
	"github.com/felixgeelhaar/devwatch/internal/domain"
)

type (
	wizardState int

	initWizardModel struct {
		state     wizardState
		cfg       application.Config
		cursor    int
		confirmed bool
		aborted   bool
	}
)

const (
	stateIntro wizardState = iota
	stateEdit
	stateConfirm
)

// Editable rows in the edit screen.
const (
	fieldDebounce = iota
	fieldMode
	fieldReload
	fieldCount
)

const (
	debounceStep = 50 * time.Millisecond
	maxDebounce  = 5 * time.Second
)

// Run lets the user review a detected configuration. It returns false when
// the wizard was cancelled.
func Run(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
	return runInitWizard(cfg, stdout, stdin)
}

func runInitWizard(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
	model := newInitWizardModel(cfg)
	program := tea.NewProgram(model, tea.WithInput(stdin), tea.WithOutput(stdout))
	res, err := program.Run()
	if err != nil {
		return cfg, false, err
	}
	finalModel, ok := res.(*initWizardModel)
	if !ok {
		return cfg, false, fmt.Errorf("unexpected wizard state")
	}
	if finalModel.aborted || !finalModel.confirmed {
		return cfg, false, nil
	}
	return finalModel.toConfig(), true, nil
}

func newInitWizardModel(cfg application.Config) *initWizardModel {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeDev
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = domain.DefaultDebounce
	}
	return &initWizardModel{
		state: stateIntro,
		cfg:   cfg,
	}
}

func (m *initWizardModel) Init() tea.Cmd {
	return nil
}

func (m *initWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			switch m.state {
			case stateIntro:
				m.state = stateEdit
			case stateEdit:
				m.state = stateConfirm
			case stateConfirm:
				m.confirmed = true
				return m, tea.Quit
			}
		case "esc":
			if m.state == stateConfirm {
				m.state = stateEdit
			}
		case "up":
			if m.state == stateEdit {
				m.moveCursor(-1)
			}
		case "down":
			if m.state == stateEdit {
				m.moveCursor(1)
			}
		case "left", "-":
			if m.state == stateEdit {
				m.adjustSelection(-1)
			}
		case "right", "+", " ":
			if m.state == stateEdit {
				m.adjustSelection(1)
			}
		}
	}
	return m, nil
}

func (m *initWizardModel) View() string {
	switch m.state {
	case stateIntro:
		return m.viewIntro()
	case stateEdit:
		return m.viewEdit()
	case stateConfirm:
		return m.viewConfirm()
	default:
		return ""
	}
}

func (m *initWizardModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= fieldCount {
		m.cursor = fieldCount - 1
	}
}

// adjustSelection changes the field under the cursor. Toggles ignore the
// direction.
func (m *initWizardModel) adjustSelection(direction int) {
	switch m.cursor {
	case fieldDebounce:
		d := m.cfg.Watch.Debounce + time.Duration(direction)*debounceStep
		m.cfg.Watch.Debounce = clamp(d, 0, maxDebounce)
	case fieldMode:
		if m.cfg.Mode == domain.ModeRelease {
			m.cfg.Mode = domain.ModeDev
		} else {
			m.cfg.Mode = domain.ModeRelease
		}
	case fieldReload:
		m.cfg.Reload.Enabled = !m.cfg.Reload.Enabled
	}
}

func (m *initWizardModel) viewIntro() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\ndevwatch init wizard\n\n")
	fmt.Fprintf(&b, "Detected build command: %s\n", strings.Join(m.cfg.Build.Command, " "))
	fmt.Fprintf(&b, "Detected run command:   %s\n\n", strings.Join(m.cfg.Run.Command, " "))
	fmt.Fprintf(&b, "Press Enter to continue, or Ctrl+C to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewEdit() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReview watch settings\n\n")
	fmt.Fprintf(&b, "Use ↑/↓ to move, ←/→ or +/- to change values.\n\n")
	rows := []string{
		fmt.Sprintf("Debounce: %s", m.cfg.Watch.Debounce),
		fmt.Sprintf("Mode: %s", m.cfg.Mode),
		fmt.Sprintf("Browser reload: %s", onOff(m.cfg.Reload.Enabled)),
	}
	for idx, row := range rows {
		prefix := "  "
		if m.cursor == idx {
			prefix = "> "
		}
		fmt.Fprintf(&b, "%s%s\n", prefix, row)
	}
	fmt.Fprintf(&b, "\nEnter to continue, q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewConfirm() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReady to write configuration\n\n")
	fmt.Fprintf(&b, "Build:    %s\n", strings.Join(m.cfg.Build.Command, " "))
	fmt.Fprintf(&b, "Run:      %s\n", strings.Join(m.cfg.Run.Command, " "))
	fmt.Fprintf(&b, "Mode:     %s\n", m.cfg.Mode)
	fmt.Fprintf(&b, "Debounce: %s\n", m.cfg.Watch.Debounce)
	if m.cfg.Reload.Enabled {
		fmt.Fprintf(&b, "Reload:   on (%s)\n", m.cfg.Reload.Addr)
	} else {
		fmt.Fprintf(&b, "Reload:   off\n")
	}
	if len(m.cfg.Watch.Include) > 0 {
		fmt.Fprintf(&b, "\nWatched patterns:\n")
		for _, pattern := range m.cfg.Watch.Include {
			fmt.Fprintf(&b, "  - %s\n", pattern)
		}
	} else {
		fmt.Fprintf(&b, "\nWatching every file under %s.\n", m.cfg.Watch.Root)
	}
	if len(m.cfg.Watch.Ignore) > 0 {
		fmt.Fprintf(&b, "\nIgnored patterns:\n")
		for _, pattern := range m.cfg.Watch.Ignore {
			fmt.Fprintf(&b, "  - %s\n", pattern)
		}
	}
	fmt.Fprintf(&b, "\nPress Enter to save, Esc to go back, q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) toConfig() application.Config {
	cfg := m.cfg
	cfg.Watch.Include = append([]string(nil), m.cfg.Watch.Include...)
	cfg.Watch.Ignore = append([]string(nil), m.cfg.Watch.Ignore...)
	return cfg
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func clamp(value, min, max time.Duration) time.Duration {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

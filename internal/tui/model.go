package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-launch-test/internal/launchservice"
	"github.com/randomizedcoder/go-launch-test/internal/supervisor"
	"github.com/randomizedcoder/go-launch-test/internal/testservice"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// DoneMsg reports that the run has finished with Result.
type DoneMsg struct {
	Result int
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	launchName  string
	metricsAddr string

	// Current state
	processes    []launchservice.Status
	report       testservice.Report
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	// Sources polled on every tick
	processSource ProcessSource
	reportSource  ReportSource

	// Called when the user quits before the run ends
	onQuit func()

	done     bool
	result   int
	quitting bool
}

// ProcessSource provides the status of every launched process.
type ProcessSource interface {
	Statuses() []launchservice.Status
}

// ReportSource provides test progress.
type ReportSource interface {
	Report() testservice.Report
}

// Config holds TUI configuration.
type Config struct {
	LaunchName    string
	MetricsAddr   string
	ProcessSource ProcessSource
	ReportSource  ReportSource

	// OnQuit is called when the user quits the dashboard while the run is
	// still going, typically to shut the launch down.
	OnQuit func()
}

// New creates a new TUI model.
func New(cfg Config) Model {
	name := cfg.LaunchName
	if name == "" {
		name = "planner"
	}
	return Model{
		launchName:    name,
		metricsAddr:   cfg.MetricsAddr,
		processSource: cfg.ProcessSource,
		reportSource:  cfg.ReportSource,
		onQuit:        cfg.OnQuit,
		startTime:     time.Now(),
		lastUpdate:    time.Now(),
		result:        -1,
		width:         80,
		height:        24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if !m.done && m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			m = m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.done {
			return m, nil
		}
		m = m.refresh()
		return m, tickCmd()

	case DoneMsg:
		m = m.refresh()
		m.done = true
		m.result = msg.Result
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh polls the sources.
func (m Model) refresh() Model {
	if m.processSource != nil {
		m.processes = m.processSource.Statuses()
	}
	if m.reportSource != nil {
		m.report = m.reportSource.Report()
	}
	m.lastUpdate = time.Now()
	return m
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && len(m.processes) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// RunningProcesses returns how many processes are currently running.
func (m Model) RunningProcesses() int {
	n := 0
	for _, p := range m.processes {
		if p.State == supervisor.StateRunning {
			n++
		}
	}
	return n
}

// TestCounts returns finished and total test counts.
func (m Model) TestCounts() (finished, total int) {
	for _, e := range m.report.Tests {
		if e.Status == testservice.StatusFinished {
			finished++
		}
	}
	return finished, len(m.report.Tests)
}

// TestProgress returns the share of finished tests (0.0 to 1.0).
func (m Model) TestProgress() float64 {
	finished, total := m.TestCounts()
	if total == 0 {
		return 0
	}
	return float64(finished) / float64(total)
}

// Result returns the run result once DoneMsg was received, else -1.
func (m Model) Result() int {
	return m.result
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendDone tells the TUI the run finished.
func SendDone(p *tea.Program, result int) {
	if p != nil {
		p.Send(DoneMsg{Result: result})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatUptime formats a short duration in tenths of a second.
func formatUptime(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return formatDuration(d)
}

// formatExitCode formats an exit code, "-" while the process has not exited.
func formatExitCode(code int) string {
	if code < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", code)
}

// formatPID formats a pid, "-" when the process never started.
func formatPID(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

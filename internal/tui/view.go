package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-launch-test/internal/launchservice"
	"github.com/randomizedcoder/go-launch-test/internal/testservice"
)

// Process table column widths.
const (
	colName     = 22
	colClass    = 7
	colState    = 9
	colPID      = 7
	colExit     = 4
	colUptime   = 8
	colRestarts = 3
	colWarnErr  = 8
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderTestProgress(),
		m.renderProcessTable(),
	}
	if len(m.report.Tests) > 0 || len(m.report.Fixtures) > 0 {
		sections = append(sections, m.renderTests())
	}
	if m.done {
		sections = append(sections, m.renderResult())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders the command line of every process.
func (m Model) renderDetailedView() string {
	rows := []string{sectionHeaderStyle.Render("Commands")}
	for _, p := range m.processes {
		rows = append(rows,
			valueStyle.Render(p.Name),
			dimStyle.Render("  "+p.Command),
		)
	}
	content := lipgloss.JoinVertical(lipgloss.Left, rows...)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		boxStyle.Width(m.width-2).Render(content),
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	finished, total := m.TestCounts()
	header := fmt.Sprintf(
		" test-planner-launch │ %s │ Running: %d/%d │ Tests: %d/%d │ Elapsed: %s ",
		m.launchName,
		m.RunningProcesses(),
		len(m.processes),
		finished,
		total,
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Test Progress
// =============================================================================

func (m Model) renderTestProgress() string {
	progress := m.TestProgress()

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}

	finished, total := m.TestCounts()
	var status string
	switch {
	case total == 0:
		status = mutedStyle.Render("No tests registered")
	case finished == total:
		status = statusOK.Render("✓ All tests finished")
	default:
		status = statusInfo.Render(fmt.Sprintf("Waiting for tests... %d/%d", finished, total))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Test Progress"),
		RenderProgressBar(progress, barWidth),
		status,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Process Table
// =============================================================================

func (m Model) renderProcessTable() string {
	header := tableHeaderStyle.Render(fmt.Sprintf("%-*s %-*s %-*s %*s %*s %*s %*s %*s",
		colName, "PROCESS",
		colClass, "CLASS",
		colState, "STATE",
		colPID, "PID",
		colExit, "EXIT",
		colUptime, "UPTIME",
		colRestarts, "RST",
		colWarnErr, "WARN/ERR",
	))

	rows := []string{sectionHeaderStyle.Render("Processes"), header}
	if len(m.processes) == 0 {
		rows = append(rows, mutedStyle.Render("(no processes yet)"))
	}
	for _, p := range m.processes {
		rows = append(rows, renderProcessRow(p))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return boxStyle.Width(m.width - 2).Render(content)
}

func renderProcessRow(p launchservice.Status) string {
	name := p.Name
	if len(name) > colName {
		name = name[:colName-1] + "…"
	}

	warnErr := fmt.Sprintf("%d/%d", p.Warnings, p.Errors)
	warnErrCell := fmt.Sprintf("%*s", colWarnErr, warnErr)
	switch {
	case p.Errors > 0:
		warnErrCell = statusError.Render(warnErrCell)
	case p.Warnings > 0:
		warnErrCell = statusWarning.Render(warnErrCell)
	}

	return fmt.Sprintf("%-*s %-*s %s %*s %*s %*s %*d %s",
		colName, name,
		colClass, p.Class,
		GetStateLabel(p.State, p.ExitCode),
		colPID, formatPID(p.PID),
		colExit, formatExitCode(p.ExitCode),
		colUptime, formatUptime(p.Uptime),
		colRestarts, p.Restarts,
		warnErrCell,
	)
}

// =============================================================================
// Tests
// =============================================================================

func (m Model) renderTests() string {
	rows := []string{sectionHeaderStyle.Render("Tests")}
	for _, e := range m.report.Tests {
		rows = append(rows, renderEntryRow(e, GetVerdictLabel(e)))
	}
	for _, e := range m.report.Fixtures {
		label := statusOK.Render("UP")
		switch {
		case !e.Passed:
			label = statusError.Render("FAILED")
		case e.Status == testservice.StatusFinished:
			label = mutedStyle.Render("EXITED")
		case e.Status == testservice.StatusAdded:
			label = mutedStyle.Render("PENDING")
		}
		rows = append(rows, renderEntryRow(e, label))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return boxStyle.Width(m.width - 2).Render(content)
}

func renderEntryRow(e testservice.Entry, label string) string {
	return fmt.Sprintf("%-*s %-*s %*s %*s  %s",
		colName, e.Name,
		colClass, e.Kind.String(),
		colExit, formatExitCode(e.ExitCode),
		colUptime, formatUptime(e.Duration),
		label,
	)
}

// =============================================================================
// Result / Footer
// =============================================================================

func (m Model) renderResult() string {
	if m.result == 0 {
		return statusOK.Render("✓ Run passed (exit 0)")
	}
	return statusError.Render(fmt.Sprintf("✗ Run failed (exit %d)", m.result))
}

func (m Model) renderFooter() string {
	keys := []string{"q quit (stops the launch)", "d commands", "r refresh"}
	footer := strings.Join(keys, " · ")
	if m.metricsAddr != "" {
		footer += " │ metrics: http://" + m.metricsAddr + "/metrics"
	}
	return footerStyle.Render(footer)
}

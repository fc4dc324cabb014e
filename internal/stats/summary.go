// Package stats formats the exit summary printed when a launch test run
// ends: every process with its exit code, the test verdicts, uptime
// percentiles, and the tail of output from failed tests.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-launch-test/internal/launchservice"
	"github.com/randomizedcoder/go-launch-test/internal/metrics"
	"github.com/randomizedcoder/go-launch-test/internal/testservice"
)

// DefaultOutputTail is how many output lines of a failed test are shown.
const DefaultOutputTail = 20

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

// SummaryConfig holds everything the exit summary shows.
type SummaryConfig struct {
	// Result is the run's exit code
	Result int

	// Duration is the total run duration
	Duration time.Duration

	// ShutdownReason is why the launch was shut down, if it was
	ShutdownReason string

	// Processes is the final status of every launched process
	Processes []launchservice.Status

	// Report holds test and fixture verdicts
	Report testservice.Report

	// Metrics is the collector summary (optional)
	Metrics *metrics.Summary

	// FailedOutput maps a process name to its last output lines; shown
	// for failed tests
	FailedOutput map[string][]string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// MetricsFile is where the metrics were written, if anywhere
	MetricsFile string
}

// FormatExitSummary formats the run outcome for display at program exit.
func FormatExitSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy + "\n")
	b.WriteString("                      test-planner-launch Exit Summary\n")
	b.WriteString(ruleHeavy + "\n\n")

	// Run info
	verdict := passStyle.Render("PASSED")
	if cfg.Result != 0 {
		verdict = failStyle.Render("FAILED")
	}
	fmt.Fprintf(&b, "Result:                 %s (exit %d)\n", verdict, cfg.Result)
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Processes Launched:     %d\n", len(cfg.Processes))
	if cfg.ShutdownReason != "" {
		fmt.Fprintf(&b, "Shutdown Reason:        %s\n", cfg.ShutdownReason)
	}
	b.WriteString("\n")

	writeProcesses(&b, cfg.Processes)
	writeTests(&b, cfg.Report)
	if cfg.Metrics != nil {
		writeMetrics(&b, cfg.Metrics)
	}
	writeFailedOutput(&b, cfg.Report, cfg.FailedOutput)

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.MetricsFile != "" {
		fmt.Fprintf(&b, "Metrics written to:   %s\n", cfg.MetricsFile)
	}

	b.WriteString(ruleHeavy + "\n")
	return b.String()
}

func writeSection(b *strings.Builder, title string) {
	b.WriteString(ruleLight + "\n")
	pad := (len(ruleLight)/3 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight + "\n\n")
}

func writeProcesses(b *strings.Builder, processes []launchservice.Status) {
	if len(processes) == 0 {
		return
	}
	writeSection(b, "Processes")

	fmt.Fprintf(b, "  %-26s %-8s %8s %5s %-12s %10s\n", "Name", "Class", "PID", "Exit", "", "Uptime")
	b.WriteString("  " + strings.Repeat("─", 74) + "\n")
	for _, p := range processes {
		pid := "-"
		if p.PID > 0 {
			pid = fmt.Sprintf("%d", p.PID)
		}
		exit := "-"
		label := "(not exited)"
		if p.ExitCode >= 0 {
			exit = fmt.Sprintf("%d", p.ExitCode)
			label = exitCodeLabel(p.ExitCode)
		}
		fmt.Fprintf(b, "  %-26s %-8s %8s %5s %-12s %10s\n",
			p.Name, p.Class, pid, exit, label, FormatUptime(p.Uptime))
		if p.Restarts > 0 {
			fmt.Fprintf(b, "      restarted %d time(s)\n", p.Restarts)
		}
		if p.Warnings > 0 || p.Errors > 0 {
			fmt.Fprintf(b, "      %d warning / %d error lines\n", p.Warnings, p.Errors)
		}
	}
	b.WriteString("\n")
}

func writeTests(b *strings.Builder, r testservice.Report) {
	if len(r.Tests) == 0 && len(r.Fixtures) == 0 {
		return
	}
	writeSection(b, "Tests")

	for _, e := range r.Tests {
		fmt.Fprintf(b, "  %-8s %-30s %s\n", verdictLabel(e), e.Name, entryDetail(e))
	}
	for _, e := range r.Fixtures {
		state := "ok"
		if !e.Passed {
			state = failStyle.Render("FAILED")
		}
		fmt.Fprintf(b, "  %-8s %-30s %s\n", "fixture", e.Name, state+" "+entryDetail(e))
	}
	b.WriteString("\n")
}

// verdictLabel returns a styled verdict for a test entry.
func verdictLabel(e testservice.Entry) string {
	switch {
	case e.Status != testservice.StatusFinished:
		return failStyle.Render("NOT RUN")
	case e.TimedOut:
		return failStyle.Render("TIMEOUT")
	case e.Passed:
		return passStyle.Render("PASS")
	default:
		return failStyle.Render("FAIL")
	}
}

func entryDetail(e testservice.Entry) string {
	switch e.Status {
	case testservice.StatusAdded:
		return "(never started)"
	case testservice.StatusStarted:
		return fmt.Sprintf("(still running after %s)", FormatUptime(e.Duration))
	}
	label := exitCodeLabel(e.ExitCode)
	if label != "" {
		label = " " + label
	}
	return fmt.Sprintf("exit %d%s in %s", e.ExitCode, label, FormatUptime(e.Duration))
}

func writeMetrics(b *strings.Builder, s *metrics.Summary) {
	// Uptime distribution
	if s.UptimeMax > 0 {
		writeSection(b, "Uptime Distribution")
		fmt.Fprintf(b, "  P50 (median):         %s\n", FormatUptime(s.UptimeP50))
		fmt.Fprintf(b, "  P95:                  %s\n", FormatUptime(s.UptimeP95))
		fmt.Fprintf(b, "  P99:                  %s\n", FormatUptime(s.UptimeP99))
		fmt.Fprintf(b, "  Max:                  %s\n", FormatUptime(s.UptimeMax))
		b.WriteString("\n")
	}

	// Lifecycle
	if s.TotalStarts > 0 || s.TotalRestarts > 0 {
		writeSection(b, "Lifecycle")
		fmt.Fprintf(b, "  Total Starts:         %d\n", s.TotalStarts)
		fmt.Fprintf(b, "  Total Restarts:       %d\n", s.TotalRestarts)
		fmt.Fprintf(b, "  Peak Running:         %d\n", s.PeakRunning)
		b.WriteString("\n")
	}

	// Exit codes
	if len(s.ExitCodes) > 0 {
		writeSection(b, "Exit Codes")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(b, "  %3d %-16s %d\n", code, exitCodeLabel(code), s.ExitCodes[code])
		}
		b.WriteString("\n")
	}
}

func writeFailedOutput(b *strings.Builder, r testservice.Report, output map[string][]string) {
	for _, e := range r.Failed() {
		lines := output[e.ProcessName]
		if len(lines) == 0 {
			continue
		}
		writeSection(b, "Output of "+e.ProcessName)
		for _, line := range lines {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString("\n")
	}
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 130:
		return "(SIGINT)"
	case 134:
		return "(SIGABRT)"
	case 137:
		return "(SIGKILL)"
	case 139:
		return "(SIGSEGV)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatUptime formats a process lifetime with millisecond precision
// below a minute and as HH:MM:SS above.
func FormatUptime(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Minute:
		return d.Round(time.Millisecond).String()
	default:
		return FormatDuration(d)
	}
}

package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-launch-test/internal/launchservice"
	"github.com/randomizedcoder/go-launch-test/internal/metrics"
	"github.com/randomizedcoder/go-launch-test/internal/supervisor"
	"github.com/randomizedcoder/go-launch-test/internal/testservice"
)

// =============================================================================
// Test Fixtures
// =============================================================================

func plannerProcesses(testCode int) []launchservice.Status {
	return []launchservice.Status{
		{Name: "navfn_planner-1", Class: "node", State: supervisor.StateStopped, PID: 101, ExitCode: 130, Uptime: 3 * time.Second},
		{Name: "lifecycle_manager-2", Class: "node", State: supervisor.StateStopped, PID: 102, ExitCode: 137, Uptime: 3 * time.Second, Warnings: 1, Errors: 2},
		{Name: "test_planner_node-3", Class: "process", State: supervisor.StateStopped, PID: 103, ExitCode: testCode, Uptime: 2 * time.Second},
	}
}

func plannerReport(testCode int) testservice.Report {
	return testservice.Report{
		Tests: []testservice.Entry{{
			Name:        "test_planner_node",
			ProcessName: "test_planner_node-3",
			Kind:        testservice.KindTest,
			Status:      testservice.StatusFinished,
			ExitCode:    testCode,
			Duration:    2 * time.Second,
			Passed:      testCode == 0,
		}},
		Result: testCode,
	}
}

// =============================================================================
// Table-Driven Tests: Formatting Functions
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00:00"},
		{"one second", time.Second, "00:00:01"},
		{"one minute", time.Minute, "00:01:00"},
		{"one hour", time.Hour, "01:00:00"},
		{"mixed", 2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
		{"24 hours", 24 * time.Hour, "24:00:00"},
		{"sub-second", 500 * time.Millisecond, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "-"},
		{"negative", -time.Second, "-"},
		{"millis", 1234567 * time.Microsecond, "1.235s"},
		{"sub-second", 250 * time.Millisecond, "250ms"},
		{"minute", 90 * time.Second, "00:01:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatUptime(tt.duration); got != tt.want {
				t.Errorf("FormatUptime(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "(clean)"},
		{1, "(error)"},
		{130, "(SIGINT)"},
		{137, "(SIGKILL)"},
		{143, "(SIGTERM)"},
		{42, ""},
	}

	for _, tt := range tests {
		if got := exitCodeLabel(tt.code); got != tt.want {
			t.Errorf("exitCodeLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

// =============================================================================
// Tests: FormatExitSummary
// =============================================================================

func TestFormatExitSummary_Passed(t *testing.T) {
	out := FormatExitSummary(SummaryConfig{
		Result:         0,
		Duration:       3 * time.Second,
		ShutdownReason: "all tests finished",
		Processes:      plannerProcesses(0),
		Report:         plannerReport(0),
		MetricsAddr:    "0.0.0.0:9090",
		MetricsFile:    "/tmp/metrics.prom",
	})

	for _, want := range []string{
		"Exit Summary",
		"PASSED",
		"(exit 0)",
		"Run Duration:           00:00:03",
		"Processes Launched:     3",
		"Shutdown Reason:        all tests finished",
		"navfn_planner-1",
		"(SIGINT)",
		"(SIGKILL)",
		"1 warning / 2 error lines",
		"PASS",
		"exit 0 (clean) in 2s",
		"http://0.0.0.0:9090/metrics",
		"/tmp/metrics.prom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Output of") {
		t.Error("passing run should not print test output")
	}
}

func TestFormatExitSummary_FailedTestOutput(t *testing.T) {
	out := FormatExitSummary(SummaryConfig{
		Result:    3,
		Processes: plannerProcesses(3),
		Report:    plannerReport(3),
		FailedOutput: map[string][]string{
			"test_planner_node-3": {"[ RUN      ] PlannerTest.createPlan", "[  FAILED  ] PlannerTest.createPlan"},
			"navfn_planner-1":     {"should not be shown"},
		},
	})

	for _, want := range []string{
		"FAILED",
		"(exit 3)",
		"FAIL",
		"Output of test_planner_node-3",
		"[  FAILED  ] PlannerTest.createPlan",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "should not be shown") {
		t.Error("output of passing processes should not be shown")
	}
}

func TestFormatExitSummary_TestStates(t *testing.T) {
	tests := []struct {
		name  string
		entry testservice.Entry
		want  []string
	}{
		{
			name:  "never started",
			entry: testservice.Entry{Name: "t", Status: testservice.StatusAdded, ExitCode: -1},
			want:  []string{"NOT RUN", "(never started)"},
		},
		{
			name:  "still running",
			entry: testservice.Entry{Name: "t", Status: testservice.StatusStarted, ExitCode: -1, Duration: time.Second},
			want:  []string{"NOT RUN", "still running after 1s"},
		},
		{
			name:  "timed out",
			entry: testservice.Entry{Name: "t", Status: testservice.StatusFinished, ExitCode: 130, TimedOut: true, Duration: time.Second},
			want:  []string{"TIMEOUT", "exit 130 (SIGINT)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatExitSummary(SummaryConfig{
				Result: 1,
				Report: testservice.Report{Tests: []testservice.Entry{tt.entry}, Result: 1},
			})
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("summary missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestFormatExitSummary_Fixtures(t *testing.T) {
	report := testservice.Report{
		Fixtures: []testservice.Entry{
			{Name: "map_server", Kind: testservice.KindFixture, Status: testservice.StatusFinished, ExitCode: 2, Duration: time.Second},
		},
		Result: 1,
	}
	out := FormatExitSummary(SummaryConfig{Result: 1, Report: report})
	if !strings.Contains(out, "fixture") || !strings.Contains(out, "map_server") || !strings.Contains(out, "FAILED") {
		t.Errorf("fixture failure missing:\n%s", out)
	}
}

func TestFormatExitSummary_Metrics(t *testing.T) {
	out := FormatExitSummary(SummaryConfig{
		Result: 0,
		Metrics: &metrics.Summary{
			PeakRunning:   3,
			TotalStarts:   3,
			TotalRestarts: 1,
			ExitCodes:     map[int]int64{0: 1, 130: 2},
			UptimeP50:     2 * time.Second,
			UptimeP95:     3 * time.Second,
			UptimeP99:     3 * time.Second,
			UptimeMax:     3 * time.Second,
		},
	})

	for _, want := range []string{
		"Uptime Distribution",
		"P50 (median):         2s",
		"Lifecycle",
		"Total Starts:         3",
		"Total Restarts:       1",
		"Peak Running:         3",
		"Exit Codes",
		"130 (SIGINT)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	// Exit codes are sorted
	if strings.Index(out, "  0 (clean)") > strings.Index(out, "130 (SIGINT)") {
		t.Error("exit codes should be sorted ascending")
	}
}

func TestFormatExitSummary_Empty(t *testing.T) {
	out := FormatExitSummary(SummaryConfig{Result: 1})
	for _, absent := range []string{"Processes\n", "Tests\n", "Uptime Distribution", "Metrics endpoint"} {
		if strings.Contains(out, absent) {
			t.Errorf("empty summary should not contain %q:\n%s", absent, out)
		}
	}
	if !strings.Contains(out, "(exit 1)") {
		t.Errorf("empty summary missing result:\n%s", out)
	}
}

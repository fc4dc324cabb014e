// Package main provides the test-planner-launch CLI entry point.
//
// test-planner-launch brings up the navfn planner and a lifecycle manager
// that activates it, runs the binary named by TEST_EXECUTABLE against
// them, and exits with the test's result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/randomizedcoder/go-launch-test/internal/config"
	"github.com/randomizedcoder/go-launch-test/internal/launch"
	"github.com/randomizedcoder/go-launch-test/internal/launchservice"
	"github.com/randomizedcoder/go-launch-test/internal/logging"
	"github.com/randomizedcoder/go-launch-test/internal/metrics"
	"github.com/randomizedcoder/go-launch-test/internal/preflight"
	"github.com/randomizedcoder/go-launch-test/internal/process"
	"github.com/randomizedcoder/go-launch-test/internal/stats"
	"github.com/randomizedcoder/go-launch-test/internal/testservice"
	"github.com/randomizedcoder/go-launch-test/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/test-planner-launch
var version = "dev"

// runTests drives the launch through the test service and returns the
// run result.
var runTests = func(ctx context.Context, ts *testservice.Service, ls *launchservice.Service) int {
	return ts.Run(ctx, ls)
}

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := config.ParseArgs(args, getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if cfg.ShowVersion {
		fmt.Fprintf(stdout, "test-planner-launch %s\n", version)
		return 0
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	// When the dashboard owns the terminal, logs would corrupt it
	tuiActive := cfg.TUIEnabled && isTerminal(stdout)
	var logger *slog.Logger
	if tuiActive {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)
	if cfg.TUIEnabled && !tuiActive {
		logger.Warn("tui_disabled", "reason", "stdout is not a terminal")
	}

	plan, err := buildPlan(cfg)
	if err != nil {
		logger.Error("launch_file_invalid", "path", cfg.LaunchFile, "error", err)
		fmt.Fprintf(stderr, "Launch file error: %v\n", err)
		return 1
	}

	resolver := process.NewResolver(cfg.AmentPrefixPath)

	if cfg.PrintCmd {
		printCommands(stdout, plan, resolver)
		return 0
	}

	if !cfg.SkipPreflight {
		result := preflight.RunAll(plan.preflightOptions(resolver))
		if !tuiActive {
			preflight.PrintResults(stdout, result)
		}
		if !result.Passed {
			logger.Warn("preflight_failed", "failed_checks", failedChecks(result))
		}
	}

	logger.Info("starting",
		"version", version,
		"launch", launchName(cfg),
		"test_executable", cfg.TestExecutable,
		"tests", len(plan.tests),
		"fixtures", len(plan.fixtures),
		"metrics_addr", cfg.MetricsAddr,
	)

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version:    version,
		LaunchFile: cfg.LaunchFile,
	})
	var server *metrics.Server
	if cfg.MetricsAddr != "" {
		server = metrics.NewServer(cfg.MetricsAddr, collector.Registry(), logger)
		if err := server.Start(); err != nil {
			// Non-fatal: the run result comes from the tests
			logger.Error("metrics_server_failed", "error", err)
			server = nil
		}
	}

	screenOut, screenErr := stdout, stderr
	if tuiActive {
		screenOut, screenErr = io.Discard, io.Discard
	}

	ls := launchservice.New(launchservice.Config{
		Logger:         logger,
		Resolver:       resolver,
		Recorder:       collector,
		SigtermTimeout: cfg.SigtermTimeout,
		SigkillTimeout: cfg.SigkillTimeout,
		Stdout:         screenOut,
		Stderr:         screenErr,
		HandleSignals:  true,
	})
	ts := testservice.New(testservice.Config{
		Logger:      logger,
		Recorder:    collector,
		TestTimeout: cfg.TestTimeout,
	})

	for _, fx := range plan.fixtures {
		ts.AddFixtureAction(plan.desc, &fx.ExecuteProcess, fx.ExitAllowed...)
	}
	for _, t := range plan.tests {
		ts.AddTestAction(plan.desc, t)
	}
	ls.Include(plan.desc)

	var program *tea.Program
	tuiDone := make(chan struct{})
	if tuiActive {
		model := tui.New(tui.Config{
			LaunchName:    launchName(cfg),
			MetricsAddr:   cfg.MetricsAddr,
			ProcessSource: ls,
			ReportSource:  ts,
			OnQuit:        func() { ls.Shutdown("dashboard closed") },
		})
		program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(stdout))
		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				logger.Error("tui_error", "error", err)
			}
		}()
	} else {
		close(tuiDone)
	}

	start := time.Now()
	rc := runTests(context.Background(), ts, ls)

	tui.SendDone(program, rc)
	<-tuiDone

	collector.SetResult(rc)
	if cfg.MetricsFile != "" {
		if err := metrics.WriteFile(cfg.MetricsFile, collector.Registry()); err != nil {
			logger.Error("metrics_file_failed", "path", cfg.MetricsFile, "error", err)
		}
	}

	report := ts.Report()
	fmt.Fprint(stdout, stats.FormatExitSummary(stats.SummaryConfig{
		Result:         rc,
		Duration:       time.Since(start),
		ShutdownReason: ls.ShutdownReason(),
		Processes:      ls.Statuses(),
		Report:         report,
		Metrics:        collector.GenerateSummary(),
		FailedOutput:   failedOutput(ls, report),
		MetricsAddr:    cfg.MetricsAddr,
		MetricsFile:    cfg.MetricsFile,
	}))

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("metrics_server_shutdown_failed", "error", err)
		}
		cancel()
	}

	logger.Info("run_finished", "result", rc, "duration", time.Since(start))
	return rc
}

// launchPlan is what a run launches: the description plus the actions
// the test service tracks.
type launchPlan struct {
	desc     *launch.Description
	fixtures []*launch.Fixture
	tests    []*launch.ExecuteProcess
}

// buildPlan returns the built-in planner launch, or the launch file's
// contents when one is given. A launch file without tests runs
// TEST_EXECUTABLE as its test.
func buildPlan(cfg *config.Config) (*launchPlan, error) {
	plan := &launchPlan{}
	if cfg.LaunchFile != "" {
		f, err := launch.LoadFile(cfg.LaunchFile)
		if err != nil {
			return nil, err
		}
		plan.desc = f.Description()
		plan.fixtures = f.Fixtures
		plan.tests = f.Tests
	} else {
		plan.desc = launch.NewPlannerDescription()
	}
	if len(plan.tests) == 0 {
		plan.tests = []*launch.ExecuteProcess{launch.NewPlannerTestAction(cfg.TestExecutable)}
	}

	if env := cfg.TestEnvMap(); env != nil {
		for _, t := range plan.tests {
			if t.Env == nil {
				t.Env = make(map[string]string, len(env))
			}
			for k, v := range env {
				t.Env[k] = v
			}
		}
	}
	return plan, nil
}

func (p *launchPlan) preflightOptions(r *process.Resolver) preflight.Options {
	opts := preflight.Options{
		Nodes:     p.desc.Nodes(),
		Processes: len(p.desc.Actions) + len(p.fixtures) + len(p.tests),
		Resolver:  r,
	}
	for _, t := range p.tests {
		exe := ""
		if len(t.Cmd) > 0 {
			exe = t.Cmd[0]
		}
		opts.TestExecutables = append(opts.TestExecutables, exe)
	}
	return opts
}

// printCommands prints the command line of every action in launch order.
func printCommands(w io.Writer, plan *launchPlan, r *process.Resolver) {
	fmt.Fprintln(w, "# Commands that would be launched:")
	fmt.Fprintln(w)

	actions := append([]launch.Action(nil), plan.desc.Actions...)
	for _, fx := range plan.fixtures {
		actions = append(actions, &fx.ExecuteProcess)
	}
	for _, t := range plan.tests {
		actions = append(actions, t)
	}

	for _, a := range actions {
		b, err := process.NewBuilder(a, r)
		if err != nil {
			fmt.Fprintf(w, "# %s: %v\n", a.ActionName(), err)
			continue
		}
		fmt.Fprintf(w, "# %s\n%s\n", a.ActionName(), b.CommandString())
	}
}

// failedOutput collects the recent output of every failed test.
func failedOutput(ls *launchservice.Service, report testservice.Report) map[string][]string {
	out := make(map[string][]string)
	for _, e := range report.Failed() {
		if e.ProcessName == "" {
			continue
		}
		if lines := ls.RecentOutput(e.ProcessName, stats.DefaultOutputTail); len(lines) > 0 {
			out[e.ProcessName] = lines
		}
	}
	return out
}

func failedChecks(r *preflight.Result) []string {
	var names []string
	for _, c := range r.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

func launchName(cfg *config.Config) string {
	if cfg.LaunchFile == "" {
		return "planner"
	}
	return filepath.Base(cfg.LaunchFile)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

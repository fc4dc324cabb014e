package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// envList is a custom flag type for repeatable -test-env flags.
type envList []string

func (e *envList) String() string {
	return strings.Join(*e, ", ")
}

func (e *envList) Set(value string) error {
	*e = append(*e, value)
	return nil
}

// ParseArgs parses args into a Config, reading the environment through
// getenv. Usage and parse errors are written to output.
func ParseArgs(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	var testEnv envList

	fs := flag.NewFlagSet("test-planner-launch", flag.ContinueOnError)
	fs.SetOutput(output)

	// Custom usage message
	fs.Usage = func() {
		fmt.Fprintf(output, `test-planner-launch - run a test binary against the planner launch

Usage:
  TEST_EXECUTABLE=/path/to/test_planner_node test-planner-launch [flags]

Launch Flags:
`)
		printFlagCategory(fs, output, []string{"launch-file", "test-env"})

		fmt.Fprintf(output, "\nShutdown:\n")
		printFlagCategory(fs, output, []string{"sigterm-timeout", "sigkill-timeout", "test-timeout"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "metrics-file", "v", "log-format", "log-level"})

		fmt.Fprintf(output, "\nDashboard:\n")
		printFlagCategory(fs, output, []string{"tui"})

		fmt.Fprintf(output, "\nDiagnostics:\n")
		printFlagCategory(fs, output, []string{"print-cmd", "skip-preflight", "version"})

		fmt.Fprintf(output, `
Environment:
  TEST_EXECUTABLE      Absolute path of the test binary (required)
  AMENT_PREFIX_PATH    Install prefixes searched for node executables

Exit status is the test result: 0 when every test passed.

Examples:
  # Built-in planner launch
  TEST_EXECUTABLE=$PWD/build/test_planner_node test-planner-launch

  # Custom launch file, text logs, metrics dump for CI
  TEST_EXECUTABLE=./test_bt test-planner-launch -launch-file bt.yaml -log-format text -metrics-file metrics.prom

`)
	}

	// Launch
	fs.StringVar(&cfg.LaunchFile, "launch-file", cfg.LaunchFile, "YAML launch file to use instead of the planner launch")
	fs.Var(&testEnv, "test-env", "Extra KEY=VALUE environment for the test process (can repeat)")

	// Shutdown
	fs.DurationVar(&cfg.SigtermTimeout, "sigterm-timeout", cfg.SigtermTimeout, "Wait after SIGINT before sending SIGTERM")
	fs.DurationVar(&cfg.SigkillTimeout, "sigkill-timeout", cfg.SigkillTimeout, "Wait after SIGTERM before sending SIGKILL")
	fs.DurationVar(&cfg.TestTimeout, "test-timeout", cfg.TestTimeout, "Stop and fail a test that runs longer (0 = no limit)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address, e.g. 127.0.0.1:17092 (empty = disabled)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write metrics in Prometheus text format to this file on exit")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show a live process dashboard (falls back to logs without a terminal)")

	// Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the command of every process and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg.TestEnv = testEnv
	cfg.LoadEnv(getenv)

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}

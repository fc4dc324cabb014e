package config

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"
)

func envFunc(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

// Test envList type
func TestEnvList_String(t *testing.T) {
	testCases := []struct {
		input    envList
		expected string
	}{
		{envList{}, ""},
		{envList{"A=1"}, "A=1"},
		{envList{"A=1", "B=2"}, "A=1, B=2"},
	}

	for _, tc := range testCases {
		if result := tc.input.String(); result != tc.expected {
			t.Errorf("String() = %q, want %q", result, tc.expected)
		}
	}
}

func TestEnvList_Set(t *testing.T) {
	var e envList
	for _, v := range []string{"A=1", "B=2"} {
		if err := e.Set(v); err != nil {
			t.Errorf("Set(%q) returned error: %v", v, err)
		}
	}
	if len(e) != 2 || e[1] != "B=2" {
		t.Errorf("after Set: %v", e)
	}
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"bool true", "true", ""},
		{"bool false", "false", ""},
		{"int", "42", "int"},
		{"string", "hello", "string"},
		{"duration seconds", "5s", "duration"},
		{"duration minutes", "5m", "duration"},
		{"empty", "", "string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{DefValue: tc.defValue}
			if got := flagType(f); got != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, got, tc.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SigtermTimeout != 5*time.Second {
		t.Errorf("SigtermTimeout = %v, want 5s", cfg.SigtermTimeout)
	}
	if cfg.SigkillTimeout != 5*time.Second {
		t.Errorf("SigkillTimeout = %v, want 5s", cfg.SigkillTimeout)
	}
	if cfg.TestTimeout != 0 {
		t.Errorf("TestTimeout = %v, want 0", cfg.TestTimeout)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Errorf("log = %s/%s, want json/info", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.MetricsAddr != "" || cfg.MetricsFile != "" {
		t.Error("metrics should be disabled by default")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(DefaultConfig()) = %v", err)
	}
}

// =============================================================================
// ParseArgs
// =============================================================================

func TestParseArgs(t *testing.T) {
	env := envFunc(map[string]string{
		"TEST_EXECUTABLE":   "/opt/tests/test_planner_node",
		"AMENT_PREFIX_PATH": "/opt/ros/jazzy:/ws/install",
	})
	args := []string{
		"-launch-file", "planner.yaml",
		"-sigterm-timeout", "2s",
		"-sigkill-timeout", "3s",
		"-test-timeout", "1m",
		"-metrics", "127.0.0.1:17092",
		"-metrics-file", "out.prom",
		"-log-format", "text",
		"-log-level", "debug",
		"-test-env", "RCUTILS_COLORIZED_OUTPUT=0",
		"-test-env", "ROS_DOMAIN_ID=7",
		"-v", "-tui", "-print-cmd", "-skip-preflight",
	}

	cfg, err := ParseArgs(args, env, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if cfg.TestExecutable != "/opt/tests/test_planner_node" {
		t.Errorf("TestExecutable = %q", cfg.TestExecutable)
	}
	if cfg.AmentPrefixPath != "/opt/ros/jazzy:/ws/install" {
		t.Errorf("AmentPrefixPath = %q", cfg.AmentPrefixPath)
	}
	if cfg.LaunchFile != "planner.yaml" {
		t.Errorf("LaunchFile = %q", cfg.LaunchFile)
	}
	if cfg.SigtermTimeout != 2*time.Second || cfg.SigkillTimeout != 3*time.Second || cfg.TestTimeout != time.Minute {
		t.Errorf("timeouts = %v/%v/%v", cfg.SigtermTimeout, cfg.SigkillTimeout, cfg.TestTimeout)
	}
	if cfg.MetricsAddr != "127.0.0.1:17092" || cfg.MetricsFile != "out.prom" {
		t.Errorf("metrics = %q/%q", cfg.MetricsAddr, cfg.MetricsFile)
	}
	if cfg.LogFormat != "text" || cfg.LogLevel != "debug" {
		t.Errorf("log = %s/%s", cfg.LogFormat, cfg.LogLevel)
	}
	if !cfg.Verbose || !cfg.TUIEnabled || !cfg.PrintCmd || !cfg.SkipPreflight {
		t.Errorf("bool flags not set: %+v", cfg)
	}

	env2 := cfg.TestEnvMap()
	if env2["RCUTILS_COLORIZED_OUTPUT"] != "0" || env2["ROS_DOMAIN_ID"] != "7" {
		t.Errorf("TestEnvMap() = %v", env2)
	}
}

func TestParseArgs_MissingTestExecutable(t *testing.T) {
	cfg, err := ParseArgs(nil, envFunc(nil), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if cfg.TestExecutable != "" {
		t.Errorf("TestExecutable = %q, want empty", cfg.TestExecutable)
	}
	// Not a configuration error.
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if cfg.TestEnvMap() != nil {
		t.Error("TestEnvMap() should be nil without -test-env")
	}
}

func TestParseArgs_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-clients", "5"}},
		{"bad duration", []string{"-test-timeout", "soon"}},
		{"positional argument", []string{"extra"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			if _, err := ParseArgs(tc.args, envFunc(nil), &out); err == nil {
				t.Error("ParseArgs() should fail")
			}
		})
	}
}

func TestParseArgs_Usage(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseArgs([]string{"-h"}, envFunc(nil), &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("ParseArgs(-h) error = %v, want flag.ErrHelp", err)
	}

	usage := out.String()
	for _, want := range []string{
		"Launch Flags:", "Shutdown:", "Observability:", "Diagnostics:",
		"-sigterm-timeout duration", "TEST_EXECUTABLE", "(default 5s)",
	} {
		if !strings.Contains(usage, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero sigterm", func(c *Config) { c.SigtermTimeout = 0 }, "sigterm_timeout"},
		{"negative sigkill", func(c *Config) { c.SigkillTimeout = -time.Second }, "sigkill_timeout"},
		{"negative test timeout", func(c *Config) { c.TestTimeout = -time.Second }, "test_timeout"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"metrics url", func(c *Config) { c.MetricsAddr = "http://localhost:9090" }, "metrics_addr"},
		{"metrics no port", func(c *Config) { c.MetricsAddr = "localhost" }, "metrics_addr"},
		{"test env without value", func(c *Config) { c.TestEnv = []string{"NOVALUE"} }, "test_env"},
		{"test env without key", func(c *Config) { c.TestEnv = []string{"=1"} }, "test_env"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
			if ve.Field != tc.field {
				t.Errorf("Field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestValidate_ValidMetricsAddrs(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:17092", ":9100", "[::1]:9100", "localhost:0"} {
		cfg := DefaultConfig()
		cfg.MetricsAddr = addr
		if err := Validate(cfg); err != nil {
			t.Errorf("Validate(%q) = %v", addr, err)
		}
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SigtermTimeout = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "sigterm_timeout") || !strings.Contains(msg, "log_format") {
		t.Errorf("error should mention both fields: %s", msg)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "log_level", Message: "unknown"}
	if got := err.Error(); got != "log_level: unknown" {
		t.Errorf("Error() = %q", got)
	}
}

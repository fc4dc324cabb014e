// Package config provides configuration management for the launch test
// harness.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
	"github.com/randomizedcoder/go-launch-test/internal/process"
)

// Config holds all configuration options for a launch test run.
type Config struct {
	// Launch
	LaunchFile      string   `json:"launch_file"` // "" = built-in planner launch
	TestExecutable  string   `json:"test_executable"`
	AmentPrefixPath string   `json:"ament_prefix_path"`
	TestEnv         []string `json:"test_env"` // KEY=VALUE

	// Shutdown and timeouts
	SigtermTimeout time.Duration `json:"sigterm_timeout"`
	SigkillTimeout time.Duration `json:"sigkill_timeout"`
	TestTimeout    time.Duration `json:"test_timeout"` // 0 = none

	// Observability
	MetricsAddr string `json:"metrics_addr"` // "" = disabled
	MetricsFile string `json:"metrics_file"` // "" = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	TUIEnabled  bool   `json:"tui_enabled"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	SkipPreflight bool `json:"skip_preflight"`
	ShowVersion   bool `json:"show_version"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Shutdown
		SigtermTimeout: 5 * time.Second,
		SigkillTimeout: 5 * time.Second,
		TestTimeout:    0,

		// Observability
		LogFormat: "json",
		LogLevel:  "info",
	}
}

// LoadEnv fills the environment-sourced fields. TEST_EXECUTABLE is
// taken as is: a missing value surfaces as a test that fails to start.
func (c *Config) LoadEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	c.TestExecutable = getenv(launch.TestExecutableEnv)
	c.AmentPrefixPath = getenv(process.AmentPrefixPathEnv)
}

// TestEnvMap returns TestEnv as a map, or nil when empty.
func (c *Config) TestEnvMap() map[string]string {
	if len(c.TestEnv) == 0 {
		return nil
	}
	env := make(map[string]string, len(c.TestEnv))
	for _, kv := range c.TestEnv {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return env
}

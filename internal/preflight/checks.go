// Package preflight provides advisory startup checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
	"github.com/randomizedcoder/go-launch-test/internal/process"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
	Fix      string // Suggested fix for a failed check
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes what is about to be launched.
type Options struct {
	Nodes           []*launch.Node
	Processes       int // total launched processes, tests included
	Resolver        *process.Resolver
	TestExecutables []string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{Passed: true}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(opts.Processes))
	add(checkProcessLimit(opts.Processes, "/proc/self/limits"))

	resolver := opts.Resolver
	if resolver == nil {
		resolver = process.ResolverFromEnv()
	}
	add(checkPrefixPath(resolver))
	for _, n := range opts.Nodes {
		add(checkNodeExecutable(resolver, n))
	}
	for _, path := range opts.TestExecutables {
		add(checkTestExecutable(path))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(processes int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	// Two output pipes per process plus DDS sockets, shared memory, logs
	required := processes*16 + 64
	actual := int(min(limit.Cur, uint64(1<<30)))

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d processes)", actual, required, processes),
		Fix:      "ulimit -n 4096 (or edit /etc/security/limits.conf)",
	}
}

// checkProcessLimit verifies sufficient process slots are available,
// reading the soft limit from a /proc limits file.
func checkProcessLimit(processes int, limitsPath string) Check {
	required := processes + 16

	data, err := os.ReadFile(limitsPath)
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	// Parse "Max processes" line
	actual := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "Max processes") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				if fields[2] == "unlimited" {
					actual = 1000000
				} else {
					fmt.Sscanf(fields[2], "%d", &actual)
				}
			}
			break
		}
	}

	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
		Fix:      "ulimit -u 4096 (or edit /etc/security/limits.conf)",
	}
}

// checkPrefixPath warns when no install prefix is configured.
func checkPrefixPath(r *process.Resolver) Check {
	prefixes := r.Prefixes()
	if len(prefixes) == 0 {
		return Check{
			Name:    "ament_prefix_path",
			Passed:  true,
			Warning: true,
			Message: process.AmentPrefixPathEnv + " is empty; node executables are looked up on PATH",
		}
	}
	return Check{
		Name:    "ament_prefix_path",
		Passed:  true,
		Message: fmt.Sprintf("%d prefixes", len(prefixes)),
	}
}

// checkNodeExecutable verifies a node's executable can be resolved.
func checkNodeExecutable(r *process.Resolver, n *launch.Node) Check {
	name := "node " + n.Package + "/" + n.Executable
	path, err := r.Resolve(n.Package, n.Executable)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: err.Error(),
			Fix:     "source the workspace setup script (install/setup.bash) so " + process.AmentPrefixPathEnv + " includes " + n.Package,
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: "found at " + path,
	}
}

// checkTestExecutable verifies the test binary exists and is executable.
func checkTestExecutable(path string) Check {
	const name = "test_executable"
	if path == "" {
		return Check{
			Name:    name,
			Passed:  false,
			Message: launch.TestExecutableEnv + " is not set",
			Fix:     "export " + launch.TestExecutableEnv + "=/path/to/test binary",
		}
	}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		return Check{
			Name:    name,
			Passed:  false,
			Message: err.Error(),
			Fix:     "build the test target or fix " + launch.TestExecutableEnv,
		}
	case info.IsDir() || info.Mode().Perm()&0o111 == 0:
		return Check{
			Name:    name,
			Passed:  false,
			Message: path + " is not an executable file",
			Fix:     "chmod +x " + path,
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: "found at " + path,
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed && check.Fix != "" {
			fmt.Fprintf(w, "    Fix: %s\n", check.Fix)
		}
	}
	fmt.Fprintln(w)
}

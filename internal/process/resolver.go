package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// AmentPrefixPathEnv lists install prefixes, separated like PATH.
const AmentPrefixPathEnv = "AMENT_PREFIX_PATH"

// NotFoundError is returned when a package executable cannot be located.
type NotFoundError struct {
	Package    string
	Executable string
	Searched   []string
}

func (e *NotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("executable %q of package %q not found (no install prefixes, not on PATH)", e.Executable, e.Package)
	}
	return fmt.Sprintf("executable %q of package %q not found in %s or on PATH",
		e.Executable, e.Package, strings.Join(e.Searched, ", "))
}

// Resolver locates package executables under install prefixes.
type Resolver struct {
	prefixes []string
	lookPath func(string) (string, error)
}

// NewResolver creates a resolver for a PATH-style list of prefixes.
func NewResolver(prefixPath string) *Resolver {
	var prefixes []string
	for _, p := range filepath.SplitList(prefixPath) {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Resolver{
		prefixes: prefixes,
		lookPath: exec.LookPath,
	}
}

// ResolverFromEnv creates a resolver from AMENT_PREFIX_PATH.
func ResolverFromEnv() *Resolver {
	return NewResolver(os.Getenv(AmentPrefixPathEnv))
}

// Prefixes returns the install prefixes in search order.
func (r *Resolver) Prefixes() []string {
	return r.prefixes
}

// Resolve returns the path of <prefix>/lib/<pkg>/<exe> for the first
// prefix that has it, falling back to a PATH lookup of exe.
func (r *Resolver) Resolve(pkg, exe string) (string, error) {
	searched := make([]string, 0, len(r.prefixes))
	for _, prefix := range r.prefixes {
		dir := filepath.Join(prefix, "lib", pkg)
		searched = append(searched, dir)
		candidate := filepath.Join(dir, exe)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if r.lookPath != nil {
		if path, err := r.lookPath(exe); err == nil {
			return path, nil
		}
	}

	return "", &NotFoundError{Package: pkg, Executable: exe, Searched: searched}
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

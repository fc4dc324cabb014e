// Package process turns launch actions into executable commands.
package process

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
)

// Builder creates executable commands for a launch action.
// This interface allows the supervisor to be action-agnostic.
type Builder interface {
	// BuildCommand returns a ready-to-start command.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns the action's base name.
	Name() string

	// CommandString returns the command line for diagnostics.
	CommandString() string
}

// NewBuilder returns the builder for an action.
func NewBuilder(a launch.Action, r *Resolver) (Builder, error) {
	switch act := a.(type) {
	case *launch.Node:
		return NewNodeBuilder(act, r), nil
	case *launch.ExecuteProcess:
		return NewExecBuilder(act), nil
	default:
		return nil, fmt.Errorf("unsupported action type %T", a)
	}
}

// Result captures the outcome of a process execution.
type Result struct {
	Name      string
	PID       int
	ExitCode  int
	StartTime time.Time
	EndTime   time.Time
}

// Uptime returns how long the process ran.
func (r Result) Uptime() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

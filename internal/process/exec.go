package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
)

// ErrEmptyCommand is returned for a process without a command.
var ErrEmptyCommand = errors.New("process has no command")

// ExecBuilder implements Builder for ExecuteProcess actions.
type ExecBuilder struct {
	proc *launch.ExecuteProcess
}

// NewExecBuilder creates a builder for a process.
func NewExecBuilder(p *launch.ExecuteProcess) *ExecBuilder {
	return &ExecBuilder{proc: p}
}

// Name returns the process's action name.
func (b *ExecBuilder) Name() string {
	return b.proc.ActionName()
}

// BuildCommand creates the command. An empty program is rejected by
// launch validation; a missing path surfaces when the command is started.
func (b *ExecBuilder) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	if len(b.proc.Cmd) == 0 {
		return nil, ErrEmptyCommand
	}
	cmd := exec.CommandContext(ctx, b.proc.Cmd[0], b.proc.Cmd[1:]...)
	cmd.Dir = b.proc.Cwd
	if len(b.proc.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(b.proc.Env)...)
	}
	return cmd, nil
}

// CommandString returns the command that would be executed (for debugging).
func (b *ExecBuilder) CommandString() string {
	return strings.Join(b.proc.Cmd, " ")
}

// envList renders env as sorted KEY=VALUE entries.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

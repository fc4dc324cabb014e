// Package launch describes the processes a launch service starts.
//
// A Description is a declarative list of actions. Two kinds of action
// exist: a Node, which names a package executable and carries node
// parameters, and an ExecuteProcess, which runs an arbitrary command.
// Descriptions are built once, handed to the launch service, and not
// mutated afterwards.
package launch

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Output selects where a process's stdout and stderr go.
type Output string

const (
	// OutputScreen copies lines to the harness's own stdout/stderr.
	OutputScreen Output = "screen"

	// OutputLog sends lines to the structured logger only.
	OutputLog Output = "log"

	// OutputBoth does both.
	OutputBoth Output = "both"
)

// ParseOutput converts a string to an Output. The empty string means
// OutputLog.
func ParseOutput(s string) (Output, error) {
	switch Output(s) {
	case "":
		return OutputLog, nil
	case OutputScreen, OutputLog, OutputBoth:
		return Output(s), nil
	default:
		return "", fmt.Errorf("unknown output %q (want screen, log or both)", s)
	}
}

// ToScreen reports whether lines are copied to the terminal.
func (o Output) ToScreen() bool {
	return o == OutputScreen || o == OutputBoth
}

// ToLog reports whether lines are sent to the logger.
func (o Output) ToLog() bool {
	return o == "" || o == OutputLog || o == OutputBoth
}

// Action is a single entry of a launch description.
type Action interface {
	// ActionName is the base name used for the launched process.
	ActionName() string

	// OutputMode returns where the process output is routed.
	OutputMode() Output

	// Validate checks that the action names something runnable.
	Validate() error
}

// Remapping renames a topic or service for a node.
type Remapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Node launches an executable from a package.
type Node struct {
	Package    string      `yaml:"package"`
	Executable string      `yaml:"executable"`
	Name       string      `yaml:"name,omitempty"`
	Namespace  string      `yaml:"namespace,omitempty"`
	Output     Output      `yaml:"output,omitempty"`
	Parameters Parameters  `yaml:"parameters,omitempty"`
	Remappings []Remapping `yaml:"remappings,omitempty"`
	Arguments  []string    `yaml:"arguments,omitempty"`

	// Respawn restarts the node whenever it exits, after RespawnDelay.
	// MaxRestarts caps the restarts; 0 is unlimited.
	Respawn      bool          `yaml:"respawn,omitempty"`
	RespawnDelay time.Duration `yaml:"respawn_delay,omitempty"`
	MaxRestarts  int           `yaml:"max_restarts,omitempty"`
}

// ActionName returns the node name, or the executable when unnamed.
func (n *Node) ActionName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.Executable
}

// OutputMode returns the node's output routing.
func (n *Node) OutputMode() Output {
	return n.Output
}

// Validate checks the node fields.
func (n *Node) Validate() error {
	var errs []error
	if n.Package == "" {
		errs = append(errs, errors.New("package is required"))
	}
	if n.Executable == "" {
		errs = append(errs, errors.New("executable is required"))
	}
	if _, err := ParseOutput(string(n.Output)); err != nil {
		errs = append(errs, err)
	}
	if _, err := n.Parameters.Args(); err != nil {
		errs = append(errs, err)
	}
	for _, r := range n.Remappings {
		if r.From == "" || r.To == "" {
			errs = append(errs, fmt.Errorf("remapping %q -> %q: both ends are required", r.From, r.To))
		}
	}
	if n.RespawnDelay < 0 {
		errs = append(errs, errors.New("respawn_delay must not be negative"))
	}
	if n.MaxRestarts < 0 {
		errs = append(errs, errors.New("max_restarts must not be negative"))
	}
	return errors.Join(errs...)
}

// ExecuteProcess runs an arbitrary command.
type ExecuteProcess struct {
	Cmd    []string          `yaml:"cmd"`
	Name   string            `yaml:"name,omitempty"`
	Cwd    string            `yaml:"cwd,omitempty"`
	Env    map[string]string `yaml:"env,omitempty"`
	Output Output            `yaml:"output,omitempty"`
}

// ActionName returns the process name, or the base name of the program.
func (p *ExecuteProcess) ActionName() string {
	if p.Name != "" {
		return p.Name
	}
	if len(p.Cmd) > 0 && p.Cmd[0] != "" {
		return filepath.Base(p.Cmd[0])
	}
	return "process"
}

// OutputMode returns the process's output routing.
func (p *ExecuteProcess) OutputMode() Output {
	return p.Output
}

// Validate checks the process fields.
func (p *ExecuteProcess) Validate() error {
	var errs []error
	if len(p.Cmd) == 0 || p.Cmd[0] == "" {
		errs = append(errs, errors.New("cmd must name an executable"))
	}
	if _, err := ParseOutput(string(p.Output)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

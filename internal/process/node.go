package process

import (
	"context"
	"os/exec"
	"path"
	"strings"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
)

// NodeBuilder implements Builder for node actions.
type NodeBuilder struct {
	node     *launch.Node
	resolver *Resolver
}

// NewNodeBuilder creates a builder for a node.
func NewNodeBuilder(n *launch.Node, r *Resolver) *NodeBuilder {
	if r == nil {
		r = NewResolver("")
	}
	return &NodeBuilder{node: n, resolver: r}
}

// Name returns the node's action name.
func (b *NodeBuilder) Name() string {
	return b.node.ActionName()
}

// BuildCommand resolves the node executable and creates the command.
func (b *NodeBuilder) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	bin, err := b.resolver.Resolve(b.node.Package, b.node.Executable)
	if err != nil {
		return nil, err
	}
	args, err := b.Args()
	if err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, bin, args...), nil
}

// Args builds the node's command-line arguments:
//
//	[arguments...] --ros-args -r __node:=<name> -r __ns:=<ns> -r a:=b -p k:=v
//
// --ros-args is omitted when there is nothing after it.
func (b *NodeBuilder) Args() ([]string, error) {
	n := b.node
	args := append([]string{}, n.Arguments...)

	var ros []string
	if n.Name != "" {
		ros = append(ros, "-r", "__node:="+n.Name)
	}
	if n.Namespace != "" {
		ros = append(ros, "-r", "__ns:="+normalizeNamespace(n.Namespace))
	}
	for _, r := range n.Remappings {
		ros = append(ros, "-r", r.From+":="+r.To)
	}
	params, err := n.Parameters.Args()
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		ros = append(ros, "-p", p)
	}

	if len(ros) > 0 {
		args = append(args, "--ros-args")
		args = append(args, ros...)
	}
	return args, nil
}

// CommandString returns the command that would be executed (for debugging).
// Unresolvable executables are shown as <package>/<executable>.
func (b *NodeBuilder) CommandString() string {
	bin, err := b.resolver.Resolve(b.node.Package, b.node.Executable)
	if err != nil {
		bin = path.Join(b.node.Package, b.node.Executable)
	}
	args, err := b.Args()
	if err != nil {
		return bin + " <invalid parameters: " + err.Error() + ">"
	}
	return strings.Join(append([]string{bin}, args...), " ")
}

// normalizeNamespace makes a namespace absolute.
func normalizeNamespace(ns string) string {
	if strings.HasPrefix(ns, "/") {
		return ns
	}
	return "/" + ns
}

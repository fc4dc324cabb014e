package launch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const plannerLaunchFile = `
nodes:
  - package: nav2_navfn_planner
    executable: navfn_planner
    output: screen
  - package: nav2_lifecycle_manager
    executable: lifecycle_manager
    name: lifecycle_manager
    output: screen
    respawn: true
    respawn_delay: 2s
    max_restarts: 5
    parameters:
      - node_names: [navfn_planner]
      - autostart: true
fixtures:
  - cmd: [./map_server, --map, office.yaml]
    name: map_server
    exit_allowed: [0, 130]
tests:
  - cmd: [./test_planner_node]
    name: test_planner_node
    output: both
`

func TestParse_PlannerFile(t *testing.T) {
	f, err := Parse([]byte(plannerLaunchFile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(f.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(f.Nodes))
	}
	lm := f.Nodes[1]
	if lm.Name != "lifecycle_manager" || !lm.Respawn || lm.RespawnDelay != 2*time.Second || lm.MaxRestarts != 5 {
		t.Errorf("lifecycle manager = %+v", lm)
	}
	args, err := lm.Parameters.Args()
	if err != nil {
		t.Fatalf("Args() error = %v", err)
	}
	if strings.Join(args, " ") != "node_names:=['navfn_planner'] autostart:=true" {
		t.Errorf("Args() = %q", args)
	}

	if len(f.Fixtures) != 1 {
		t.Fatalf("len(Fixtures) = %d, want 1", len(f.Fixtures))
	}
	fx := f.Fixtures[0]
	if fx.ActionName() != "map_server" || len(fx.Cmd) != 3 || len(fx.ExitAllowed) != 2 {
		t.Errorf("fixture = %+v", fx)
	}

	if len(f.Tests) != 1 || f.Tests[0].Output != OutputBoth {
		t.Errorf("tests = %+v", f.Tests)
	}

	d := f.Description()
	if len(d.Actions) != 2 {
		t.Errorf("Description() has %d actions, want 2", len(d.Actions))
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"empty", "", "no actions"},
		{"node without executable", "nodes:\n  - package: p\n", "executable is required"},
		{"bad output", "tests:\n  - cmd: [x]\n    output: console\n", "unknown output"},
		{"empty cmd", "processes:\n  - name: nothing\n", "cmd must name an executable"},
		{"negative max restarts", "nodes:\n  - package: p\n    executable: e\n    max_restarts: -1\n", "max_restarts must not be negative"},
		{"bad duration", "nodes:\n  - package: p\n    executable: e\n    respawn_delay: soon\n", "parse launch file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParse_ValidationErrorCarriesIndex(t *testing.T) {
	_, err := Parse([]byte("nodes:\n  - package: a\n    executable: b\n  - package: c\n"))

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %v is not a ValidationError", err)
	}
	if verr.Index != 1 {
		t.Errorf("Index = %d, want 1", verr.Index)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "planner.yaml")
	if err := os.WriteFile(path, []byte(plannerLaunchFile), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err != nil {
		t.Errorf("LoadFile() error = %v", err)
	}

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile(missing) error = %v, want ErrNotExist", err)
	}
}

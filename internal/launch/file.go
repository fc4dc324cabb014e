package launch

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is a process that must stay up while the tests run.
type Fixture struct {
	ExecuteProcess `yaml:",inline"`

	// ExitAllowed lists exit codes that do not fail the run. Empty means
	// only 0.
	ExitAllowed []int `yaml:"exit_allowed,omitempty"`
}

// File is the on-disk launch file format:
//
//	nodes:
//	  - package: nav2_lifecycle_manager
//	    executable: lifecycle_manager
//	    name: lifecycle_manager
//	    output: screen
//	    parameters:
//	      - node_names: [navfn_planner]
//	      - autostart: true
//	processes:
//	  - cmd: [/usr/bin/rosbag, record]
//	fixtures:
//	  - cmd: [./map_server]
//	    exit_allowed: [0, 130]
//	tests:
//	  - cmd: [./test_planner_node]
//	    name: test_planner_node
type File struct {
	Nodes     []*Node           `yaml:"nodes,omitempty"`
	Processes []*ExecuteProcess `yaml:"processes,omitempty"`
	Fixtures  []*Fixture        `yaml:"fixtures,omitempty"`
	Tests     []*ExecuteProcess `yaml:"tests,omitempty"`
}

// LoadFile reads and validates a launch file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read launch file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates launch file contents.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse launch file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every entry of the file.
func (f *File) Validate() error {
	if len(f.Nodes)+len(f.Processes)+len(f.Fixtures)+len(f.Tests) == 0 {
		return errors.New("launch file declares no actions")
	}

	errs := []error{f.Description().Validate()}
	for i, fx := range f.Fixtures {
		if err := fx.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("fixture %d (%s): %w", i, fx.ActionName(), err))
		}
	}
	for i, t := range f.Tests {
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("test %d (%s): %w", i, t.ActionName(), err))
		}
	}
	return errors.Join(errs...)
}

// Description returns the nodes and plain processes as a description.
// Fixtures and tests are registered separately through the test service.
func (f *File) Description() *Description {
	d := NewDescription()
	for _, n := range f.Nodes {
		d.Add(n)
	}
	for _, p := range f.Processes {
		d.Add(p)
	}
	return d
}

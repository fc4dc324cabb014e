package launch

import (
	"errors"
	"fmt"
)

// ValidationError reports an invalid action in a description.
type ValidationError struct {
	Index  int
	Action string
	Err    error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// Description is an ordered list of actions.
type Description struct {
	Actions []Action
}

// NewDescription returns a description holding the given actions.
func NewDescription(actions ...Action) *Description {
	return &Description{Actions: actions}
}

// Add appends an action.
func (d *Description) Add(a Action) {
	d.Actions = append(d.Actions, a)
}

// Nodes returns the node actions in order.
func (d *Description) Nodes() []*Node {
	var nodes []*Node
	for _, a := range d.Actions {
		if n, ok := a.(*Node); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Processes returns the ExecuteProcess actions in order.
func (d *Description) Processes() []*ExecuteProcess {
	var procs []*ExecuteProcess
	for _, a := range d.Actions {
		if p, ok := a.(*ExecuteProcess); ok {
			procs = append(procs, p)
		}
	}
	return procs
}

// Validate checks every action and joins all failures.
func (d *Description) Validate() error {
	var errs []error
	for i, a := range d.Actions {
		if err := a.Validate(); err != nil {
			errs = append(errs, ValidationError{Index: i, Action: a.ActionName(), Err: err})
		}
	}
	return errors.Join(errs...)
}

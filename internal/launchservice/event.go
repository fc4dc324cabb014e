package launchservice

import (
	"time"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
)

// EventType identifies a process lifecycle event.
type EventType int

const (
	ProcessStarted EventType = iota
	ProcessExited
)

func (t EventType) String() string {
	switch t {
	case ProcessStarted:
		return "process_started"
	case ProcessExited:
		return "process_exited"
	default:
		return "unknown"
	}
}

// Event is delivered to handlers registered with OnProcessStart and
// OnProcessExit. PID is 0 and ExitCode is 1 for a process that could
// not be started.
type Event struct {
	Type        EventType
	Action      launch.Action
	ProcessName string
	PID         int
	ExitCode    int
	Uptime      time.Duration
}

// Handler receives launch events. Handlers are called one at a time and
// must not block; they may call Service.Shutdown and Service.Stop.
type Handler func(Event)

// Recorder receives process lifecycle counts, typically a metrics
// collector. Class is "node" or "process".
type Recorder interface {
	ProcessStarted(class string)
	ProcessExited(class string, exitCode int, uptime time.Duration)
	ProcessRestarted(class string)
	SetRunning(n int)
}

// actionClass returns the metrics class of an action.
func actionClass(a launch.Action) string {
	if _, ok := a.(*launch.Node); ok {
		return "node"
	}
	return "process"
}

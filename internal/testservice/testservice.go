// Package testservice runs test processes next to a launch description
// and turns their exit codes into a single run result.
package testservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
	"github.com/randomizedcoder/go-launch-test/internal/launchservice"
)

// Launcher is the part of the launch service the test service drives.
type Launcher interface {
	OnProcessStart(h launchservice.Handler)
	OnProcessExit(h launchservice.Handler)
	Shutdown(reason string)
	Stop(action launch.Action) bool
	Run(ctx context.Context) int
}

// Recorder receives test verdicts, typically a metrics collector.
type Recorder interface {
	TestFinished(name string, exitCode int, duration time.Duration)
}

// Kind distinguishes tests from fixtures.
type Kind int

const (
	KindTest Kind = iota
	KindFixture
)

func (k Kind) String() string {
	if k == KindFixture {
		return "fixture"
	}
	return "test"
}

// Status is the progress of a tracked action.
type Status int

const (
	StatusAdded Status = iota
	StatusStarted
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusStarted:
		return "started"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Config holds configuration for a Service.
type Config struct {
	Logger   *slog.Logger
	Recorder Recorder

	// TestTimeout stops a test that runs longer; 0 disables it.
	TestTimeout time.Duration
}

type entry struct {
	kind        Kind
	action      launch.Action
	exitAllowed []int

	status      Status
	exitCode    int
	processName string
	startTime   time.Time
	endTime     time.Time
	timedOut    bool
	failed      bool
	timer       *time.Timer
}

// effectiveCode is the exit code counted for a finished test.
func (e *entry) effectiveCode() int {
	if e.timedOut {
		return 1
	}
	return e.exitCode
}

// Service tracks test and fixture actions of a launch.
type Service struct {
	logger      *slog.Logger
	recorder    Recorder
	testTimeout time.Duration

	mu            sync.Mutex
	entries       []*entry
	byAction      map[launch.Action]*entry
	testsDone     bool
	fixtureFailed bool
	launcher      Launcher
	result        int
	ran           bool
}

// New creates a test service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		logger:      logger,
		recorder:    cfg.Recorder,
		testTimeout: cfg.TestTimeout,
		byAction:    make(map[launch.Action]*entry),
	}
}

// AddTestAction adds action to ld and tracks it as a test. The run
// fails when a test exits non-zero.
func (s *Service) AddTestAction(ld *launch.Description, action launch.Action) {
	s.add(ld, &entry{kind: KindTest, action: action})
}

// AddFixtureAction adds action to ld and tracks it as a fixture that
// must keep running while tests run. Exiting with a code outside
// exitAllowed (default [0]) before the tests are done fails the run.
func (s *Service) AddFixtureAction(ld *launch.Description, action launch.Action, exitAllowed ...int) {
	if len(exitAllowed) == 0 {
		exitAllowed = []int{0}
	}
	s.add(ld, &entry{kind: KindFixture, action: action, exitAllowed: exitAllowed})
}

func (s *Service) add(ld *launch.Description, e *entry) {
	ld.Add(e.action)

	s.mu.Lock()
	defer s.mu.Unlock()
	e.exitCode = -1
	s.entries = append(s.entries, e)
	s.byAction[e.action] = e
}

// Run runs the launch until every test has finished and returns the
// run result: the first non-zero test exit code in registration order;
// else 1 if a fixture failed; else 1 if a test never finished; else the
// launch service's own result.
func (s *Service) Run(ctx context.Context, l Launcher) int {
	s.mu.Lock()
	s.launcher = l
	if s.countTests() == 0 {
		s.testsDone = true
	}
	s.mu.Unlock()

	l.OnProcessStart(s.handleStart)
	l.OnProcessExit(s.handleExit)

	rc := l.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	s.result = s.computeResult(rc)
	s.ran = true

	s.logger.Info("test_run_finished",
		"result", s.result,
		"launch_result", rc,
	)
	return s.result
}

func (s *Service) computeResult(launchResult int) int {
	for _, e := range s.entries {
		if e.kind == KindTest && e.status == StatusFinished && e.effectiveCode() != 0 {
			return e.effectiveCode()
		}
	}
	if s.fixtureFailed {
		return 1
	}
	for _, e := range s.entries {
		if e.kind == KindTest && e.status != StatusFinished {
			s.logger.Error("test_not_finished",
				"test", e.action.ActionName(),
				"status", e.status.String(),
			)
			return 1
		}
	}
	return launchResult
}

func (s *Service) handleStart(ev launchservice.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.byAction[ev.Action]
	if e == nil {
		return
	}
	e.status = StatusStarted
	e.processName = ev.ProcessName
	e.startTime = time.Now()

	if e.kind != KindTest {
		return
	}
	s.logger.Info("test_started",
		"test", ev.ProcessName,
		"pid", ev.PID,
	)
	if s.testTimeout > 0 {
		e.timer = time.AfterFunc(s.testTimeout, func() { s.timeout(e) })
	}
}

// timeout stops a test that ran past the test timeout.
func (s *Service) timeout(e *entry) {
	s.mu.Lock()
	if e.status == StatusFinished {
		s.mu.Unlock()
		return
	}
	e.timedOut = true
	name := e.processName
	l := s.launcher
	s.mu.Unlock()

	s.logger.Warn("test_timeout",
		"test", name,
		"timeout", s.testTimeout.String(),
	)
	l.Stop(e.action)
}

func (s *Service) handleExit(ev launchservice.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.byAction[ev.Action]
	if e == nil {
		return
	}
	if e.status != StatusStarted {
		// Never started: the exit event reports the start failure.
		e.startTime = time.Now()
		e.processName = ev.ProcessName
	}
	e.status = StatusFinished
	e.exitCode = ev.ExitCode
	e.endTime = time.Now()
	if e.timer != nil {
		e.timer.Stop()
	}

	switch e.kind {
	case KindTest:
		s.finishTest(e)
	case KindFixture:
		s.finishFixture(e)
	}
}

func (s *Service) finishTest(e *entry) {
	duration := e.endTime.Sub(e.startTime)
	s.logger.Info("test_finished",
		"test", e.processName,
		"exit_code", e.exitCode,
		"timed_out", e.timedOut,
		"duration", duration.String(),
	)
	if s.recorder != nil {
		s.recorder.TestFinished(e.action.ActionName(), e.effectiveCode(), duration)
	}

	for _, other := range s.entries {
		if other.kind == KindTest && other.status != StatusFinished {
			return
		}
	}
	s.testsDone = true
	s.launcher.Shutdown("all tests finished")
}

func (s *Service) finishFixture(e *entry) {
	if s.testsDone || slices.Contains(e.exitAllowed, e.exitCode) {
		s.logger.Info("fixture_exited",
			"fixture", e.processName,
			"exit_code", e.exitCode,
		)
		return
	}
	e.failed = true
	s.fixtureFailed = true
	s.logger.Error("fixture_failed",
		"fixture", e.processName,
		"exit_code", e.exitCode,
		"allowed", e.exitAllowed,
	)
	s.launcher.Shutdown(fmt.Sprintf("fixture %s exited with code %d", e.processName, e.exitCode))
}

func (s *Service) countTests() int {
	n := 0
	for _, e := range s.entries {
		if e.kind == KindTest {
			n++
		}
	}
	return n
}

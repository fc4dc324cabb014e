// Package launchservice runs launch descriptions: every action under its
// own supervisor, with lifecycle events and coordinated shutdown.
package launchservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
	"github.com/randomizedcoder/go-launch-test/internal/logging"
	"github.com/randomizedcoder/go-launch-test/internal/process"
	"github.com/randomizedcoder/go-launch-test/internal/supervisor"
)

// ErrAlreadyRun is reported when Run is called twice.
var ErrAlreadyRun = errors.New("launch service already ran")

// Config holds configuration for a Service.
type Config struct {
	Logger   *slog.Logger
	Resolver *process.Resolver
	Recorder Recorder

	SigtermTimeout time.Duration
	SigkillTimeout time.Duration

	// Screen destinations for processes with screen output.
	Stdout io.Writer
	Stderr io.Writer

	// HandleSignals makes SIGINT and SIGTERM shut the launch down.
	HandleSignals bool
}

// Process is one launched action.
type Process struct {
	Name    string
	Action  launch.Action
	Command string

	sup    *supervisor.Supervisor
	output *logging.OutputHandler

	mu     sync.Mutex
	result process.Result
}

// Result returns the outcome of the process's last run.
func (p *Process) Result() process.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Status is a point-in-time view of a launched process.
type Status struct {
	Name     string
	Class    string
	Command  string
	State    supervisor.State
	PID      int
	ExitCode int // -1 while running
	Restarts int
	Uptime   time.Duration
	Warnings int64
	Errors   int64
}

// Service runs included launch descriptions.
type Service struct {
	logger   *slog.Logger
	resolver *process.Resolver
	recorder Recorder

	sigtermTimeout time.Duration
	sigkillTimeout time.Duration
	stdout         io.Writer
	stderr         io.Writer
	handleSignals  bool

	descriptions []*launch.Description

	processes []*Process
	byName    map[string]*Process
	counter   int
	mu        sync.RWMutex

	handlersMu    sync.RWMutex
	startHandlers []Handler
	exitHandlers  []Handler
	dispatchMu    sync.Mutex

	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	shutdownReason atomic.Value

	running atomic.Int64
	ran     atomic.Bool
	wg      sync.WaitGroup
}

// New creates a launch service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = process.ResolverFromEnv()
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	return &Service{
		logger:         logger,
		resolver:       resolver,
		recorder:       cfg.Recorder,
		sigtermTimeout: cfg.SigtermTimeout,
		sigkillTimeout: cfg.SigkillTimeout,
		stdout:         stdout,
		stderr:         stderr,
		handleSignals:  cfg.HandleSignals,
		byName:         make(map[string]*Process),
		shutdownCh:     make(chan struct{}),
	}
}

// Include adds a launch description. Actions start in inclusion order.
// Actions added to the description after Run has started are ignored.
func (s *Service) Include(ld *launch.Description) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptions = append(s.descriptions, ld)
}

// OnProcessStart registers a handler for process starts.
func (s *Service) OnProcessStart(h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.startHandlers = append(s.startHandlers, h)
}

// OnProcessExit registers a handler for process exits, including
// processes that failed to start.
func (s *Service) OnProcessExit(h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.exitHandlers = append(s.exitHandlers, h)
}

// Shutdown asks every process to stop. Only the first call has an
// effect.
func (s *Service) Shutdown(reason string) {
	s.shutdownOnce.Do(func() {
		s.shutdownReason.Store(reason)
		s.logger.Info("shutdown_requested", "reason", reason)
		close(s.shutdownCh)
	})
}

// ShutdownReason returns the reason given to Shutdown, or "".
func (s *Service) ShutdownReason() string {
	reason, _ := s.shutdownReason.Load().(string)
	return reason
}

// Stop gracefully stops every process launched for action. It reports
// whether any process matched.
func (s *Service) Stop(action launch.Action) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := false
	for _, p := range s.processes {
		if p.Action == action {
			p.sup.Stop()
			found = true
		}
	}
	return found
}

// Run launches every included action and blocks until all processes
// have ended. It returns 0 when the processes exited on their own or
// Shutdown was called, and 1 when the launch could not be prepared or
// was interrupted by a signal or ctx.
func (s *Service) Run(ctx context.Context) int {
	if !s.ran.CompareAndSwap(false, true) {
		s.logger.Error("launch_failed", "error", ErrAlreadyRun)
		return 1
	}

	procs, err := s.prepare()
	if err != nil {
		s.logger.Error("launch_failed", "error", err)
		return 1
	}
	if len(procs) == 0 {
		s.logger.Info("launch_empty")
		return 0
	}

	var sigCh chan os.Signal
	if s.handleSignals {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	s.logger.Info("launch_starting", "processes", len(procs))
	for _, p := range procs {
		s.wg.Add(1)
		go func(p *Process) {
			defer s.wg.Done()
			if err := p.sup.Run(ctx); err != nil {
				s.logger.Debug("supervisor_ended",
					"process", p.Name,
					"error", err,
				)
			}
		}(p)
	}

	allDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(allDone)
	}()

	rc := 0
	select {
	case <-allDone:
		s.logger.Info("all_processes_exited")
		return 0
	case <-s.shutdownCh:
	case sig := <-sigCh:
		s.logger.Info("received_signal", "signal", sig.String())
		s.Shutdown("signal " + sig.String())
		rc = 1
	case <-ctx.Done():
		s.logger.Info("context_cancelled")
		s.Shutdown("context cancelled")
		rc = 1
	}

	s.logger.Info("shutdown_initiated", "running", s.RunningCount())
	for _, p := range procs {
		p.sup.Stop()
	}
	<-allDone
	s.logger.Info("all_processes_stopped")

	return rc
}

// prepare validates the included descriptions and creates a supervisor
// per action.
func (s *Service) prepare() ([]*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, ld := range s.descriptions {
		if err := ld.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, ld := range s.descriptions {
		for _, a := range ld.Actions {
			builder, err := process.NewBuilder(a, s.resolver)
			if err != nil {
				return nil, fmt.Errorf("action %q: %w", a.ActionName(), err)
			}
			s.addProcess(a, builder)
		}
	}
	return s.processes, nil
}

// addProcess names the action and wraps it in a supervisor.
func (s *Service) addProcess(a launch.Action, builder process.Builder) {
	s.counter++
	name := fmt.Sprintf("%s-%d", builder.Name(), s.counter)
	mode := a.OutputMode()

	output := logging.NewOutputHandler(logging.OutputConfig{
		Name:   name,
		Screen: mode.ToScreen(),
		Log:    mode.ToLog(),
		Logger: s.logger,
		Stdout: s.stdout,
		Stderr: s.stderr,
	})

	cfg := supervisor.Config{
		Name:           name,
		Builder:        builder,
		Output:         output,
		Logger:         s.logger,
		SigtermTimeout: s.sigtermTimeout,
		SigkillTimeout: s.sigkillTimeout,
		Callbacks: supervisor.Callbacks{
			OnStateChange: s.handleStateChange,
			OnStart:       s.handleStart,
			OnExit:        s.handleExit,
			OnRestart:     s.handleRestart,
		},
	}
	if n, ok := a.(*launch.Node); ok && n.Respawn {
		cfg.Respawn = true
		cfg.RespawnDelay = n.RespawnDelay
		cfg.MaxRestarts = n.MaxRestarts
		cfg.Backoff = supervisor.NewBackoff(s.counter, time.Now().UnixNano(), supervisor.DefaultBackoffConfig())
	}

	p := &Process{
		Name:    name,
		Action:  a,
		Command: builder.CommandString(),
		sup:     supervisor.New(cfg),
		output:  output,
		result:  process.Result{Name: name, ExitCode: -1},
	}
	s.processes = append(s.processes, p)
	s.byName[name] = p

	s.logger.Debug("process_registered",
		"process", name,
		"command", p.Command,
		"output", string(mode),
	)
}

// handleStateChange keeps the running count.
func (s *Service) handleStateChange(name string, oldState, newState supervisor.State) {
	wasRunning := oldState == supervisor.StateRunning
	isRunning := newState == supervisor.StateRunning

	if !wasRunning && isRunning {
		s.running.Add(1)
	} else if wasRunning && !isRunning {
		s.running.Add(-1)
	}
	if s.recorder != nil {
		s.recorder.SetRunning(s.RunningCount())
	}
}

func (s *Service) handleStart(name string, pid int) {
	p := s.lookup(name)
	if p == nil {
		return
	}

	p.mu.Lock()
	p.result.PID = pid
	p.result.ExitCode = -1
	p.result.StartTime = time.Now()
	p.result.EndTime = time.Time{}
	p.mu.Unlock()

	if s.recorder != nil {
		s.recorder.ProcessStarted(actionClass(p.Action))
	}
	s.dispatch(Event{
		Type:        ProcessStarted,
		Action:      p.Action,
		ProcessName: name,
		PID:         pid,
	})
}

func (s *Service) handleExit(name string, pid int, exitCode int, uptime time.Duration) {
	p := s.lookup(name)
	if p == nil {
		return
	}

	now := time.Now()
	p.mu.Lock()
	p.result.PID = pid
	p.result.ExitCode = exitCode
	p.result.EndTime = now
	if pid == 0 {
		p.result.StartTime = now
	}
	p.mu.Unlock()

	if s.recorder != nil {
		s.recorder.ProcessExited(actionClass(p.Action), exitCode, uptime)
	}
	s.dispatch(Event{
		Type:        ProcessExited,
		Action:      p.Action,
		ProcessName: name,
		PID:         pid,
		ExitCode:    exitCode,
		Uptime:      uptime,
	})
}

func (s *Service) handleRestart(name string, attempt int, delay time.Duration) {
	p := s.lookup(name)
	if p == nil || s.recorder == nil {
		return
	}
	s.recorder.ProcessRestarted(actionClass(p.Action))
}

// dispatch delivers an event to its handlers, one event at a time.
func (s *Service) dispatch(ev Event) {
	s.handlersMu.RLock()
	handlers := s.exitHandlers
	if ev.Type == ProcessStarted {
		handlers = s.startHandlers
	}
	handlers = append([]Handler(nil), handlers...)
	s.handlersMu.RUnlock()

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (s *Service) lookup(name string) *Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byName[name]
}

// RunningCount returns the number of running processes.
func (s *Service) RunningCount() int {
	return int(s.running.Load())
}

// Processes returns the launched processes in launch order. Empty until
// Run has prepared the launch.
func (s *Service) Processes() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Process(nil), s.processes...)
}

// Statuses returns a snapshot of every launched process.
func (s *Service) Statuses() []Status {
	procs := s.Processes()
	out := make([]Status, 0, len(procs))
	for _, p := range procs {
		res := p.Result()
		warnings, errs := p.output.Counts()
		out = append(out, Status{
			Name:     p.Name,
			Class:    actionClass(p.Action),
			Command:  p.Command,
			State:    p.sup.State(),
			PID:      res.PID,
			ExitCode: res.ExitCode,
			Restarts: p.sup.Restarts(),
			Uptime:   statusUptime(p.sup, res),
			Warnings: warnings,
			Errors:   errs,
		})
	}
	return out
}

func statusUptime(sup *supervisor.Supervisor, res process.Result) time.Duration {
	if up := sup.Uptime(); up > 0 {
		return up
	}
	return res.Uptime()
}

// RecentOutput returns up to n recent output lines of the named process.
func (s *Service) RecentOutput(name string, n int) []string {
	p := s.lookup(name)
	if p == nil {
		return nil
	}
	return p.output.RecentLines(n)
}

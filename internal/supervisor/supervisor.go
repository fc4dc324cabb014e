package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-launch-test/internal/logging"
)

const (
	// DefaultSigtermTimeout is how long a process gets after SIGINT
	// before SIGTERM is sent.
	DefaultSigtermTimeout = 5 * time.Second

	// DefaultSigkillTimeout is how long a process gets after SIGTERM
	// before SIGKILL is sent.
	DefaultSigkillTimeout = 5 * time.Second

	// startFailureExitCode is reported for a process that never started.
	startFailureExitCode = 1

	waitDelayGrace = time.Second
)

var (
	// ErrStartFailed is returned by Run when the process could not be
	// built or started.
	ErrStartFailed = errors.New("process failed to start")

	// ErrMaxRestarts is returned by Run when a respawning process hit
	// its restart limit.
	ErrMaxRestarts = errors.New("max restarts reached")
)

// ProcessBuilder creates executable commands for a launch action.
// This interface allows the supervisor to be decoupled from action types.
type ProcessBuilder interface {
	// BuildCommand returns a ready-to-start command.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process.
	Name() string
}

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the process state changes.
	OnStateChange func(name string, oldState, newState State)

	// OnStart is called when the process starts.
	OnStart func(name string, pid int)

	// OnExit is called when the process exits, or fails to start
	// (pid 0, exit code 1).
	OnExit func(name string, pid int, exitCode int, uptime time.Duration)

	// OnRestart is called before a respawn.
	OnRestart func(name string, attempt int, delay time.Duration)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	// Name is the unique process name, e.g. "navfn_planner-1".
	Name      string
	Builder   ProcessBuilder
	Output    *logging.OutputHandler
	Logger    *slog.Logger
	Callbacks Callbacks

	// Respawn restarts the process whenever it exits. RespawnDelay is a
	// fixed delay; when zero, Backoff is used.
	Respawn      bool
	RespawnDelay time.Duration
	Backoff      *Backoff
	MaxRestarts  int // 0 = unlimited

	SigtermTimeout time.Duration
	SigkillTimeout time.Duration
}

// Supervisor manages the lifecycle of a single launched process.
type Supervisor struct {
	name      string
	builder   ProcessBuilder
	output    *logging.OutputHandler
	logger    *slog.Logger
	callbacks Callbacks

	respawn      bool
	respawnDelay time.Duration
	backoff      *Backoff
	maxRestarts  int
	restarts     atomic.Int64

	sigtermTimeout time.Duration
	sigkillTimeout time.Duration

	state   State
	stateMu sync.RWMutex

	// Current or last run
	mu        sync.Mutex
	pid       int
	exitCode  int
	startTime time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	output := cfg.Output
	if output == nil {
		output = logging.NewOutputHandler(logging.OutputConfig{Name: cfg.Name, Logger: logger})
	}
	sigterm := cfg.SigtermTimeout
	if sigterm <= 0 {
		sigterm = DefaultSigtermTimeout
	}
	sigkill := cfg.SigkillTimeout
	if sigkill <= 0 {
		sigkill = DefaultSigkillTimeout
	}
	backoff := cfg.Backoff
	if cfg.Respawn && cfg.RespawnDelay == 0 && backoff == nil {
		backoff = NewBackoff(0, time.Now().UnixNano(), DefaultBackoffConfig())
	}

	return &Supervisor{
		name:           cfg.Name,
		builder:        cfg.Builder,
		output:         output,
		logger:         logger,
		callbacks:      cfg.Callbacks,
		respawn:        cfg.Respawn,
		respawnDelay:   cfg.RespawnDelay,
		backoff:        backoff,
		maxRestarts:    cfg.MaxRestarts,
		sigtermTimeout: sigterm,
		sigkillTimeout: sigkill,
		state:          StateCreated,
		exitCode:       -1,
		stopCh:         make(chan struct{}),
	}
}

// Run starts the process and blocks until it is done: after a single
// run, or, for a respawning process, until Stop is called or ctx is
// cancelled. Cancellation and Stop shut the process down gracefully
// (SIGINT, then SIGTERM, then SIGKILL) and are not errors.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	select {
	case <-s.stopCh:
		cancel()
	default:
	}
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Debug("supervisor_starting", "process", s.name, "respawn", s.respawn)

	for {
		if ctx.Err() != nil {
			s.setState(StateStopped)
			return nil
		}

		exitCode, uptime, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateStopped)
			return nil
		}
		if !s.respawn {
			s.setState(StateStopped)
			return err
		}

		if s.maxRestarts > 0 && int(s.restarts.Load()) >= s.maxRestarts {
			s.setState(StateStopped)
			s.logger.Warn("max_restarts_reached",
				"process", s.name,
				"restarts", s.restarts.Load(),
				"max", s.maxRestarts,
			)
			return ErrMaxRestarts
		}

		delay := s.nextDelay(uptime, exitCode)
		attempt := int(s.restarts.Add(1))

		if s.callbacks.OnRestart != nil {
			s.callbacks.OnRestart(s.name, attempt, delay)
		}
		s.logger.Info("process_respawn_scheduled",
			"process", s.name,
			"attempt", attempt,
			"delay", delay.String(),
		)

		s.setState(StateBackoff)
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return nil
		case <-time.After(delay):
		}
	}
}

// nextDelay returns how long to wait before respawning.
func (s *Supervisor) nextDelay(uptime time.Duration, exitCode int) time.Duration {
	if s.respawnDelay > 0 || s.backoff == nil {
		return s.respawnDelay
	}
	if ShouldReset(uptime, exitCode) {
		s.backoff.Reset()
	}
	return s.backoff.Next()
}

// runOnce runs the process once and waits for it to exit.
func (s *Supervisor) runOnce(ctx context.Context) (exitCode int, uptime time.Duration, err error) {
	s.setState(StateStarting)

	cmd, err := s.builder.BuildCommand(ctx)
	if err != nil {
		s.logger.Error("failed_to_build_command",
			"process", s.name,
			"error", err,
		)
		s.recordExit(0, startFailureExitCode, 0)
		return startFailureExitCode, 0, fmt.Errorf("%w: %s: %w", ErrStartFailed, s.name, err)
	}

	stdout := s.output.Writer(logging.Stdout)
	stderr := s.output.Writer(logging.Stderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Own process group, so shutdown signals reach the node's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	exited := make(chan struct{})
	cmd.Cancel = func() error {
		go s.escalate(cmd.Process.Pid, exited)
		return signalGroup(cmd.Process.Pid, unix.SIGINT)
	}
	cmd.WaitDelay = s.sigtermTimeout + s.sigkillTimeout + waitDelayGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		close(exited)
		s.logger.Error("failed_to_start_process",
			"process", s.name,
			"error", err,
		)
		s.recordExit(0, startFailureExitCode, 0)
		return startFailureExitCode, 0, fmt.Errorf("%w: %s: %w", ErrStartFailed, s.name, err)
	}

	pid := cmd.Process.Pid
	s.mu.Lock()
	s.pid = pid
	s.startTime = start
	s.mu.Unlock()
	s.setState(StateRunning)

	s.logger.Info("process_started",
		"process", s.name,
		"pid", pid,
	)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(s.name, pid)
	}

	waitErr := cmd.Wait()
	close(exited)
	stdout.Flush()
	stderr.Flush()

	uptime = time.Since(start)
	exitCode = processExitCode(cmd.ProcessState, waitErr)

	s.logger.Info("process_exited",
		"process", s.name,
		"pid", pid,
		"exit_code", exitCode,
		"uptime", uptime.String(),
	)
	s.recordExit(pid, exitCode, uptime)

	return exitCode, uptime, nil
}

// recordExit stores the exit code and notifies the callback.
func (s *Supervisor) recordExit(pid, exitCode int, uptime time.Duration) {
	s.mu.Lock()
	s.exitCode = exitCode
	s.mu.Unlock()

	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(s.name, pid, exitCode, uptime)
	}
}

// escalate sends SIGTERM and then SIGKILL to the process group unless
// the process exits first.
func (s *Supervisor) escalate(pid int, exited <-chan struct{}) {
	steps := []struct {
		sig   unix.Signal
		after time.Duration
	}{
		{unix.SIGTERM, s.sigtermTimeout},
		{unix.SIGKILL, s.sigkillTimeout},
	}
	for _, step := range steps {
		select {
		case <-exited:
			return
		case <-time.After(step.after):
		}
		s.logger.Warn("escalating_shutdown",
			"process", s.name,
			"pid", pid,
			"signal", step.sig.String(),
		)
		signalGroup(pid, step.sig)
	}
}

// Stop requests a graceful shutdown. Safe to call more than once and
// before Run.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(s.name, oldState, newState)
	}
}

// Name returns the process name.
func (s *Supervisor) Name() string {
	return s.name
}

// PID returns the pid of the current or last run, 0 if never started.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// ExitCode returns the last exit code, or -1 while no run has finished.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Restarts returns the number of respawns.
func (s *Supervisor) Restarts() int {
	return int(s.restarts.Load())
}

// Uptime returns the current uptime if running, or 0 if not.
func (s *Supervisor) Uptime() time.Duration {
	if s.State() != StateRunning {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}

// Output returns the process's output handler.
func (s *Supervisor) Output() *logging.OutputHandler {
	return s.output
}

// signalGroup signals the process group led by pid, or pid alone when
// the group cannot be determined.
func signalGroup(pid int, sig unix.Signal) error {
	if pgid, err := unix.Getpgid(pid); err == nil {
		return unix.Kill(-pgid, sig)
	}
	return unix.Kill(pid, sig)
}

// processExitCode derives the exit code from the process state, falling
// back to the Wait error.
func processExitCode(state *os.ProcessState, waitErr error) int {
	if state != nil {
		if status, ok := state.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return state.ExitCode()
	}
	return extractExitCode(waitErr)
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}

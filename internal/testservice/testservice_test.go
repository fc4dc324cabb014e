package testservice

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-launch-test/internal/launch"
	"github.com/randomizedcoder/go-launch-test/internal/launchservice"
	"github.com/randomizedcoder/go-launch-test/internal/process"
)

// =============================================================================
// Fake Launcher for testing
// =============================================================================

// fakeLauncher replays a scripted sequence of events from Run.
type fakeLauncher struct {
	starts []launchservice.Handler
	exits  []launchservice.Handler
	script func(f *fakeLauncher)
	rc     int

	shutdownReasons []string
	stopped         []launch.Action
}

func (f *fakeLauncher) OnProcessStart(h launchservice.Handler) { f.starts = append(f.starts, h) }
func (f *fakeLauncher) OnProcessExit(h launchservice.Handler)  { f.exits = append(f.exits, h) }
func (f *fakeLauncher) Shutdown(reason string) {
	f.shutdownReasons = append(f.shutdownReasons, reason)
}

func (f *fakeLauncher) Stop(a launch.Action) bool {
	f.stopped = append(f.stopped, a)
	return true
}

func (f *fakeLauncher) Run(context.Context) int {
	if f.script != nil {
		f.script(f)
	}
	return f.rc
}

func (f *fakeLauncher) start(a launch.Action) {
	for _, h := range f.starts {
		h(launchservice.Event{Type: launchservice.ProcessStarted, Action: a, ProcessName: a.ActionName() + "-1", PID: 100})
	}
}

func (f *fakeLauncher) exit(a launch.Action, code int) {
	for _, h := range f.exits {
		h(launchservice.Event{Type: launchservice.ProcessExited, Action: a, ProcessName: a.ActionName() + "-1", PID: 100, ExitCode: code})
	}
}

func proc(name string) *launch.ExecuteProcess {
	return &launch.ExecuteProcess{Cmd: []string{"/bin/" + name}, Name: name}
}

// fakeRecorder implements Recorder.
type fakeRecorder struct {
	mu    sync.Mutex
	codes map[string]int
}

func (r *fakeRecorder) TestFinished(name string, code int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codes == nil {
		r.codes = map[string]int{}
	}
	r.codes[name] = code
}

// =============================================================================
// Table-Driven Tests: run result
// =============================================================================

func TestRun_Result(t *testing.T) {
	testA := proc("test_a")
	testB := proc("test_b")
	fixture := proc("fixture")

	tests := []struct {
		name         string
		fixtures     map[*launch.ExecuteProcess][]int
		tests        []*launch.ExecuteProcess
		script       func(f *fakeLauncher)
		launchResult int
		want         int
		wantShutdown string
	}{
		{
			name:  "test passes",
			tests: []*launch.ExecuteProcess{testA},
			script: func(f *fakeLauncher) {
				f.start(testA)
				f.exit(testA, 0)
			},
			want:         0,
			wantShutdown: "all tests finished",
		},
		{
			name:  "test fails",
			tests: []*launch.ExecuteProcess{testA},
			script: func(f *fakeLauncher) {
				f.start(testA)
				f.exit(testA, 3)
			},
			want:         3,
			wantShutdown: "all tests finished",
		},
		{
			name:  "first failing test in registration order",
			tests: []*launch.ExecuteProcess{testA, testB},
			script: func(f *fakeLauncher) {
				f.start(testA)
				f.start(testB)
				f.exit(testB, 5)
				f.exit(testA, 2)
			},
			want:         2,
			wantShutdown: "all tests finished",
		},
		{
			name:  "second test fails",
			tests: []*launch.ExecuteProcess{testA, testB},
			script: func(f *fakeLauncher) {
				f.start(testA)
				f.start(testB)
				f.exit(testA, 0)
				f.exit(testB, 5)
			},
			want: 5,
		},
		{
			name:     "fixture dies while tests run",
			fixtures: map[*launch.ExecuteProcess][]int{fixture: nil},
			tests:    []*launch.ExecuteProcess{testA},
			script: func(f *fakeLauncher) {
				f.start(fixture)
				f.start(testA)
				f.exit(fixture, 1)
				f.exit(testA, 0)
			},
			want:         1,
			wantShutdown: "fixture fixture-1 exited with code 1",
		},
		{
			name:     "fixture exits with allowed code",
			fixtures: map[*launch.ExecuteProcess][]int{fixture: {0, 3}},
			tests:    []*launch.ExecuteProcess{testA},
			script: func(f *fakeLauncher) {
				f.start(fixture)
				f.start(testA)
				f.exit(fixture, 3)
				f.exit(testA, 0)
			},
			want:         0,
			wantShutdown: "all tests finished",
		},
		{
			name:     "fixture stopped after tests",
			fixtures: map[*launch.ExecuteProcess][]int{fixture: nil},
			tests:    []*launch.ExecuteProcess{testA},
			script: func(f *fakeLauncher) {
				f.start(fixture)
				f.start(testA)
				f.exit(testA, 0)
				f.exit(fixture, 130)
			},
			want:         0,
			wantShutdown: "all tests finished",
		},
		{
			name:  "test never started",
			tests: []*launch.ExecuteProcess{testA},
			want:  1,
		},
		{
			name:  "test never finished",
			tests: []*launch.ExecuteProcess{testA},
			script: func(f *fakeLauncher) {
				f.start(testA)
			},
			want: 1,
		},
		{
			name:  "test failed to start",
			tests: []*launch.ExecuteProcess{testA},
			script: func(f *fakeLauncher) {
				f.exit(testA, 1)
			},
			want:         1,
			wantShutdown: "all tests finished",
		},
		{
			name:  "launch result passed through",
			tests: []*launch.ExecuteProcess{testA},
			script: func(f *fakeLauncher) {
				f.start(testA)
				f.exit(testA, 0)
			},
			launchResult: 1,
			want:         1,
		},
		{
			name:         "no tests returns launch result",
			launchResult: 0,
			want:         0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ld := launch.NewDescription()
			ts := New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
			for f, allowed := range tt.fixtures {
				ts.AddFixtureAction(ld, f, allowed...)
			}
			for _, a := range tt.tests {
				ts.AddTestAction(ld, a)
			}

			fl := &fakeLauncher{script: tt.script, rc: tt.launchResult}
			if got := ts.Run(context.Background(), fl); got != tt.want {
				t.Errorf("Run() = %d, want %d", got, tt.want)
			}

			if tt.wantShutdown != "" {
				if len(fl.shutdownReasons) == 0 || fl.shutdownReasons[0] != tt.wantShutdown {
					t.Errorf("shutdown reasons = %v, want first %q", fl.shutdownReasons, tt.wantShutdown)
				}
			}
			if len(ld.Actions) != len(tt.tests)+len(tt.fixtures) {
				t.Errorf("description has %d actions, want %d", len(ld.Actions), len(tt.tests)+len(tt.fixtures))
			}
			if got := ts.Report().Result; got != tt.want {
				t.Errorf("Report().Result = %d, want %d", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Report
// =============================================================================

func TestReport(t *testing.T) {
	ld := launch.NewDescription()
	rec := &fakeRecorder{}
	ts := New(Config{Recorder: rec})

	testA := proc("test_a")
	fixture := proc("fixture")
	ts.AddFixtureAction(ld, fixture)
	ts.AddTestAction(ld, testA)

	if got := ts.Report().Result; got != -1 {
		t.Errorf("Report().Result before Run = %d, want -1", got)
	}

	fl := &fakeLauncher{script: func(f *fakeLauncher) {
		f.start(fixture)
		f.start(testA)
		f.exit(testA, 4)
		f.exit(fixture, 130)
	}}
	ts.Run(context.Background(), fl)

	r := ts.Report()
	if r.Passed() {
		t.Error("Passed() = true, want false")
	}
	if len(r.Tests) != 1 || len(r.Fixtures) != 1 {
		t.Fatalf("tests=%d fixtures=%d, want 1 and 1", len(r.Tests), len(r.Fixtures))
	}

	test := r.Tests[0]
	if test.Name != "test_a" || test.ProcessName != "test_a-1" {
		t.Errorf("test entry = %+v", test)
	}
	if test.Status != StatusFinished || test.ExitCode != 4 || test.Passed {
		t.Errorf("test entry = %+v", test)
	}
	if !r.Fixtures[0].Passed {
		t.Error("fixture stopped after the tests should pass")
	}
	if failed := r.Failed(); len(failed) != 1 || failed[0].Name != "test_a" {
		t.Errorf("Failed() = %+v", failed)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.codes["test_a"] != 4 {
		t.Errorf("recorded codes = %v", rec.codes)
	}
}

func TestKindAndStatusStrings(t *testing.T) {
	if KindTest.String() != "test" || KindFixture.String() != "fixture" {
		t.Error("unexpected Kind strings")
	}
	tests := []struct {
		s    Status
		want string
	}{
		{StatusAdded, "added"},
		{StatusStarted, "started"},
		{StatusFinished, "finished"},
		{Status(7), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// =============================================================================
// With a real launch service
// =============================================================================

func newLaunchService() *launchservice.Service {
	return launchservice.New(launchservice.Config{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Resolver:       process.NewResolver(""),
		SigtermTimeout: 500 * time.Millisecond,
		SigkillTimeout: 500 * time.Millisecond,
		Stdout:         io.Discard,
		Stderr:         io.Discard,
	})
}

func shell(name, script string) *launch.ExecuteProcess {
	return &launch.ExecuteProcess{Cmd: []string{"sh", "-c", script}, Name: name}
}

func TestRun_WithLaunchService(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"passing test", "exit 0", 0},
		{"failing test", "exit 7", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ld := launch.NewDescription(shell("node", "sleep 30"))
			ts := New(Config{})
			ts.AddTestAction(ld, shell("test", tt.script))

			ls := newLaunchService()
			ls.Include(ld)

			start := time.Now()
			if got := ts.Run(context.Background(), ls); got != tt.want {
				t.Errorf("Run() = %d, want %d", got, tt.want)
			}
			if elapsed := time.Since(start); elapsed > 10*time.Second {
				t.Errorf("Run() took %v; the node should be shut down when the test ends", elapsed)
			}
		})
	}
}

func TestRun_TestTimeout(t *testing.T) {
	ld := launch.NewDescription()
	ts := New(Config{TestTimeout: 200 * time.Millisecond})
	ts.AddTestAction(ld, shell("slow", "sleep 30"))

	ls := newLaunchService()
	ls.Include(ld)

	if got := ts.Run(context.Background(), ls); got != 1 {
		t.Errorf("Run() = %d, want 1", got)
	}
	r := ts.Report()
	if len(r.Tests) != 1 || !r.Tests[0].TimedOut {
		t.Errorf("report = %+v, want a timed out test", r.Tests)
	}
}

func TestRun_MissingTestExecutable(t *testing.T) {
	ld := launch.NewDescription(shell("node", "sleep 30"))
	ts := New(Config{})
	ts.AddTestAction(ld, launch.NewPlannerTestAction("/nonexistent/test_planner"))

	ls := newLaunchService()
	ls.Include(ld)

	if got := ts.Run(context.Background(), ls); got != 1 {
		t.Errorf("Run() = %d, want 1", got)
	}
	r := ts.Report()
	if !strings.HasPrefix(r.Tests[0].ProcessName, launch.PlannerTestName) {
		t.Errorf("ProcessName = %q", r.Tests[0].ProcessName)
	}
}

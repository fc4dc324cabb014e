package testservice

import "time"

// Entry is the outcome of one tracked action.
type Entry struct {
	Name        string
	ProcessName string
	Kind        Kind
	Status      Status
	ExitCode    int // -1 if it never exited
	Duration    time.Duration
	TimedOut    bool
	Passed      bool
}

// Report summarizes a test run.
type Report struct {
	Tests    []Entry
	Fixtures []Entry
	Result   int
}

// Passed reports whether the run succeeded.
func (r Report) Passed() bool {
	return r.Result == 0
}

// Failed returns the tests that did not pass.
func (r Report) Failed() []Entry {
	var out []Entry
	for _, e := range r.Tests {
		if !e.Passed {
			out = append(out, e)
		}
	}
	return out
}

// Report returns the per-action outcome. Result is only meaningful once
// Run has returned.
func (s *Service) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Report{Result: s.result}
	if !s.ran {
		r.Result = -1
	}
	for _, e := range s.entries {
		out := Entry{
			Name:        e.action.ActionName(),
			ProcessName: e.processName,
			Kind:        e.kind,
			Status:      e.status,
			ExitCode:    e.exitCode,
			TimedOut:    e.timedOut,
		}
		if !e.startTime.IsZero() {
			end := e.endTime
			if end.IsZero() {
				end = time.Now()
			}
			out.Duration = end.Sub(e.startTime)
		}

		switch e.kind {
		case KindTest:
			out.Passed = e.status == StatusFinished && e.effectiveCode() == 0
			r.Tests = append(r.Tests, out)
		case KindFixture:
			out.Passed = !e.failed
			r.Fixtures = append(r.Fixtures, out)
		}
	}
	return r
}

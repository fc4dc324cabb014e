package supervisor

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for exponential respawn backoff.
type BackoffConfig struct {
	Initial    time.Duration // first delay
	Max        time.Duration // cap
	Multiplier float64       // growth per attempt
	JitterPct  float64       // total jitter width as a fraction of the delay (0.4 = ±20%)
}

// DefaultBackoffConfig returns the respawn backoff used when a node does
// not set its own delay.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    250 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 1.7,
		JitterPct:  0.4,
	}
}

// Backoff calculates exponential backoff delays with jitter.
// Not safe for concurrent use; each supervisor owns one.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a backoff calculator. The process index and run
// seed make the jitter deterministic per process within a run.
func NewBackoff(index int, runSeed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(int64(index) ^ runSeed)),
	}
}

// Next returns the next delay and counts the attempt.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without counting an attempt.
func (b *Backoff) Calculate() time.Duration {
	attempts := b.attempts
	if attempts < 0 {
		attempts = 0
	}
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(attempts))
	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	if b.config.JitterPct > 0 {
		width := delay * b.config.JitterPct
		delay += width*b.rng.Float64() - width/2
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset sets the attempt counter back to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// BackoffResetThreshold is the uptime after which a process is
// considered stable and its backoff starts over.
const BackoffResetThreshold = 30 * time.Second

// ShouldReset reports whether backoff restarts from the initial delay:
// after a clean exit or a stable run.
func ShouldReset(uptime time.Duration, exitCode int) bool {
	return exitCode == 0 || uptime >= BackoffResetThreshold
}

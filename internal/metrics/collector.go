// Package metrics provides Prometheus metrics for launch test runs.
//
// Metrics cover process lifecycle (starts, restarts, exits by category,
// uptime) and test verdicts. Uptime and test duration percentiles are
// kept in t-digests for the exit summary.
package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is what the collector registers into and what the server and
// WriteFile read from.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Collector manages all Prometheus metrics for a run.
type Collector struct {
	registry Registry

	// --- Run overview ---
	info      *prometheus.GaugeVec
	running   prometheus.Gauge
	elapsed   prometheus.Gauge
	runResult prometheus.Gauge

	// --- Process lifecycle ---
	starts   *prometheus.CounterVec
	restarts *prometheus.CounterVec
	exits    *prometheus.CounterVec
	uptime   *prometheus.HistogramVec

	uptimeP50 prometheus.Gauge
	uptimeP95 prometheus.Gauge
	uptimeP99 prometheus.Gauge

	// --- Tests ---
	testResults  *prometheus.CounterVec
	testDuration prometheus.Histogram

	// Timing
	startTime time.Time

	// For summary generation
	mu              sync.Mutex
	peakRunning     int
	totalStarts     int64
	totalRestarts   int64
	exitCodes       map[int]int64
	uptimeDigest    *tdigest.TDigest
	uptimeCount     int
	testDigest      *tdigest.TDigest
	testCount       int
	testsPassed     int
	testsFailed     int
	uptimeMax       time.Duration
	testDurationMax time.Duration
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version    string
	LaunchFile string // "" = built-in planner launch
}

// NewCollector creates a collector with its own registry, including the
// Go runtime and process collectors.
func NewCollector(cfg CollectorConfig) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewCollectorWithRegistry(cfg, registry)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry Registry) *Collector {
	uptimeBuckets := []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

	c := &Collector{
		registry: registry,

		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "launch_test_info",
				Help: "Information about the launch test run (value always 1)",
			},
			[]string{"version", "launch"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "launch_test_processes_running",
			Help: "Currently running launched processes",
		}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "launch_test_elapsed_seconds",
			Help: "Seconds since the run started",
		}),
		runResult: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "launch_test_run_result",
			Help: "Exit code of the run (-1 while running)",
		}),

		starts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launch_test_process_starts_total",
				Help: "Total process starts",
			},
			[]string{"class"},
		),
		restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launch_test_process_restarts_total",
				Help: "Total process respawns",
			},
			[]string{"class"},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launch_test_process_exits_total",
				Help: "Total process exits by category (success, error, signal)",
			},
			[]string{"class", "category"},
		),
		uptime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "launch_test_process_uptime_seconds",
				Help:    "Process uptime at exit",
				Buckets: uptimeBuckets,
			},
			[]string{"class"},
		),

		uptimeP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "launch_test_uptime_p50_seconds",
			Help: "Process uptime at exit, 50th percentile",
		}),
		uptimeP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "launch_test_uptime_p95_seconds",
			Help: "Process uptime at exit, 95th percentile",
		}),
		uptimeP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "launch_test_uptime_p99_seconds",
			Help: "Process uptime at exit, 99th percentile",
		}),

		testResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launch_test_test_results_total",
				Help: "Finished tests by result (pass, fail)",
			},
			[]string{"result"},
		),
		testDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "launch_test_test_duration_seconds",
			Help:    "Test process run time",
			Buckets: uptimeBuckets,
		}),

		startTime:    time.Now(),
		exitCodes:    make(map[int]int64),
		uptimeDigest: tdigest.NewWithCompression(100),
		testDigest:   tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		c.info,
		c.running,
		c.elapsed,
		c.runResult,
		c.starts,
		c.restarts,
		c.exits,
		c.uptime,
		c.uptimeP50,
		c.uptimeP95,
		c.uptimeP99,
		c.testResults,
		c.testDuration,
	)

	// Set initial values
	launch := cfg.LaunchFile
	if launch == "" {
		launch = "planner"
	}
	c.info.WithLabelValues(cfg.Version, launch).Set(1)
	c.runResult.Set(-1)

	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() Registry {
	return c.registry
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// ProcessStarted records a process start.
func (c *Collector) ProcessStarted(class string) {
	c.starts.WithLabelValues(class).Inc()

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// ProcessRestarted records a respawn.
func (c *Collector) ProcessRestarted(class string) {
	c.restarts.WithLabelValues(class).Inc()

	c.mu.Lock()
	c.totalRestarts++
	c.mu.Unlock()
}

// ProcessExited records a process exit event.
func (c *Collector) ProcessExited(class string, exitCode int, uptime time.Duration) {
	c.exits.WithLabelValues(class, ExitCategory(exitCode)).Inc()
	c.uptime.WithLabelValues(class).Observe(uptime.Seconds())

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.uptimeDigest.Add(uptime.Seconds(), 1)
	c.uptimeCount++
	if uptime > c.uptimeMax {
		c.uptimeMax = uptime
	}
	p50 := c.uptimeDigest.Quantile(0.50)
	p95 := c.uptimeDigest.Quantile(0.95)
	p99 := c.uptimeDigest.Quantile(0.99)
	c.mu.Unlock()

	c.uptimeP50.Set(p50)
	c.uptimeP95.Set(p95)
	c.uptimeP99.Set(p99)
}

// SetRunning updates the running process count.
func (c *Collector) SetRunning(n int) {
	c.running.Set(float64(n))

	c.mu.Lock()
	if n > c.peakRunning {
		c.peakRunning = n
	}
	c.mu.Unlock()
}

// TestFinished records a test verdict.
func (c *Collector) TestFinished(name string, exitCode int, duration time.Duration) {
	result := "pass"
	if exitCode != 0 {
		result = "fail"
	}
	c.testResults.WithLabelValues(result).Inc()
	c.testDuration.Observe(duration.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.testDigest.Add(duration.Seconds(), 1)
	c.testCount++
	if duration > c.testDurationMax {
		c.testDurationMax = duration
	}
	if exitCode == 0 {
		c.testsPassed++
	} else {
		c.testsFailed++
	}
}

// SetResult records the run's exit code and final elapsed time.
func (c *Collector) SetResult(rc int) {
	c.runResult.Set(float64(rc))
	c.elapsed.Set(time.Since(c.startTime).Seconds())
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration      time.Duration
	PeakRunning   int
	TotalStarts   int64
	TotalRestarts int64
	ExitCodes     map[int]int64

	UptimeP50 time.Duration
	UptimeP95 time.Duration
	UptimeP99 time.Duration
	UptimeMax time.Duration

	TestsPassed     int
	TestsFailed     int
	TestDurationP50 time.Duration
	TestDurationMax time.Duration
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:        time.Since(c.startTime),
		PeakRunning:     c.peakRunning,
		TotalStarts:     c.totalStarts,
		TotalRestarts:   c.totalRestarts,
		ExitCodes:       make(map[int]int64, len(c.exitCodes)),
		UptimeMax:       c.uptimeMax,
		TestsPassed:     c.testsPassed,
		TestsFailed:     c.testsFailed,
		TestDurationMax: c.testDurationMax,
	}

	// Copy exit codes
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	if c.uptimeCount > 0 {
		s.UptimeP50 = seconds(c.uptimeDigest.Quantile(0.50))
		s.UptimeP95 = seconds(c.uptimeDigest.Quantile(0.95))
		s.UptimeP99 = seconds(c.uptimeDigest.Quantile(0.99))
	}
	if c.testCount > 0 {
		s.TestDurationP50 = seconds(c.testDigest.Quantile(0.50))
	}

	return s
}

// =============================================================================
// Helper Functions
// =============================================================================

// ExitCategory classifies an exit code as success, error or signal.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

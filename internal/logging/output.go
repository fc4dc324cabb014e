package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per process.
	MaxBufferedLines = 100
)

// Stream identifies a process output stream.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// OutputConfig configures an OutputHandler.
type OutputConfig struct {
	// Name prefixes every screen line as "[name] ".
	Name string

	// Screen copies lines to Stdout/Stderr.
	Screen bool

	// Log sends lines to Logger.
	Log bool

	Logger *slog.Logger

	// Screen destinations; default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// OutputHandler routes the output of one launched process.
// It keeps the most recent lines for the exit summary.
type OutputHandler struct {
	name   string
	screen bool
	log    bool
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	mu     sync.Mutex

	warnings atomic.Int64
	errors   atomic.Int64
}

// NewOutputHandler creates an output handler.
func NewOutputHandler(cfg OutputConfig) *OutputHandler {
	h := &OutputHandler{
		name:   cfg.Name,
		screen: cfg.Screen,
		log:    cfg.Log,
		logger: cfg.Logger,
		stdout: cfg.Stdout,
		stderr: cfg.Stderr,
		buffer: make([]string, MaxBufferedLines),
	}
	if h.stdout == nil {
		h.stdout = os.Stdout
	}
	if h.stderr == nil {
		h.stderr = os.Stderr
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// Writer returns a writer that splits its input into lines for stream.
// Each writer must be used by a single goroutine; call Flush on it
// once the process has exited.
func (h *OutputHandler) Writer(stream Stream) *LineWriter {
	return &LineWriter{handler: h, stream: stream}
}

// HandleLine processes a single line of output.
func (h *OutputHandler) HandleLine(stream Stream, line string) {
	line = strings.TrimRight(line, "\r")
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.mu.Unlock()

	level := ClassifyLine(line)
	switch {
	case level >= slog.LevelError:
		h.errors.Add(1)
	case level >= slog.LevelWarn:
		h.warnings.Add(1)
	}

	if h.screen {
		dst := h.stdout
		if stream == Stderr {
			dst = h.stderr
		}
		fmt.Fprintf(dst, "[%s] %s\n", h.name, line)
	}
	if h.log {
		h.logger.Log(context.Background(), level, "process_output",
			"process", h.name,
			"stream", string(stream),
			"line", line,
		)
	}
}

// ClassifyLine maps the severity tag of a node log line to a level.
// Untagged lines are info.
func ClassifyLine(line string) slog.Level {
	switch {
	case strings.Contains(line, "[FATAL]"), strings.Contains(line, "[ERROR]"):
		return slog.LevelError
	case strings.Contains(line, "[WARN]"), strings.Contains(line, "[WARNING]"):
		return slog.LevelWarn
	case strings.Contains(line, "[DEBUG]"):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}
	return lines
}

// Counts returns how many warning and error lines were seen.
func (h *OutputHandler) Counts() (warnings, errors int64) {
	return h.warnings.Load(), h.errors.Load()
}

// LineWriter is an io.Writer that forwards complete lines to its handler.
type LineWriter struct {
	handler *OutputHandler
	stream  Stream
	partial []byte
}

// Write buffers p and emits every complete line.
func (w *LineWriter) Write(p []byte) (int, error) {
	data := p
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if len(w.partial) > 0 {
			w.partial = append(w.partial, data[:i]...)
			w.handler.HandleLine(w.stream, string(w.partial))
			w.partial = w.partial[:0]
		} else {
			w.handler.HandleLine(w.stream, string(data[:i]))
		}
		data = data[i+1:]
	}
	if len(data) > 0 {
		w.partial = append(w.partial, data...)
		if len(w.partial) > MaxLineLength {
			w.handler.HandleLine(w.stream, string(w.partial))
			w.partial = w.partial[:0]
		}
	}
	return len(p), nil
}

// Flush emits a trailing line without a newline, if any.
func (w *LineWriter) Flush() {
	if len(w.partial) > 0 {
		w.handler.HandleLine(w.stream, string(w.partial))
		w.partial = w.partial[:0]
	}
}

// Package logger provides the daemon's slog handler, level names and log file
// rotation.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2="two words"
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): verbose diagnostic tracing
//   - LevelFail  (12): unrecoverable errors
package logger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelFail  slog.Level = 12
)

// levelName returns the display name for a log level.
func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARN"
	case l <= LevelError:
		return "ERROR"
	default:
		return "FAIL"
	}
}

// ParseLevel converts a level string to slog.Level.
// Supports: trace, debug, info, warn, error, fail (case-insensitive).
// Returns LevelInfo for unrecognized strings.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fail":
		return LevelFail
	default:
		return LevelInfo
	}
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// Handler is a slog.Handler that writes one line per record:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, ...
//
// Group attributes are flattened into dotted keys. Values containing spaces
// or separators are quoted so lines stay splittable.
type Handler struct {
	// w receives formatted lines.
	w io.Writer
	// mu is shared by derived handlers so lines never interleave.
	mu *sync.Mutex
	// level is the minimum severity emitted.
	level slog.Leveler
	// pre holds attributes added by WithAttrs, already rendered.
	pre []string
	// prefix is the dotted group path applied to record attributes.
	prefix string
}

// NewHandler creates a Handler that writes to w, filtering records below level.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteString(" [")
	buf.WriteString(levelName(r.Level))
	buf.WriteString("] ")
	buf.WriteString(r.Message)

	fields := append([]string(nil), h.pre...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.prefix, a)
		return true
	})
	if len(fields) > 0 {
		buf.WriteString(" | ")
		buf.WriteString(strings.Join(fields, ", "))
	}
	buf.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

// WithAttrs returns a new Handler with the given attributes pre-applied.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	pre := append([]string(nil), h.pre...)
	for _, a := range attrs {
		pre = appendAttr(pre, h.prefix, a)
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, pre: pre, prefix: h.prefix}
}

// WithGroup returns a new Handler whose record attributes are keyed under
// name (e.g. "group.key").
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, pre: h.pre, prefix: joinKey(h.prefix, name)}
}

// appendAttr renders a as key=value, flattening groups.
func appendAttr(fields []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		// An inline group (empty key) merges into the parent.
		key := prefix
		if a.Key != "" {
			key = joinKey(prefix, a.Key)
		}
		for _, ga := range group {
			fields = appendAttr(fields, key, ga)
		}
		return fields
	}
	return append(fields, joinKey(prefix, a.Key)+"="+formatValue(a.Value))
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// formatValue renders v, quoting it when it would break the line format.
func formatValue(v slog.Value) string {
	var s string
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = v.String()
		}
	} else {
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " ,|=\"\t\r\n") {
		return strconv.Quote(s)
	}
	return s
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [New].
type Options struct {
	// Path is the log file. Empty disables file output.
	Path string
	// Level is the minimum level written.
	Level slog.Leveler
	// MaxSizeMB is the file size that triggers rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Zero means 3.
	MaxBackups int
	// MaxAgeDays is how long rotated files are kept. Zero means 28.
	MaxAgeDays int
	// Console, when set, receives a copy of every line.
	Console io.Writer
}

// New creates a slog.Logger that writes to a rotating log file and,
// optionally, the console. The returned io.Closer must be closed to release
// the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" && opts.Console == nil {
		return nil, nil, errors.New("logger needs a file path or a console writer")
	}
	if opts.Level == nil {
		opts.Level = LevelInfo
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = 28
	}

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	if opts.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, lj)
		closer = lj
	}
	if opts.Console != nil {
		writers = append(writers, opts.Console)
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = io.MultiWriter(writers...)
	}
	return slog.New(NewHandler(w, opts.Level)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

// ReadTail returns the last n lines of the file at path.
func ReadTail(path string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	next := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(ring) < n {
			ring = append(ring, line)
		} else {
			ring[next] = line
		}
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}

	if len(ring) < n {
		return strings.Join(ring, "\n"), nil
	}
	return strings.Join(append(ring[next:], ring[:next]...), "\n"), nil
}

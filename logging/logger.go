package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// LogLevel configures logger verbosity without exposing slog levels directly.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the minimal logging interface accepted throughout FlowMesh.
// Arguments follow the slog convention: alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoOpLogger discards all log messages. It is the default wherever no logger
// is configured.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}

// SlogAdapter exposes a *slog.Logger through the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter wraps an existing *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger wraps slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a FlowMeshLogger.
type LoggerConfig struct {
	// Level is the minimum level emitted.
	Level LogLevel

	// Format selects the slog handler: "json" (default) or "text".
	Format string

	// Output receives the rendered log lines. Defaults to os.Stdout.
	Output io.Writer

	// AddSource includes the caller's file and line in each record.
	AddSource bool

	// Component tags every record with a logical subsystem name.
	Component string
}

// DefaultLoggerConfig returns an info-level JSON configuration writing to
// stdout.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:     LogLevelInfo,
		Format:    "json",
		Output:    os.Stdout,
		AddSource: true,
	}
}

// FlowMeshLogger is a slog-backed Logger carrying run and node context.
// The With* methods return shallow copies, so one base logger can be scoped
// per run and per node without synchronization.
type FlowMeshLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	runID     string
	nodeID    string
	extra     []slog.Attr
}

// NewLogger builds a FlowMeshLogger from cfg; a nil cfg uses defaults.
func NewLogger(cfg *LoggerConfig) *FlowMeshLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel(), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &FlowMeshLogger{
		logger:    slog.New(handler),
		level:     cfg.Level,
		component: cfg.Component,
	}
}

// NewSlogLogger is a convenience constructor covering the common knobs.
func NewSlogLogger(level LogLevel, format string, addSource bool) *FlowMeshLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource

	return NewLogger(cfg)
}

// WithComponent returns a copy tagged with the given subsystem name.
func (l *FlowMeshLogger) WithComponent(component string) *FlowMeshLogger {
	nl := *l
	nl.component = component
	return &nl
}

// WithRun returns a copy scoped to a run and node. Empty IDs are omitted from
// records.
func (l *FlowMeshLogger) WithRun(runID, nodeID string) *FlowMeshLogger {
	nl := *l
	nl.runID = runID
	nl.nodeID = nodeID
	return &nl
}

// WithAttr returns a copy carrying an extra attribute on every record.
func (l *FlowMeshLogger) WithAttr(key string, value any) *FlowMeshLogger {
	nl := *l
	nl.extra = append(append([]slog.Attr{}, l.extra...), slog.Any(key, value))
	return &nl
}

func (l *FlowMeshLogger) scopeAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.extra)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	if l.nodeID != "" {
		attrs = append(attrs, slog.String("node_id", l.nodeID))
	}
	return append(attrs, l.extra...)
}

func (l *FlowMeshLogger) log(min LogLevel, level slog.Level, msg string, args []any) {
	if l.level > min {
		return
	}
	attrs := l.scopeAttrs()
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level with alternating key/value args.
func (l *FlowMeshLogger) Debug(msg string, args ...any) {
	l.log(LogLevelDebug, slog.LevelDebug, msg, args)
}

// Info logs at info level with alternating key/value args.
func (l *FlowMeshLogger) Info(msg string, args ...any) {
	l.log(LogLevelInfo, slog.LevelInfo, msg, args)
}

// Warn logs at warn level with alternating key/value args.
func (l *FlowMeshLogger) Warn(msg string, args ...any) {
	l.log(LogLevelWarn, slog.LevelWarn, msg, args)
}

// Error logs at error level with alternating key/value args.
func (l *FlowMeshLogger) Error(msg string, args ...any) {
	l.log(LogLevelError, slog.LevelError, msg, args)
}

// ErrorWithStack logs an error together with a stack snapshot of the calling
// goroutine.
func (l *FlowMeshLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	args = append(args,
		"error", err.Error(),
		"error_type", fmt.Sprintf("%T", err),
		"stack_trace", string(stack[:n]),
	)
	l.log(LogLevelError, slog.LevelError, msg, args)
}

// LogNodeExecution records the outcome of a single node invocation.
func (l *FlowMeshLogger) LogNodeExecution(nodeID string, dur time.Duration, err error) {
	args := []any{"node_id", nodeID, "duration", dur}
	if err != nil {
		l.log(LogLevelError, slog.LevelError, "node execution failed", append(args, "error", err.Error()))
		return
	}
	l.log(LogLevelInfo, slog.LevelInfo, "node execution completed", args)
}

// LogLLMCall records model call latency and token usage.
func (l *FlowMeshLogger) LogLLMCall(model string, tokens int, dur time.Duration, err error) {
	args := []any{"model", model, "token_count", tokens, "duration", dur}
	if err != nil {
		l.log(LogLevelError, slog.LevelError, "model call failed", append(args, "error", err.Error()))
		return
	}
	l.log(LogLevelInfo, slog.LevelInfo, "model call completed", args)
}

// LogRunExecution records aggregate metrics for a finished workflow run.
func (l *FlowMeshLogger) LogRunExecution(runID string, nodes int, dur time.Duration, err error) {
	args := []any{"run_id", runID, "node_count", nodes, "duration", dur}
	if err != nil {
		l.log(LogLevelError, slog.LevelError, "run failed", append(args, "error", err.Error()))
		return
	}
	l.log(LogLevelInfo, slog.LevelInfo, "run completed", args)
}

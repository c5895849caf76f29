// Package logging provides structured logging with trace/episode ID
// propagation for the memory engine, built on logrus.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through request and
// episode processing.
type ContextKey string

const (
	// TraceIDKey is the context key for a request/operation trace ID.
	TraceIDKey ContextKey = "trace_id"
	// EpisodeIDKey is the context key for the episode a call concerns.
	EpisodeIDKey ContextKey = "episode_id"
	// ComponentKey is the context key for the engine component name.
	ComponentKey ContextKey = "component"
)

// Logger wraps logrus.Logger with engine-specific field helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance for the named service/component.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT
// environment variables, defaulting to "info" and "json".
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a log entry carrying trace/episode/component
// values found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if episodeID := ctx.Value(EpisodeIDKey); episodeID != nil {
		entry = entry.WithField("episode_id", episodeID)
	}
	if component := ctx.Value(ComponentKey); component != nil {
		entry = entry.WithField("component", component)
	}

	return entry
}

// WithTraceID creates a log entry with an explicit trace ID.
func (l *Logger) WithTraceID(traceID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "trace_id": traceID})
}

// WithEpisodeID creates a log entry with an explicit episode ID.
func (l *Logger) WithEpisodeID(episodeID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "episode_id": episodeID})
}

// WithFields creates a log entry with custom fields plus the service name.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a log entry carrying the error message.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// SetOutput redirects logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// Context helpers

// NewTraceID generates a fresh trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID reads the trace ID from ctx, if any.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithEpisodeID attaches an episode ID to ctx.
func WithEpisodeID(ctx context.Context, episodeID string) context.Context {
	return context.WithValue(ctx, EpisodeIDKey, episodeID)
}

// GetEpisodeID reads the episode ID from ctx, if any.
func GetEpisodeID(ctx context.Context) string {
	if v, ok := ctx.Value(EpisodeIDKey).(string); ok {
		return v
	}
	return ""
}

// WithComponent attaches a component name to ctx.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ComponentKey, component)
}

// GetComponent reads the component name from ctx, if any.
func GetComponent(ctx context.Context) string {
	if v, ok := ctx.Value(ComponentKey).(string); ok {
		return v
	}
	return ""
}

// Structured logging helpers specific to engine operations.

// LogStorageQuery logs a primary-store query.
func (l *Logger) LogStorageQuery(ctx context.Context, query string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"query":       query,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("storage query failed")
	} else {
		entry.Debug("storage query executed")
	}
}

// LogCacheOp logs a cache-store read/write/invalidate.
func (l *Logger) LogCacheOp(ctx context.Context, op, key string, hit bool) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"operation": op,
		"key":       key,
		"hit":       hit,
	}).Debug("cache operation")
}

// LogCircuitStateChange logs a circuit breaker transition.
func (l *Logger) LogCircuitStateChange(ctx context.Context, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"from_state": from,
		"to_state":   to,
	}).Warn("circuit breaker state changed")
}

// LogLearningEvent logs a pattern/heuristic learning outcome.
func (l *Logger) LogLearningEvent(ctx context.Context, kind string, details map[string]interface{}) {
	fields := logrus.Fields{"kind": kind}
	for k, v := range details {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Info("learning event")
}

// LogRetrieval logs a retrieve_context call's shape and timing.
func (l *Logger) LogRetrieval(ctx context.Context, domain string, k, resultCount int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"domain":       domain,
		"k":            k,
		"result_count": resultCount,
		"duration_ms":  duration.Milliseconds(),
	}).Info("retrieval completed")
}

// LogAudit logs an audit-relevant state change.
func (l *Logger) LogAudit(ctx context.Context, action, resource, resourceID, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":      action,
		"resource":    resource,
		"resource_id": resourceID,
		"result":      result,
		"audit":       true,
	}).Info("audit log")
}

// Info/Warn/Error/Debug convenience wrappers.

func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Info(message)
}

func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Warn(message)
}

func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.WithFields(fields).Error(message)
}

func (l *Logger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	if l.Logger.Level >= logrus.DebugLevel {
		l.WithContext(ctx).WithFields(fields).Debug(message)
	}
}

// Global default logger, used by best-effort background components
// (pattern extractor, heuristic learner) that don't have a per-call
// logger threaded in.

var defaultLogger *Logger

// InitDefault initializes the package default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the default logger, creating a basic fallback if
// InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("unknown", "info", "json")
	}
	return defaultLogger
}

// FormatDuration renders a duration in fractional milliseconds.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}

// Package logging provides structured logging with trace/tenant/job propagation.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through request-scoped logging.
type ContextKey string

const (
	TraceIDKey  ContextKey = "trace_id"
	TenantKey   ContextKey = "tenant"
	CustomerKey ContextKey = "customer"
	JobIDKey    ContextKey = "job_id"
)

// Logger wraps logrus.Logger with compliance-platform field propagation.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component.
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv builds a logger from LOG_LEVEL/LOG_FORMAT, defaulting to info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext builds a logrus entry carrying trace/tenant/customer/job fields
// propagated via context, the way request handlers and background workers
// both enrich their log lines.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(TenantKey); v != nil {
		entry = entry.WithField("tenant", v)
	}
	if v := ctx.Value(CustomerKey); v != nil {
		entry = entry.WithField("customer", v)
	}
	if v := ctx.Value(JobIDKey); v != nil {
		entry = entry.WithField("job_id", v)
	}
	return entry
}

func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "error": err.Error()})
}

// NewTraceID generates a trace id for a new request/job.
func NewTraceID() string { return uuid.New().String() }

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

func WithCustomer(ctx context.Context, customer string) context.Context {
	return context.WithValue(ctx, CustomerKey, customer)
}

func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// LogJobTransition logs a Job/BatchResult state-machine transition.
func (l *Logger) LogJobTransition(ctx context.Context, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{"from": from, "to": to}).Info("job status transition")
}

// LogShardWrite logs a shard flush to the object store.
func (l *Logger) LogShardWrite(ctx context.Context, key string, parts int, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"key": key, "parts": parts, "duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("shard write failed")
		return
	}
	entry.Debug("shard written")
}

// LogUpstreamCall logs a call to an external collaborator (License Manager, git host, Engine).
func (l *Logger) LogUpstreamCall(ctx context.Context, target, operation string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"target": target, "operation": operation, "duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("upstream call failed")
		return
	}
	entry.Info("upstream call succeeded")
}

var defaultLogger *Logger

// InitDefault initializes the process-wide default logger.
func InitDefault(component, level, format string) { defaultLogger = New(component, level, format) }

// Default returns the process-wide logger, lazily constructing a fallback.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("rule-engine", "info", "json")
	}
	return defaultLogger
}

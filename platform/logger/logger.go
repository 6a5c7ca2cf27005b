// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// DeviceIDKey is the context key for the device shim identifier
	DeviceIDKey contextKey = "device_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and device_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if deviceID, ok := ctx.Value(DeviceIDKey).(string); ok && deviceID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("device_id", deviceID)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// CallPosted logs a successful call record submission.
func (l *Logger) CallPosted(callID, leadID, callType string, durationSeconds int) {
	l.Info("call_posted",
		slog.String("call_id", callID),
		slog.String("lead_id", leadID),
		slog.String("call_type", callType),
		slog.Int("duration_seconds", durationSeconds),
	)
}

// PollCycle logs the outcome of one auto-post polling cycle.
func (l *Logger) PollCycle(scanned, matched, enqueued int, watermarkMs int64) {
	l.Info("poll_cycle",
		slog.Int("scanned", scanned),
		slog.Int("matched", matched),
		slog.Int("enqueued", enqueued),
		slog.Int64("watermark_ms", watermarkMs),
	)
}

// RemoteLookup logs a lookup against the CRM backend.
func (l *Logger) RemoteLookup(endpoint, matchKey string, hit bool) {
	l.Debug("remote_lookup",
		slog.String("endpoint", endpoint),
		slog.String("match_key", matchKey),
		slog.Bool("cache_hit", hit),
	)
}

// CRMError logs errors from the CRM backend boundary.
func (l *Logger) CRMError(operation string, err error) {
	l.Error("crm_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}

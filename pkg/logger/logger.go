package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger instance
var Log = zap.NewNop()

// Config holds logger configuration
type Config struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// Init initializes the global logger with configuration
func Init(cfg *Config) error {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	if cfg.Output == "file" && cfg.FilePath != "" {
		zapConfig.OutputPaths = []string{cfg.FilePath}
		zapConfig.ErrorOutputPaths = []string{cfg.FilePath}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	l, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// InitDefault initializes logger from LOG_* environment variables
func InitDefault() {
	cfg := &Config{
		Level:    getEnv("LOG_LEVEL", "info"),
		Format:   getEnv("LOG_FORMAT", "json"),
		Output:   getEnv("LOG_OUTPUT", "stdout"),
		FilePath: getEnv("LOG_FILE_PATH", "/logs/app.log"),
	}
	if err := Init(cfg); err != nil {
		l, _ := zap.NewProduction()
		Set(l)
	}
}

// Set replaces the global logger. Tests use it to install an observer core.
func Set(l *zap.Logger) {
	Log = l
}

type contextKey string

const (
	requestIDKey     contextKey = "request_id"
	appointmentIDKey contextKey = "appointment_id"
)

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithAppointmentID tags every log line built from ctx with the appointment
func WithAppointmentID(ctx context.Context, appointmentID string) context.Context {
	return context.WithValue(ctx, appointmentIDKey, appointmentID)
}

// FromContext creates a logger with context fields
func FromContext(ctx context.Context) *zap.Logger {
	l := Log
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		l = l.With(zap.String("request_id", requestID))
	}
	if id, ok := ctx.Value(appointmentIDKey).(string); ok {
		l = l.With(zap.String("appointment_id", id))
	}
	return l
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Log.With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	return Log.Sync()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

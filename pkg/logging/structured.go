package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger with key/value helpers and tuning-specific
// events.
type Logger struct {
	zap *zap.Logger
}

// Config holds logging configuration
type Config struct {
	Level     string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format    string `yaml:"format" validate:"omitempty,oneof=json console"`
	Output    string `yaml:"output"` // "stdout", "stderr" or a file path
	AddCaller bool   `yaml:"add_caller"`
	AddStack  bool   `yaml:"add_stack"`
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// NewLogger creates a new structured logger
func NewLogger(config Config) (*Logger, error) {
	if config.Format == "" {
		config.Format = "console"
	}
	if config.Output == "" {
		config.Output = "stderr"
	}

	// Create zap logger
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = parseZapLevel(config.Level)
	zapConfig.Encoding = config.Format
	zapConfig.OutputPaths = []string{config.Output}
	zapConfig.ErrorOutputPaths = []string{config.Output}
	zapConfig.DisableCaller = !config.AddCaller
	zapConfig.DisableStacktrace = !config.AddStack
	if config.Format == "console" {
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return &Logger{zap: zapLogger}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// parseZapLevel parses zap level from string
func parseZapLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// WithRunID adds the tuning run ID to logger context
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{zap: l.zap.With(zap.String("run_id", runID))}
}

// WithFields adds fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zapFields = append(zapFields, zap.Any(key, value))
	}
	return &Logger{zap: l.zap.With(zapFields...)}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zap.Debug(msg, convertToZapFields(args)...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.zap.Info(msg, convertToZapFields(args)...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zap.Warn(msg, convertToZapFields(args)...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.zap.Error(msg, convertToZapFields(args)...)
}

// convertToZapFields converts key/value args to zap fields. A trailing
// key without a value is dropped.
func convertToZapFields(args []interface{}) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields = append(fields, zap.Any(key, args[i+1]))
		}
	}
	return fields
}

// LogSketches logs the outcome of initial sketch generation
func (l *Logger) LogSketches(workload, target string, requested, built int) {
	l.zap.Info("Initial sketches generated",
		zap.String("workload", workload),
		zap.String("target", target),
		zap.Int("requested", requested),
		zap.Int("built", built),
	)
}

// LogGeneration logs one completed evolutionary generation
func (l *Logger) LogGeneration(generation, population int, bestCost float64, duration time.Duration) {
	l.zap.Info("Generation completed",
		zap.Int("generation", generation),
		zap.Int("population", population),
		zap.Float64("best_cost", bestCost),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	)
}

// LogRunResult logs the summary of a tuning run
func (l *Logger) LogRunResult(runID string, evaluations int, bestCost float64, cacheHitRate float64, duration time.Duration) {
	l.zap.Info("Tuning run completed",
		zap.String("run_id", runID),
		zap.Int("evaluations", evaluations),
		zap.Float64("best_cost", bestCost),
		zap.Float64("cache_hit_rate", cacheHitRate),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	)
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// GetZap returns the zap logger
func (l *Logger) GetZap() *zap.Logger {
	return l.zap
}

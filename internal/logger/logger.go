package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)

	defaultServiceName = "ivf-estimator"
)

var (
	Logger       *slog.Logger
	sampleRate   atomic.Int32
	programLevel = new(slog.LevelVar)
	shutdownFunc func(context.Context) error // nil unless OTEL export is enabled
)

// Counters for the metrics endpoint (incremented regardless of sampling)
var (
	TotalErrors       atomic.Int64
	TotalWarnings     atomic.Int64
	Total5xxErrors    atomic.Int64
	Total4xxErrors    atomic.Int64
	Total400Errors    atomic.Int64
	Total404Errors    atomic.Int64
	Total422Errors    atomic.Int64
	SlowRequests      atomic.Int64
	Calculations      atomic.Int64
	UnmatchedFormulas atomic.Int64
)

// Options controls where and how much is logged
type Options struct {
	Level       string
	SampleRate  int // log 1 of every N warnings/errors; 1 logs all
	OTEL        bool
	ServiceName string
	Output      io.Writer // JSON output, stdout when nil
}

// OptionsFromEnv reads LOG_LEVEL, ERROR_SAMPLE_RATE, OTEL_ENABLED and OTEL_SERVICE_NAME
func OptionsFromEnv() Options {
	opts := Options{
		Level:       os.Getenv("LOG_LEVEL"),
		SampleRate:  1,
		OTEL:        strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true"),
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	}
	if rate, err := strconv.Atoi(os.Getenv("ERROR_SAMPLE_RATE")); err == nil && rate > 0 {
		opts.SampleRate = rate
	}
	return opts
}

func init() {
	// Usable before main configures it; Setup replaces this handler
	if err := Setup(context.Background(), OptionsFromEnv()); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed, using JSON: %v\n", err)
	}
}

// Setup installs the process logger. With OTEL enabled, records are exported over
// OTLP/gRPC; if the exporter cannot be created the JSON handler is used instead.
func Setup(ctx context.Context, opts Options) error {
	if shutdownErr := Shutdown(ctx); shutdownErr != nil {
		fmt.Fprintf(os.Stderr, "failed to flush previous OTEL logger: %v\n", shutdownErr)
	}

	level, err := ParseLevel(opts.Level)
	programLevel.Set(level)

	rate := opts.SampleRate
	if rate < 1 {
		rate = 1
	}
	sampleRate.Store(int32(rate))

	if !opts.OTEL {
		setupJSONLogging(opts.Output)
		return err
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	shutdown, otelErr := setupOTELLogging(ctx, serviceName)
	if otelErr != nil {
		setupJSONLogging(opts.Output)
		return fmt.Errorf("failed to setup OTEL logging: %w", otelErr)
	}
	shutdownFunc = shutdown
	return err
}

func setupJSONLogging(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	otelHandler := otelslog.NewHandler(
		serviceName,
		otelslog.WithLoggerProvider(loggerProvider),
	)

	Logger = slog.New(&levelHandler{level: programLevel, handler: otelHandler})
	slog.SetDefault(Logger)

	return loggerProvider.Shutdown, nil
}

// levelHandler applies programLevel to handlers that have no level option
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes and releases the OTEL exporter, if any
func Shutdown(ctx context.Context) error {
	if shutdownFunc == nil {
		return nil
	}
	shutdown := shutdownFunc
	shutdownFunc = nil
	return shutdown(ctx)
}

// SetLevel sets the minimum log level
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level. Empty means INFO.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Trace logs a trace-level message
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug-level message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn counts and logs a warning; output is sampled
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error counts and logs an error; output is sampled
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs and exits
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	_ = Shutdown(context.Background())
	os.Exit(1)
}

// ============================================================================
// Counters
// ============================================================================

// ErrorHttp5xx counts a 5xx response
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx counts a 4xx response
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	switch status {
	case 400:
		Total400Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	case 422:
		Total422Errors.Add(1)
	}
}

// WarnSlowRequest counts a request slower than the configured threshold
func WarnSlowRequest() {
	SlowRequests.Add(1)
	TotalWarnings.Add(1)
}

// WarnNoMatchingFormula counts and logs a calculation whose branch key had no row
func WarnNoMatchingFormula(branch string) {
	UnmatchedFormulas.Add(1)
	Warn("no matching formula", "branch", branch)
}

// CountCalculation counts a completed calculation
func CountCalculation() {
	Calculations.Add(1)
}

// Snapshot returns the current counter values keyed by metric name
func Snapshot() map[string]int64 {
	return map[string]int64{
		"errors_total":             TotalErrors.Load(),
		"warnings_total":           TotalWarnings.Load(),
		"http_5xx_total":           Total5xxErrors.Load(),
		"http_4xx_total":           Total4xxErrors.Load(),
		"http_400_total":           Total400Errors.Load(),
		"http_404_total":           Total404Errors.Load(),
		"http_422_total":           Total422Errors.Load(),
		"slow_requests_total":      SlowRequests.Load(),
		"calculations_total":       Calculations.Load(),
		"unmatched_formulas_total": UnmatchedFormulas.Load(),
	}
}

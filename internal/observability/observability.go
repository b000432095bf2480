// Package observability configures the process-wide slog logger.
//
// Plain text and JSON go to stderr. The otel formats route records through
// the OpenTelemetry log SDK, either to stdout or to an OTLP collector
// configured with the standard OTEL_EXPORTER_OTLP_* environment variables.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/florianilch/pavlok"

var (
	mu       sync.Mutex
	shutdown func(context.Context) error

	// stderr is swapped in tests.
	stderr io.Writer = os.Stderr
	stdout io.Writer = os.Stdout
)

// Instrument installs the default slog logger for the given level and format.
// Formats: text, json, otel, otlp-http, otlp-grpc.
func Instrument(level slog.Level, format string) error {
	mu.Lock()
	defer mu.Unlock()

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "", "text":
		handler = slog.NewTextHandler(stderr, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(stderr, handlerOpts)
	case "otel", "otlp-http", "otlp-grpc":
		exporter, err := newExporter(context.Background(), format)
		if err != nil {
			return fmt.Errorf("creating %s exporter: %w", format, err)
		}

		var processor sdklog.Processor
		if format == "otel" {
			processor = sdklog.NewSimpleProcessor(exporter)
		} else {
			processor = sdklog.NewBatchProcessor(exporter)
		}

		provider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(minsev.NewLogProcessor(processor, severity(level))),
		)
		global.SetLoggerProvider(provider)
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			// The slog default is bridged into the provider, so write directly
			fmt.Fprintf(stderr, "otel: %v\n", err)
		}))

		handler = otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
		setShutdown(provider.Shutdown)
	default:
		return fmt.Errorf("unsupported log format: %q", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Shutdown flushes and releases the log pipeline installed by Instrument.
// It is a no-op for the text and json formats.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fn := shutdown
	shutdown = nil
	mu.Unlock()

	if fn == nil {
		return nil
	}
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutting down log provider: %w", err)
	}
	return nil
}

// setShutdown replaces the pending shutdown. Callers hold mu.
func setShutdown(fn func(context.Context) error) {
	if prev := shutdown; prev != nil {
		_ = prev(context.Background())
	}
	shutdown = fn
}

func newExporter(ctx context.Context, format string) (sdklog.Exporter, error) {
	switch format {
	case "otlp-http":
		return otlploghttp.New(ctx)
	case "otlp-grpc":
		return otlploggrpc.New(ctx)
	default:
		return stdoutlog.New(stdoutlog.WithWriter(stdout))
	}
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// Package telemetry wires up the daemon's logger and OpenTelemetry SDK.
//
// Grounded on the teacher's ubiquitous *slog.Logger constructor-injection
// idiom (every handler, service, and client in the pack takes a
// *slog.Logger rather than reaching for a package-level global) and on the
// teacher's go.mod otel stack (otelslog bridges slog records into the otel
// log pipeline rather than replacing slog as the logging API).
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Options configures the logger/otel wiring.
type Options struct {
	ServiceName string
	Debug       bool
}

// Shutdown flushes and tears down the otel log pipeline. Callers should
// defer it from main.
type Shutdown func(ctx context.Context) error

// New builds the daemon's *slog.Logger. Records flow to both a
// human-readable stderr handler (debug) or JSON handler (production) and,
// via otelslog, into the otel log exporter pipeline.
func New(opts Options) (*slog.Logger, Shutdown, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var localHandler slog.Handler
	if opts.Debug {
		localHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		localHandler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	// No exporter is attached here: the pack carries the otel log SDK and
	// the otelslog bridge but no concrete OTLP/stdout exporter dependency,
	// so the provider runs with its default no-op processor set. Wiring a
	// real exporter is a deployment-time decision (which collector, which
	// protocol) outside what the retrieved stack can ground.
	provider := sdklog.NewLoggerProvider()

	otelHandler := otelslog.NewHandler(opts.ServiceName, otelslog.WithLoggerProvider(provider))

	logger := slog.New(fanoutHandler{handlers: []slog.Handler{localHandler, otelHandler}})

	shutdown := func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown logger provider: %w", err)
		}
		return nil
	}

	return logger, shutdown, nil
}

// fanoutHandler fans every record out to all of handlers, so the same
// logger call both prints locally and exports through otel. slog has no
// built-in multi-handler, so this is the minimal adapter satisfying
// slog.Handler.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}

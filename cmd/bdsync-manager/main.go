package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type consoleHandler struct {
	level slog.Leveler
	attrs []slog.Attr
}

// Enabled determines whether the consoleHandler should log messages at the given level.
func (h *consoleHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

// Handle processes a log record using the consoleHandler.
func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	fmt.Printf("[%s] %s", r.Level, r.Message)
	for _, a := range h.attrs {
		fmt.Printf(" %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Printf(" %s=%v", a.Key, a.Value)
		return true
	})
	fmt.Println()
	return nil
}

// WithAttrs returns a new handler carrying the given attributes.
func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &consoleHandler{level: h.level, attrs: merged}
}

// WithGroup returns a new handler with the given group name.
func (h *consoleHandler) WithGroup(_ string) slog.Handler { return h }

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseFlags() (slog.Level, string, []string) {
	var levelName, configPath string
	flag.StringVar(&levelName, "log-level", "warning", "Output verbosity (debug, info, warning, error)")
	flag.StringVar(&configPath, "config", "/etc/bdsync-manager.conf", "Location of the config file")
	flag.Parse()
	level, ok := logLevels[levelName]
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid log level: %s\n", levelName)
		flag.Usage()
		os.Exit(2)
	}
	return level, configPath, flag.Args()
}

// main is the entry point for the bdsync-manager CLI tool.
func main() {
	level, configPath, selectors := parseFlags()
	logger := slog.New(&consoleHandler{level: level})

	// catch ctrl-c
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, configPath, selectors); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Cancelled task run")
			return
		}
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

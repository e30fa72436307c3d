// workflow.go contains CLI-specific orchestration: config loading, task
// selection and wiring of the optional report and history sinks.
package main

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ralic/gnu-bdsync-manager/backup"
)

// run loads the configuration, resolves the task selection and drives the
// task runner. Per-task failures stay inside the runner; only startup
// problems and cancellation surface here.
func run(ctx context.Context, logger *slog.Logger, configPath string, selectors []string) error {
	logger.Debug("Reading config file", "path", configPath)
	cfg, err := backup.LoadConfig(configPath)
	if err != nil {
		return err
	}
	tasks := cfg.SelectTasks(logger, selectors)
	if len(tasks) == 0 {
		logger.Warn("There is nothing to be done (no tasks found in config file)")
		return nil
	}

	runner := &backup.Runner{
		Log:        logger,
		LVM:        backup.NewLVM(logger),
		ReportPath: cfg.GlobalString("report_path"),
		RunID:      uuid.NewString(),
	}
	if path := cfg.GlobalString("history_db"); path != "" {
		history, err := backup.OpenHistory(ctx, path)
		if err != nil {
			return err
		}
		defer history.Close()
		runner.History = history
	}
	return runner.RunTasks(ctx, cfg, tasks)
}

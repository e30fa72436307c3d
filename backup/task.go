// task.go sequences the configured tasks: settings, optional guest pause and
// snapshot, patch pipeline, teardown and outcome recording. A failing task
// never stops its siblings.

package backup

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// TaskOutcome is the recorded result of one task attempt.
type TaskOutcome struct {
	RunID      string
	Task       string
	Mode       string
	Source     string
	Target     string
	Status     string
	Error      string
	Result     *TransferResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Task outcome states.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Runner drives the configured tasks one at a time.
type Runner struct {
	Log        *slog.Logger
	LVM        *LVM
	History    *History
	ReportPath string
	RunID      string
}

// RunTasks processes the named tasks sequentially, each to completion
// including teardown before the next begins. Task failures are logged and
// recorded without stopping the remaining tasks; only context cancellation
// ends the run early.
func (r *Runner) RunTasks(ctx context.Context, cfg *Config, names []string) error {
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := r.Log.With("task", name)
		outcome := r.processTask(ctx, cfg, name, log)
		r.record(ctx, outcome, log)
		if outcome.Error != "" {
			log.Error(outcome.Error)
		}
	}
	return ctx.Err()
}

// processTask runs one task from settings to pipeline and reduces whatever
// happened to an outcome. Settings and processing failures are both
// task-scoped here.
func (r *Runner) processTask(ctx context.Context, cfg *Config, name string, log *slog.Logger) *TaskOutcome {
	outcome := &TaskOutcome{RunID: r.RunID, Task: name, StartedAt: time.Now()}
	defer func() { outcome.FinishedAt = time.Now() }()

	settings, err := LoadSettings(cfg, name)
	if err != nil {
		outcome.Status = StatusError
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Source = settings.SourcePath
	outcome.Target = settings.TargetPath
	outcome.Mode = "local"
	if settings.Remote() {
		outcome.Mode = "remote"
	}
	if settings.Disabled {
		log.Info("Skipping disabled task")
		outcome.Status = StatusSkipped
		return outcome
	}
	if err := settings.Validate(ctx, r.LVM); err != nil {
		outcome.Status = StatusError
		outcome.Error = err.Error()
		return outcome
	}
	result, err := r.runTask(ctx, settings, log)
	outcome.Result = result
	if err != nil {
		outcome.Status = StatusError
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = StatusOK
	return outcome
}

// runTask runs the pipeline for validated settings, substituting the snapshot
// device as the effective source when snapshotting is requested. The snapshot
// is released on every exit path; a release failure becomes the task error
// only when the task would otherwise have succeeded.
func (r *Runner) runTask(ctx context.Context, settings *TaskSettings, log *slog.Logger) (result *TransferResult, err error) {
	source := settings.SourcePath
	if settings.Snapshot != nil {
		snapshotPath, guard, snapErr := r.snapshotSource(ctx, settings, log)
		if snapErr != nil {
			return nil, snapErr
		}
		source = snapshotPath
		defer func() {
			if removeErr := guard.Release(ctx); removeErr != nil {
				log.Error("Snapshot removal failed", "error", removeErr)
				if err == nil {
					err = removeErr
				}
			}
		}()
	}
	return RunPipeline(ctx, source, settings, NewTransport(settings, log), log)
}

// snapshotSource creates the task's LVM snapshot, pausing the guest through
// QMP for the duration of the creation when a socket is configured. The
// guest is resumed before this returns, on success and on failure alike.
func (r *Runner) snapshotSource(ctx context.Context, settings *TaskSettings, log *slog.Logger) (string, *SnapshotGuard, error) {
	var pause *GuestPause
	if settings.QMPSocket != "" {
		p, err := PauseGuest(settings.QMPSocket, log)
		if err != nil {
			return "", nil, err
		}
		pause = p
	}
	path, guard, err := r.LVM.Snapshot(ctx, settings.SourcePath, settings.Snapshot)
	resumeErr := pause.Resume()
	if resumeErr != nil {
		log.Error("Guest resume failed", "error", resumeErr)
	}
	if err != nil {
		return "", nil, err
	}
	if resumeErr != nil {
		// A guest left paused must not pass as success.
		if removeErr := guard.Release(ctx); removeErr != nil {
			log.Error("Snapshot removal failed", "error", removeErr)
		}
		return "", nil, resumeErr
	}
	return path, guard, nil
}

// record writes the task outcome to the report file and the history ledger
// when either is configured. Recording failures are warnings, never task
// errors.
func (r *Runner) record(ctx context.Context, outcome *TaskOutcome, log *slog.Logger) {
	doc := BuildTaskReportJSON(outcome)
	if r.ReportPath != "" {
		if err := appendReportLine(r.ReportPath, doc); err != nil {
			log.Warn("Report write failed", "error", err)
		}
	}
	if r.History != nil {
		if err := r.History.Record(context.WithoutCancel(ctx), outcome); err != nil {
			log.Warn("History write failed", "error", err)
		}
	}
}

func appendReportLine(path, doc string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(doc + "\n")
	return err
}

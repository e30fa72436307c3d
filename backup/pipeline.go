// pipeline.go runs the patch lifecycle for one task: create the binary patch
// into a staged temp file, measure it, apply it on the target side and remove
// the staging file on every exit path.

package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// TransferResult reports what the pipeline moved. It feeds logging and the
// run report and carries no correctness obligation.
type TransferResult struct {
	PatchBytes int64
	CreateTime time.Duration
	ApplyTime  time.Duration
}

// RunPipeline drives the create, transfer, measure, apply and cleanup
// sequence for one task against the effective source device. The staged
// patch file is removed on every exit path; a removal failure is logged,
// never escalated.
func RunPipeline(ctx context.Context, source string, settings *TaskSettings, transport Transport, log *slog.Logger) (*TransferResult, error) {
	log.Info("Creating binary patch")
	patchFile, err := transport.StageTempFile(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if removeErr := transport.RemoveTempFile(context.WithoutCancel(ctx), patchFile); removeErr != nil {
			log.Error("Patch file removal failed", "error", removeErr)
		}
	}()

	result := &TransferResult{}
	createStart := time.Now()
	if err := createPatch(ctx, source, settings, transport, patchFile, log); err != nil {
		return nil, err
	}
	result.CreateTime = time.Since(createStart)
	log.Debug("bdsync created and transferred a binary patch")
	log.Info("Patch create time", "elapsed", result.CreateTime)

	result.PatchBytes, err = transport.PatchSize(ctx, patchFile)
	if err != nil {
		return nil, err
	}
	log.Info("Patch size", "size", FormatSize(result.PatchBytes))

	applyStart := time.Now()
	if err := transport.ApplyPatch(ctx, patchFile); err != nil {
		return nil, err
	}
	result.ApplyTime = time.Since(applyStart)
	log.Debug("Successfully applied the patch")
	log.Info("Patch apply time", "elapsed", result.ApplyTime)
	return result, nil
}

// createPatch starts the local bdsync process in create mode and streams its
// stdout into the transport sink. The stream is an inherited file descriptor
// on both ends, so backpressure between bdsync and the sink stays in the
// kernel's pipe buffer.
func createPatch(ctx context.Context, source string, settings *TaskSettings, transport Transport, patchFile string, log *slog.Logger) error {
	argv := append([]string{}, settings.BdsyncArgs...)
	argv = append(argv, transport.ServerCommand(), source, settings.TargetPath)
	cmd := exec.CommandContext(ctx, settings.LocalBdsyncBin, argv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	sink, err := transport.OpenSink(ctx, patchFile)
	if err != nil {
		return err
	}
	cmd.Stdout = sink.Writer()
	log.Debug("Starting local bdsync process", "argv", cmd.Args)
	if err := cmd.Start(); err != nil {
		sink.Finish()
		return processErr("starting bdsync", commandError(cmd, err, stderr.Bytes()))
	}
	sink.CloseWriter()
	createErr := cmd.Wait()
	finishErr := sink.Finish()
	if createErr != nil {
		cause := commandError(cmd, createErr, stderr.Bytes())
		if finishErr != nil {
			// A dead receiver is often what killed the producer.
			cause = fmt.Errorf("%w; patch receiver: %v", cause, finishErr)
		}
		return processErr("creating patch", cause)
	}
	if finishErr != nil {
		return processErr("transferring patch", finishErr)
	}
	return nil
}

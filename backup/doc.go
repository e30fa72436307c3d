// Package backup orchestrates differential block-device backup tasks around
// an external bdsync-class differencing tool. For each configured task it
// optionally snapshots the source device through LVM, produces a binary patch
// against the previously synchronized target, transfers and applies the patch
// either locally or through a configurable connection command, and removes
// every transient resource on success and failure alike.
//
// The package never touches patch bytes itself. Block diffing, snapshot
// mechanics and remote transport belong to the external programs it invokes;
// the package contributes settings validation, the two-mode transfer
// protocol, timing and size reporting, and the resource-safety guarantees
// wrapping it all.
//
// Key pieces:
//
//   - Per-task settings loading and validation with DEFAULT-section fallbacks
//   - LVM snapshot lifecycle with a scoped removal guard
//   - Optional QMP guest pause while the snapshot is taken
//   - Local and remote patch transports with centralized shell escaping
//   - The create/transfer/measure/apply/cleanup pipeline
//   - Task outcome reporting to a JSON report file and a SQLite history
//
// Example usage:
//
//	cfg, err := backup.LoadConfig("/etc/bdsync-manager.conf")
//	runner := &backup.Runner{Log: logger, LVM: backup.NewLVM(logger), RunID: id}
//	err = runner.RunTasks(ctx, cfg, cfg.SelectTasks(logger, nil))
//
// For CLI orchestration, see cmd/bdsync-manager.
package backup

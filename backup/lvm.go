// lvm.go wraps the LVM command line tools used for the snapshot lifecycle:
// volume group discovery, snapshot creation and snapshot removal.

package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"
)

// LVM invokes the system volume manager tools. The binary paths can be
// overridden, which the tests use to substitute recording stand-ins.
type LVM struct {
	log         *slog.Logger
	lvsBin      string
	lvcreateBin string
	lvremoveBin string
}

// NewLVM returns an LVM manager resolving the standard tool names via $PATH.
func NewLVM(log *slog.Logger) *LVM {
	return &LVM{
		log:         log,
		lvsBin:      "lvs",
		lvcreateBin: "lvcreate",
		lvremoveBin: "lvremove",
	}
}

// DiscoverVolumeGroup returns the name of the volume group owning the given
// logical volume device.
func (l *LVM) DiscoverVolumeGroup(ctx context.Context, device string) (string, error) {
	cmd := exec.CommandContext(ctx, l.lvsBin,
		"--noheadings", "--options", "vg_name", "--reportformat", "json", device)
	raw, err := runCommandOutput(l.log, cmd)
	if err != nil {
		return "", err
	}
	vg := strings.TrimSpace(gjson.GetBytes(raw, "report.0.lv.0.vg_name").String())
	if vg == "" {
		return "", fmt.Errorf("lvs reported no volume group for %s", device)
	}
	return vg, nil
}

// CreateSnapshot creates a snapshot of the source device and returns the
// snapshot's device path.
func (l *LVM) CreateSnapshot(ctx context.Context, source string, spec *SnapshotSpec) (string, error) {
	l.log.Info("Creating LVM snapshot", "snapshot", spec.VolumeGroup+"/"+spec.Name)
	cmd := exec.CommandContext(ctx, l.lvcreateBin,
		"--snapshot", "--name", spec.Name, "--size", spec.Size, source)
	if err := runCommand(l.log, cmd); err != nil {
		return "", processErr("creating LVM snapshot", err)
	}
	return "/dev/" + spec.VolumeGroup + "/" + spec.Name, nil
}

// RemoveSnapshot removes a previously created snapshot.
func (l *LVM) RemoveSnapshot(ctx context.Context, vg, name string) error {
	l.log.Info("Removing LVM snapshot", "snapshot", vg+"/"+name)
	cmd := exec.CommandContext(ctx, l.lvremoveBin, "--force", vg+"/"+name)
	if err := runCommand(l.log, cmd); err != nil {
		return processErr("removing LVM snapshot", err)
	}
	return nil
}

// Snapshot creates the snapshot described by spec and arms a guard for its
// removal.
func (l *LVM) Snapshot(ctx context.Context, source string, spec *SnapshotSpec) (string, *SnapshotGuard, error) {
	path, err := l.CreateSnapshot(ctx, source, spec)
	if err != nil {
		return "", nil, err
	}
	return path, &SnapshotGuard{lvm: l, spec: spec}, nil
}

// SnapshotGuard removes a snapshot exactly once, on whichever path the task
// leaves through.
type SnapshotGuard struct {
	lvm      *LVM
	spec     *SnapshotSpec
	released bool
}

// Release removes the guarded snapshot. Calls after the first are no-ops, and
// a nil guard is safe to release. The removal command runs on a context that
// survives cancellation of the task itself.
func (g *SnapshotGuard) Release(ctx context.Context) error {
	if g == nil || g.released {
		return nil
	}
	g.released = true
	return g.lvm.RemoveSnapshot(context.WithoutCancel(ctx), g.spec.VolumeGroup, g.spec.Name)
}

// settings.go turns one task's raw configuration into a validated settings
// record. Loading fails on the first missing mandatory option; validation
// checks the local system and discovers the snapshot's volume group.

package backup

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"github.com/kballard/go-shellquote"
)

// DefaultSnapshotName is used when a task enables snapshotting without
// choosing a snapshot name.
const DefaultSnapshotName = "bdsync-snapshot"

var snapshotSizePattern = regexp.MustCompile(`^[0-9]+[bBsSkKmMgGtTpPeE]?$`)

// SnapshotSpec describes the LVM snapshot requested by a task. VolumeGroup is
// discovered during validation, never configured.
type SnapshotSpec struct {
	VolumeGroup string
	Size        string
	Name        string
}

// TaskSettings is the configuration of a single backup task. An empty
// ConnectionCommand selects local mode; Snapshot is nil unless the task
// requested snapshotting.
type TaskSettings struct {
	Name              string
	LocalBdsyncBin    string
	RemoteBdsyncBin   string
	BdsyncArgs        []string
	SourcePath        string
	TargetPath        string
	Disabled          bool
	ConnectionCommand []string
	TargetPatchDir    string
	QMPSocket         string
	Snapshot          *SnapshotSpec
}

// Remote reports whether the task transfers its patch through a connection
// command instead of the local filesystem.
func (s *TaskSettings) Remote() bool { return len(s.ConnectionCommand) > 0 }

// LoadSettings reads the named task section into a TaskSettings record,
// failing with a SettingsError that names the first missing mandatory option.
// A disabled task is returned right away with only Name and Disabled set, so
// an incomplete section can be parked without erroring.
func LoadSettings(cfg *Config, name string) (*TaskSettings, error) {
	settings := &TaskSettings{Name: name}
	disabled, err := cfg.taskBool(name, "disabled", false)
	if err != nil {
		return nil, err
	}
	settings.Disabled = disabled
	if disabled {
		return settings, nil
	}

	for _, opt := range []struct {
		key  string
		dest *string
	}{
		{"local_bdsync_bin", &settings.LocalBdsyncBin},
		{"remote_bdsync_bin", &settings.RemoteBdsyncBin},
		{"source_path", &settings.SourcePath},
		{"target_path", &settings.TargetPath},
	} {
		value := cfg.taskValue(name, opt.key)
		if value == "" {
			return nil, settingsErrorf("missing a mandatory task option: %s", opt.key)
		}
		*opt.dest = value
	}

	settings.BdsyncArgs, err = shellquote.Split(cfg.taskValue(name, "bdsync_args"))
	if err != nil {
		return nil, settingsErrorf("malformed bdsync_args: %s", err)
	}
	if raw := cfg.taskValue(name, "connection_command"); raw != "" {
		settings.ConnectionCommand, err = shellquote.Split(raw)
		if err != nil {
			return nil, settingsErrorf("malformed connection_command: %s", err)
		}
	}
	settings.TargetPatchDir = cfg.taskValue(name, "target_patch_dir")
	settings.QMPSocket = cfg.taskValue(name, "qmp_socket")

	snapshotEnabled, err := cfg.taskBool(name, "lvm_snapshot_enabled", false)
	if err != nil {
		return nil, err
	}
	if snapshotEnabled {
		size := cfg.taskValue(name, "lvm_snapshot_size")
		if size == "" {
			return nil, settingsErrorf("missing a mandatory task option: lvm_snapshot_size")
		}
		snapshotName := cfg.taskValue(name, "lvm_snapshot_name")
		if snapshotName == "" {
			snapshotName = DefaultSnapshotName
		}
		settings.Snapshot = &SnapshotSpec{Size: size, Name: snapshotName}
	}
	return settings, nil
}

// Validate checks the settings against the local system: the local bdsync
// binary, the source device, the snapshot request and, for local mode, the
// target and patch directories. The volume group owning the source device is
// discovered here and stored on the snapshot spec.
func (s *TaskSettings) Validate(ctx context.Context, lvm *LVM) error {
	if info, err := os.Stat(s.LocalBdsyncBin); err != nil || !info.Mode().IsRegular() {
		return settingsErrorf("the local bdsync binary was not found (%s)", s.LocalBdsyncBin)
	}
	if _, err := os.Stat(s.SourcePath); err != nil {
		return settingsErrorf("the source device (source_path=%s) does not exist", s.SourcePath)
	}
	if s.Snapshot != nil {
		if !snapshotSizePattern.MatchString(s.Snapshot.Size) {
			return settingsErrorf("invalid LVM snapshot size (%s)", s.Snapshot.Size)
		}
		vg, err := lvm.DiscoverVolumeGroup(ctx, s.SourcePath)
		if err != nil {
			return settingsErrorf("failed to discover the volume group of %s: %s", s.SourcePath, err)
		}
		s.Snapshot.VolumeGroup = vg
	}
	if s.QMPSocket != "" && s.Snapshot == nil {
		return settingsErrorf("qmp_socket is only useful together with lvm_snapshot_enabled")
	}
	if !s.Remote() {
		if _, err := os.Stat(filepath.Dir(s.TargetPath)); err != nil {
			return settingsErrorf("the directory of the local target (target_path=%s) does not exist", s.TargetPath)
		}
		if s.TargetPatchDir == "" {
			return settingsErrorf("missing a mandatory task option: target_patch_dir")
		}
		if info, err := os.Stat(s.TargetPatchDir); err != nil || !info.IsDir() {
			return settingsErrorf("the patch directory of the local target (target_patch_dir=%s) does not exist", s.TargetPatchDir)
		}
	}
	return nil
}

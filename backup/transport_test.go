package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
)

// fakeConnection returns a connection command that executes the remote
// script locally, the way ssh would hand it to the remote shell.
func fakeConnection(t *testing.T, dir string) []string {
	t.Helper()
	return []string{writeScript(t, dir, "fakessh", `exec /bin/sh -c "$1"`)}
}

func TestLocalServerCommand(t *testing.T) {
	settings := &TaskSettings{RemoteBdsyncBin: "/usr/bin/bdsync"}
	tr := NewTransport(settings, discardLogger())
	if got := tr.ServerCommand(); got != "/usr/bin/bdsync --server" {
		t.Errorf("ServerCommand() = %q", got)
	}
}

func TestServerCommandQuotesSpaces(t *testing.T) {
	settings := &TaskSettings{RemoteBdsyncBin: "/opt/my tools/bdsync"}
	tr := NewTransport(settings, discardLogger())
	words, err := shellquote.Split(tr.ServerCommand())
	if err != nil {
		t.Fatalf("server command does not parse: %v", err)
	}
	if want := []string{"/opt/my tools/bdsync", "--server"}; !slices.Equal(words, want) {
		t.Errorf("server command tokens = %v, want %v", words, want)
	}
}

func TestRemoteServerCommand(t *testing.T) {
	settings := &TaskSettings{
		RemoteBdsyncBin:   "/usr/bin/bdsync",
		ConnectionCommand: []string{"ssh", "-p", "2200", "foo@target"},
	}
	tr := NewTransport(settings, discardLogger())
	if got := tr.ServerCommand(); got != "ssh -p 2200 foo@target /usr/bin/bdsync --server" {
		t.Errorf("ServerCommand() = %q", got)
	}
}

func TestLocalStageTempFile(t *testing.T) {
	dir := t.TempDir()
	patchDir := filepath.Join(dir, "patches")
	mustMkdir(t, patchDir)
	settings := &TaskSettings{TargetPath: "backup/disk.img", TargetPatchDir: patchDir}
	tr := NewTransport(settings, discardLogger())

	path, err := tr.StageTempFile(context.Background())
	if err != nil {
		t.Fatalf("StageTempFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if filepath.Dir(path) != patchDir {
		t.Errorf("staged file %q not in the patch directory", path)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "disk.img-") || !strings.HasSuffix(name, ".bdsync") {
		t.Errorf("staged file name %q not derived from the target", name)
	}
}

func TestLocalSinkAndPatchLifecycle(t *testing.T) {
	dir := t.TempDir()
	patchDir := filepath.Join(dir, "patches")
	mustMkdir(t, patchDir)
	settings := &TaskSettings{TargetPath: "backup/disk.img", TargetPatchDir: patchDir}
	tr := NewTransport(settings, discardLogger())
	ctx := context.Background()

	path, err := tr.StageTempFile(ctx)
	if err != nil {
		t.Fatalf("StageTempFile failed: %v", err)
	}
	sink, err := tr.OpenSink(ctx, path)
	if err != nil {
		t.Fatalf("OpenSink failed: %v", err)
	}
	if _, err := io.WriteString(sink.Writer(), "PATCH"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := sink.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	size, err := tr.PatchSize(ctx, path)
	if err != nil {
		t.Fatalf("PatchSize failed: %v", err)
	}
	if size != int64(len("PATCH")) {
		t.Errorf("size = %d, want %d", size, len("PATCH"))
	}
	if err := tr.RemoveTempFile(ctx, path); err != nil {
		t.Fatalf("RemoveTempFile failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("staged file still present after removal")
	}
}

func TestLocalApplyPatchFeedsStagedFile(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "apply-args")
	captureFile := filepath.Join(dir, "apply-input")
	bdsync := writeScript(t, dir, "bdsync",
		`printf '%s\n' "$*" > "`+argsFile+`"
cat > "`+captureFile+`"`)

	staged := filepath.Join(dir, "staged.bdsync")
	mustWriteFile(t, staged, "DELTA-BYTES")

	settings := &TaskSettings{
		LocalBdsyncBin: bdsync,
		BdsyncArgs:     []string{"--hash=sha1"},
	}
	tr := NewTransport(settings, discardLogger())
	if err := tr.ApplyPatch(context.Background(), staged); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	args, _ := os.ReadFile(argsFile)
	if want := "--hash=sha1 --patch"; strings.TrimSpace(string(args)) != want {
		t.Errorf("apply args = %q, want %q", strings.TrimSpace(string(args)), want)
	}
	capture, _ := os.ReadFile(captureFile)
	if string(capture) != "DELTA-BYTES" {
		t.Errorf("apply input = %q, want the staged patch", capture)
	}
}

func TestRemoteStageTempFile(t *testing.T) {
	dir := t.TempDir()
	patchDir := filepath.Join(dir, "patch dir")
	mustMkdir(t, patchDir)
	settings := &TaskSettings{
		TargetPath:        "backup/my backup.img",
		TargetPatchDir:    patchDir,
		ConnectionCommand: fakeConnection(t, dir),
	}
	tr := NewTransport(settings, discardLogger())

	path, err := tr.StageTempFile(context.Background())
	if err != nil {
		t.Fatalf("StageTempFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("remote mktemp did not create %q: %v", path, err)
	}
	if filepath.Dir(path) != patchDir {
		t.Errorf("staged file %q not in the patch directory", path)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "my backup.img-") || !strings.HasSuffix(name, ".bdsync") {
		t.Errorf("staged file name %q not derived from the target", name)
	}
}

func TestRemoteStageTempFileWithoutPatchDir(t *testing.T) {
	dir := t.TempDir()
	// The stub echoes the remote script instead of running it, exposing
	// the composed command line.
	echo := writeScript(t, dir, "echoarg", `printf '%s\n' "$1"`)
	settings := &TaskSettings{
		TargetPath:        "backup/disk.img",
		ConnectionCommand: []string{echo},
	}
	tr := NewTransport(settings, discardLogger())

	script, err := tr.StageTempFile(context.Background())
	if err != nil {
		t.Fatalf("StageTempFile failed: %v", err)
	}
	if script != "mktemp disk.img-XXXX.bdsync" {
		t.Errorf("remote script = %q", script)
	}
}

func TestRemoteTransferProtocol(t *testing.T) {
	dir := t.TempDir()
	patchDir := filepath.Join(dir, "patch dir")
	mustMkdir(t, patchDir)

	remoteTools := filepath.Join(dir, "remote tools")
	mustMkdir(t, remoteTools)
	argsFile := filepath.Join(dir, "apply-args")
	captureFile := filepath.Join(dir, "apply-input")
	remoteBdsync := writeScript(t, remoteTools, "bdsync",
		`printf '%s\n' "$*" > "`+argsFile+`"
cat > "`+captureFile+`"`)

	settings := &TaskSettings{
		RemoteBdsyncBin:   remoteBdsync,
		BdsyncArgs:        []string{"--hash=sha1"},
		TargetPath:        "backup/my backup.img",
		TargetPatchDir:    patchDir,
		ConnectionCommand: fakeConnection(t, dir),
	}
	tr := NewTransport(settings, discardLogger())
	ctx := context.Background()

	staged, err := tr.StageTempFile(ctx)
	if err != nil {
		t.Fatalf("StageTempFile failed: %v", err)
	}
	sink, err := tr.OpenSink(ctx, staged)
	if err != nil {
		t.Fatalf("OpenSink failed: %v", err)
	}
	payload := "BINARY-PATCH-PAYLOAD"
	if _, err := io.WriteString(sink.Writer(), payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := sink.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	content, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("staged file unreadable: %v", err)
	}
	if string(content) != payload {
		t.Errorf("staged content = %q, want %q", content, payload)
	}

	size, err := tr.PatchSize(ctx, staged)
	if err != nil {
		t.Fatalf("PatchSize failed: %v", err)
	}
	if size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", size, len(payload))
	}

	if err := tr.ApplyPatch(ctx, staged); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	args, _ := os.ReadFile(argsFile)
	if want := "--hash=sha1 --patch"; strings.TrimSpace(string(args)) != want {
		t.Errorf("apply args = %q, want %q", strings.TrimSpace(string(args)), want)
	}
	capture, _ := os.ReadFile(captureFile)
	if string(capture) != payload {
		t.Errorf("apply input = %q, want the staged patch", capture)
	}

	if err := tr.RemoveTempFile(ctx, staged); err != nil {
		t.Fatalf("RemoveTempFile failed: %v", err)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Error("staged file still present after removal")
	}
}

func TestRemotePatchSizeRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	echo := writeScript(t, dir, "echoarg", `echo "not a number"`)
	settings := &TaskSettings{
		TargetPath:        "backup/disk.img",
		ConnectionCommand: []string{echo},
	}
	tr := NewTransport(settings, discardLogger())
	if _, err := tr.PatchSize(context.Background(), "/tmp/x.bdsync"); err == nil {
		t.Error("expected an error for unparseable stat output")
	}
}

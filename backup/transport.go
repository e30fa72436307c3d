// transport.go moves the patch file between this host and the target side of
// a task. The local variant writes into the target filesystem directly; the
// remote variant wraps every operation in the task's connection command, with
// all shell escaping done in one place.

package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Transport is the patch movement side of a task, selected once per task by
// the presence of a connection command.
type Transport interface {
	// ServerCommand returns the bdsync server invocation handed to the
	// local bdsync process as its counterpart endpoint.
	ServerCommand() string
	// StageTempFile creates the unique staging file for the patch and
	// returns its path on the target side.
	StageTempFile(ctx context.Context) (string, error)
	// OpenSink returns the consumer for the patch byte stream that the
	// create step writes into the staging file.
	OpenSink(ctx context.Context, path string) (*Sink, error)
	// PatchSize reports the size of the staged patch in bytes.
	PatchSize(ctx context.Context, path string) (int64, error)
	// ApplyPatch feeds the staged patch to bdsync in patch mode on the
	// target side.
	ApplyPatch(ctx context.Context, path string) error
	// RemoveTempFile deletes the staging file.
	RemoveTempFile(ctx context.Context, path string) error
}

// NewTransport selects the transport variant for the task: remote when a
// connection command is configured, local otherwise.
func NewTransport(settings *TaskSettings, log *slog.Logger) Transport {
	if settings.Remote() {
		return &remoteTransport{
			settings: settings,
			shell:    remoteShell{connection: settings.ConnectionCommand},
			log:      log,
		}
	}
	return &localTransport{settings: settings, log: log}
}

// Sink consumes the patch byte stream produced by the create step. The
// producer process writes into Writer; once the producer has exited, Finish
// closes the stream and waits for the receiving process, if any, to drain it.
type Sink struct {
	writer *os.File
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	closed bool
}

// Writer returns the file descriptor the producer writes the patch into.
func (s *Sink) Writer() *os.File { return s.writer }

// CloseWriter releases this process's handle on the producer side of the
// stream so the receiver observes end-of-file once the producer exits. Safe
// to call more than once.
func (s *Sink) CloseWriter() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}

// Finish completes the transfer: the writer is closed and the receiving
// process, when present, is waited for.
func (s *Sink) Finish() error {
	s.CloseWriter()
	if s.cmd == nil {
		return nil
	}
	if err := s.cmd.Wait(); err != nil {
		return commandError(s.cmd, err, s.stderr.Bytes())
	}
	return nil
}

// localTransport stages and applies the patch on the local filesystem.
type localTransport struct {
	settings *TaskSettings
	log      *slog.Logger
}

func (t *localTransport) ServerCommand() string {
	return shellquote.Join(t.settings.RemoteBdsyncBin, "--server")
}

func (t *localTransport) StageTempFile(_ context.Context) (string, error) {
	base := filepath.Base(t.settings.TargetPath)
	f, err := os.CreateTemp(t.settings.TargetPatchDir, base+"-*.bdsync")
	if err != nil {
		return "", processErr("creating local patch file", err)
	}
	path := f.Name()
	f.Close()
	t.log.Debug("Using local temporary patch file", "path", path)
	return path, nil
}

func (t *localTransport) OpenSink(_ context.Context, path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, processErr("opening local patch file", err)
	}
	return &Sink{writer: f}, nil
}

func (t *localTransport) PatchSize(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, processErr("reading local patch size", err)
	}
	return info.Size(), nil
}

func (t *localTransport) ApplyPatch(ctx context.Context, path string) error {
	patch, err := os.Open(path)
	if err != nil {
		return processErr("opening local patch file", err)
	}
	defer patch.Close()
	argv := append([]string{}, t.settings.BdsyncArgs...)
	argv = append(argv, "--patch")
	cmd := exec.CommandContext(ctx, t.settings.LocalBdsyncBin, argv...)
	cmd.Stdin = patch
	t.log.Debug("Applying the patch")
	if err := runCommand(t.log, cmd); err != nil {
		return processErr("applying patch", err)
	}
	return nil
}

func (t *localTransport) RemoveTempFile(_ context.Context, path string) error {
	t.log.Debug("Removing the local temporary patch file", "path", path)
	if err := os.Remove(path); err != nil {
		return processErr("removing local patch file", err)
	}
	return nil
}

// remoteShell composes commands that run on the far side of the connection
// command. The script is always passed as one argument; every caller-supplied
// token inside it is escaped exactly once, by the callers, via
// shellquote.Join.
type remoteShell struct {
	connection []string
}

func (r remoteShell) command(ctx context.Context, script string) *exec.Cmd {
	argv := append([]string{}, r.connection...)
	argv = append(argv, script)
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}

// remoteTransport stages and applies the patch on a remote host, wrapping
// every operation in the configured connection command.
type remoteTransport struct {
	settings *TaskSettings
	shell    remoteShell
	log      *slog.Logger
}

func (t *remoteTransport) ServerCommand() string {
	tokens := append([]string{}, t.settings.ConnectionCommand...)
	tokens = append(tokens, t.settings.RemoteBdsyncBin, "--server")
	return shellquote.Join(tokens...)
}

func (t *remoteTransport) StageTempFile(ctx context.Context) (string, error) {
	template := filepath.Base(t.settings.TargetPath) + "-XXXX.bdsync"
	script := "mktemp " + shellquote.Join(template)
	if dir := t.settings.TargetPatchDir; dir != "" {
		script = "mktemp " + shellquote.Join("--tmpdir="+dir, template)
	}
	out, err := runCommandOutput(t.log, t.shell.command(ctx, script))
	if err != nil {
		return "", processErr("creating remote patch file", err)
	}
	path := strings.TrimRight(string(out), "\r\n")
	if path == "" {
		return "", processErr("creating remote patch file", fmt.Errorf("mktemp returned no path"))
	}
	t.log.Debug("Using remote temporary patch file", "path", path)
	return path, nil
}

func (t *remoteTransport) OpenSink(ctx context.Context, path string) (*Sink, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, processErr("creating patch pipe", err)
	}
	cmd := t.shell.command(ctx, "cat > "+shellquote.Join(path))
	cmd.Stdin = reader
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	t.log.Debug("Starting remote patch receiver", "argv", cmd.Args)
	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, processErr("starting remote patch receiver", err)
	}
	// The child holds its own copy of the read end.
	reader.Close()
	return &Sink{writer: writer, cmd: cmd, stderr: &stderr}, nil
}

func (t *remoteTransport) PatchSize(ctx context.Context, path string) (int64, error) {
	script := "stat --format %s " + shellquote.Join(path)
	out, err := runCommandOutput(t.log, t.shell.command(ctx, script))
	if err != nil {
		return 0, processErr("querying remote patch size", err)
	}
	text := strings.TrimSpace(string(out))
	size, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, processErr("querying remote patch size", fmt.Errorf("unexpected stat output %q", text))
	}
	return size, nil
}

func (t *remoteTransport) ApplyPatch(ctx context.Context, path string) error {
	tokens := append([]string{t.settings.RemoteBdsyncBin}, t.settings.BdsyncArgs...)
	tokens = append(tokens, "--patch")
	script := shellquote.Join(tokens...) + " < " + shellquote.Join(path)
	t.log.Debug("Applying the patch")
	if err := runCommand(t.log, t.shell.command(ctx, script)); err != nil {
		return processErr("applying patch", err)
	}
	return nil
}

func (t *remoteTransport) RemoveTempFile(ctx context.Context, path string) error {
	t.log.Debug("Removing the remote temporary patch file", "path", path)
	script := "rm " + shellquote.Join(path)
	if err := runCommand(t.log, t.shell.command(ctx, script)); err != nil {
		return processErr("removing remote patch file", err)
	}
	return nil
}

package backup

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeNamePattern = regexp.MustCompile(`\W`)

// runCommand runs cmd to completion, logging the invocation and folding any
// stderr output into the returned error.
func runCommand(log *slog.Logger, cmd *exec.Cmd) error {
	log.Debug("starting command", "argv", cmd.Args)
	var stderr bytes.Buffer
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}
	if err := cmd.Run(); err != nil {
		return commandError(cmd, err, stderr.Bytes())
	}
	return nil
}

// runCommandOutput runs cmd and returns its stdout.
func runCommandOutput(log *slog.Logger, cmd *exec.Cmd) ([]byte, error) {
	log.Debug("starting command", "argv", cmd.Args)
	out, err := cmd.Output()
	if err != nil {
		var stderr []byte
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = exitErr.Stderr
		}
		return nil, commandError(cmd, err, stderr)
	}
	return out, nil
}

func commandError(cmd *exec.Cmd, err error, stderr []byte) error {
	name := filepath.Base(cmd.Args[0])
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// FormatSize renders a byte count with binary magnitude prefixes, e.g.
// 1536 becomes "1.5KiB".
func FormatSize(n int64) string {
	v := float64(n)
	for _, unit := range []string{"", "Ki", "Mi", "Gi", "Ti", "Pi", "Ei", "Zi"} {
		if math.Abs(v) < 1024.0 {
			return fmt.Sprintf("%.1f%sB", v, unit)
		}
		v /= 1024.0
	}
	return fmt.Sprintf("%.1fYiB", v)
}

// sanitizeTaskName replaces every character outside [0-9A-Za-z_] so that
// untrusted selector input is safe to log.
func sanitizeTaskName(name string) string {
	return unsafeNamePattern.ReplaceAllString(name, "_")
}

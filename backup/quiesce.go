// quiesce.go pauses a QEMU guest over QMP while the snapshot of its backing
// device is taken, so the snapshot captures a settled filesystem.

package backup

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/digitalocean/go-qemu/qmp"
	"github.com/tidwall/gjson"
)

// qmpMonitor is the part of qmp.SocketMonitor used here, split out so the
// tests can substitute a fake guest.
type qmpMonitor interface {
	Connect() error
	Disconnect() error
	Run(command []byte) ([]byte, error)
}

// GuestPause holds a guest in the stopped state while a snapshot is taken.
type GuestPause struct {
	log     *slog.Logger
	monitor qmpMonitor
	resumed bool
}

// PauseGuest connects to the QMP socket and stops guest execution. The
// returned pause must be resumed on every exit path of the snapshot window.
func PauseGuest(socket string, log *slog.Logger) (*GuestPause, error) {
	monitor, err := qmp.NewSocketMonitor("unix", socket, 2*time.Second)
	if err != nil {
		return nil, processErr("connecting to QMP socket", err)
	}
	return pauseGuest(monitor, log)
}

func pauseGuest(monitor qmpMonitor, log *slog.Logger) (*GuestPause, error) {
	if err := monitor.Connect(); err != nil {
		return nil, processErr("connecting to QMP socket", err)
	}
	pause := &GuestPause{log: log, monitor: monitor}
	log.Info("Pausing guest before snapshot")
	if _, err := monitor.Run([]byte(BuildStopJSON())); err != nil {
		monitor.Disconnect()
		return nil, processErr("stopping guest", err)
	}
	raw, err := monitor.Run([]byte(BuildQueryStatusJSON()))
	if err != nil {
		pause.Resume()
		return nil, processErr("querying guest status", err)
	}
	if gjson.GetBytes(raw, "return.running").Bool() {
		pause.Resume()
		return nil, processErr("stopping guest", fmt.Errorf("guest still running after stop"))
	}
	return pause, nil
}

// Resume restarts guest execution and closes the monitor. Calls after the
// first are no-ops, and a nil pause is safe to resume.
func (p *GuestPause) Resume() error {
	if p == nil || p.resumed {
		return nil
	}
	p.resumed = true
	_, err := p.monitor.Run([]byte(BuildContJSON()))
	p.monitor.Disconnect()
	if err != nil {
		return processErr("resuming guest", err)
	}
	p.log.Info("Guest resumed")
	return nil
}

package backup

import "fmt"

// SettingsError reports task configuration that is missing, malformed or
// refers to resources that do not exist. It is raised before any external
// side effect apart from the volume group lookup.
type SettingsError struct {
	Msg string
}

func (e *SettingsError) Error() string { return e.Msg }

func settingsErrorf(format string, args ...any) error {
	return &SettingsError{Msg: fmt.Sprintf(format, args...)}
}

// ProcessingError reports the failure of an external tool invoked during the
// snapshot, quiesce or patch lifecycle of a task.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func processErr(op string, err error) error {
	return &ProcessingError{Op: op, Err: err}
}

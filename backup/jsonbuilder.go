package backup

import (
	"time"

	"github.com/tidwall/sjson"
)

// BuildStopJSON returns the QMP command that pauses guest execution.
func BuildStopJSON() string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "stop")
	return json
}

// BuildContJSON returns the QMP command that resumes guest execution.
func BuildContJSON() string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "cont")
	return json
}

// BuildQueryStatusJSON returns the QMP command that queries the guest run
// state.
func BuildQueryStatusJSON() string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "query-status")
	return json
}

// BuildTaskReportJSON renders one task outcome as a single JSON document.
// Unresolved fields are left out: the mode when settings never loaded, the
// error on success and the size and timing fields without a pipeline result.
func BuildTaskReportJSON(o *TaskOutcome) string {
	json := `{}`
	json, _ = sjson.Set(json, "run_id", o.RunID)
	json, _ = sjson.Set(json, "task", o.Task)
	if o.Mode != "" {
		json, _ = sjson.Set(json, "mode", o.Mode)
	}
	json, _ = sjson.Set(json, "source", o.Source)
	json, _ = sjson.Set(json, "target", o.Target)
	json, _ = sjson.Set(json, "status", o.Status)
	if o.Error != "" {
		json, _ = sjson.Set(json, "error", o.Error)
	}
	if o.Result != nil {
		json, _ = sjson.Set(json, "patch_bytes", o.Result.PatchBytes)
		json, _ = sjson.Set(json, "patch_size", FormatSize(o.Result.PatchBytes))
		json, _ = sjson.Set(json, "create_seconds", o.Result.CreateTime.Seconds())
		json, _ = sjson.Set(json, "apply_seconds", o.Result.ApplyTime.Seconds())
	}
	json, _ = sjson.Set(json, "started_at", o.StartedAt.Format(time.RFC3339))
	json, _ = sjson.Set(json, "finished_at", o.FinishedAt.Format(time.RFC3339))
	return json
}

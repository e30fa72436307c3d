package backup

import (
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestBuildQuiesceCommands(t *testing.T) {
	cases := []struct {
		json string
		want string
	}{
		{BuildStopJSON(), "stop"},
		{BuildContJSON(), "cont"},
		{BuildQueryStatusJSON(), "query-status"},
	}
	for _, tc := range cases {
		if got := gjson.Get(tc.json, "execute").String(); got != tc.want {
			t.Errorf("execute = %q, want %q", got, tc.want)
		}
	}
}

func TestBuildTaskReportJSONSuccess(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	outcome := &TaskOutcome{
		RunID:  "run-1",
		Task:   "alpha",
		Mode:   "remote",
		Source: "/dev/vg0/alpha",
		Target: "backup/alpha.img",
		Status: StatusOK,
		Result: &TransferResult{
			PatchBytes: 1536,
			CreateTime: 2 * time.Second,
			ApplyTime:  500 * time.Millisecond,
		},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
	doc := BuildTaskReportJSON(outcome)

	checks := map[string]string{
		"run_id":     "run-1",
		"task":       "alpha",
		"mode":       "remote",
		"source":     "/dev/vg0/alpha",
		"target":     "backup/alpha.img",
		"status":     "ok",
		"patch_size": "1.5KiB",
		"started_at": "2026-03-14T09:30:00Z",
	}
	for path, want := range checks {
		if got := gjson.Get(doc, path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	if got := gjson.Get(doc, "patch_bytes").Int(); got != 1536 {
		t.Errorf("patch_bytes = %d, want 1536", got)
	}
	if got := gjson.Get(doc, "create_seconds").Float(); got != 2.0 {
		t.Errorf("create_seconds = %v, want 2", got)
	}
	if got := gjson.Get(doc, "apply_seconds").Float(); got != 0.5 {
		t.Errorf("apply_seconds = %v, want 0.5", got)
	}
	if gjson.Get(doc, "error").Exists() {
		t.Error("error field present on a successful outcome")
	}
	if _, err := time.Parse(time.RFC3339, gjson.Get(doc, "finished_at").String()); err != nil {
		t.Errorf("finished_at not RFC 3339: %v", err)
	}
}

func TestBuildTaskReportJSONFailure(t *testing.T) {
	outcome := &TaskOutcome{
		RunID:      "run-1",
		Task:       "beta",
		Mode:       "local",
		Status:     StatusError,
		Error:      "creating patch: exit status 3",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}
	doc := BuildTaskReportJSON(outcome)
	if got := gjson.Get(doc, "error").String(); got != "creating patch: exit status 3" {
		t.Errorf("error = %q", got)
	}
	if gjson.Get(doc, "patch_bytes").Exists() {
		t.Error("patch fields present without a pipeline result")
	}
}

func TestBuildTaskReportJSONWithoutMode(t *testing.T) {
	outcome := &TaskOutcome{
		RunID:      "run-1",
		Task:       "gamma",
		Status:     StatusError,
		Error:      "no option local_bdsync_bin",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}
	doc := BuildTaskReportJSON(outcome)
	if gjson.Get(doc, "mode").Exists() {
		t.Error("mode field present although settings never resolved one")
	}
}

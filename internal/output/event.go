package output

import "elemforge/internal/tasks"

// Event types streamed in NDJSON mode.
const (
	EventRunStarted       = "run.started"
	EventStageStarted     = "stage.started"
	EventTaskResult       = "task.result"
	EventStageFinished    = "stage.finished"
	EventRunFinished      = "run.finished"
	EventReleaseStarted   = "release.started"
	EventReleaseFinished  = "release.finished"
	EventWatchRebuild     = "watch.rebuild"
	releaseStepTaskPrefix = "release:"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line). A run emits
// run.started, then stage.started / task.result / stage.finished per stage,
// then run.finished. Publishing wraps its steps in release.started and
// release.finished; each step is reported as a task.result whose task_id is
// "release:<step>".
//
// JSON mode remains an aggregate of tasks.Result values.
type Event struct {
	Type  string `json:"type"`
	Stage int    `json:"stage,omitempty"`
	*tasks.Result
	DurationMS int64  `json:"duration_ms,omitempty"`
	Tasks      int    `json:"tasks,omitempty"`
	Stages     int    `json:"stages,omitempty"`
	Detail     string `json:"detail,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
}

func eventFromResult(r tasks.Result) Event {
	return Event{Type: EventTaskResult, Result: &r, DurationMS: r.Duration.Milliseconds()}
}

// ReleaseStepID names the pseudo task a release step is reported under.
func ReleaseStepID(step string) string {
	return releaseStepTaskPrefix + step
}

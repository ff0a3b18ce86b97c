package history

import (
	"time"

	"vigil/internal/stage"
)

// RunStatus is the journal state of a run.
type RunStatus string

const (
	StatusRunning     RunStatus = "running"
	StatusCompleted   RunStatus = "completed"
	StatusFailed      RunStatus = "failed"
	StatusInterrupted RunStatus = "interrupted"
)

// Run is one journaled pipeline run.
type Run struct {
	ID          string        `json:"id"`
	Mode        stage.Mode    `json:"mode"`
	Name        string        `json:"name,omitempty"`
	VideoPath   string        `json:"video_path,omitempty"`
	VideoID     int64         `json:"video_id,omitempty"`
	ConfigID    int64         `json:"config_id,omitempty"`
	Status      RunStatus     `json:"status"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Cause       string        `json:"cause,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Active reports whether the run has not been closed yet.
func (r Run) Active() bool {
	return r.Status == StatusRunning
}

// StageEvent is one recorded stage transition.
type StageEvent struct {
	ID         int64        `json:"id"`
	RunID      string       `json:"run_id"`
	Stage      string       `json:"stage"`
	Status     stage.Status `json:"status"`
	RecordedAt time.Time    `json:"recorded_at"`
}

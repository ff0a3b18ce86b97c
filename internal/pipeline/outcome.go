package pipeline

import (
	"time"

	"vigil/internal/session"
	"vigil/internal/stage"
)

// OutcomeStatus is the terminal state of a run.
type OutcomeStatus string

const (
	StatusCompleted OutcomeStatus = "completed"
	StatusFailed    OutcomeStatus = "failed"
)

// Outcome is produced exactly once per run. Completed outcomes carry the
// analysed video id; failed outcomes name the stage that stopped the run and
// the backend's reason.
type Outcome struct {
	Status   OutcomeStatus   `json:"status"`
	RunID    string          `json:"run_id"`
	Mode     stage.Mode      `json:"mode"`
	VideoID  int64           `json:"video_id,omitempty"`
	Stage    stage.Name      `json:"stage,omitzero"`
	Cause    string          `json:"cause,omitempty"`
	Session  session.Context `json:"session"`
	Duration time.Duration   `json:"duration"`
}

func (o Outcome) Completed() bool { return o.Status == StatusCompleted }

func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// RunInfo describes a run that has passed validation and is about to execute
// its first stage.
type RunInfo struct {
	ID        string     `json:"id"`
	Mode      stage.Mode `json:"mode"`
	Name      string     `json:"name,omitempty"`
	VideoPath string     `json:"video_path,omitempty"`
	VideoID   int64      `json:"video_id,omitempty"`
	Stages    stage.List `json:"stages"`
	StartedAt time.Time  `json:"started_at"`
}

package api

import "vigil/internal/runconfig"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StageView is one row of the stage board.
type StageView struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SessionView mirrors the session context of a run.
type SessionView struct {
	VideoID       int64   `json:"videoId,omitempty"`
	VideoPath     string  `json:"videoPath,omitempty"`
	VideoFilename string  `json:"videoFilename,omitempty"`
	ConfigID      int64   `json:"configId,omitempty"`
	FPS           float64 `json:"fps,omitempty"`
}

// OutcomeView describes a finished run.
type OutcomeView struct {
	Status     string `json:"status"`
	RunID      string `json:"runId"`
	Mode       string `json:"mode"`
	VideoID    int64  `json:"videoId,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Cause      string `json:"cause,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// StatusView is the response of GET /api/status.
type StatusView struct {
	Running     bool         `json:"running"`
	Stages      []StageView  `json:"stages"`
	Session     *SessionView `json:"session,omitempty"`
	LastOutcome *OutcomeView `json:"lastOutcome,omitempty"`
}

// RunRequest starts a full run.
type RunRequest struct {
	VideoPath  string             `json:"videoPath"`
	RunName    string             `json:"runName,omitempty"`
	Categories []string           `json:"categories,omitempty"`
	Settings   runconfig.Settings `json:"settings,omitempty"`
}

// RerunRequest starts a partial run.
type RerunRequest struct {
	VideoID    int64              `json:"videoId,omitempty"`
	Categories []string           `json:"categories,omitempty"`
	Settings   runconfig.Settings `json:"settings,omitempty"`
}

// AcceptedResponse acknowledges a started run.
type AcceptedResponse struct {
	RunID  string      `json:"runId"`
	Mode   string      `json:"mode"`
	Stages []StageView `json:"stages"`
	Since  int64       `json:"since"`
}

// EventView is one entry of the event feed.
type EventView struct {
	Seq       int64        `json:"seq"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	RunID     string       `json:"runId,omitempty"`
	Mode      string       `json:"mode,omitempty"`
	Stage     string       `json:"stage,omitempty"`
	Status    string       `json:"status,omitempty"`
	Outcome   *OutcomeView `json:"outcome,omitempty"`
}

// EventsResponse carries a page of the event feed. Next is the sequence to
// pass as since on the following request.
type EventsResponse struct {
	Events []EventView `json:"events"`
	Next   int64       `json:"next"`
}

// HistoryRun is a journaled run.
type HistoryRun struct {
	ID          string `json:"id"`
	Mode        string `json:"mode"`
	Name        string `json:"name,omitempty"`
	VideoPath   string `json:"videoPath,omitempty"`
	VideoID     int64  `json:"videoId,omitempty"`
	ConfigID    int64  `json:"configId,omitempty"`
	Status      string `json:"status"`
	FailedStage string `json:"failedStage,omitempty"`
	Cause       string `json:"cause,omitempty"`
	StartedAt   string `json:"startedAt"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	DurationMS  int64  `json:"durationMs,omitempty"`
}

// HistoryStage is one journaled stage transition.
type HistoryStage struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	RecordedAt string `json:"recordedAt"`
}

// HistoryDetail is a journaled run with its transitions.
type HistoryDetail struct {
	HistoryRun
	Stages []HistoryStage `json:"stages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

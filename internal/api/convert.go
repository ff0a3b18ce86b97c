package api

import (
	"vigil/internal/events"
	"vigil/internal/history"
	"vigil/internal/pipeline"
	"vigil/internal/session"
	"vigil/internal/stage"
)

// FromStages converts a stage list into board rows.
func FromStages(list stage.List) []StageView {
	out := make([]StageView, 0, len(list))
	for _, stg := range list {
		out = append(out, StageView{Name: stg.Name.String(), Status: string(stg.Status)})
	}
	return out
}

// FromSession converts a session context.
func FromSession(sess session.Context) *SessionView {
	return &SessionView{
		VideoID:       sess.VideoID,
		VideoPath:     sess.VideoPath,
		VideoFilename: sess.VideoFilename,
		ConfigID:      sess.ConfigID,
		FPS:           sess.FPS,
	}
}

// FromOutcome converts a run outcome.
func FromOutcome(outcome pipeline.Outcome) *OutcomeView {
	view := &OutcomeView{
		Status:     string(outcome.Status),
		RunID:      outcome.RunID,
		Mode:       string(outcome.Mode),
		VideoID:    outcome.VideoID,
		Cause:      outcome.Cause,
		DurationMS: outcome.Duration.Milliseconds(),
	}
	if !outcome.Stage.IsZero() {
		view.Stage = outcome.Stage.String()
	}
	return view
}

// FromHistoryRun converts a journaled run.
func FromHistoryRun(run *history.Run) HistoryRun {
	if run == nil {
		return HistoryRun{}
	}
	view := HistoryRun{
		ID:          run.ID,
		Mode:        string(run.Mode),
		Name:        run.Name,
		VideoPath:   run.VideoPath,
		VideoID:     run.VideoID,
		ConfigID:    run.ConfigID,
		Status:      string(run.Status),
		FailedStage: run.FailedStage,
		Cause:       run.Cause,
		DurationMS:  run.Duration.Milliseconds(),
	}
	if !run.StartedAt.IsZero() {
		view.StartedAt = run.StartedAt.UTC().Format(dateTimeFormat)
	}
	if run.FinishedAt != nil {
		view.FinishedAt = run.FinishedAt.UTC().Format(dateTimeFormat)
	}
	return view
}

// FromStageEvents converts journaled transitions.
func FromStageEvents(events []history.StageEvent) []HistoryStage {
	out := make([]HistoryStage, 0, len(events))
	for _, evt := range events {
		out = append(out, HistoryStage{
			Stage:      evt.Stage,
			Status:     string(evt.Status),
			RecordedAt: evt.RecordedAt.UTC().Format(dateTimeFormat),
		})
	}
	return out
}

// FromEvents converts a page of the event feed.
func FromEvents(feed []events.Event) []EventView {
	out := make([]EventView, 0, len(feed))
	for _, evt := range feed {
		view := EventView{
			Seq:       evt.Seq,
			Timestamp: evt.Timestamp.UTC().Format(dateTimeFormat),
			Type:      string(evt.Type),
			RunID:     evt.RunID,
			Mode:      string(evt.Mode),
			Status:    string(evt.Status),
		}
		if !evt.Stage.IsZero() {
			view.Stage = evt.Stage.String()
		}
		if evt.Outcome != nil {
			view.Outcome = FromOutcome(*evt.Outcome)
		}
		out = append(out, view)
	}
	return out
}

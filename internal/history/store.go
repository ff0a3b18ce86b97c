package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vigil/internal/pipeline"
	"vigil/internal/stage"
)

const runColumns = "id, mode, name, video_path, video_id, config_id, status, failed_stage, cause, started_at, finished_at, duration_ms"

// StartRun journals a run that has just begun.
func (s *Store) StartRun(ctx context.Context, info pipeline.RunInfo) error {
	if strings.TrimSpace(info.ID) == "" {
		return errors.New("run id is required")
	}
	started := info.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO runs (id, mode, name, video_path, video_id, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID,
		string(info.Mode),
		nullableString(info.Name),
		nullableString(info.VideoPath),
		nullableInt(info.VideoID),
		StatusRunning,
		started.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordStage appends a stage transition to an open run.
func (s *Store) RecordStage(ctx context.Context, runID string, name stage.Name, status stage.Status) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO stage_events (run_id, stage, status, recorded_at) VALUES (?, ?, ?, ?)`,
		runID,
		name.String(),
		string(status),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	return nil
}

// FinishRun closes a run with its outcome.
func (s *Store) FinishRun(ctx context.Context, outcome pipeline.Outcome) error {
	status := StatusCompleted
	if outcome.Failed() {
		status = StatusFailed
	}
	failedStage := ""
	if !outcome.Stage.IsZero() {
		failedStage = outcome.Stage.String()
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs
         SET status = ?, video_id = ?, config_id = ?, failed_stage = ?, cause = ?,
             finished_at = ?, duration_ms = ?
         WHERE id = ?`,
		status,
		nullableInt(outcome.VideoID),
		nullableInt(outcome.Session.ConfigID),
		nullableString(failedStage),
		nullableString(outcome.Cause),
		time.Now().UTC().Format(time.RFC3339Nano),
		outcome.Duration.Milliseconds(),
		outcome.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("finish run: run %q not found", outcome.RunID)
	}
	return nil
}

// Get fetches a run by id. It returns nil when the run does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs first. A limit of zero returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stages returns the recorded transitions of a run in order.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageEvent, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, run_id, stage, status, recorded_at FROM stage_events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	defer rows.Close()

	var events []StageEvent
	for rows.Next() {
		var (
			evt      StageEvent
			status   string
			recorded string
		)
		if err := rows.Scan(&evt.ID, &evt.RunID, &evt.Stage, &status, &recorded); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		evt.Status = stage.Status(status)
		if ts, err := parseTimeString(recorded); err == nil {
			evt.RecordedAt = ts
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// MarkInterrupted closes runs left open by a process that exited mid-run.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE status = ?`,
		StatusInterrupted,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a run and its stage events.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Clear removes every closed run. Open runs are kept.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM runs WHERE status != ?`, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return res.RowsAffected()
}

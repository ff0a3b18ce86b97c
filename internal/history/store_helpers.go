package history

import (
	"database/sql"
	"errors"
	"time"

	"vigil/internal/stage"
)

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id          string
		mode        string
		name        sql.NullString
		videoPath   sql.NullString
		videoID     sql.NullInt64
		configID    sql.NullInt64
		status      string
		failedStage sql.NullString
		cause       sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
		durationMS  sql.NullInt64
	)
	if err := scanner.Scan(
		&id, &mode, &name, &videoPath, &videoID, &configID, &status,
		&failedStage, &cause, &startedRaw, &finishedRaw, &durationMS,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:          id,
		Mode:        stage.Mode(mode),
		Name:        name.String,
		VideoPath:   videoPath.String,
		VideoID:     videoID.Int64,
		ConfigID:    configID.Int64,
		Status:      RunStatus(status),
		FailedStage: failedStage.String,
		Cause:       cause.String,
		Duration:    time.Duration(durationMS.Int64) * time.Millisecond,
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

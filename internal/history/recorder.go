package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/logging"
	"vigil/internal/pipeline"
	"vigil/internal/stage"
)

const recordTimeout = 5 * time.Second

// Recorder journals runs as a pipeline observer. Observer callbacks cannot
// fail a run, so write errors are logged and dropped.
type Recorder struct {
	store  *Store
	logger *slog.Logger

	mu    sync.Mutex
	runID string
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logging.NewComponentLogger(logger, "history")}
}

// OnRunStarted opens a journal entry for the run.
func (r *Recorder) OnRunStarted(info pipeline.RunInfo) {
	r.mu.Lock()
	r.runID = info.ID
	r.mu.Unlock()
	r.write("start run", func(ctx context.Context) error {
		return r.store.StartRun(ctx, info)
	})
}

// OnStageChange appends a stage transition to the current run.
func (r *Recorder) OnStageChange(name stage.Name, status stage.Status) {
	r.mu.Lock()
	runID := r.runID
	r.mu.Unlock()
	if runID == "" {
		return
	}
	r.write("record stage", func(ctx context.Context) error {
		return r.store.RecordStage(ctx, runID, name, status)
	})
}

// OnRunFinished closes the journal entry.
func (r *Recorder) OnRunFinished(outcome pipeline.Outcome) {
	r.write("finish run", func(ctx context.Context) error {
		return r.store.FinishRun(ctx, outcome)
	})
	r.mu.Lock()
	r.runID = ""
	r.mu.Unlock()
}

func (r *Recorder) write(operation string, fn func(context.Context) error) {
	if r == nil || r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logging.WarnWithContext(r.logger, "history write failed", "history_write_failed",
			logging.String("operation", operation),
			logging.String(logging.FieldErrorHint, "check free space and permissions on "+r.store.Path()),
			logging.Error(err),
		)
	}
}

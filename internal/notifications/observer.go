package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/pipeline"
	"vigil/internal/stage"
)

const publishTimeout = 15 * time.Second

// Observer publishes run outcomes. It implements pipeline.RunObserver and
// pipeline.OutcomeObserver; stage changes are ignored.
type Observer struct {
	service Service
	logger  *slog.Logger

	mu      sync.Mutex
	names   map[string]string
	pending sync.WaitGroup
}

// NewObserver wraps service for use as a pipeline observer.
func NewObserver(service Service, logger *slog.Logger) *Observer {
	if service == nil {
		service = noopService{}
	}
	return &Observer{
		service: service,
		logger:  logging.NewComponentLogger(logger, "notifications"),
		names:   make(map[string]string),
	}
}

// OnRunStarted remembers the run name for the outcome message.
func (o *Observer) OnRunStarted(info pipeline.RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names[info.ID] = info.Name
}

// OnStageChange is a no-op.
func (o *Observer) OnStageChange(stage.Name, stage.Status) {}

// OnRunFinished publishes the outcome in the background so a slow or
// unreachable ntfy server never holds the orchestrator. Call Wait before the
// process exits.
func (o *Observer) OnRunFinished(outcome pipeline.Outcome) {
	o.mu.Lock()
	name := o.names[outcome.RunID]
	delete(o.names, outcome.RunID)
	o.mu.Unlock()

	event := EventRunCompleted
	data := Payload{"name": name, "videoID": outcome.VideoID, "duration": outcome.Duration}
	if outcome.Failed() {
		event = EventRunFailed
		data["stage"] = outcome.Stage.String()
		data["cause"] = outcome.Cause
	}

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		o.publish(event, data)
	}()
}

// Wait blocks until every outcome notification has been sent or has failed.
func (o *Observer) Wait() {
	o.pending.Wait()
}

func (o *Observer) publish(event Event, data Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := o.service.Publish(ctx, event, data); err != nil {
		metrics.IncNotificationErrors()
		logging.WarnWithContext(o.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.String(logging.FieldErrorHint, "check the ntfy topic URL in config.toml"),
			logging.Error(err),
		)
	}
}

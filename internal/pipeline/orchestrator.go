package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/runconfig"
	"vigil/internal/services"
	"vigil/internal/services/backend"
	"vigil/internal/session"
	"vigil/internal/stage"
)

const defaultOutputTemplate = "../data/output/{video_id}/anomaly_recognition_preprocessor"

// StageClient is the backend surface a run needs. *backend.Client satisfies it.
type StageClient interface {
	Upload(ctx context.Context, videoPath string) (backend.UploadResult, error)
	DetectObjects(ctx context.Context, req backend.DetectionRequest) (backend.DetectionResult, error)
	SaveConfiguration(ctx context.Context, input backend.ConfigurationInput) (int64, error)
	LinkConfiguration(ctx context.Context, videoID, configID int64) error
	Preprocess(ctx context.Context, req backend.PreprocessRequest) error
	Recognize(ctx context.Context, req backend.RecognitionRequest) error
	Interpret(ctx context.Context, req backend.InterpreterRequest) error
	Visualize(ctx context.Context, videoID int64) error
}

// Request describes one run.
type Request struct {
	Mode   stage.Mode
	Config runconfig.RunConfiguration

	// VideoPath is the local video file uploaded by a full run.
	VideoPath string
	// RunName labels the analysis on the backend. Defaults to a name derived
	// from VideoPath.
	RunName string

	// VideoID selects the previously analysed video a partial run reuses.
	VideoID int64
	// Session optionally carries values from an earlier run into a partial
	// run. It is copied, never retained.
	Session *session.Context

	// RunID names the run. Generated when empty.
	RunID string
}

// Result is delivered on the channel returned by Start.
type Result struct {
	Outcome Outcome
	Err     error
}

// Orchestrator executes runs one at a time.
type Orchestrator struct {
	client         StageClient
	logger         *slog.Logger
	stageTimeout   time.Duration
	outputTemplate string
	newRunID       func() string

	mu        sync.Mutex
	observers []Observer
	running   bool
	stages    stage.List
	session   *session.Context
	last      *Outcome
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logging.NewComponentLogger(logger, "pipeline")
	}
}

// WithObserver registers observers at construction time.
func WithObserver(observers ...Observer) Option {
	return func(o *Orchestrator) {
		for _, obs := range observers {
			if obs != nil {
				o.observers = append(o.observers, obs)
			}
		}
	}
}

// WithStageTimeout bounds every stage with its own deadline. Zero, the
// default, leaves stage calls bounded only by the caller's context and the
// client's transport timeout.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stageTimeout = d
		}
	}
}

// WithPreprocessOutputTemplate sets where the backend writes preprocess
// output. {video_id} is replaced with the run's video id.
func WithPreprocessOutputTemplate(template string) Option {
	return func(o *Orchestrator) {
		if strings.TrimSpace(template) != "" {
			o.outputTemplate = strings.TrimSpace(template)
		}
	}
}

// WithRunIDGenerator overrides how run ids are minted.
func WithRunIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newRunID = fn
		}
	}
}

// New constructs an Orchestrator around client.
func New(client StageClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:         client,
		logger:         logging.NewComponentLogger(nil, "pipeline"),
		outputTemplate: defaultOutputTemplate,
		newRunID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AddObserver registers an observer for subsequent status changes.
func (o *Orchestrator) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Stages returns a copy of the active (or most recent) run's stage list.
func (o *Orchestrator) Stages() stage.List {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stages.Clone()
}

// Session returns the session retained from the most recent finished run.
func (o *Orchestrator) Session() (session.Context, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return session.Context{}, false
	}
	return *o.session, true
}

// RecordFPS stores the frame rate fetched for display on the retained session
// when that session belongs to videoID. It reports whether it was stored.
func (o *Orchestrator) RecordFPS(videoID int64, fps float64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running || o.session == nil || o.session.VideoID != videoID || fps <= 0 {
		return false
	}
	o.session.FPS = fps
	return true
}

// LastOutcome returns the outcome of the most recent finished run.
func (o *Orchestrator) LastOutcome() (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Outcome{}, false
	}
	return *o.last, true
}

// Reset discards the stage list, session, and outcome retained from the last
// run. It fails while a run is active.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunAlreadyInProgress
	}
	o.stages = nil
	o.session = nil
	o.last = nil
	return nil
}

// Run executes req to completion. Stage failures return a Failed outcome
// together with a *StageCallError; rejected requests return a zero Outcome
// with ErrInvalidConfiguration or ErrRunAlreadyInProgress.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	r, err := o.begin(req)
	if err != nil {
		return Outcome{}, err
	}
	return o.execute(ctx, r)
}

// Start validates req and executes it in the background. Rejections are
// returned immediately. The result channel is buffered, so callers may stop
// listening without stalling the run.
func (o *Orchestrator) Start(ctx context.Context, req Request) (<-chan Result, error) {
	r, err := o.begin(req)
	if err != nil {
		return nil, err
	}
	results := make(chan Result, 1)
	go func() {
		defer close(results)
		outcome, err := o.execute(ctx, r)
		results <- Result{Outcome: outcome, Err: err}
	}()
	return results, nil
}

type run struct {
	info    RunInfo
	config  runconfig.RunConfiguration
	session *session.Context
}

func (o *Orchestrator) begin(req Request) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		metrics.RunRejected(metrics.RejectAlreadyInProgress)
		return nil, ErrRunAlreadyInProgress
	}
	if err := validateRequest(req); err != nil {
		metrics.RunRejected(metrics.RejectInvalidConfiguration)
		return nil, err
	}

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = o.newRunID()
	}
	r := &run{
		info: RunInfo{
			ID:        runID,
			Mode:      req.Mode,
			StartedAt: time.Now().UTC(),
		},
		config: req.Config.Snapshot(),
	}
	switch req.Mode {
	case stage.ModeFull:
		r.session = &session.Context{}
		r.info.VideoPath = strings.TrimSpace(req.VideoPath)
		r.info.Name = strings.TrimSpace(req.RunName)
		if r.info.Name == "" {
			r.info.Name = runconfig.RunNameFromVideo(r.info.VideoPath)
		}
	case stage.ModePartial:
		if req.Session != nil {
			r.session = req.Session.Carry()
		} else {
			r.session = &session.Context{}
		}
		r.session.VideoID = req.VideoID
		r.info.VideoID = req.VideoID
		r.info.Name = strings.TrimSpace(req.RunName)
	}

	o.running = true
	o.stages = stage.Build(req.Mode)
	r.info.Stages = o.stages.Clone()
	return r, nil
}

func validateRequest(req Request) error {
	if req.Mode != stage.ModeFull && req.Mode != stage.ModePartial {
		return invalid("unknown run mode %q", req.Mode)
	}
	if err := req.Config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	switch req.Mode {
	case stage.ModeFull:
		if strings.TrimSpace(req.VideoPath) == "" {
			return invalid("a full run requires a video file")
		}
	case stage.ModePartial:
		if req.VideoID <= 0 {
			return invalid("a partial run requires a previously analysed video id, got %d", req.VideoID)
		}
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (Outcome, error) {
	defer o.release(r)
	ctx = services.WithRunID(ctx, r.info.ID)
	logger := logging.WithContext(ctx, o.logger)
	metrics.RunStarted()
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", string(r.info.Mode)),
		logging.String("run_name", r.info.Name),
		logging.Int64(logging.FieldVideoID, r.info.VideoID),
		logging.String("categories", strings.Join(r.config.Categories, ", ")),
	)
	o.notifyRunStarted(r.info)

	for _, name := range r.info.Stages.Names() {
		if err := o.executeStage(ctx, r, name); err != nil {
			outcome := o.outcome(r, StatusFailed)
			outcome.Stage = name
			outcome.Cause = err.Reason
			logging.ErrorWithContext(logger, "run failed", "run_failure",
				logging.String(logging.FieldStage, name.String()),
				logging.String("reason", err.Reason),
				logging.String(logging.FieldErrorHint, hintFor(err)),
				logging.Duration("run_duration", outcome.Duration),
			)
			o.finish(r, outcome)
			return outcome, err
		}
	}

	outcome := o.outcome(r, StatusCompleted)
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int64(logging.FieldVideoID, outcome.VideoID),
		logging.Duration("run_duration", outcome.Duration),
	)
	o.finish(r, outcome)
	return outcome, nil
}

func (o *Orchestrator) outcome(r *run, status OutcomeStatus) Outcome {
	return Outcome{
		Status:   status,
		RunID:    r.info.ID,
		Mode:     r.info.Mode,
		VideoID:  r.session.VideoID,
		Session:  *r.session,
		Duration: time.Since(r.info.StartedAt),
	}
}

func (o *Orchestrator) executeStage(ctx context.Context, r *run, name stage.Name) *StageCallError {
	stageCtx := services.WithStage(ctx, name.String())
	logger := logging.WithContext(stageCtx, o.logger)
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, o.stageTimeout)
		defer cancel()
	}

	if err := o.setStatus(name, stage.StatusInProgress); err != nil {
		logging.ErrorWithContext(logger, "stage out of order", "stage_failure", logging.Error(err))
		return &StageCallError{Stage: name, Reason: err.Error(), Err: err}
	}
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	started := time.Now()

	err := o.call(stageCtx, r, name)
	elapsed := time.Since(started)
	metrics.ObserveStage(name, err == nil, elapsed)
	if err != nil {
		callErr := &StageCallError{Stage: name, Reason: backend.Reason(err), Err: err}
		details := services.Details(err)
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorHint, hintFor(callErr)),
			logging.Duration("stage_duration", elapsed),
			logging.Error(err),
		)
		return callErr
	}

	if err := o.setStatus(name, stage.StatusDone); err != nil {
		logging.ErrorWithContext(logger, "stage out of order", "stage_failure", logging.Error(err))
		return &StageCallError{Stage: name, Reason: err.Error(), Err: err}
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int64(logging.FieldVideoID, r.session.VideoID),
		logging.Duration("stage_duration", elapsed),
	)
	return nil
}

// call performs the backend work of one stage and merges returned
// identifiers into the run session only once the whole stage succeeded.
func (o *Orchestrator) call(ctx context.Context, r *run, name stage.Name) error {
	sess := r.session
	settings := r.config.Settings
	switch name {
	case stage.Upload:
		res, err := o.client.Upload(ctx, r.info.VideoPath)
		if err != nil {
			return err
		}
		sess.VideoPath = res.VideoPath
		sess.VideoFilename = res.VideoFilename
		return nil
	case stage.Detection:
		return o.detect(ctx, r)
	case stage.Preprocess:
		return o.client.Preprocess(ctx, backend.PreprocessRequest{
			VideoPath:      sess.VideoPath,
			VideoID:        sess.VideoID,
			OutputPath:     o.outputPath(sess.VideoID),
			ProcessingMode: settings.ProcessingMode(),
		})
	case stage.Recognition:
		return o.client.Recognize(ctx, backend.RecognitionRequest{
			VideoID:         sess.VideoID,
			Categories:      r.config.Categories,
			BatchSize:       settings.BatchSize(),
			FrameSampleRate: settings.FrameSampleRate(),
			ProcessingMode:  settings.ProcessingMode(),
		})
	case stage.Interpreter:
		return o.client.Interpret(ctx, backend.InterpreterRequest{
			VideoID:    sess.VideoID,
			Threshold:  settings.Threshold(),
			Categories: r.config.Categories,
		})
	case stage.Visualization:
		return o.client.Visualize(ctx, sess.VideoID)
	default:
		return services.Wrap(services.ErrValidation, name.String(), "dispatch", "no backend call for stage", nil)
	}
}

// detect runs object detection, then stores the run configuration and links
// it to the new video. All three calls belong to Detection.
func (o *Orchestrator) detect(ctx context.Context, r *run) error {
	res, err := o.client.DetectObjects(ctx, backend.DetectionRequest{
		VideoPath:      r.session.VideoPath,
		NameOfAnalysis: r.info.Name,
		Settings:       r.config.Settings,
	})
	if err != nil {
		return err
	}
	configID, err := o.client.SaveConfiguration(ctx, backend.ConfigurationInput{
		Name:       ConfigurationName(res.VideoID),
		Categories: r.config.Categories,
		Settings:   r.config.Settings,
	})
	if err != nil {
		return err
	}
	if err := o.client.LinkConfiguration(ctx, res.VideoID, configID); err != nil {
		return err
	}
	r.session.VideoID = res.VideoID
	r.session.ConfigID = configID
	return nil
}

// ConfigurationName is the name under which a full run stores its
// configuration on the backend.
func ConfigurationName(videoID int64) string {
	return fmt.Sprintf("Config for first part of analysis video with id %d", videoID)
}

func (o *Orchestrator) outputPath(videoID int64) string {
	return strings.ReplaceAll(o.outputTemplate, "{video_id}", fmt.Sprintf("%d", videoID))
}

// setStatus applies a transition and notifies observers. Transitions that
// break stage ordering are refused and never reach observers.
func (o *Orchestrator) setStatus(name stage.Name, status stage.Status) error {
	o.mu.Lock()
	if err := o.stages.Set(name, status); err != nil {
		o.mu.Unlock()
		return err
	}
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()

	for _, obs := range observers {
		obs.OnStageChange(name, status)
	}
	return nil
}

func (o *Orchestrator) notifyRunStarted(info RunInfo) {
	o.mu.Lock()
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()
	for _, obs := range observers {
		if ro, ok := obs.(RunObserver); ok {
			ro.OnRunStarted(info)
		}
	}
}

// finish records the outcome and notifies outcome observers. The run slot is
// still held, so a follow-up run cannot start before observers have seen the
// outcome.
func (o *Orchestrator) finish(r *run, outcome Outcome) {
	o.mu.Lock()
	o.last = &outcome
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()

	label := metrics.OutcomeCompleted
	if outcome.Failed() {
		label = metrics.OutcomeFailed
	}
	metrics.RunFinished(r.info.Mode, label, outcome.Duration)

	for _, obs := range observers {
		if oo, ok := obs.(OutcomeObserver); ok {
			oo.OnRunFinished(outcome)
		}
	}
}

// release frees the run slot and retains the session. It runs even when an
// observer panics.
func (o *Orchestrator) release(r *run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	retained := *r.session
	o.session = &retained
	o.running = false
}

func hintFor(err *StageCallError) string {
	if hint := services.Details(err.Err).Hint; hint != "" {
		return hint
	}
	switch err.Stage {
	case stage.Upload:
		return "check the video file and the backend upload directory"
	case stage.Detection:
		return "check the detection model path and the backend logs"
	default:
		return "check the backend logs for the failing stage"
	}
}

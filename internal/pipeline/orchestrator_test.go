package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vigil/internal/pipeline"
	"vigil/internal/runconfig"
	"vigil/internal/services"
	"vigil/internal/session"
	"vigil/internal/stage"
)

type recorder struct {
	mu       sync.Mutex
	changes  []string
	started  []pipeline.RunInfo
	outcomes []pipeline.Outcome
	signal   chan string
}

func (r *recorder) OnStageChange(name stage.Name, status stage.Status) {
	entry := fmt.Sprintf("%s:%s", name, status)
	r.mu.Lock()
	r.changes = append(r.changes, entry)
	r.mu.Unlock()
	if r.signal != nil {
		select {
		case r.signal <- entry:
		default:
		}
	}
}

func (r *recorder) OnRunStarted(info pipeline.RunInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, info)
}

func (r *recorder) OnRunFinished(outcome pipeline.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) Changes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changes...)
}

func (r *recorder) Outcomes() []pipeline.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Outcome(nil), r.outcomes...)
}

func fullRequest() pipeline.Request {
	return pipeline.Request{
		Mode:      stage.ModeFull,
		Config:    runconfig.Default("fighting", "robbery"),
		VideoPath: "/videos/parking_lot.mp4",
		RunName:   "Parking Lot",
	}
}

func partialRequest(videoID int64) pipeline.Request {
	return pipeline.Request{
		Mode:    stage.ModePartial,
		Config:  runconfig.Default("vandalism"),
		VideoID: videoID,
	}
}

func statuses(list stage.List) map[string]stage.Status {
	out := make(map[string]stage.Status, len(list))
	for _, stg := range list {
		out[stg.Name.String()] = stg.Status
	}
	return out
}

func expectStatuses(t *testing.T, list stage.List, want map[string]stage.Status) {
	t.Helper()
	if got := statuses(list); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected stage statuses:\n got %v\nwant %v", got, want)
	}
}

func TestFullRunCompletes(t *testing.T) {
	client := newFakeClient()
	rec := &recorder{}
	orch := pipeline.New(client, pipeline.WithObserver(rec))

	outcome, err := orch.Run(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !outcome.Completed() || outcome.VideoID != 42 {
		t.Fatalf("expected Completed{42}, got %+v", outcome)
	}
	for _, stg := range orch.Stages() {
		if stg.Status != stage.StatusDone {
			t.Fatalf("expected %s done, got %s", stg.Name, stg.Status)
		}
	}
	if len(orch.Stages()) != 6 {
		t.Fatalf("expected six stages, got %d", len(orch.Stages()))
	}

	wantCalls := []string{"upload", "detect", "save_config", "link_config", "preprocess", "recognize", "interpret", "visualize"}
	if got := client.Calls(); !reflect.DeepEqual(got, wantCalls) {
		t.Fatalf("unexpected call order %v", got)
	}

	wantChanges := make([]string, 0, 12)
	for _, name := range stage.Build(stage.ModeFull).Names() {
		wantChanges = append(wantChanges, name.String()+":in-progress", name.String()+":done")
	}
	if got := rec.Changes(); !reflect.DeepEqual(got, wantChanges) {
		t.Fatalf("unexpected observer log %v", got)
	}
	if outcomes := rec.Outcomes(); len(outcomes) != 1 || !outcomes[0].Completed() {
		t.Fatalf("expected exactly one completed outcome, got %+v", outcomes)
	}

	if client.detection.NameOfAnalysis != "Parking Lot" || client.detection.VideoPath != "../data/input/lobby.mp4" {
		t.Fatalf("unexpected detection request %+v", client.detection)
	}
	if client.saved.Name != "Config for first part of analysis video with id 42" {
		t.Fatalf("unexpected stored config name %q", client.saved.Name)
	}
	if client.linked != [2]int64{42, 9} {
		t.Fatalf("unexpected link %v", client.linked)
	}
	if client.preprocess.OutputPath != "../data/output/42/anomaly_recognition_preprocessor" || client.preprocess.ProcessingMode != "parallel" {
		t.Fatalf("unexpected preprocess request %+v", client.preprocess)
	}
	if client.recognition.BatchSize != 32 || client.recognition.FrameSampleRate != 4 || !reflect.DeepEqual(client.recognition.Categories, []string{"fighting", "robbery"}) {
		t.Fatalf("unexpected recognition request %+v", client.recognition)
	}
	if client.interpreter.Threshold != 22 || client.interpreter.VideoID != 42 {
		t.Fatalf("unexpected interpreter request %+v", client.interpreter)
	}
	if client.visualized != 42 {
		t.Fatalf("unexpected visualization video id %d", client.visualized)
	}

	sess, ok := orch.Session()
	if !ok || sess.VideoID != 42 || sess.ConfigID != 9 || sess.VideoFilename != "lobby.mp4" {
		t.Fatalf("unexpected retained session %+v", sess)
	}
}

func TestFullRunDerivesRunNameFromVideo(t *testing.T) {
	client := newFakeClient()
	req := fullRequest()
	req.RunName = ""
	if _, err := pipeline.New(client).Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.detection.NameOfAnalysis != "Parking Lot" {
		t.Fatalf("unexpected derived run name %q", client.detection.NameOfAnalysis)
	}
}

func TestStagesRunStrictlyInOrder(t *testing.T) {
	client := newFakeClient()
	client.delay = 5 * time.Millisecond
	orch := pipeline.New(client)

	var violations []string
	orch.AddObserver(pipeline.ObserverFunc(func(name stage.Name, status stage.Status) {
		if status != stage.StatusInProgress {
			return
		}
		list := orch.Stages()
		for _, prior := range list[:list.Index(name)] {
			if prior.Status != stage.StatusDone {
				violations = append(violations, fmt.Sprintf("%s started while %s was %s", name, prior.Name, prior.Status))
			}
		}
		for _, later := range list[list.Index(name)+1:] {
			if later.Status != stage.StatusPending {
				violations = append(violations, fmt.Sprintf("%s started while %s was %s", name, later.Name, later.Status))
			}
		}
	}))

	if _, err := orch.Run(context.Background(), fullRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(violations) > 0 {
		t.Fatalf("ordering violated: %v", violations)
	}
}

func TestConfigSaveFailureIsAttributedToDetection(t *testing.T) {
	client := newFakeClient()
	client.fail["save_config"] = backendFailure("", "database is locked")
	rec := &recorder{}
	orch := pipeline.New(client, pipeline.WithObserver(rec))

	outcome, err := orch.Run(context.Background(), fullRequest())
	var callErr *pipeline.StageCallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected StageCallError, got %v", err)
	}
	if callErr.Stage != stage.Detection || outcome.Stage != stage.Detection || !outcome.Failed() {
		t.Fatalf("expected Failed{Detection}, got %+v / %v", outcome, callErr)
	}
	if outcome.Cause != "database is locked" {
		t.Fatalf("unexpected cause %q", outcome.Cause)
	}
	if !errors.Is(err, services.ErrBackend) {
		t.Fatalf("expected backend marker to survive, got %v", err)
	}
	if client.called("link_config") || client.called("preprocess") {
		t.Fatalf("no call may follow the failed save: %v", client.Calls())
	}
	expectStatuses(t, orch.Stages(), map[string]stage.Status{
		"Upload":        stage.StatusDone,
		"Detection":     stage.StatusInProgress,
		"Preprocess":    stage.StatusPending,
		"Recognition":   stage.StatusPending,
		"Interpreter":   stage.StatusPending,
		"Visualization": stage.StatusPending,
	})
	if len(rec.Outcomes()) != 1 {
		t.Fatalf("expected one outcome notification, got %d", len(rec.Outcomes()))
	}
}

func TestLinkFailureIsAttributedToDetection(t *testing.T) {
	client := newFakeClient()
	client.fail["link_config"] = backendFailure("", "config 9 not found")
	orch := pipeline.New(client)

	outcome, err := orch.Run(context.Background(), fullRequest())
	if err == nil || outcome.Stage != stage.Detection {
		t.Fatalf("expected Failed{Detection}, got %+v %v", outcome, err)
	}
	if client.called("preprocess") {
		t.Fatal("preprocess must not run without a linked configuration")
	}
	if outcome.VideoID != 0 {
		t.Fatalf("video id must not be merged from a failed stage, got %d", outcome.VideoID)
	}
}

func TestPreprocessFailure(t *testing.T) {
	client := newFakeClient()
	client.fail["preprocess"] = backendFailure("Preprocess", "output dir missing")
	orch := pipeline.New(client)

	outcome, err := orch.Run(context.Background(), fullRequest())
	if err == nil || !outcome.Failed() || outcome.Stage != stage.Preprocess {
		t.Fatalf("expected Failed{Preprocess}, got %+v %v", outcome, err)
	}
	if !strings.Contains(err.Error(), "output dir missing") {
		t.Fatalf("expected backend reason in error, got %v", err)
	}
	expectStatuses(t, orch.Stages(), map[string]stage.Status{
		"Upload":        stage.StatusDone,
		"Detection":     stage.StatusDone,
		"Preprocess":    stage.StatusInProgress,
		"Recognition":   stage.StatusPending,
		"Interpreter":   stage.StatusPending,
		"Visualization": stage.StatusPending,
	})
}

func TestPartialRunRecognitionFailure(t *testing.T) {
	client := newFakeClient()
	client.fail["recognize"] = backendFailure("Recognition", "no preprocessed segments")
	rec := &recorder{}
	orch := pipeline.New(client, pipeline.WithObserver(rec))

	outcome, err := orch.Run(context.Background(), partialRequest(42))
	if err == nil || outcome.Stage != stage.Recognition {
		t.Fatalf("expected Failed{Recognition}, got %+v %v", outcome, err)
	}
	if got := client.Calls(); !reflect.DeepEqual(got, []string{"recognize"}) {
		t.Fatalf("unexpected calls %v", got)
	}
	expectStatuses(t, orch.Stages(), map[string]stage.Status{
		"Recognition":   stage.StatusInProgress,
		"Interpreter":   stage.StatusPending,
		"Visualization": stage.StatusPending,
	})
	if got := rec.Changes(); !reflect.DeepEqual(got, []string{"Recognition:in-progress"}) {
		t.Fatalf("unexpected observer log %v", got)
	}
}

func TestPartialRunUsesCurrentConfigAndCarriedSession(t *testing.T) {
	client := newFakeClient()
	orch := pipeline.New(client)
	prev := &session.Context{VideoID: 7, VideoPath: "../data/input/old.mp4", FPS: 30}

	req := partialRequest(42)
	req.Session = prev
	req.Config.Settings[runconfig.KeyThreshold] = 15
	outcome, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Completed() || outcome.VideoID != 42 {
		t.Fatalf("expected Completed{42}, got %+v", outcome)
	}
	if client.interpreter.Threshold != 15 || !reflect.DeepEqual(client.interpreter.Categories, []string{"vandalism"}) {
		t.Fatalf("partial run must use the current configuration: %+v", client.interpreter)
	}
	if outcome.Session.VideoPath != "../data/input/old.mp4" || outcome.Session.FPS != 30 {
		t.Fatalf("expected carried session values, got %+v", outcome.Session)
	}
	if prev.VideoID != 7 {
		t.Fatalf("carried session must not be mutated, got %d", prev.VideoID)
	}
	for _, call := range client.Calls() {
		if call == "upload" || call == "detect" || call == "preprocess" || call == "save_config" {
			t.Fatalf("partial run made a full-run call: %v", client.Calls())
		}
	}
}

func TestInvalidRequestsMakeNoCalls(t *testing.T) {
	cases := map[string]func(*pipeline.Request){
		"no categories":     func(r *pipeline.Request) { r.Config.Categories = nil },
		"blank categories":  func(r *pipeline.Request) { r.Config.Categories = []string{" "} },
		"no settings":       func(r *pipeline.Request) { r.Config.Settings = nil },
		"bad setting":       func(r *pipeline.Request) { r.Config.Settings[runconfig.KeyBatchSize] = "many" },
		"full without file": func(r *pipeline.Request) { r.VideoPath = "  " },
		"unknown mode":      func(r *pipeline.Request) { r.Mode = "sideways" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			client := newFakeClient()
			rec := &recorder{}
			orch := pipeline.New(client, pipeline.WithObserver(rec))
			req := fullRequest()
			mutate(&req)

			outcome, err := orch.Run(context.Background(), req)
			if !errors.Is(err, pipeline.ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
			if outcome.Status != "" {
				t.Fatalf("rejected requests produce no outcome, got %+v", outcome)
			}
			if len(client.Calls()) != 0 || len(rec.Changes()) != 0 || len(rec.Outcomes()) != 0 {
				t.Fatalf("rejected request touched backend or observers: %v %v", client.Calls(), rec.Changes())
			}
			if orch.Running() {
				t.Fatal("rejected request left the orchestrator busy")
			}
		})
	}

	t.Run("partial without video id", func(t *testing.T) {
		client := newFakeClient()
		_, err := pipeline.New(client).Run(context.Background(), partialRequest(0))
		if !errors.Is(err, pipeline.ErrInvalidConfiguration) {
			t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
		}
		if len(client.Calls()) != 0 {
			t.Fatalf("unexpected calls %v", client.Calls())
		}
	})
}

func TestSecondRunIsRejectedWhileActive(t *testing.T) {
	client := newFakeClient()
	client.block = make(chan struct{})
	rec := &recorder{signal: make(chan string, 16)}
	orch := pipeline.New(client, pipeline.WithObserver(rec))

	results, err := orch.Start(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case entry := <-rec.signal:
		if entry != "Upload:in-progress" {
			t.Fatalf("unexpected first change %q", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}

	if _, err := orch.Run(context.Background(), partialRequest(42)); !errors.Is(err, pipeline.ErrRunAlreadyInProgress) {
		t.Fatalf("expected ErrRunAlreadyInProgress, got %v", err)
	}
	if _, err := orch.Start(context.Background(), fullRequest()); !errors.Is(err, pipeline.ErrRunAlreadyInProgress) {
		t.Fatalf("expected ErrRunAlreadyInProgress from Start, got %v", err)
	}
	if err := orch.Reset(); !errors.Is(err, pipeline.ErrRunAlreadyInProgress) {
		t.Fatalf("Reset must refuse during a run, got %v", err)
	}

	close(client.block)
	select {
	case res := <-results:
		if res.Err != nil || !res.Outcome.Completed() {
			t.Fatalf("expected first run to complete, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
	if orch.Running() {
		t.Fatal("orchestrator still busy after the run finished")
	}
	if _, err := orch.Run(context.Background(), partialRequest(42)); err != nil {
		t.Fatalf("expected follow-up run to be accepted, got %v", err)
	}
}

func TestConfigurationEditsDoNotReachActiveRun(t *testing.T) {
	client := newFakeClient()
	client.block = make(chan struct{})
	rec := &recorder{signal: make(chan string, 16)}
	orch := pipeline.New(client, pipeline.WithObserver(rec))

	req := fullRequest()
	results, err := orch.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rec.signal

	req.Config.Categories[0] = "edited"
	req.Config.Settings[runconfig.KeyBatchSize] = 1
	close(client.block)
	res := <-results
	if res.Err != nil {
		t.Fatalf("run failed: %v", res.Err)
	}
	if client.recognition.BatchSize != 32 || client.recognition.Categories[0] != "fighting" {
		t.Fatalf("live edits leaked into the run: %+v", client.recognition)
	}
}

func TestStageTimeoutFailsTheStage(t *testing.T) {
	client := newFakeClient()
	client.block = make(chan struct{})
	defer close(client.block)
	orch := pipeline.New(client, pipeline.WithStageTimeout(20*time.Millisecond))

	outcome, err := orch.Run(context.Background(), partialRequest(42))
	if err == nil || outcome.Stage != stage.Recognition {
		t.Fatalf("expected Failed{Recognition}, got %+v %v", outcome, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport marker, got %v", err)
	}
}

func TestBoardsOfDifferentScopeShareFeed(t *testing.T) {
	client := newFakeClient()
	fullBoard := stage.NewBoard(stage.ModeFull)
	partialBoard := stage.NewBoard(stage.ModePartial)
	orch := pipeline.New(client, pipeline.WithObserver(fullBoard, partialBoard))

	if _, err := orch.Run(context.Background(), partialRequest(42)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, stg := range partialBoard.Snapshot() {
		if stg.Status != stage.StatusDone {
			t.Fatalf("partial board %s = %s", stg.Name, stg.Status)
		}
	}
	expectStatuses(t, fullBoard.Snapshot(), map[string]stage.Status{
		"Upload":        stage.StatusPending,
		"Detection":     stage.StatusPending,
		"Preprocess":    stage.StatusPending,
		"Recognition":   stage.StatusDone,
		"Interpreter":   stage.StatusDone,
		"Visualization": stage.StatusDone,
	})
}

func TestRunInfoAndReset(t *testing.T) {
	client := newFakeClient()
	rec := &recorder{}
	orch := pipeline.New(client, pipeline.WithObserver(rec), pipeline.WithRunIDGenerator(func() string { return "run-1" }))

	outcome, err := orch.Run(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.RunID != "run-1" || len(rec.started) != 1 || rec.started[0].ID != "run-1" {
		t.Fatalf("unexpected run identity %+v %+v", outcome, rec.started)
	}
	if rec.started[0].Mode != stage.ModeFull || len(rec.started[0].Stages) != 6 {
		t.Fatalf("unexpected run info %+v", rec.started[0])
	}
	if last, ok := orch.LastOutcome(); !ok || last.RunID != "run-1" {
		t.Fatalf("unexpected last outcome %+v", last)
	}

	if err := orch.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(orch.Stages()) != 0 {
		t.Fatal("expected stages cleared")
	}
	if _, ok := orch.Session(); ok {
		t.Fatal("expected session cleared")
	}
	if _, ok := orch.LastOutcome(); ok {
		t.Fatal("expected outcome cleared")
	}
}

func TestCustomPreprocessOutputTemplate(t *testing.T) {
	client := newFakeClient()
	orch := pipeline.New(client, pipeline.WithPreprocessOutputTemplate("/srv/out/{video_id}/pre"))
	if _, err := orch.Run(context.Background(), fullRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.preprocess.OutputPath != "/srv/out/42/pre" {
		t.Fatalf("unexpected output path %q", client.preprocess.OutputPath)
	}
}

type explodingObserver struct {
	fired atomic.Bool
}

func (e *explodingObserver) OnStageChange(name stage.Name, status stage.Status) {
	if name == stage.Upload && status == stage.StatusDone && e.fired.CompareAndSwap(false, true) {
		panic("board crashed")
	}
}

func TestObserverPanicReleasesRunSlot(t *testing.T) {
	client := newFakeClient()
	orch := pipeline.New(client, pipeline.WithObserver(&explodingObserver{}))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the observer panic to reach the caller")
			}
		}()
		_, _ = orch.Run(context.Background(), fullRequest())
	}()

	if orch.Running() {
		t.Fatal("run slot still held after the panic")
	}
	if err := orch.Reset(); err != nil {
		t.Fatalf("Reset after panic: %v", err)
	}
	outcome, err := orch.Run(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("follow-up run: %v", err)
	}
	if !outcome.Completed() {
		t.Fatalf("expected follow-up run to complete, got %+v", outcome)
	}
}

func TestRecordFPSOnlyTouchesMatchingSession(t *testing.T) {
	orch := pipeline.New(newFakeClient())
	if orch.RecordFPS(42, 25) {
		t.Fatal("expected no session before the first run")
	}
	if _, err := orch.Run(context.Background(), fullRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if orch.RecordFPS(7, 25) {
		t.Fatal("expected fps for another video to be ignored")
	}
	if !orch.RecordFPS(42, 29.97) {
		t.Fatal("expected fps to be recorded for the retained video")
	}
	if sess, _ := orch.Session(); sess.FPS != 29.97 {
		t.Fatalf("unexpected session fps %v", sess.FPS)
	}
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vigil/internal/api"
	"vigil/internal/events"
	"vigil/internal/history"
	"vigil/internal/logging"
	"vigil/internal/pipeline"
	"vigil/internal/runconfig"
	"vigil/internal/testsupport"
)

type harness struct {
	server  *api.Server
	http    *httptest.Server
	fake    *testsupport.FakeBackend
	orch    *pipeline.Orchestrator
	bus     *events.Bus
	history *history.Store
}

func newHarness(t *testing.T, mutate func(*api.Deps)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeBackend(t)
	store := testsupport.MustOpenHistory(t, cfg)
	bus := events.NewBus(0)
	orch := pipeline.New(fake.Client(),
		pipeline.WithLogger(logging.NewNop()),
		pipeline.WithObserver(bus, history.NewRecorder(store, logging.NewNop())),
	)

	deps := api.Deps{
		Runner:   orch,
		Videos:   fake.Client(),
		Events:   bus,
		History:  store,
		Defaults: runconfig.Default("fighting", "robbery"),
		LockPath: cfg.LockPath(),
		Logger:   logging.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	server := api.New(deps)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.Wait()
		ts.Close()
	})
	return &harness{server: server, http: ts, fake: fake, orch: orch, bus: bus, history: store}
}

func (h *harness) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(h.http.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(h.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestStartFullRunAndPollEvents(t *testing.T) {
	h := newHarness(t, nil)
	video := testsupport.WriteVideo(t, t.TempDir(), "dock.mp4", 512)

	resp := h.post(t, "/api/runs", api.RunRequest{VideoPath: video, RunName: "Dock"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	accepted := decode[api.AcceptedResponse](t, resp)
	if accepted.RunID == "" || accepted.Mode != "full" || len(accepted.Stages) != 6 {
		t.Fatalf("unexpected accepted response %+v", accepted)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	h.server.Wait()

	var page api.EventsResponse
	h.get(t, "/api/events?since=0", &page)
	if len(page.Events) != 14 {
		t.Fatalf("expected 14 events (start, 12 changes, finish), got %d", len(page.Events))
	}
	last := page.Events[len(page.Events)-1]
	if last.Type != "run_finished" || last.Outcome == nil || last.Outcome.Status != "completed" || last.Outcome.VideoID != 42 {
		t.Fatalf("unexpected final event %+v", last)
	}
	if page.Next != last.Seq {
		t.Fatalf("expected next %d, got %d", last.Seq, page.Next)
	}

	var status api.StatusView
	h.get(t, "/api/status", &status)
	if status.Running || status.LastOutcome == nil || status.LastOutcome.RunID != accepted.RunID {
		t.Fatalf("unexpected status %+v", status)
	}
	for _, stg := range status.Stages {
		if stg.Status != "done" {
			t.Fatalf("expected %s done, got %s", stg.Name, stg.Status)
		}
	}

	var detail api.HistoryDetail
	if resp := h.get(t, "/api/history/"+accepted.RunID, &detail); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected history entry, got %d", resp.StatusCode)
	}
	if detail.Status != "completed" || detail.Name != "Dock" || len(detail.Stages) != 12 {
		t.Fatalf("unexpected history detail %+v", detail)
	}
}

func TestRerunReusesLastVideo(t *testing.T) {
	h := newHarness(t, nil)
	video := testsupport.WriteVideo(t, t.TempDir(), "dock.mp4", 512)
	h.post(t, "/api/runs", api.RunRequest{VideoPath: video})
	h.server.Wait()

	resp := h.post(t, "/api/reruns", api.RerunRequest{Categories: []string{"vandalism"}, Settings: runconfig.Settings{"threshold": 12}})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	h.server.Wait()

	body := h.fake.LastBody("/api/result-interpreter")
	if body["video_id"] != float64(42) || body["threshold"] != float64(12) {
		t.Fatalf("unexpected interpreter body %v", body)
	}
	cats, _ := body["categories"].([]any)
	if len(cats) != 1 || cats[0] != "vandalism" {
		t.Fatalf("expected overridden categories, got %v", body["categories"])
	}
	recognition := h.fake.LastBody("/api/anomaly/recognition")
	if recognition["batch_size"] != float64(32) {
		t.Fatalf("expected default batch size to survive the overlay, got %v", recognition["batch_size"])
	}
}

func TestRejectedRunsMapToStatusCodes(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.post(t, "/api/reruns", api.RerunRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("rerun without any video: expected 400, got %d", resp.StatusCode)
	}
	resp = h.post(t, "/api/runs", api.RunRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("run without video: expected 400, got %d", resp.StatusCode)
	}
	resp = h.post(t, "/api/runs", api.RunRequest{VideoPath: "/x.mp4", Settings: runconfig.Settings{"batch_size": "lots"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("run with bad settings: expected 400, got %d", resp.StatusCode)
	}
	if len(h.fake.Calls()) != 0 {
		t.Fatalf("rejected runs must not reach the backend: %v", h.fake.Paths())
	}

	raw, err := http.Post(h.http.URL+"/api/runs", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Body.Close()
	if raw.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", raw.StatusCode)
	}
}

func TestConcurrentRunIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.SetDelay(50 * time.Millisecond)
	video := testsupport.WriteVideo(t, t.TempDir(), "dock.mp4", 512)

	first := h.post(t, "/api/runs", api.RunRequest{VideoPath: video})
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", first.StatusCode)
	}
	second := h.post(t, "/api/reruns", api.RerunRequest{VideoID: 3})
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.StatusCode)
	}
	reset := h.post(t, "/api/reset", map[string]any{})
	if reset.StatusCode != http.StatusConflict {
		t.Fatalf("expected reset to be refused during a run, got %d", reset.StatusCode)
	}
	h.server.Wait()

	reset = h.post(t, "/api/reset", map[string]any{})
	if reset.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 after the run, got %d", reset.StatusCode)
	}
}

func TestLockHeldByAnotherProcess(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")
	h := newHarness(t, func(d *api.Deps) { d.LockPath = lockPath })

	held := newHarness(t, func(d *api.Deps) { d.LockPath = lockPath })
	held.fake.SetDelay(50 * time.Millisecond)
	video := testsupport.WriteVideo(t, t.TempDir(), "dock.mp4", 512)
	if resp := held.post(t, "/api/runs", api.RunRequest{VideoPath: video}); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	resp := h.post(t, "/api/runs", api.RunRequest{VideoPath: video})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while the lock is held, got %d", resp.StatusCode)
	}
	held.server.Wait()

	resp = h.post(t, "/api/runs", api.RunRequest{VideoPath: video})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 after the lock was released, got %d", resp.StatusCode)
	}
}

func TestPreflightFailureIsReported(t *testing.T) {
	h := newHarness(t, func(d *api.Deps) {
		d.Preflight = func(context.Context, string) error { return errors.New("Video file: missing") }
	})
	resp := h.post(t, "/api/runs", api.RunRequest{VideoPath: "/missing.mp4"})
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", resp.StatusCode)
	}
	if len(h.fake.Calls()) != 0 {
		t.Fatalf("unexpected backend calls %v", h.fake.Paths())
	}
}

func TestEventsValidationAndWait(t *testing.T) {
	h := newHarness(t, nil)
	if resp := h.get(t, "/api/events?since=abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", resp.StatusCode)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.bus.Publish(events.Event{Type: events.TypeStageChange})
	}()
	var page api.EventsResponse
	h.get(t, "/api/events?since=0&wait=2", &page)
	if len(page.Events) != 1 || page.Next != 1 {
		t.Fatalf("expected the published event, got %+v", page)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)
	if resp := h.get(t, "/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz returned %d", resp.StatusCode)
	}
	resp, err := http.Get(h.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "vigil_runs_active") {
		t.Fatal("expected vigil metrics in exposition")
	}
	if resp := h.get(t, "/api/history/unknown", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", resp.StatusCode)
	}
}

func TestStatusFillsSessionFPSOnce(t *testing.T) {
	h := newHarness(t, nil)
	video := testsupport.WriteVideo(t, t.TempDir(), "dock.mp4", 512)
	h.post(t, "/api/runs", api.RunRequest{VideoPath: video})
	h.server.Wait()

	for range 2 {
		var status api.StatusView
		h.get(t, "/api/status", &status)
		if status.Session == nil || status.Session.VideoID != 42 || status.Session.FPS != 25 {
			t.Fatalf("expected session fps from video metadata, got %+v", status.Session)
		}
	}
	if sess, ok := h.orch.Session(); !ok || sess.FPS != 25 {
		t.Fatalf("expected fps retained on the session, got %+v", sess)
	}

	lookups := 0
	for _, path := range h.fake.Paths() {
		if path == "GET /api/video/42" {
			lookups++
		}
	}
	if lookups != 1 {
		t.Fatalf("expected one metadata lookup, got %d (%v)", lookups, h.fake.Paths())
	}
}

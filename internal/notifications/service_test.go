package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/pipeline"
	"vigil/internal/stage"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func captureServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRunCompleted, notifications.Payload{"name": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "run completed",
			event:         notifications.EventRunCompleted,
			payload:       notifications.Payload{"name": "Parking Lot", "videoID": int64(42), "duration": 90 * time.Second},
			expectTitle:   "Vigil - Analysis Complete",
			expectMessage: "✅ Analysis complete: Parking Lot\nVideo id: 42\nDuration: 1m30s",
			expectTags:    "vigil,run,completed",
		},
		{
			name:           "run failed",
			event:          notifications.EventRunFailed,
			payload:        notifications.Payload{"name": "Parking Lot", "stage": "Detection", "cause": "model not found"},
			expectTitle:    "Vigil - Analysis Failed",
			expectMessage:  "❌ Detection stage failed for Parking Lot: model not found",
			expectTags:     "vigil,run,failed",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Vigil - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "vigil,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, seen := captureServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			got := seen()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got[0].title)
			}
			if got[0].body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got[0].body)
			}
			if got[0].tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got[0].tags)
			}
			if got[0].priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got[0].priority)
			}
		})
	}
}

func TestNtfyServiceHonoursEventToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RunCompleted = false
	cfg.Notifications.RunFailed = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventRunCompleted, notifications.EventRunFailed, "unknown"} {
		if err := svc.Publish(context.Background(), event, nil); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestObserverPublishesOutcome(t *testing.T) {
	server, seen := captureServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	obs := notifications.NewObserver(notifications.NewService(&cfg), logging.NewNop())
	obs.OnRunStarted(pipeline.RunInfo{ID: "run-1", Name: "Lobby"})
	obs.OnStageChange(stage.Upload, stage.StatusInProgress)
	obs.OnRunFinished(pipeline.Outcome{
		Status: pipeline.StatusFailed,
		RunID:  "run-1",
		Stage:  stage.Upload,
		Cause:  "file too large",
	})
	obs.Wait()

	got := seen()
	if len(got) != 1 {
		t.Fatalf("expected one notification, got %d", len(got))
	}
	if got[0].body != "❌ Upload stage failed for Lobby: file too large" {
		t.Fatalf("unexpected body %q", got[0].body)
	}
}

type blockingService struct {
	release chan struct{}
	sent    chan notifications.Event
}

func (b *blockingService) Publish(ctx context.Context, event notifications.Event, _ notifications.Payload) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.sent <- event
	return nil
}

func TestObserverDoesNotBlockOnSlowPublish(t *testing.T) {
	svc := &blockingService{release: make(chan struct{}), sent: make(chan notifications.Event, 1)}
	obs := notifications.NewObserver(svc, logging.NewNop())

	done := make(chan struct{})
	go func() {
		obs.OnRunFinished(pipeline.Outcome{Status: pipeline.StatusCompleted, RunID: "run-2", VideoID: 7})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnRunFinished waited for the notification to be delivered")
	}

	close(svc.release)
	obs.Wait()
	select {
	case event := <-svc.sent:
		if event != notifications.EventRunCompleted {
			t.Fatalf("unexpected event %q", event)
		}
	default:
		t.Fatal("expected Wait to return after the notification was sent")
	}
}

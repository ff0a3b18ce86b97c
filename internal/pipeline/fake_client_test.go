package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"vigil/internal/services"
	"vigil/internal/services/backend"
)

// fakeClient records backend calls in order and can fail or slow down any of
// them by operation name.
type fakeClient struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	delay   time.Duration
	videoID int64

	detection   backend.DetectionRequest
	saved       backend.ConfigurationInput
	linked      [2]int64
	preprocess  backend.PreprocessRequest
	recognition backend.RecognitionRequest
	interpreter backend.InterpreterRequest
	visualized  int64

	block chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{fail: map[string]error{}, videoID: 42}
}

func backendFailure(stageName, message string) error {
	return services.Wrap(services.ErrBackend, stageName, "call", "", &backend.APIError{StatusCode: 500, Method: "POST", Path: "/", Message: message})
}

func (f *fakeClient) record(ctx context.Context, op string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return services.Wrap(services.ErrTransport, "", op, "request failed", ctx.Err())
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if err, ok := f.fail[op]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) called(op string) bool {
	for _, call := range f.Calls() {
		if call == op {
			return true
		}
	}
	return false
}

func (f *fakeClient) Upload(ctx context.Context, videoPath string) (backend.UploadResult, error) {
	if err := f.record(ctx, "upload"); err != nil {
		return backend.UploadResult{}, err
	}
	if videoPath == "" {
		return backend.UploadResult{}, errors.New("empty path")
	}
	return backend.UploadResult{VideoPath: "../data/input/lobby.mp4", VideoFilename: "lobby.mp4"}, nil
}

func (f *fakeClient) DetectObjects(ctx context.Context, req backend.DetectionRequest) (backend.DetectionResult, error) {
	f.mu.Lock()
	f.detection = req
	f.mu.Unlock()
	if err := f.record(ctx, "detect"); err != nil {
		return backend.DetectionResult{}, err
	}
	return backend.DetectionResult{VideoID: f.videoID}, nil
}

func (f *fakeClient) SaveConfiguration(ctx context.Context, input backend.ConfigurationInput) (int64, error) {
	f.mu.Lock()
	f.saved = input
	f.mu.Unlock()
	if err := f.record(ctx, "save_config"); err != nil {
		return 0, err
	}
	return 9, nil
}

func (f *fakeClient) LinkConfiguration(ctx context.Context, videoID, configID int64) error {
	f.mu.Lock()
	f.linked = [2]int64{videoID, configID}
	f.mu.Unlock()
	return f.record(ctx, "link_config")
}

func (f *fakeClient) Preprocess(ctx context.Context, req backend.PreprocessRequest) error {
	f.mu.Lock()
	f.preprocess = req
	f.mu.Unlock()
	return f.record(ctx, "preprocess")
}

func (f *fakeClient) Recognize(ctx context.Context, req backend.RecognitionRequest) error {
	f.mu.Lock()
	f.recognition = req
	f.mu.Unlock()
	return f.record(ctx, "recognize")
}

func (f *fakeClient) Interpret(ctx context.Context, req backend.InterpreterRequest) error {
	f.mu.Lock()
	f.interpreter = req
	f.mu.Unlock()
	return f.record(ctx, "interpret")
}

func (f *fakeClient) Visualize(ctx context.Context, videoID int64) error {
	f.mu.Lock()
	f.visualized = videoID
	f.mu.Unlock()
	return f.record(ctx, "visualize")
}

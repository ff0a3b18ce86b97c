package backend

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"vigil/internal/services"
	"vigil/internal/stage"
)

// Upload streams the video at path to the backend.
func (c *Client) Upload(ctx context.Context, path string) (UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return UploadResult{}, services.WithHint(
			services.Wrap(services.ErrValidation, stage.Upload.String(), "open video", path, err),
			"check the video path and its permissions",
		)
	}
	defer file.Close()
	return c.UploadReader(ctx, filepath.Base(path), file)
}

// UploadReader streams r to the backend as the multipart field "video".
func (c *Client) UploadReader(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("video", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	var result UploadResult
	err := c.do(ctx, requestSpec{
		stage:       stage.Upload.String(),
		operation:   "upload video",
		method:      http.MethodPost,
		path:        "/api/video/upload",
		body:        pr,
		contentType: writer.FormDataContentType(),
	}, &result)
	_ = pr.Close()
	if err != nil {
		return UploadResult{}, err
	}
	if result.VideoPath == "" {
		return UploadResult{}, services.Wrap(services.ErrBackend, stage.Upload.String(), "upload video", "response missing video_path", nil)
	}
	return result, nil
}

// DetectObjects runs object detection and returns the new video id.
func (c *Client) DetectObjects(ctx context.Context, req DetectionRequest) (DetectionResult, error) {
	var result DetectionResult
	err := c.doJSON(ctx, requestSpec{
		stage:     stage.Detection.String(),
		operation: "object detection",
		method:    http.MethodPost,
		path:      "/api/object-detection",
	}, req, &result)
	if err != nil {
		return DetectionResult{}, err
	}
	if result.VideoID <= 0 {
		return DetectionResult{}, services.Wrap(services.ErrBackend, stage.Detection.String(), "object detection", fmt.Sprintf("invalid video_id %d in response", result.VideoID), nil)
	}
	return result, nil
}

// Preprocess prepares detected segments for recognition.
func (c *Client) Preprocess(ctx context.Context, req PreprocessRequest) error {
	return c.doJSON(ctx, requestSpec{
		stage:     stage.Preprocess.String(),
		operation: "anomaly preprocess",
		method:    http.MethodPost,
		path:      "/api/anomaly/preprocess",
	}, req, nil)
}

// Recognize scores preprocessed segments against the categories.
func (c *Client) Recognize(ctx context.Context, req RecognitionRequest) error {
	return c.doJSON(ctx, requestSpec{
		stage:     stage.Recognition.String(),
		operation: "anomaly recognition",
		method:    http.MethodPost,
		path:      "/api/anomaly/recognition",
	}, req, nil)
}

// Interpret converts recognition scores into anomaly labels.
func (c *Client) Interpret(ctx context.Context, req InterpreterRequest) error {
	return c.doJSON(ctx, requestSpec{
		stage:     stage.Interpreter.String(),
		operation: "result interpreter",
		method:    http.MethodPost,
		path:      "/api/result-interpreter",
	}, req, nil)
}

// Visualize renders the annotated output video.
func (c *Client) Visualize(ctx context.Context, videoID int64) error {
	return c.doJSON(ctx, requestSpec{
		stage:     stage.Visualization.String(),
		operation: "video visualization",
		method:    http.MethodPost,
		path:      "/api/video/visualization",
	}, visualizationRequest{VideoID: videoID}, nil)
}

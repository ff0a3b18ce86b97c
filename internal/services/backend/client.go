package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/services"
)

const maxErrorBody = 4096

// HTTPDoer describes the HTTP client used to reach the backend.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the analysis backend REST API.
type Client struct {
	baseURL        string
	http           HTTPDoer
	requestTimeout time.Duration
	logger         *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "backend")
	}
}

// NewClient constructs a backend client. requestTimeout bounds catalog,
// configuration and health requests. Stage calls do their work before
// answering and are bound only by their context. A zero requestTimeout leaves
// every request bound only by its context.
func NewClient(baseURL string, requestTimeout time.Duration, opts ...Option) *Client {
	client := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &http.Client{},
		requestTimeout: requestTimeout,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewFromConfig constructs a client from application configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return NewClient(cfg.Backend.URL, cfg.RequestTimeout(), WithLogger(logger))
}

// BaseURL returns the backend root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError reports a non-2xx backend response.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// StatusCode returns the HTTP status of a backend error, or 0 when err did
// not come from a backend response.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Reason returns the most specific human-readable explanation for err: the
// backend's own message for error responses, otherwise the underlying error
// text.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return msg
		}
		return fmt.Sprintf("%d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
	}
	details := services.Details(err)
	if details.Cause != nil {
		return strings.TrimSpace(details.Cause.Error())
	}
	return details.Message
}

type requestSpec struct {
	stage       string
	operation   string
	method      string
	path        string
	body        io.Reader
	contentType string
}

func (c *Client) doJSON(ctx context.Context, call requestSpec, payload any, out any) error {
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrValidation, call.stage, call.operation, "encode request", err)
		}
		call.body = bytes.NewReader(data)
		call.contentType = "application/json"
	}
	return c.do(ctx, call, out)
}

func (c *Client) do(ctx context.Context, call requestSpec, out any) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, call.stage, call.operation, "backend url not configured", nil)
	}
	if call.stage == "" && c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, call.method, c.baseURL+call.path, call.body)
	if err != nil {
		return services.Wrap(services.ErrValidation, call.stage, call.operation, "build request", err)
	}
	if call.contentType != "" {
		req.Header.Set("Content-Type", call.contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	logger := logging.WithContext(services.WithRequestID(ctx, requestID), c.logger)
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug("backend request failed",
			logging.String("method", call.method),
			logging.String("path", call.path),
			logging.Error(err),
		)
		return services.WithHint(
			services.Wrap(services.ErrTransport, call.stage, call.operation, "request failed", err),
			"check that the analysis backend is running and reachable",
		)
	}
	defer resp.Body.Close()

	logger.Debug("backend request",
		logging.String("method", call.method),
		logging.String("path", call.path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     call.method,
			Path:       call.path,
			Message:    errorMessage(body),
		}
		marker := services.ErrBackend
		if resp.StatusCode == http.StatusNotFound {
			marker = services.ErrNotFound
		}
		return services.Wrap(marker, call.stage, call.operation, "", apiErr)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrBackend, call.stage, call.operation, "decode response", err)
	}
	return nil
}

// errorMessage extracts the backend's explanation from an error body. The
// backend reports failures as {"detail": ...} or {"error": ...}; validation
// failures carry a list of {"msg": ...} entries under detail.
func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err == nil {
		for _, raw := range []json.RawMessage{envelope.Detail, envelope.Error} {
			if msg := rawMessage(raw); msg != "" {
				return msg
			}
		}
	}
	return string(trimmed)
}

func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg == "" {
				continue
			}
			if len(item.Loc) > 0 {
				parts = append(parts, fmt.Sprintf("%v: %s", item.Loc[len(item.Loc)-1], item.Msg))
				continue
			}
			parts = append(parts, item.Msg)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return strings.TrimSpace(string(raw))
}

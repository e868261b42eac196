package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/deckforge/internal/config"
	"github.com/lamim/deckforge/internal/metrics"
	"github.com/lamim/deckforge/pkg/models"
)

const (
	// DefaultHTTPTimeout is used when the backend config leaves the timeout unset
	DefaultHTTPTimeout = 120 * time.Second
	// RateLimitBackoffMultiplier is the multiplier for rate limit backoff (3^n)
	RateLimitBackoffMultiplier = 3
	// maxResponseSize bounds JSON responses; downloads are streamed instead
	maxResponseSize = 32 << 20
)

// Operation names used in errors, logs and metrics
const (
	OpListModels      = "list_models"
	OpGenerateOutline = "generate_outline"
	OpGeneratePPT     = "generate_ppt"
	OpConvert         = "convert"
	OpUploadTemplate  = "upload_template"
	OpTaskStatus      = "task_status"
	OpDownload        = "download"
)

// Client handles HTTP requests to the presentation backend
type Client struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	rateLimit       int
	rateLimiterPool *RateLimiterPool
	metrics         *metrics.Collector
	logger          *slog.Logger
	maxRetries      int
	baseRetryDelay  time.Duration
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records request durations on the given collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = collector
		c.rateLimiterPool.metrics = collector
	}
}

// WithRateLimiterPool shares a limiter pool between clients
func WithRateLimiterPool(pool *RateLimiterPool) Option {
	return func(c *Client) { c.rateLimiterPool = pool }
}

// NewClient creates a new API client for the backend described by cfg
func NewClient(cfg config.BackendConfig, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout()
	if cfg.TimeoutSeconds == 0 {
		timeout = DefaultHTTPTimeout
	}
	rateLimit := cfg.RateLimitPerMinute
	if rateLimit <= 0 {
		rateLimit = config.MaxRateLimitPerMinute
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          apiKey,
		rateLimit:       rateLimit,
		rateLimiterPool: NewRateLimiterPool(nil),
		logger:          logger,
		maxRetries:      cfg.Retries(),
		baseRetryDelay:  cfg.BaseRetryDelay(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListModels returns the language models the backend can use for outlines
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var resp ModelsResponse
	err := c.withRetry(ctx, OpListModels, func() error {
		return c.do(ctx, call{op: OpListModels, method: http.MethodGet, path: pathModels}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// GenerateOutline asks the backend to turn free text into an outline.
// slideCount 0 lets the backend pick.
func (c *Client) GenerateOutline(ctx context.Context, content, model string, slideCount int) (*models.Outline, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Message: "must not be empty"}
	}
	if slideCount != 0 && (slideCount < config.MinSlideCount || slideCount > config.MaxSlideCount) {
		return nil, &ValidationError{
			Field:   "slide_count",
			Message: fmt.Sprintf("must be between %d and %d (got %d)", config.MinSlideCount, config.MaxSlideCount, slideCount),
		}
	}

	body, release, err := encodeJSON(OutlineRequest{Content: content, Model: model, SlideCount: slideCount})
	if err != nil {
		return nil, err
	}
	defer release()

	var outline models.Outline
	err = c.do(ctx, call{
		op:          OpGenerateOutline,
		method:      http.MethodPost,
		path:        pathGenerateOutline,
		contentType: "application/json",
		body:        body,
	}, &outline)
	if err != nil {
		return nil, err
	}

	outline.Normalize()
	if err := outline.Validate(); err != nil {
		return nil, &UpstreamError{
			Op:         OpGenerateOutline,
			StatusCode: http.StatusOK,
			Message:    "backend returned an invalid outline: " + err.Error(),
		}
	}

	c.logger.Debug("Outline generated", "title", outline.Title, "slides", len(outline.Slides))
	return &outline, nil
}

// GeneratePPT submits an outline for rendering and returns the pending job.
// templateID is optional.
func (c *Client) GeneratePPT(ctx context.Context, outline models.Outline, theme string, templateID string) (*models.Job, error) {
	if !models.Theme(theme).Valid() {
		return nil, &ValidationError{Field: "theme", Message: fmt.Sprintf("must be one of business, tech, creative (got %q)", theme)}
	}
	if len(outline.Slides) == 0 {
		return nil, &ValidationError{Field: "outline", Message: "must contain at least one slide"}
	}
	if err := outline.Validate(); err != nil {
		return nil, &ValidationError{Field: "outline", Message: err.Error()}
	}

	snapshot := outline.Clone()
	snapshot.Normalize()
	body, release, err := encodeJSON(PPTRequest{Outline: snapshot, Theme: theme, TemplateID: templateID})
	if err != nil {
		return nil, err
	}
	defer release()

	return c.submitJob(ctx, call{
		op:          OpGeneratePPT,
		method:      http.MethodPost,
		path:        pathGeneratePPT,
		contentType: "application/json",
		body:        body,
	}, models.JobKindRender)
}

// ConvertFile uploads a document for format conversion and returns the pending job
func (c *Client) ConvertFile(ctx context.Context, file Upload, targetFormat string) (*models.Job, error) {
	if file.Filename == "" || len(file.Content) == 0 {
		return nil, &ValidationError{Field: "file", Message: "a non-empty file is required"}
	}
	target := models.NormalizeFormat(targetFormat)
	if !models.ConversionSupported(file.Ext(), target) {
		return nil, &ValidationError{
			Field:   "target_format",
			Message: fmt.Sprintf("cannot convert %s to %s", file.Ext(), target),
		}
	}

	buf := getBuffer()
	defer putBuffer(buf)
	contentType, err := file.writeMultipart(buf, "file")
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload: %w", err)
	}

	return c.submitJob(ctx, call{
		op:          OpConvert,
		method:      http.MethodPost,
		path:        pathConvert,
		query:       url.Values{"target_format": {target}},
		contentType: contentType,
		body:        buf.Bytes(),
	}, models.JobKindConversion)
}

// UploadTemplate stores a custom .pptx template on the backend
func (c *Client) UploadTemplate(ctx context.Context, file Upload) (*models.TemplateRef, error) {
	if !strings.HasSuffix(file.Filename, models.TemplateExtension) {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("template must be a %s file (got %q)", models.TemplateExtension, file.Filename)}
	}
	if len(file.Content) == 0 {
		return nil, &ValidationError{Field: "file", Message: "template file is empty"}
	}
	if ct := file.ContentType(); ct != pptxMIME {
		c.logger.Debug("Template content does not look like a presentation", "filename", file.Filename, "detected", ct)
	}

	buf := getBuffer()
	defer putBuffer(buf)
	contentType, err := file.writeMultipart(buf, "file")
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload: %w", err)
	}

	var resp TemplateResponse
	err = c.do(ctx, call{
		op:          OpUploadTemplate,
		method:      http.MethodPost,
		path:        pathUploadTemplate,
		contentType: contentType,
		body:        buf.Bytes(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.TemplateID == "" {
		return nil, &UpstreamError{Op: OpUploadTemplate, StatusCode: http.StatusOK, Message: "backend did not return a template id"}
	}

	filename := resp.Filename
	if filename == "" {
		filename = file.Filename
	}
	return &models.TemplateRef{ID: resp.TemplateID, Filename: filename}, nil
}

// TaskStatus fetches the current snapshot of a job. It is never retried here;
// the poller owns retry.
func (c *Client) TaskStatus(ctx context.Context, jobID string) (*models.Job, error) {
	if jobID == "" {
		return nil, &ValidationError{Field: "job_id", Message: "must not be empty"}
	}

	var resp TaskResponse
	err := c.do(ctx, call{
		op:     OpTaskStatus,
		method: http.MethodGet,
		path:   pathTask + url.PathEscape(jobID),
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.TaskID == "" {
		resp.TaskID = jobID
	}
	job := resp.toJob("")
	if job.Status.Rank() == 0 {
		return nil, &UpstreamError{Op: OpTaskStatus, StatusCode: http.StatusOK, Message: fmt.Sprintf("unknown job status %q", resp.Status)}
	}
	return &job, nil
}

// DownloadURL returns where the result of a completed job can be fetched
func (c *Client) DownloadURL(jobID string) string {
	return c.baseURL + pathDownload + url.PathEscape(jobID)
}

// Download is an open result stream. Size is -1 when the backend did not say.
type Download struct {
	Body     io.ReadCloser
	Size     int64
	Filename string
}

// OpenDownload starts fetching the result of a completed job. The caller
// must close Body.
func (c *Client) OpenDownload(ctx context.Context, jobID string) (*Download, error) {
	if err := c.rateLimiterPool.Wait(ctx, c.baseURL, c.rateLimit); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	path := pathDownload + url.PathEscape(jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, "")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UpstreamError{Op: OpDownload, Message: err.Error(), Retryable: true}
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
		return nil, &UpstreamError{
			Op:         OpDownload,
			StatusCode: httpResp.StatusCode,
			Message:    normalizeErrorBody(http.MethodGet, path, httpResp.StatusCode, respBody),
			Retryable:  isStatusCodeRetryable(httpResp.StatusCode),
		}
	}

	filename := jobID
	if _, params, err := mime.ParseMediaType(httpResp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}

	return &Download{Body: httpResp.Body, Size: httpResp.ContentLength, Filename: filename}, nil
}

func (c *Client) submitJob(ctx context.Context, req call, kind models.JobKind) (*models.Job, error) {
	var resp TaskResponse
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		return nil, &UpstreamError{Op: req.op, StatusCode: http.StatusOK, Message: "backend did not return a task id"}
	}

	job := resp.toJob(kind)
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	c.logger.Debug("Job submitted", "op", req.op, "task_id", job.ID, "status", job.Status)
	return &job, nil
}

// call describes one request to the backend
type call struct {
	op          string
	method      string
	path        string
	query       url.Values
	contentType string
	body        []byte
}

// withRetry retries fn with exponential backoff while it fails with a
// retryable error. Only used for idempotent reads.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseRetryDelay

			// Rate limited: back off harder
			if isRateLimitError(lastErr) {
				backoff = time.Duration(math.Pow(RateLimitBackoffMultiplier, float64(attempt))) * c.baseRetryDelay
			}

			jitter := time.Duration(float64(backoff) * 0.1 * (2*float64(time.Now().UnixNano()%100)/100 - 1))
			sleepDuration := backoff + jitter

			c.logger.Warn("Retrying API request",
				"op", op,
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"backoff", sleepDuration,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleepDuration):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) do(ctx context.Context, req call, out interface{}) error {
	if err := c.rateLimiterPool.Wait(ctx, c.baseURL, c.rateLimit); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := c.setHeaders(httpReq, req.contentType)

	c.logger.Debug("API request",
		"op", req.op,
		"method", req.method,
		"path", req.path,
		"request_id", requestID,
		"body_bytes", len(req.body))

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPIRequest(req.op, time.Since(start), false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &UpstreamError{Op: req.op, Message: err.Error(), Retryable: true}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	duration := time.Since(start)
	if err != nil {
		c.metrics.RecordAPIRequest(req.op, duration, false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &UpstreamError{Op: req.op, StatusCode: httpResp.StatusCode, Message: "failed to read response: " + err.Error(), Retryable: true}
	}

	c.logger.Debug("API response",
		"op", req.op,
		"status", httpResp.StatusCode,
		"request_id", requestID,
		"duration", duration)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		c.metrics.RecordAPIRequest(req.op, duration, false)
		return &UpstreamError{
			Op:         req.op,
			StatusCode: httpResp.StatusCode,
			Message:    normalizeErrorBody(req.method, req.path, httpResp.StatusCode, respBody),
			Retryable:  isStatusCodeRetryable(httpResp.StatusCode),
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			c.metrics.RecordAPIRequest(req.op, duration, false)
			return &UpstreamError{
				Op:         req.op,
				StatusCode: httpResp.StatusCode,
				Message:    "invalid response body: " + err.Error(),
			}
		}
	}

	c.metrics.RecordAPIRequest(req.op, duration, true)
	return nil
}

// setHeaders applies the common headers and returns the request ID
func (c *Client) setHeaders(httpReq *http.Request, contentType string) string {
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return requestID
}

// encodeJSON encodes v into a pooled buffer. release returns the buffer and
// must only be called once the request body is no longer needed.
func encodeJSON(v interface{}) ([]byte, func(), error) {
	buf := getBuffer()
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		putBuffer(buf)
		return nil, func() {}, fmt.Errorf("failed to marshal request: %w", err)
	}
	return buf.Bytes(), func() { putBuffer(buf) }, nil
}

func isRetryable(err error) bool {
	if upErr, ok := err.(*UpstreamError); ok {
		return upErr.Retryable
	}
	return false
}

func isRateLimitError(err error) bool {
	if upErr, ok := err.(*UpstreamError); ok {
		return upErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func isStatusCodeRetryable(statusCode int) bool {
	// Retry on rate limits and server errors
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

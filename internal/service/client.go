// Package service talks to the analysis service: upload a dataset, run one analysis tool,
// run a Pareto drill-down. Client is the HTTP implementation; Local runs the same operations
// in-process.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is where the analysis service listens by default.
const DefaultBaseURL = "http://127.0.0.1:8000/api/v1"

const (
	uploadPath   = "/upload"
	analysisPath = "/analizar/cuantitativo"
	paretoPath   = "/analizar/pareto"
	healthPath   = "/health"
)

// Client is the HTTP implementation of Service.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	logger           *slog.Logger
}

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
func NewClient(baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
		logger:           slog.Default(),
	}
}

// WithLogger sets the logger used for retry and request tracing.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks that the service answers on its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, healthPath, "", nil)
	return err
}

// Upload sends the dataset as a multipart form (field "file") and returns its metadata.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (FileMetadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("read %s: %w", filename, err)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return FileMetadata{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return FileMetadata{}, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return FileMetadata{}, fmt.Errorf("build upload: %w", err)
	}
	res, err := c.do(ctx, "upload", http.MethodPost, uploadPath, mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return FileMetadata{}, err
	}
	if err := rejection(res); err != nil {
		return FileMetadata{}, err
	}
	var meta FileMetadata
	if err := json.Unmarshal(res.body, &meta); err != nil {
		return FileMetadata{}, &TransportError{Op: "upload", RequestID: res.requestID, Err: fmt.Errorf("decode response: %w", err)}
	}
	return meta, nil
}

// RunAnalysis posts the request and returns the raw response for classification. A 4xx whose
// body explains the failure is returned as {"error": <explanation>} rather than as an error,
// so it reaches the user as a validation outcome.
func (c *Client) RunAnalysis(ctx context.Context, req AnalysisRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	res, err := c.do(ctx, "analysis", http.MethodPost, analysisPath, "application/json", payload)
	if err != nil {
		var bre *BadRequestError
		if errors.As(err, &bre) {
			if reshaped, ok := reshapeDetail(bre.Raw); ok {
				return reshaped, nil
			}
		}
		return nil, err
	}
	return json.RawMessage(res.body), nil
}

// RunPareto posts the drill-down request and decodes the distribution.
func (c *Client) RunPareto(ctx context.Context, req ParetoRequest) (ParetoResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ParetoResult{}, fmt.Errorf("marshal request: %w", err)
	}
	res, err := c.do(ctx, "pareto", http.MethodPost, paretoPath, "application/json", payload)
	if err != nil {
		return ParetoResult{}, err
	}
	if err := rejection(res); err != nil {
		return ParetoResult{}, err
	}
	var out ParetoResult
	if err := json.Unmarshal(res.body, &out); err != nil {
		return ParetoResult{}, &TransportError{Op: "pareto", RequestID: res.requestID, Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

type response struct {
	body      []byte
	requestID string
}

// rejection reports a 200 whose body is {"error": "..."}; the service answers unsupported
// uploads and unknown Pareto files that way.
func rejection(res response) error {
	var body map[string]any
	if json.Unmarshal(res.body, &body) != nil {
		return nil
	}
	msg, ok := body["error"].(string)
	if !ok {
		return nil
	}
	return &BadRequestError{APIError: &APIError{StatusCode: http.StatusOK, Message: msg, Raw: body, RequestID: res.requestID}}
}

// do runs one logical call with retries. 429/5xx and retryable network errors are retried;
// other 4xx are returned at once as classified errors.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, payload []byte) (response, error) {
	endpoint := c.baseURL + path
	reqID := uuid.NewString()
	maxAttempts := c.retryMaxAttempts
	backoff := c.retryBaseDelay
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return response{}, ctx.Err()
		}
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return response{}, fmt.Errorf("build request: %w", err)
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("X-Request-Id", reqID)
		c.logger.Debug("service request", "op", op, "url", endpoint, "attempt", attempt, "request_id", reqID)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return response{}, ctx.Err()
			}
			lastErr = err
			if isRetryableNetErr(err) && attempt < maxAttempts {
				c.logger.Debug("retrying after network error", "op", op, "error", err)
				if !sleepCtx(ctx, withJitter(backoff)) {
					return response{}, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return response{}, &TransportError{Op: op, RequestID: reqID, Err: err}
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		resp.Body.Close()
		rid := extractRequestID(resp)
		if rid == "" {
			rid = reqID
		}
		if readErr != nil {
			lastErr = readErr
			if attempt < maxAttempts {
				c.logger.Debug("retrying after read error", "op", op, "error", readErr)
				if !sleepCtx(ctx, c.capDelay(withJitter(backoff))) {
					return response{}, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return response{}, &TransportError{Op: op, RequestID: rid, Err: fmt.Errorf("read response: %w", readErr)}
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return response{body: data, requestID: rid}, nil
		}

		apiErr := newAPIError(resp.StatusCode, data, rid)
		retryable := resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)
		if !retryable {
			return response{}, classifyAPIError(apiErr, resp)
		}
		lastErr = classifyAPIError(apiErr, resp)
		if attempt == maxAttempts {
			break
		}
		sleep := c.capDelay(withJitter(backoff))
		// Respect Retry-After header if present (seconds or HTTP date).
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := parseRetryAfterSeconds(ra); err == nil {
				sleep = time.Duration(secs) * time.Second
			}
		}
		c.logger.Debug("retrying after status", "op", op, "status", resp.StatusCode, "sleep", sleep)
		if !sleepCtx(ctx, sleep) {
			return response{}, ctx.Err()
		}
		backoff *= 2
	}
	return response{}, &TransportError{Op: op, RequestID: reqID, Err: lastErr}
}

func (c *Client) capDelay(d time.Duration) time.Duration {
	if c.retryMaxDelay > 0 && d > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return d
}

func newAPIError(status int, body []byte, requestID string) *APIError {
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &APIError{StatusCode: status, Raw: raw, RequestID: requestID}
	switch {
	case raw == nil:
		apiErr.Message = strings.TrimSpace(string(body))
		if len(apiErr.Message) > 200 {
			apiErr.Message = apiErr.Message[:200]
		}
	default:
		if msg, ok := raw["detail"].(string); ok {
			apiErr.Message = msg
		} else if msg, ok := raw["error"].(string); ok {
			apiErr.Message = msg
		} else if msg, ok := raw["message"].(string); ok {
			apiErr.Message = msg
		}
	}
	return apiErr
}

// classifyAPIError maps a generic APIError to a typed error.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	sc := apiErr.StatusCode
	if sc == http.StatusTooManyRequests {
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	}
	if sc >= 500 && sc <= 599 {
		return &ServerError{APIError: apiErr}
	}
	if sc >= 400 && sc <= 499 {
		return &BadRequestError{APIError: apiErr}
	}
	return apiErr
}

// reshapeDetail turns a FastAPI-style {"detail": ...} body, or a body already carrying an
// error field, into the {"error": ...} shape the classifier understands.
func reshapeDetail(raw map[string]any) (json.RawMessage, bool) {
	if raw == nil {
		return nil, false
	}
	if _, ok := raw["error"].(string); ok {
		b, err := json.Marshal(raw)
		return b, err == nil
	}
	var msg string
	switch d := raw["detail"].(type) {
	case string:
		msg = d
	case nil:
		return nil, false
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, false
		}
		msg = string(b)
	}
	if strings.TrimSpace(msg) == "" {
		return nil, false
	}
	b, err := json.Marshal(map[string]string{"error": msg})
	return b, err == nil
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// parseRetryAfterSeconds tries to interpret Retry-After header value as seconds or HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && s >= 0 {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Correlation-Id", "X-Amzn-Requestid"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

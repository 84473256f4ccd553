// Package remote is a client for a hosted ownerscan extraction service.
//
// The service accepts an uploaded document and either answers immediately with
// owner records or hands back a correlation id to poll. A pending result is a
// distinct outcome (ErrNotReady), never a failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/ownerscan/internal/extract"
	"github.com/hurttlocker/ownerscan/internal/textsource"
)

var (
	// ErrNotReady means the job exists but has no result yet.
	ErrNotReady = errors.New("result not ready")
	// ErrJobNotFound means the service does not know the correlation id.
	ErrJobNotFound = errors.New("job not found")
	// ErrTransport marks network failures and 5xx responses.
	ErrTransport = errors.New("transport failure")
)

// TransportError wraps a failure talking to the service.
type TransportError struct {
	Op     string
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// APIError is a non-retryable rejection (4xx) reported by the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("service rejected request (status %d): %s", e.Status, e.Message)
}

// Job status values reported by the service.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Owner is the wire form of one record. Absent fields decode as "".
type Owner struct {
	OwnerName string `json:"owner_name"`
	Phone     string `json:"phone"`
}

// JobResponse is returned by upload and result endpoints.
type JobResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Owners []Owner `json:"owners,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Records maps wire owners onto extract.Record.
func (r *JobResponse) Records() []extract.Record {
	out := make([]extract.Record, 0, len(r.Owners))
	for _, o := range r.Owners {
		out = append(out, extract.Record{
			Name:  strings.TrimSpace(o.OwnerName),
			Phone: strings.TrimSpace(o.Phone),
		})
	}
	return out
}

// Config holds client settings.
type Config struct {
	BaseURL      string
	Timeout      time.Duration // per request, default 30s
	MaxRetries   int           // transport retries per call, default 2
	RetryBackoff time.Duration // first backoff, doubled per attempt, default 500ms
	PollInterval time.Duration // Wait polling interval, default 1s
}

// Client talks to the extraction service.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// NewClient validates cfg and builds a client. A nil httpClient gets a
// default client with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid remote base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, base: base, http: httpClient, logger: logger}, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

// Upload sends the document and its original file name. The response may
// already carry owners (status done) or only an id to poll.
func (c *Client) Upload(ctx context.Context, doc textsource.Document, providerID string) (*JobResponse, error) {
	body, contentType, err := encodeUpload(doc, providerID)
	if err != nil {
		return nil, err
	}

	var job JobResponse
	status, err := c.do(ctx, "upload", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "upload"), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, &job)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusAccepted && status != http.StatusCreated {
		return nil, &APIError{Status: status, Message: job.Error}
	}
	if job.ID == "" && job.Status != StatusDone {
		return nil, &APIError{Status: status, Message: "response carries neither id nor owners"}
	}
	return &job, nil
}

// Result fetches a job by correlation id. It returns ErrNotReady while the job
// is pending and ErrJobNotFound for unknown ids.
func (c *Client) Result(ctx context.Context, id string) ([]extract.Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("result: empty id")
	}

	var job JobResponse
	status, err := c.do(ctx, "result", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "results", id), nil)
	}, &job)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusAccepted || job.Status == StatusPending:
		return nil, ErrNotReady
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	case status == http.StatusOK && job.Status == StatusFailed:
		return nil, &APIError{Status: status, Message: job.Error}
	case status == http.StatusOK:
		return job.Records(), nil
	default:
		return nil, &APIError{Status: status, Message: job.Error}
	}
}

// Wait polls Result until the job completes, fails, or ctx ends.
func (c *Client) Wait(ctx context.Context, id string) ([]extract.Record, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		recs, err := c.Result(ctx, id)
		if !errors.Is(err, ErrNotReady) {
			return recs, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Extract uploads a document and waits for its owners.
func (c *Client) Extract(ctx context.Context, doc textsource.Document, providerID string) ([]extract.Record, error) {
	job, err := c.Upload(ctx, doc, providerID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case StatusDone:
		return job.Records(), nil
	case StatusFailed:
		return nil, &APIError{Status: http.StatusOK, Message: job.Error}
	}
	c.logger.Debug("remote job pending", zap.String("id", job.ID), zap.String("file", doc.Name))
	return c.Wait(ctx, job.ID)
}

// do runs one request with transport retries and decodes a JSON body into out.
// Only network errors and 5xx responses are retried.
func (c *Client) do(ctx context.Context, op string, build func() (*http.Request, error), out any) (int, error) {
	backoff := c.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying remote call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := build()
		if err != nil {
			return 0, fmt.Errorf("%s: building request: %w", op, err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			lastErr = &TransportError{Op: op, Err: err}
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = &TransportError{Op: op, Status: resp.StatusCode, Err: readErr}
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = &TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(data)))}
			continue
		}

		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
				return resp.StatusCode, fmt.Errorf("%s: decoding response: %w", op, err)
			}
		}
		return resp.StatusCode, nil
	}
	return 0, lastErr
}

func encodeUpload(doc textsource.Document, providerID string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := doc.Name
	if name == "" {
		name = "document"
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("upload: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, "", fmt.Errorf("upload: %w", err)
	}
	if err := w.WriteField("filename", name); err != nil {
		return nil, "", fmt.Errorf("upload: %w", err)
	}
	if err := w.WriteField("provider", providerID); err != nil {
		return nil, "", fmt.Errorf("upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("upload: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

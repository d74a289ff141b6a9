package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/broadcomms/voicecapture/record"
)

// Config contains transcription client configuration
type Config struct {
	Endpoint      string
	APIKey        string // optional bearer token
	Timeout       time.Duration
	MaxConcurrent int
}

// Result represents a successful transcription response
type Result struct {
	Text        string    `json:"text"`
	Language    string    `json:"language,omitempty"`
	Duration    float64   `json:"duration,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DispatchError describes a failed dispatch. StatusCode is zero for
// transport-level failures (timeouts, connection errors).
type DispatchError struct {
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transcription dispatch failed with HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transcription dispatch failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the dispatch failed because the deadline elapsed.
func (e *DispatchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// Client is the HTTP client for the transcription endpoint. One request per
// artifact, no retries; concurrency is bounded by a semaphore.
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{}

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// NewClient creates a new transcription HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 2
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Dispatch sends one artifact for transcription. Timeouts and non-2xx
// responses are returned as a *DispatchError; the artifact itself is left
// untouched so the caller may retry without re-recording.
func (c *Client) Dispatch(ctx context.Context, artifact *record.Artifact) (*Result, error) {
	if artifact.Empty() {
		return nil, &DispatchError{Err: fmt.Errorf("artifact carries no audio")}
	}

	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, &DispatchError{Err: ctx.Err()}
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	result, err := c.doRequest(ctx, artifact)
	if err != nil {
		c.incrementFailedRequests()
		return nil, err
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(time.Since(startTime))

	return result, nil
}

// doRequest performs the single HTTP request to the transcription endpoint
func (c *Client) doRequest(ctx context.Context, artifact *record.Artifact) (*Result, error) {
	body, contentType, err := c.createMultipartRequest(artifact)
	if err != nil {
		return nil, &DispatchError{Err: fmt.Errorf("failed to create multipart request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, &DispatchError{Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("request aborted: %w", context.Cause(ctx))
		}
		return nil, &DispatchError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DispatchError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DispatchError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server returned %s: %s", resp.Status, string(respBody)),
		}
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &DispatchError{Err: fmt.Errorf("failed to parse response JSON: %w", err)}
	}

	result.ProcessedAt = time.Now()

	return &result, nil
}

// createMultipartRequest builds the multipart/form-data request body
func (c *Client) createMultipartRequest(artifact *record.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", artifact.ID+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(artifact.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"artifact_id": artifact.ID,
		"sample_rate": fmt.Sprintf("%d", artifact.SampleRate),
		"duration":    fmt.Sprintf("%.3f", artifact.Duration.Seconds()),
		"captured_at": artifact.CapturedAt.Format(time.RFC3339),
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}

// Close waits for all in-flight dispatches to complete.
func (c *Client) Close() error {
	for i := 0; i < cap(c.semaphore); i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}

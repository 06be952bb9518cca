// Package client provides an HTTP client for the sheetvoice server.
package client

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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// Client talks to the sheetvoice REST API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new client.
// If endpoint is empty, uses SHEETVOICE_SERVER_URL env var or defaults to localhost:3001.
// Timeout can be configured via SHEETVOICE_CLIENT_TIMEOUT env var (default 5m for large uploads).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("SHEETVOICE_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:3001"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("SHEETVOICE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the server base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// APIError is a non-2xx response from the server.
// JobID is set when the server created a job before rejecting the request.
type APIError struct {
	StatusCode int
	Message    string
	JobID      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// =============================================================================
// TYPES (matching the JSON API)
// =============================================================================

// UploadResult is the response to an accepted upload.
type UploadResult struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// Voice describes a selectable synthesis voice.
type Voice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Gender       string `json:"gender"`
	LanguageCode string `json:"languageCode"`
	LanguageName string `json:"languageName"`
}

// VoiceList is the response of the voices endpoint.
type VoiceList struct {
	Voices       []Voice `json:"voices"`
	FallbackMode bool    `json:"fallbackMode"`
}

// VoiceTest describes a synthesized test clip.
type VoiceTest struct {
	AudioFile string `json:"audioFile"`
	AudioURL  string `json:"audioUrl"`
	Voice     string `json:"voice"`
	Method    string `json:"method"`
	Note      string `json:"note,omitempty"`
}

// LibraryStats summarizes the archive.
type LibraryStats struct {
	TotalLibraries int     `json:"totalLibraries"`
	TotalItems     int     `json:"totalItems"`
	Succeeded      int     `json:"processedItems"`
	Failed         int     `json:"failedItems"`
	SuccessRate    float64 `json:"successRate"`
	AudioFiles     int     `json:"audioFiles"`
}

// ProviderStatus reports the speech service mode.
type ProviderStatus struct {
	Configured   bool   `json:"configured"`
	FallbackMode bool   `json:"fallbackMode"`
	Region       string `json:"region,omitempty"`
	Message      string `json:"message"`
}

// Status is the response of the status endpoint.
type Status struct {
	Provider   ProviderStatus   `json:"provider"`
	ActiveJobs int              `json:"activeJobs"`
	Metrics    metrics.Snapshot `json:"metrics"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// do sends a request and decodes a JSON response into result (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
			JobID string `json:"jobId"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg, JobID: errResp.JobID}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", result)
}

// Upload submits a document for conversion. An empty voice uses the server default.
func (c *Client) Upload(ctx context.Context, path, voice string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if voice != "" {
		if err := mw.WriteField("voice", voice); err != nil {
			return nil, fmt.Errorf("write voice field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish form: %w", err)
	}

	var result UploadResult
	if err := c.do(ctx, http.MethodPost, "/api/upload", &body, mw.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob fetches a job snapshot.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.get(ctx, "/api/upload/progress/"+url.PathEscape(id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs lists live jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]models.Job, error) {
	var list []models.Job
	if err := c.get(ctx, "/api/jobs", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListLibrary lists archived entries, most recent first.
func (c *Client) ListLibrary(ctx context.Context) ([]models.LibraryEntry, error) {
	var entries []models.LibraryEntry
	if err := c.get(ctx, "/api/library", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetLibraryEntry fetches one archived entry.
func (c *Client) GetLibraryEntry(ctx context.Context, id string) (*models.LibraryEntry, error) {
	var entry models.LibraryEntry
	if err := c.get(ctx, "/api/library/"+url.PathEscape(id), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteLibraryEntry removes an entry and its audio.
func (c *Client) DeleteLibraryEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/library/"+url.PathEscape(id), nil, "", nil)
}

// LibraryStats fetches the archive summary.
func (c *Client) LibraryStats(ctx context.Context) (*LibraryStats, error) {
	var stats LibraryStats
	if err := c.get(ctx, "/api/library/stats/summary", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Voices lists selectable voices.
func (c *Client) Voices(ctx context.Context) (*VoiceList, error) {
	var list VoiceList
	if err := c.get(ctx, "/api/voices", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// TestVoice synthesizes a short clip on the server.
func (c *Client) TestVoice(ctx context.Context, voice, text string) (*VoiceTest, error) {
	payload, err := json.Marshal(map[string]string{"voiceId": voice, "text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var result VoiceTest
	if err := c.do(ctx, http.MethodPost, "/api/voices/test", bytes.NewReader(payload), "application/json", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches provider mode and runtime metrics.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// =============================================================================
// PROGRESS STREAM
// =============================================================================

// WatchJob streams job snapshots over a WebSocket, invoking onUpdate for each.
// It returns nil once the server closes the stream after a terminal snapshot.
// Return an error from onUpdate to abort.
func (c *Client) WatchJob(ctx context.Context, id string, onUpdate func(models.Job) error) error {
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/api/upload/progress/" + url.PathEscape(id) + "/stream")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return &APIError{StatusCode: http.StatusNotFound, Message: "Job not found"}
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	var last models.Job
	for {
		var job models.Job
		if err := conn.ReadJSON(&job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway) && !last.Status.Terminal() {
				return &APIError{StatusCode: http.StatusNotFound, Message: "Job expired"}
			}
			return fmt.Errorf("read message: %w", err)
		}
		last = job
		if err := onUpdate(job); err != nil {
			return err
		}
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/sheetvoice/internal/archive"
	"github.com/raphaelgruber/sheetvoice/internal/jobs"
	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/raphaelgruber/sheetvoice/internal/service"
	"github.com/raphaelgruber/sheetvoice/internal/storage"
	"github.com/raphaelgruber/sheetvoice/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*service.Conversion, http.Handler) {
	t.Helper()
	dir := t.TempDir()

	audio, err := storage.NewFileStore(filepath.Join(dir, "audio"), nil)
	require.NoError(t, err)
	uploads, err := storage.NewFileStore(filepath.Join(dir, "uploads"), nil)
	require.NoError(t, err)
	backend, err := archive.OpenJSONFile(filepath.Join(dir, "library.json"))
	require.NoError(t, err)

	collector := metrics.NewCollector()
	conv := service.NewConversion(service.Deps{
		Tracker:  jobs.NewTracker(),
		Provider: synth.NewProviderWith(nil, nil, "", collector, nil),
		Library:  archive.New(backend, audio, uploads),
		Audio:    audio,
		Uploads:  uploads,
		Metrics:  collector,
	})
	srv := New(conv, nil, WithPollInterval(10*time.Millisecond), WithMaxUploadBytes(1<<20))
	return conv, srv.Handler()
}

func uploadRequest(t *testing.T, name, content, voice string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	if voice != "" {
		require.NoError(t, mw.WriteField("voice", voice))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// submit uploads a three-row CSV and waits for the job to finish.
func submit(t *testing.T, conv *service.Conversion, h http.Handler) models.Job {
	t.Helper()
	rec := do(h, uploadRequest(t, "lines.csv", "id,text\nA,one\nB,two\nC,three\n", "Brian"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode[UploadResponse](t, rec)
	require.True(t, resp.Success)

	conv.Wait()

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/upload/progress/"+resp.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[models.Job](t, rec)
}

func TestUploadAndPoll(t *testing.T) {
	conv, h := newTestServer(t)

	job := submit(t, conv, h)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Completed)
	assert.Len(t, job.Outcomes, 3)
	assert.NotEmpty(t, job.LibraryRef)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Job](t, rec), 1)
}

func TestUploadRejections(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name     string
		file     string
		content  string
		wantCode int
		wantErr  string
	}{
		{"unsupported extension", "notes.txt", "id,text\n1,a\n", http.StatusBadRequest, "Invalid file type"},
		{"legacy workbook", "old.xls", "binary", http.StatusBadRequest, ".xls"},
		{"missing columns", "bad.csv", "name,value\n1,a\n", http.StatusBadRequest, "invalid document format"},
		{"duplicates", "dup.csv", "id,text\n1,a\n1,b\n", http.StatusBadRequest, "Duplicate IDs found: 1"},
		{"too large", "big.csv", "id,text\n1," + strings.Repeat("a", 2<<20) + "\n", http.StatusRequestEntityTooLarge, "File too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, uploadRequest(t, tt.file, tt.content, ""))
			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.wantErr)
		})
	}
}

func TestRejectedUploadJobIsPollable(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, uploadRequest(t, "dup.csv", "id,text\n1,a\n1,b\n", ""))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	require.NotEmpty(t, resp.JobID)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/upload/progress/"+resp.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[models.Job](t, rec)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "Duplicate IDs found: 1")
}

func TestUploadWithoutFile(t *testing.T) {
	_, h := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("voice", "Amy"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := do(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decode[ErrorResponse](t, rec).Error)
}

func TestProgressUnknownJob(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/upload/progress/job_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", decode[ErrorResponse](t, rec).Error)
}

func TestLibraryLifecycle(t *testing.T) {
	conv, h := newTestServer(t)
	job := submit(t, conv, h)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/library", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]models.LibraryEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, job.LibraryRef, entries[0].ID)
	assert.Equal(t, "Brian", entries[0].Voice)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/library/stats/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[archive.Stats](t, rec)
	assert.Equal(t, 1, stats.TotalLibraries)
	assert.Equal(t, 3, stats.AudioFiles)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/library/"+job.LibraryRef, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[models.LibraryEntry](t, rec).Total)

	rec = do(h, httptest.NewRequest(http.MethodDelete, "/api/library/"+job.LibraryRef, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[MessageResponse](t, rec).Success)

	rec = do(h, httptest.NewRequest(http.MethodDelete, "/api/library/"+job.LibraryRef, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Library entry not found", decode[ErrorResponse](t, rec).Error)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/library/audio/"+job.Outcomes[0].AudioRef, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "audio is removed with the entry")
}

func TestEmptyLibraryIsArray(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/library", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAudioEndpoints(t *testing.T) {
	conv, h := newTestServer(t)
	ref := submit(t, conv, h).Outcomes[0].AudioRef

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/library/audio/"+ref, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, []byte{0xFF, 0xFB, 0x90, 0x00}, rec.Body.Bytes()[:4])

	req := httptest.NewRequest(http.MethodGet, "/api/library/play/"+ref, nil)
	req.Header.Set("Range", "bytes=0-3")
	rec = do(h, req)
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "inline", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 4, rec.Body.Len())

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/api/library/audio/clip.wav", http.StatusBadRequest},
		{"/api/library/play/a%20b.mp3", http.StatusBadRequest},
		{"/api/library/audio/missing.mp3", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(h, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestVoices(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/voices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[synth.VoiceList](t, rec)
	assert.True(t, list.FallbackMode)
	assert.Len(t, list.Voices, len(synth.FallbackVoices))

	req := httptest.NewRequest(http.MethodPost, "/api/voices/test", strings.NewReader(`{"voiceId":"Emma"}`))
	rec = do(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[VoiceTestResponse](t, rec)
	assert.Equal(t, "Emma", resp.Voice)
	assert.True(t, strings.HasPrefix(resp.AudioFile, "test_"))
	assert.Equal(t, "/api/library/play/"+resp.AudioFile, resp.AudioURL)

	rec = do(h, httptest.NewRequest(http.MethodGet, resp.AudioURL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodPost, "/api/voices/test", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndHealth(t *testing.T) {
	conv, h := newTestServer(t)
	submit(t, conv, h)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[service.Status](t, rec)
	assert.True(t, st.Provider.FallbackMode)
	assert.Equal(t, int64(1), st.Metrics.JobsCompleted)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestProgressStream(t *testing.T) {
	conv, h := newTestServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	rec := do(h, uploadRequest(t, "lines.csv", "id,text\nA,one\nB,two\n", ""))
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode[UploadResponse](t, rec).JobID

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/upload/progress/" + jobID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var last models.Job
	for {
		var job models.Job
		if err := conn.ReadJSON(&job); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
		assert.GreaterOrEqual(t, job.Completed, last.Completed)
		last = job
	}
	assert.Equal(t, models.JobStatusCompleted, last.Status)
	conv.Wait()
}

func TestProgressStreamUnknownJob(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/upload/progress/nope/stream", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "ok")
	}))

	do(h, httptest.NewRequest(http.MethodGet, "/fine?"+strings.Repeat("q", 300), nil))
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "status=200")
	assert.Contains(t, buf.String(), "...")

	buf.Reset()
	do(h, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "status=500")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdef...", truncate("abcdefghijkl", 9))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestStatusForHidesInternalErrors(t *testing.T) {
	code, msg := statusFor(context.DeadlineExceeded)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", msg)
}

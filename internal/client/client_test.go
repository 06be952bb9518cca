package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/archive"
	"github.com/raphaelgruber/sheetvoice/internal/jobs"
	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/raphaelgruber/sheetvoice/internal/server"
	"github.com/raphaelgruber/sheetvoice/internal/service"
	"github.com/raphaelgruber/sheetvoice/internal/storage"
	"github.com/raphaelgruber/sheetvoice/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*Client, *service.Conversion) {
	t.Helper()
	dir := t.TempDir()

	audio, err := storage.NewFileStore(filepath.Join(dir, "audio"), nil)
	require.NoError(t, err)
	uploads, err := storage.NewFileStore(filepath.Join(dir, "uploads"), nil)
	require.NoError(t, err)
	backend, err := archive.OpenJSONFile(filepath.Join(dir, "library.json"))
	require.NoError(t, err)

	conv := service.NewConversion(service.Deps{
		Tracker:  jobs.NewTracker(),
		Provider: synth.NewProviderWith(nil, nil, "", nil, nil),
		Library:  archive.New(backend, audio, uploads),
		Audio:    audio,
		Uploads:  uploads,
	})
	ts := httptest.NewServer(server.New(conv, nil, server.WithPollInterval(10*time.Millisecond)).Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL + "/"), conv
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lines.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("SHEETVOICE_SERVER_URL", "")
	t.Setenv("SHEETVOICE_CLIENT_TIMEOUT", "90s")

	c := New("")
	assert.Equal(t, "http://localhost:3001", c.Endpoint())
	assert.Equal(t, 90*time.Second, c.httpClient.Timeout)

	t.Setenv("SHEETVOICE_SERVER_URL", "http://voice.local:9000/")
	assert.Equal(t, "http://voice.local:9000", New("").Endpoint())
}

func TestUploadWatchAndLibrary(t *testing.T) {
	c, conv := startServer(t)
	ctx := context.Background()

	res, err := c.Upload(ctx, writeCSV(t, "id,text\n1,hello\n2,world\n"), "Justin")
	require.NoError(t, err)
	require.True(t, res.Success)

	var last models.Job
	err = c.WatchJob(ctx, res.JobID, func(job models.Job) error {
		last = job
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, last.Status)
	conv.Wait()

	job, err := c.GetJob(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Completed)

	list, err := c.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	entries, err := c.ListLibrary(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Justin", entries[0].Voice)

	entry, err := c.GetLibraryEntry(ctx, job.LibraryRef)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Succeeded)

	stats, err := c.LibraryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.AudioFiles)

	require.NoError(t, c.DeleteLibraryEntry(ctx, job.LibraryRef))
	err = c.DeleteLibraryEntry(ctx, job.LibraryRef)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestUploadValidationError(t *testing.T) {
	c, _ := startServer(t)

	_, err := c.Upload(context.Background(), writeCSV(t, "id,text\n1,a\n1,b\n"), "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "Duplicate IDs found: 1")
	require.NotEmpty(t, apiErr.JobID)

	job, err := c.GetJob(context.Background(), apiErr.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestMissingJob(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	_, err := c.GetJob(ctx, "job_missing")
	assert.True(t, IsNotFound(err))

	err = c.WatchJob(ctx, "job_missing", func(models.Job) error { return nil })
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestVoicesAndStatus(t *testing.T) {
	c, _ := startServer(t)
	ctx := context.Background()

	voices, err := c.Voices(ctx)
	require.NoError(t, err)
	assert.True(t, voices.FallbackMode)
	assert.Len(t, voices.Voices, len(synth.FallbackVoices))

	clip, err := c.TestVoice(ctx, "Joanna", "Testing one two")
	require.NoError(t, err)
	assert.Equal(t, "fallback", clip.Method)
	assert.NotEmpty(t, clip.AudioURL)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Provider.FallbackMode)
	assert.Zero(t, st.ActiveJobs)
}

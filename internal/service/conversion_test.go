package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/archive"
	"github.com/raphaelgruber/sheetvoice/internal/extract"
	"github.com/raphaelgruber/sheetvoice/internal/jobs"
	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/raphaelgruber/sheetvoice/internal/storage"
	"github.com/raphaelgruber/sheetvoice/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSpeech fails for texts listed in failOn and calls observe before
// every synthesis.
type scriptedSpeech struct {
	mu      sync.Mutex
	failOn  map[string]bool
	observe func()
	calls   []string
}

func (s *scriptedSpeech) Synthesize(_ context.Context, text, _ string) (*synth.Audio, error) {
	if s.observe != nil {
		s.observe()
	}
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	if s.failOn[text] {
		return nil, &synth.ProviderError{Provider: "scripted", Err: errors.New("throttled")}
	}
	return &synth.Audio{Data: []byte("mp3:" + text), Method: models.MethodPrimary}, nil
}

type rejectingBackend struct{ archive.Backend }

func (rejectingBackend) Insert(context.Context, models.LibraryEntry) error {
	return errors.New("disk full")
}

type panickingBackend struct{ archive.Backend }

func (panickingBackend) Insert(context.Context, models.LibraryEntry) error {
	panic("/var/lib/sheetvoice/library.json: corrupt index")
}

type fixture struct {
	svc       *Conversion
	tracker   *jobs.Tracker
	audio     *storage.FileStore
	uploads   *storage.FileStore
	collector *metrics.Collector
}

func newFixture(t *testing.T, primary synth.Synthesizer, backend archive.Backend) fixture {
	t.Helper()
	dir := t.TempDir()

	audio, err := storage.NewFileStore(filepath.Join(dir, "audio"), nil)
	require.NoError(t, err)
	uploads, err := storage.NewFileStore(filepath.Join(dir, "uploads"), nil)
	require.NoError(t, err)

	if backend == nil {
		backend, err = archive.OpenJSONFile(filepath.Join(dir, "library.json"))
		require.NoError(t, err)
	}

	collector := metrics.NewCollector()
	tracker := jobs.NewTracker()
	provider := synth.NewProviderWith(primary, nil, "us-east-1", collector, nil)
	library := archive.New(backend, audio, uploads, archive.WithMetrics(collector))

	svc := NewConversion(Deps{
		Tracker:  tracker,
		Provider: provider,
		Library:  library,
		Audio:    audio,
		Uploads:  uploads,
		Metrics:  collector,
	})
	return fixture{svc: svc, tracker: tracker, audio: audio, uploads: uploads, collector: collector}
}

const threeRows = "id,text\nA,first line\nB,second line\nC,third line\n"

func TestSubmitCompletesAndArchives(t *testing.T) {
	speech := &scriptedSpeech{failOn: map[string]bool{"second line": true}}
	f := newFixture(t, speech, nil)
	ctx := context.Background()

	jobID, err := f.svc.Submit(ctx, "lines.csv", []byte(threeRows), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(jobID, "job_"))

	f.svc.Wait()

	job, err := f.svc.Job(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 3, job.Completed)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.Error)
	require.NotEmpty(t, job.LibraryRef)
	require.Len(t, job.Outcomes, 3)
	assert.NotNil(t, job.EndTime)

	// The primary failure on B is absorbed by the placeholder generator.
	assert.Equal(t, models.MethodPrimary, job.Outcomes[0].Method)
	assert.Equal(t, models.MethodFallback, job.Outcomes[1].Method)
	assert.Equal(t, synth.NotePrimaryFailed, job.Outcomes[1].Note)
	assert.True(t, job.Outcomes[1].Success)

	entry, err := f.svc.Entry(ctx, job.LibraryRef)
	require.NoError(t, err)
	assert.Equal(t, "lines.csv", entry.SourceName)
	assert.Equal(t, DefaultVoice, entry.Voice)
	assert.Equal(t, 3, entry.Total)
	assert.Equal(t, 3, entry.Succeeded)
	assert.Equal(t, 0, entry.Failed)
	assert.Equal(t, jobID+".csv", entry.SourcePath)

	for _, ref := range entry.AudioRefs() {
		file, _, err := f.svc.OpenAudio(ref)
		require.NoError(t, err, ref)
		file.Close()
	}

	snap := f.collector.Snapshot()
	assert.Equal(t, int64(1), snap.JobsSubmitted)
	assert.Equal(t, int64(1), snap.JobsCompleted)
	require.NotNil(t, snap.SynthPrimary)
	assert.Equal(t, int64(1), snap.SynthPrimary.Errors)
}

func TestSubmitProgressIsMonotonic(t *testing.T) {
	var (
		tracker *jobs.Tracker
		seen    []int
	)
	speech := &scriptedSpeech{}
	speech.observe = func() {
		list := tracker.List()
		if len(list) == 1 {
			seen = append(seen, list[0].Completed)
		}
	}
	f := newFixture(t, speech, nil)
	tracker = f.tracker

	_, err := f.svc.Submit(context.Background(), "lines.csv", []byte(threeRows), "Matthew")
	require.NoError(t, err)
	f.svc.Wait()

	require.Len(t, seen, 3)
	for i, completed := range seen {
		assert.LessOrEqual(t, completed, i, "record %d saw progress from the future", i)
		if i > 0 {
			assert.GreaterOrEqual(t, completed, seen[i-1], "progress went backwards")
		}
	}
	assert.Equal(t, []string{"first line", "second line", "third line"}, speech.calls)
}

func TestSubmitValidationFailureFailsJob(t *testing.T) {
	f := newFixture(t, nil, nil)
	doc := "id,text\nA,one\nA,two\nB,\n"

	jobID, err := f.svc.Submit(context.Background(), "bad.csv", []byte(doc), "")

	var verr *extract.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, []string{"A"}, verr.IDs(extract.ViolationDuplicateID))
	assert.Equal(t, []string{"B"}, verr.IDs(extract.ViolationEmptyText))

	job, err := f.svc.Job(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "Duplicate IDs found: A")
	assert.Empty(t, job.Outcomes)
	assert.Empty(t, job.LibraryRef)

	n, err := f.uploads.Count(".csv")
	require.NoError(t, err)
	assert.Zero(t, n, "rejected upload is removed")

	entries, err := f.svc.Library(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmitFormatFailure(t *testing.T) {
	f := newFixture(t, nil, nil)

	jobID, err := f.svc.Submit(context.Background(), "notes.csv", []byte("name,body\nx,y\n"), "")

	var ferr *extract.FormatError
	require.True(t, errors.As(err, &ferr), "got %v", err)

	job, err := f.svc.Job(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, int64(1), f.collector.Snapshot().JobsFailed)
}

func TestSubmitPersistenceFailureKeepsOutcomes(t *testing.T) {
	f := newFixture(t, nil, rejectingBackend{})

	jobID, err := f.svc.Submit(context.Background(), "lines.csv", []byte(threeRows), "")
	require.NoError(t, err)
	f.svc.Wait()

	job, err := f.svc.Job(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "failed to save library entry", job.Error)
	assert.NotContains(t, job.Error, "disk full", "backend details stay in the log")
	assert.Empty(t, job.LibraryRef)
	require.Len(t, job.Outcomes, 3)
	for _, o := range job.Outcomes {
		assert.Equal(t, models.MethodFallback, o.Method)
		assert.Equal(t, synth.NoteNotConfigured, o.Note)
	}
}

func TestSubmitPanicAfterSynthesisKeepsOutcomes(t *testing.T) {
	f := newFixture(t, &scriptedSpeech{}, panickingBackend{})

	jobID, err := f.svc.Submit(context.Background(), "lines.csv", []byte(threeRows), "")
	require.NoError(t, err)
	f.svc.Wait()

	job, err := f.svc.Job(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "internal error", job.Error)
	assert.Len(t, job.Outcomes, job.Total)
	assert.Equal(t, int64(1), f.collector.Snapshot().JobsFailed)
}

func TestDeleteEntryRemovesArtifacts(t *testing.T) {
	f := newFixture(t, &scriptedSpeech{}, nil)
	ctx := context.Background()

	jobID, err := f.svc.Submit(ctx, "lines.csv", []byte(threeRows), "")
	require.NoError(t, err)
	f.svc.Wait()
	job, err := f.svc.Job(jobID)
	require.NoError(t, err)

	n, err := f.audio.Count(".mp3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, f.svc.DeleteEntry(ctx, job.LibraryRef))

	n, err = f.audio.Count(".mp3")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = f.uploads.Count(".csv")
	require.NoError(t, err)
	assert.Zero(t, n)

	err = f.svc.DeleteEntry(ctx, job.LibraryRef)
	assert.ErrorIs(t, err, archive.ErrNotFound)
}

func TestEqualIDsAcrossJobsDoNotCollide(t *testing.T) {
	f := newFixture(t, &scriptedSpeech{}, nil)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, "a.csv", []byte("id,text\n1,alpha\n"), "")
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, "b.csv", []byte("id,text\n1,beta\n"), "")
	require.NoError(t, err)
	f.svc.Wait()

	a, err := f.svc.Job(first)
	require.NoError(t, err)
	b, err := f.svc.Job(second)
	require.NoError(t, err)
	assert.NotEqual(t, a.Outcomes[0].AudioRef, b.Outcomes[0].AudioRef)

	data, err := os.ReadFile(filepath.Join(f.audio.Dir(), a.Outcomes[0].AudioRef))
	require.NoError(t, err)
	assert.Equal(t, "mp3:alpha", string(data))
}

func TestStats(t *testing.T) {
	f := newFixture(t, &scriptedSpeech{}, nil)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "lines.csv", []byte(threeRows), "")
	require.NoError(t, err)
	f.svc.Wait()

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalLibraries)
	assert.Equal(t, 3, st.TotalItems)
	assert.Equal(t, 3, st.AudioFiles)
	assert.InDelta(t, 100.0, st.SuccessRate, 0.001)
}

func TestOpenAudioRejectsUnsafeNames(t *testing.T) {
	f := newFixture(t, nil, nil)

	for _, name := range []string{"../library.json", "a b.mp3", "x.wav"} {
		_, _, err := f.svc.OpenAudio(name)
		assert.ErrorIs(t, err, ErrInvalidAudioRef, name)
	}
}

func TestTestVoice(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	clip, err := f.svc.TestVoice(context.Background(), "Amy", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(clip.AudioFile, "test_1700000000123_"), clip.AudioFile)
	assert.True(t, models.IsSafeAudioRef(clip.AudioFile), clip.AudioFile)
	assert.Equal(t, "Amy", clip.Voice)
	assert.Equal(t, models.MethodFallback, clip.Method)

	_, err = os.Stat(filepath.Join(f.audio.Dir(), clip.AudioFile))
	require.NoError(t, err)

	again, err := f.svc.TestVoice(context.Background(), "Amy", "")
	require.NoError(t, err)
	assert.NotEqual(t, clip.AudioFile, again.AudioFile, "clips within one millisecond keep separate files")

	_, err = f.svc.TestVoice(context.Background(), "Amy", strings.Repeat("x", models.MaxTextLength+1))
	var verr *extract.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestStatusReportsFallbackMode(t *testing.T) {
	f := newFixture(t, nil, nil)

	st := f.svc.Status()
	assert.True(t, st.Provider.FallbackMode)
	assert.False(t, st.Provider.Configured)
	assert.Zero(t, st.ActiveJobs)

	voices := f.svc.Voices(context.Background())
	assert.True(t, voices.FallbackMode)
	assert.Equal(t, synth.FallbackVoices, voices.Voices)
}

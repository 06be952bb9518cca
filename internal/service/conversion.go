// Package service wires extraction, synthesis, job tracking and the library
// archive into the conversion workflow.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/raphaelgruber/sheetvoice/internal/archive"
	"github.com/raphaelgruber/sheetvoice/internal/batch"
	"github.com/raphaelgruber/sheetvoice/internal/extract"
	"github.com/raphaelgruber/sheetvoice/internal/jobs"
	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/raphaelgruber/sheetvoice/internal/storage"
	"github.com/raphaelgruber/sheetvoice/internal/synth"
)

// DefaultVoice is used when a submission names no voice.
const DefaultVoice = "Joanna"

// DefaultTestText is spoken by TestVoice when no text is given.
const DefaultTestText = "Hello! This is a test of the text-to-speech voice."

// Job error messages for failures whose details stay in the log.
const (
	msgSaveFailed    = "failed to save library entry"
	msgInternalError = "internal error"
)

// ErrInvalidAudioRef is returned for audio names outside the safe charset.
var ErrInvalidAudioRef = errors.New("invalid audio file name")

// Conversion runs uploaded documents through the pipeline: extract, then
// synthesize every record in the background, then archive the outcomes.
type Conversion struct {
	tracker   *jobs.Tracker
	extractor *extract.Extractor
	processor *batch.Processor
	provider  *synth.Provider
	library   *archive.Store
	audio     *storage.FileStore
	uploads   *storage.FileStore
	metrics   *metrics.Collector
	voice     string
	logger    *slog.Logger

	wg  sync.WaitGroup
	now func() time.Time
}

// Deps are the collaborators of a Conversion. Metrics and Logger may be nil.
type Deps struct {
	Tracker      *jobs.Tracker
	Provider     *synth.Provider
	Library      *archive.Store
	Audio        *storage.FileStore
	Uploads      *storage.FileStore
	Metrics      *metrics.Collector
	DefaultVoice string
	Logger       *slog.Logger
}

// NewConversion creates the conversion service.
func NewConversion(d Deps) *Conversion {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	voice := d.DefaultVoice
	if voice == "" {
		voice = DefaultVoice
	}
	return &Conversion{
		tracker:   d.Tracker,
		extractor: extract.New(logger),
		processor: batch.New(d.Provider, d.Audio, d.Metrics, logger),
		provider:  d.Provider,
		library:   d.Library,
		audio:     d.Audio,
		uploads:   d.Uploads,
		metrics:   d.Metrics,
		voice:     voice,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit registers a job for the document and extracts its records before
// returning. Extraction errors fail the job and are returned alongside its id.
// Synthesis and archiving continue in the background; poll with Job.
func (c *Conversion) Submit(ctx context.Context, sourceName string, data []byte, voice string) (string, error) {
	if voice == "" {
		voice = c.voice
	}
	jobID := "job_" + uuid.New().String()
	if _, err := c.tracker.Create(jobID); err != nil {
		return "", err
	}
	c.metrics.RecordJob(metrics.JobSubmitted)
	c.logger.Info("job submitted", "job_id", jobID, "source", sourceName, "voice", voice, "bytes", len(data))

	uploadName := jobID + strings.ToLower(filepath.Ext(sourceName))
	if err := c.uploads.Save(uploadName, data); err != nil {
		c.fail(jobID, "failed to store upload", nil)
		return jobID, fmt.Errorf("store upload: %w", err)
	}

	start := time.Now()
	records, err := c.extractor.Extract(ctx, sourceName, bytes.NewReader(data))
	if err != nil {
		c.metrics.RecordError(metrics.OpExtract)
		c.fail(jobID, err.Error(), nil)
		if rmErr := c.uploads.Remove(uploadName); rmErr != nil {
			c.logger.Warn("failed to remove rejected upload", "job_id", jobID, "error", rmErr)
		}
		return jobID, err
	}
	c.metrics.RecordTiming(metrics.OpExtract, time.Since(start))

	c.wg.Add(1)
	go c.run(jobID, sourceName, uploadName, records, voice)
	return jobID, nil
}

// run drives one job from synthesizing to a terminal state. It uses its own
// context: jobs outlive the request that submitted them.
func (c *Conversion) run(jobID, sourceName, uploadName string, records []models.TextRecord, voice string) {
	var outcomes []models.Outcome
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("job panicked", "job_id", jobID, "panic", r)
			c.fail(jobID, msgInternalError, outcomes)
		}
	}()

	ctx := context.Background()
	if err := c.tracker.Begin(jobID, len(records)); err != nil {
		c.logger.Error("failed to start job", "job_id", jobID, "error", err)
		return
	}

	outcomes = c.synthesize(ctx, jobID, records, voice)

	if err := c.tracker.SetStatus(jobID, models.JobStatusSaving); err != nil {
		c.logger.Error("failed to enter saving", "job_id", jobID, "error", err)
		return
	}

	entry := archive.NewEntry(sourceName, uploadName, voice, outcomes)
	libraryID, err := c.library.Save(ctx, entry)
	if err != nil {
		c.logger.Error("failed to save library entry", "job_id", jobID, "error", err)
		c.fail(jobID, msgSaveFailed, outcomes)
		return
	}

	if err := c.tracker.Complete(jobID, libraryID, outcomes); err != nil {
		c.logger.Error("failed to complete job", "job_id", jobID, "error", err)
		return
	}
	c.metrics.RecordJob(metrics.JobCompleted)
}

// synthesize runs the batch while the tracker consumes its progress events.
// Events are unbuffered, so the tracker is never more than one record behind.
func (c *Conversion) synthesize(ctx context.Context, jobID string, records []models.TextRecord, voice string) []models.Outcome {
	events := make(chan models.Progress)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		c.tracker.Consume(jobID, events)
	}()
	defer func() {
		close(events)
		<-consumed
	}()

	return c.processor.Run(ctx, jobID, records, voice, events)
}

func (c *Conversion) fail(jobID, message string, outcomes []models.Outcome) {
	if err := c.tracker.Fail(jobID, message, outcomes); err != nil {
		c.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
		return
	}
	c.metrics.RecordJob(metrics.JobFailed)
}

// Wait blocks until every background job has reached a terminal state.
func (c *Conversion) Wait() {
	c.wg.Wait()
}

// Job returns a snapshot of a live job.
func (c *Conversion) Job(id string) (models.Job, error) {
	return c.tracker.Get(id)
}

// Jobs lists live jobs, most recent first.
func (c *Conversion) Jobs() []models.Job {
	return c.tracker.List()
}

// Library lists archived entries, most recent first.
func (c *Conversion) Library(ctx context.Context) ([]models.LibraryEntry, error) {
	return c.library.List(ctx)
}

// Entry returns one archived entry.
func (c *Conversion) Entry(ctx context.Context, id string) (models.LibraryEntry, error) {
	return c.library.Get(ctx, id)
}

// DeleteEntry removes an entry with its audio and retained upload.
func (c *Conversion) DeleteEntry(ctx context.Context, id string) error {
	return c.library.Delete(ctx, id)
}

// Stats summarizes the library and the audio directory.
func (c *Conversion) Stats(ctx context.Context) (archive.Stats, error) {
	entries, err := c.library.List(ctx)
	if err != nil {
		return archive.Stats{}, err
	}
	files, err := c.audio.Count(".mp3")
	if err != nil {
		return archive.Stats{}, err
	}
	return archive.ComputeStats(entries, files), nil
}

// OpenAudio opens a stored audio artifact for serving.
func (c *Conversion) OpenAudio(name string) (*os.File, fs.FileInfo, error) {
	if !models.IsSafeAudioRef(name) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidAudioRef, name)
	}
	return c.audio.Open(name)
}

// Voices lists selectable voices.
func (c *Conversion) Voices(ctx context.Context) synth.VoiceList {
	return c.provider.Voices(ctx)
}

// TestClip is the result of TestVoice.
type TestClip struct {
	AudioFile string        `json:"audioFile"`
	Voice     string        `json:"voice"`
	Method    models.Method `json:"method"`
	Note      string        `json:"note,omitempty"`
}

// TestVoice synthesizes a short clip with voice and stores it as test_<unix-ms>_<suffix>.mp3.
func (c *Conversion) TestVoice(ctx context.Context, voice, text string) (TestClip, error) {
	if voice == "" {
		voice = c.voice
	}
	if strings.TrimSpace(text) == "" {
		text = DefaultTestText
	}
	if utf8.RuneCountInString(text) > models.MaxTextLength {
		return TestClip{}, &extract.ValidationError{Violations: []extract.Violation{{
			Kind: extract.ViolationTextTooLong,
			IDs:  []string{"test"},
		}}}
	}

	audio, err := c.provider.Synthesize(ctx, text, voice)
	if err != nil {
		return TestClip{}, err
	}
	name := fmt.Sprintf("test_%d_%s.mp3", c.now().UnixMilli(), uuid.New().String()[:8])
	if err := c.audio.Save(name, audio.Data); err != nil {
		return TestClip{}, fmt.Errorf("save test clip: %w", err)
	}
	c.logger.Info("voice test synthesized", "voice", voice, "file", name, "method", audio.Method)
	return TestClip{AudioFile: name, Voice: voice, Method: audio.Method, Note: audio.Note}, nil
}

// Status is the service health summary.
type Status struct {
	Provider   synth.Status     `json:"provider"`
	ActiveJobs int              `json:"activeJobs"`
	Metrics    metrics.Snapshot `json:"metrics"`
}

// Status reports provider mode, live non-terminal jobs and runtime metrics.
func (c *Conversion) Status() Status {
	active := 0
	for _, j := range c.tracker.List() {
		if !j.Status.Terminal() {
			active++
		}
	}
	return Status{
		Provider:   c.provider.Status(),
		ActiveJobs: active,
		Metrics:    c.metrics.Snapshot(),
	}
}

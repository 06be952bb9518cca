// Package batch drives synthesis over every record of a job, one at a time.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/raphaelgruber/sheetvoice/internal/synth"
)

// ArtifactWriter persists a synthesized audio file under a bare name.
type ArtifactWriter interface {
	Save(name string, data []byte) error
}

// Processor synthesizes records sequentially so the speech service never sees
// concurrent calls from one job.
type Processor struct {
	synth   synth.Synthesizer
	audio   ArtifactWriter
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a Processor. collector and logger may be nil.
func New(s synth.Synthesizer, audio ArtifactWriter, collector *metrics.Collector, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{synth: s, audio: audio, metrics: collector, logger: logger}
}

// Run attempts every record in order and returns one outcome per record.
// A failing record never stops the batch. After each record a progress
// event is sent on events (if non-nil) before the next record starts.
func (p *Processor) Run(ctx context.Context, jobID string, records []models.TextRecord, voiceID string, events chan<- models.Progress) []models.Outcome {
	outcomes := make([]models.Outcome, 0, len(records))
	total := len(records)

	for i, rec := range records {
		outcome := p.process(ctx, jobID, i+1, rec, voiceID)
		outcomes = append(outcomes, outcome)

		if events != nil {
			events <- models.Progress{Completed: i + 1, Total: total, Current: rec.ID}
		}
	}

	succeeded, failed := models.Tally(outcomes)
	p.logger.Info("batch finished", "job_id", jobID, "total", total, "succeeded", succeeded, "failed", failed)
	return outcomes
}

// process synthesizes one record. A panicking synthesizer fails only this record.
func (p *Processor) process(ctx context.Context, jobID string, position int, rec models.TextRecord, voiceID string) (outcome models.Outcome) {
	outcome = models.Outcome{ID: rec.ID, Text: rec.Text}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("record synthesis panicked", "job_id", jobID, "record_id", rec.ID, "panic", r)
			outcome = models.Outcome{ID: rec.ID, Text: rec.Text, Error: "internal error"}
		}
	}()

	start := time.Now()
	audio, err := p.synth.Synthesize(ctx, rec.Text, voiceID)
	if err != nil {
		p.logger.Error("record synthesis failed", "job_id", jobID, "record_id", rec.ID, "error", err)
		outcome.Error = err.Error()
		return outcome
	}
	p.metrics.RecordTiming(operation(audio.Method), time.Since(start))

	name := models.AudioFileName(jobID, position, rec.ID)
	if err := p.audio.Save(name, audio.Data); err != nil {
		p.logger.Error("failed to save audio", "job_id", jobID, "record_id", rec.ID, "error", err)
		outcome.Method = audio.Method
		outcome.Error = "save audio: " + err.Error()
		return outcome
	}

	outcome.Success = true
	outcome.AudioRef = name
	outcome.Method = audio.Method
	outcome.Note = audio.Note
	p.logger.Debug("record synthesized", "job_id", jobID, "record_id", rec.ID, "method", audio.Method)
	return outcome
}

func operation(m models.Method) string {
	if m == models.MethodPrimary {
		return metrics.OpSynthPrimary
	}
	return metrics.OpSynthFallback
}

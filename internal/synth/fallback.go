package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// Fallback decorates a primary Synthesizer. Any primary error is logged and
// replaced by the fallback's output, so callers never see a ProviderError.
type Fallback struct {
	primary  Synthesizer
	fallback Synthesizer
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// WithFallback wraps primary so that failures are served by fallback.
// metrics and logger may be nil.
func WithFallback(primary, fallback Synthesizer, collector *metrics.Collector, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, fallback: fallback, metrics: collector, logger: logger}
}

// Synthesize tries the primary first.
func (f *Fallback) Synthesize(ctx context.Context, text, voiceID string) (*Audio, error) {
	audio, err := f.primary.Synthesize(ctx, text, voiceID)
	if err == nil {
		audio.Method = models.MethodPrimary
		audio.Note = ""
		return audio, nil
	}

	f.metrics.RecordError(metrics.OpSynthPrimary)
	f.logger.Warn("primary synthesis failed, using fallback", "voice", voiceID, "error", err)

	audio, fbErr := f.fallback.Synthesize(ctx, text, voiceID)
	if fbErr != nil {
		return nil, fmt.Errorf("fallback synthesis: %w (primary: %v)", fbErr, err)
	}
	audio.Method = models.MethodFallback
	if audio.Note == "" {
		audio.Note = NotePrimaryFailed
	}
	return audio, nil
}

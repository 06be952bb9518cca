// Package synth converts text into MP3 audio. A primary speech service is
// wrapped by a deterministic placeholder generator that always succeeds.
package synth

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// Notes attached to placeholder audio.
const (
	NoteNotConfigured = "Placeholder audio generated, speech service not configured"
	NotePrimaryFailed = "Primary synthesis failed, placeholder audio generated"
)

// Synthesizer converts one text into audio using the given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*Audio, error)
}

// Audio is a synthesized MP3 artifact and how it was produced.
type Audio struct {
	Data   []byte
	Method models.Method
	Note   string
}

// ProviderError is returned by a speech service that could not synthesize.
type ProviderError struct {
	Provider string
	VoiceID  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s synthesis failed (voice %s): %v", e.Provider, e.VoiceID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

package synth

import (
	"context"
	"unicode/utf8"

	"github.com/raphaelgruber/sheetvoice/internal/models"
)

const (
	// SampleRate of the placeholder audio.
	SampleRate = 22050

	charsPerSecond  = 10
	maxSilenceBytes = 8192
	headerSize      = 16
)

// Silence is the fallback Synthesizer. Its output depends only on the text
// length and it never fails.
type Silence struct {
	note string
}

// NewSilence creates a placeholder generator that annotates its output with note.
func NewSilence(note string) *Silence {
	return &Silence{note: note}
}

// Synthesize returns placeholder audio for text. The voice is ignored.
func (s *Silence) Synthesize(_ context.Context, text, _ string) (*Audio, error) {
	return &Audio{
		Data:   SilenceMP3(text),
		Method: models.MethodFallback,
		Note:   s.note,
	}, nil
}

// SilenceMP3 builds a minimal MP3 container: one frame header followed by
// zeroed payload sized from ceil(len/10) seconds at SampleRate, capped at 8 KiB.
func SilenceMP3(text string) []byte {
	seconds := max(1, (utf8.RuneCountInString(text)+charsPerSecond-1)/charsPerSecond)
	samples := seconds * SampleRate
	payload := min(samples/10, maxSilenceBytes)

	buf := make([]byte, headerSize+payload)
	copy(buf, []byte{0xFF, 0xFB, 0x90, 0x00})
	return buf
}

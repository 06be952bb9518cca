package synth

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/sheetvoice/internal/metrics"
)

// Provider is the synthesis entry point used by the pipeline. Which
// Synthesizer it holds is decided once at construction.
type Provider struct {
	synth            Synthesizer
	voices           VoiceLister
	primaryAvailable bool
	region           string
	logger           *slog.Logger
}

// Options configures NewProvider.
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Metrics         *metrics.Collector
	Logger          *slog.Logger
}

// NewProvider selects Polly wrapped with the placeholder fallback when
// credentials are present, and the placeholder generator alone otherwise.
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
		logger.Warn("speech service credentials not configured, running in fallback mode")
		return NewProviderWith(nil, nil, opts.Region, opts.Metrics, logger), nil
	}

	primary, err := NewPollyFromCredentials(ctx, opts.Region, opts.AccessKeyID, opts.SecretAccessKey, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("speech service configured", "provider", "polly", "region", opts.Region)
	return NewProviderWith(primary, primary, opts.Region, opts.Metrics, logger), nil
}

// NewProviderWith assembles a Provider from explicit parts. A nil primary
// yields a fallback-only provider.
func NewProviderWith(primary Synthesizer, voices VoiceLister, region string, collector *metrics.Collector, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{voices: voices, region: region, logger: logger}
	if primary == nil {
		p.synth = NewSilence(NoteNotConfigured)
		return p
	}
	p.synth = WithFallback(primary, NewSilence(NotePrimaryFailed), collector, logger)
	p.primaryAvailable = true
	return p
}

// Synthesize converts text to audio. It only fails if the fallback itself fails.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (*Audio, error) {
	return p.synth.Synthesize(ctx, text, voiceID)
}

// PrimaryAvailable reports whether a primary service was configured at startup.
// It does not gate per-call fallback.
func (p *Provider) PrimaryAvailable() bool {
	return p.primaryAvailable
}

// VoiceList is the result of Voices.
type VoiceList struct {
	Voices       []Voice `json:"voices"`
	FallbackMode bool    `json:"fallbackMode"`
}

// Voices lists the primary's voices, or FallbackVoices when there is no
// primary or the listing fails.
func (p *Provider) Voices(ctx context.Context) VoiceList {
	if p.voices == nil {
		return VoiceList{Voices: FallbackVoices, FallbackMode: true}
	}
	voices, err := p.voices.Voices(ctx)
	if err != nil || len(voices) == 0 {
		p.logger.Warn("failed to list voices, serving fallback list", "error", err)
		return VoiceList{Voices: FallbackVoices, FallbackMode: true}
	}
	return VoiceList{Voices: voices}
}

// Status summarizes provider configuration for clients.
type Status struct {
	Configured   bool   `json:"configured"`
	FallbackMode bool   `json:"fallbackMode"`
	Region       string `json:"region,omitempty"`
	Message      string `json:"message"`
}

// Status reports whether the provider is in fallback mode.
func (p *Provider) Status() Status {
	if p.primaryAvailable {
		return Status{Configured: true, Region: p.region, Message: "Speech service configured"}
	}
	return Status{FallbackMode: true, Message: "Speech service not configured, placeholder audio will be generated"}
}

package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// PollyAPI is the subset of the Polly client used here.
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// Polly is the primary Synthesizer backed by Amazon Polly.
type Polly struct {
	api    PollyAPI
	engine types.Engine
	logger *slog.Logger
}

// NewPolly wraps an existing Polly client.
func NewPolly(api PollyAPI, logger *slog.Logger) *Polly {
	if logger == nil {
		logger = slog.Default()
	}
	return &Polly{api: api, engine: types.EngineStandard, logger: logger}
}

// NewPollyFromCredentials builds a Polly client from static credentials.
func NewPollyFromCredentials(ctx context.Context, region, accessKeyID, secretAccessKey string, logger *slog.Logger) (*Polly, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewPolly(polly.NewFromConfig(cfg), logger), nil
}

// Synthesize requests MP3 speech for text. Every failure is a *ProviderError.
func (p *Polly) Synthesize(ctx context.Context, text, voiceID string) (*Audio, error) {
	out, err := p.api.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(text),
		TextType:     types.TextTypeText,
		VoiceId:      types.VoiceId(voiceID),
		Engine:       p.engine,
	})
	if err != nil {
		return nil, &ProviderError{Provider: "polly", VoiceID: voiceID, Err: err}
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, &ProviderError{Provider: "polly", VoiceID: voiceID, Err: fmt.Errorf("read audio stream: %w", err)}
	}
	if len(data) == 0 {
		return nil, &ProviderError{Provider: "polly", VoiceID: voiceID, Err: errors.New("empty audio stream")}
	}

	p.logger.Debug("speech synthesized", "voice", voiceID, "bytes", len(data))
	return &Audio{Data: data, Method: models.MethodPrimary}, nil
}

// Voices lists every voice the service offers, following pagination.
func (p *Polly) Voices(ctx context.Context) ([]Voice, error) {
	var (
		voices []Voice
		input  = &polly.DescribeVoicesInput{}
	)
	for {
		out, err := p.api.DescribeVoices(ctx, input)
		if err != nil {
			return nil, &ProviderError{Provider: "polly", Err: err}
		}
		for _, v := range out.Voices {
			voices = append(voices, Voice{
				ID:           string(v.Id),
				Name:         aws.ToString(v.Name),
				Gender:       string(v.Gender),
				LanguageCode: string(v.LanguageCode),
				LanguageName: aws.ToString(v.LanguageName),
			})
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return voices, nil
		}
		input.NextToken = out.NextToken
	}
}

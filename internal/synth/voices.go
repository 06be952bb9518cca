package synth

import "context"

// Voice describes a selectable synthesis voice.
type Voice struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Gender       string `json:"gender"`
	LanguageCode string `json:"languageCode"`
	LanguageName string `json:"languageName"`
}

// VoiceLister lists the voices a speech service offers.
type VoiceLister interface {
	Voices(ctx context.Context) ([]Voice, error)
}

// FallbackVoices is served when the speech service is unavailable.
var FallbackVoices = []Voice{
	{ID: "Joanna", Name: "Joanna", Gender: "Female", LanguageCode: "en-US", LanguageName: "US English"},
	{ID: "Matthew", Name: "Matthew", Gender: "Male", LanguageCode: "en-US", LanguageName: "US English"},
	{ID: "Amy", Name: "Amy", Gender: "Female", LanguageCode: "en-GB", LanguageName: "British English"},
	{ID: "Brian", Name: "Brian", Gender: "Male", LanguageCode: "en-GB", LanguageName: "British English"},
	{ID: "Emma", Name: "Emma", Gender: "Female", LanguageCode: "en-GB", LanguageName: "British English"},
	{ID: "Justin", Name: "Justin", Gender: "Male", LanguageCode: "en-US", LanguageName: "US English"},
}

// Package models defines data structures shared across the sheetvoice pipeline.
package models

// MaxTextLength is the maximum number of characters (code points) in a record's text.
const MaxTextLength = 3000

// TextRecord is one (id, text) pair extracted from an input document.
type TextRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Method identifies which synthesis path produced an audio artifact.
type Method string

const (
	MethodPrimary  Method = "primary"
	MethodFallback Method = "fallback"
)

// Outcome is the per-record result of attempting synthesis.
type Outcome struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AudioRef string `json:"audioFile,omitempty"`
	Success  bool   `json:"success"`
	Method   Method `json:"method,omitempty"`
	Note     string `json:"note,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Tally counts successful and failed outcomes.
func Tally(outcomes []Outcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

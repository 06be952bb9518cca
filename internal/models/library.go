package models

import "time"

// LibraryEntry is the archived result of one completed job.
type LibraryEntry struct {
	ID         string    `json:"id"`
	SourceName string    `json:"fileName"`
	SourcePath string    `json:"filePath,omitempty"`
	CreatedAt  time.Time `json:"uploadDate"`
	Total      int       `json:"totalItems"`
	Succeeded  int       `json:"processedItems"`
	Failed     int       `json:"failedItems"`
	Voice      string    `json:"voice"`
	Outcomes   []Outcome `json:"results"`
}

// AudioRefs returns every audio reference held by the entry's outcomes.
func (e LibraryEntry) AudioRefs() []string {
	refs := make([]string, 0, len(e.Outcomes))
	for _, o := range e.Outcomes {
		if o.AudioRef != "" {
			refs = append(refs, o.AudioRef)
		}
	}
	return refs
}

package models

import "time"

// JobStatus represents the state of a conversion job.
type JobStatus string

const (
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusSynthesizing JobStatus = "synthesizing"
	JobStatusSaving       JobStatus = "saving"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a point-in-time view of one conversion job.
type Job struct {
	ID         string     `json:"jobId"`
	Status     JobStatus  `json:"status"`
	Total      int        `json:"total"`
	Completed  int        `json:"completed"`
	Current    string     `json:"current,omitempty"`
	Progress   int        `json:"progress"` // percent, 0-100
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Error      string     `json:"error,omitempty"`
	LibraryRef string     `json:"libraryId,omitempty"`
	Outcomes   []Outcome  `json:"results,omitempty"`
}

// Progress is emitted once per processed record.
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Current   string `json:"current"`
}

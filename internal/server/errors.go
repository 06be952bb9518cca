package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/raphaelgruber/sheetvoice/internal/archive"
	"github.com/raphaelgruber/sheetvoice/internal/extract"
	"github.com/raphaelgruber/sheetvoice/internal/jobs"
	"github.com/raphaelgruber/sheetvoice/internal/service"
	"github.com/raphaelgruber/sheetvoice/internal/storage"
)

// ErrorResponse is the body of every failed request.
// JobID is set when a failed upload still created a job.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	JobID   string `json:"jobId,omitempty"`
}

// statusFor maps a service error to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var (
		formatErr     *extract.FormatError
		validationErr *extract.ValidationError
	)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound, "Job not found"
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "Library entry not found"
	case errors.As(err, &formatErr), errors.As(err, &validationErr):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidAudioRef), errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest, "Invalid filename"
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "Audio file not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// fail writes the mapped error response. Unexpected errors are logged; their
// details never reach the client.
func (s *Server) fail(w http.ResponseWriter, err error) {
	s.failJob(w, "", err)
}

// failJob is fail for errors that belong to an already created job.
func (s *Server) failJob(w http.ResponseWriter, jobID string, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", "job_id", jobID, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg, JobID: jobID})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

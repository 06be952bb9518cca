package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/extract"
	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// MessageResponse acknowledges an operation without a payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// VoiceTestRequest is the body of POST /api/voices/test.
type VoiceTestRequest struct {
	VoiceID string `json:"voiceId"`
	Text    string `json:"text"`
}

// VoiceTestResponse describes the synthesized test clip.
type VoiceTestResponse struct {
	Success   bool   `json:"success"`
	AudioFile string `json:"audioFile"`
	AudioURL  string `json:"audioUrl"`
	Voice     string `json:"voice"`
	Method    string `json:"method"`
	Note      string `json:"note,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	tooLargeMsg := fmt.Sprintf("File too large. Maximum size is %d MB", max(s.maxUpload>>20, 1))
	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(extract.SupportedExtensions, ext) {
		writeError(w, http.StatusBadRequest, "Invalid file type. Only Excel (.xls, .xlsx, .xlsm) and CSV files are allowed")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, fmt.Errorf("read upload: %w", err))
		return
	}

	jobID, err := s.conv.Submit(r.Context(), header.Filename, data, r.FormValue("voice"))
	if err != nil {
		s.failJob(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, UploadResponse{
		Success: true,
		JobID:   jobID,
		Message: "File uploaded successfully. Processing started.",
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	job, err := s.conv.Job(r.PathValue("jobId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.conv.Jobs())
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.conv.Library(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []models.LibraryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.conv.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.conv.Entry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.DeleteEntry(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Library entry deleted"})
}

// handleAudio serves a stored MP3. Downloads are sent as attachments;
// playback is inline and honors Range requests.
func (s *Server) handleAudio(download bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("file")
		f, info, err := s.conv.OpenAudio(name)
		if err != nil {
			s.fail(w, err)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "audio/mpeg")
		if download {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		} else {
			w.Header().Set("Content-Disposition", "inline")
			w.Header().Set("Accept-Ranges", "bytes")
		}
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.conv.Voices(r.Context()))
}

func (s *Server) handleVoiceTest(w http.ResponseWriter, r *http.Request) {
	var req VoiceTestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	clip, err := s.conv.TestVoice(r.Context(), req.VoiceID, req.Text)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VoiceTestResponse{
		Success:   true,
		AudioFile: clip.AudioFile,
		AudioURL:  "/api/library/play/" + clip.AudioFile,
		Voice:     clip.Voice,
		Method:    string(clip.Method),
		Note:      clip.Note,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.conv.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

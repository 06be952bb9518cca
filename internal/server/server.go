// Package server exposes the conversion service over HTTP.
package server

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/sheetvoice/internal/archive"
	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/raphaelgruber/sheetvoice/internal/service"
	"github.com/raphaelgruber/sheetvoice/internal/synth"
)

// DefaultMaxUploadBytes limits multipart uploads.
const DefaultMaxUploadBytes = 10 << 20

// defaultPollInterval is how often the progress stream samples a job.
const defaultPollInterval = 500 * time.Millisecond

// Converter is the service surface the HTTP layer depends on.
type Converter interface {
	Submit(ctx context.Context, sourceName string, data []byte, voice string) (string, error)
	Job(id string) (models.Job, error)
	Jobs() []models.Job
	Library(ctx context.Context) ([]models.LibraryEntry, error)
	Entry(ctx context.Context, id string) (models.LibraryEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	Stats(ctx context.Context) (archive.Stats, error)
	OpenAudio(name string) (*os.File, fs.FileInfo, error)
	Voices(ctx context.Context) synth.VoiceList
	TestVoice(ctx context.Context, voice, text string) (service.TestClip, error)
	Status() service.Status
}

// Server routes API requests to a Converter.
type Server struct {
	conv         Converter
	logger       *slog.Logger
	maxUpload    int64
	pollInterval time.Duration
	upgrader     websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes sets the upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithPollInterval sets how often the progress stream pushes snapshots.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// New creates a server for conv.
func New(conv Converter, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		conv:         conv,
		logger:       logger,
		maxUpload:    DefaultMaxUploadBytes,
		pollInterval: defaultPollInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CLI and same-origin clients only
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/upload/progress/{jobId}", s.handleProgress)
	mux.HandleFunc("GET /api/upload/progress/{jobId}/stream", s.handleProgressStream)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)

	mux.HandleFunc("GET /api/library", s.handleLibrary)
	mux.HandleFunc("GET /api/library/stats/summary", s.handleStats)
	mux.HandleFunc("GET /api/library/{id}", s.handleEntry)
	mux.HandleFunc("DELETE /api/library/{id}", s.handleDeleteEntry)
	mux.HandleFunc("GET /api/library/audio/{file}", s.handleAudio(true))
	mux.HandleFunc("GET /api/library/play/{file}", s.handleAudio(false))

	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("POST /api/voices/test", s.handleVoiceTest)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	return LoggingMiddleware(s.logger)(mux)
}

// Package archive persists completed jobs as library entries.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/sheetvoice/internal/metrics"
	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// Backend is the persistence layer behind a Store. Insert must be
// all-or-nothing: a failed insert leaves no trace visible to List or Get.
type Backend interface {
	Insert(ctx context.Context, entry models.LibraryEntry) error
	List(ctx context.Context) ([]models.LibraryEntry, error)
	Get(ctx context.Context, id string) (models.LibraryEntry, error)
	// Remove deletes the entry and returns it, or ErrNotFound.
	Remove(ctx context.Context, id string) (models.LibraryEntry, error)
	Close() error
}

// Remover deletes a stored artifact by name.
type Remover interface {
	Remove(name string) error
}

// Store is the library archive: a Backend plus cascade deletion of the
// audio artifacts and source documents an entry references.
type Store struct {
	backend Backend
	audio   Remover
	sources Remover
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics records save timings.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store. sources may be nil when source documents are not retained.
func New(backend Backend, audio, sources Remover, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		audio:   audio,
		sources: sources,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEntry builds an entry for a finished batch. The succeeded and failed
// counters are computed here, once.
func NewEntry(sourceName, sourcePath, voice string, outcomes []models.Outcome) models.LibraryEntry {
	succeeded, failed := models.Tally(outcomes)
	return models.LibraryEntry{
		SourceName: sourceName,
		SourcePath: sourcePath,
		Total:      len(outcomes),
		Succeeded:  succeeded,
		Failed:     failed,
		Voice:      voice,
		Outcomes:   slices.Clone(outcomes),
	}
}

// Save stores entry and returns its id. An empty ID is assigned and a zero
// CreatedAt is stamped. Backend failures are returned as *PersistenceError.
func (s *Store) Save(ctx context.Context, entry models.LibraryEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	start := time.Now()
	if err := s.backend.Insert(ctx, entry); err != nil {
		s.metrics.RecordError(metrics.OpArchiveSave)
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return "", err
		}
		return "", &PersistenceError{Op: "save", Err: err}
	}
	s.metrics.RecordTiming(metrics.OpArchiveSave, time.Since(start))

	s.logger.Info("library entry saved", "library_id", entry.ID, "source", entry.SourceName,
		"total", entry.Total, "succeeded", entry.Succeeded, "failed", entry.Failed)
	return entry.ID, nil
}

// List returns every entry, most recent first.
func (s *Store) List(ctx context.Context) ([]models.LibraryEntry, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	slices.SortStableFunc(entries, func(a, b models.LibraryEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return entries, nil
}

// Get returns one entry or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (models.LibraryEntry, error) {
	return s.backend.Get(ctx, id)
}

// Delete removes the entry, then each referenced audio artifact and the
// retained source document. Artifact failures are logged and skipped.
func (s *Store) Delete(ctx context.Context, id string) error {
	entry, err := s.backend.Remove(ctx, id)
	if err != nil {
		return err
	}

	removed := 0
	for _, ref := range entry.AudioRefs() {
		if err := s.audio.Remove(ref); err != nil {
			s.logArtifactFailure("audio", ref, entry.ID, err)
			continue
		}
		removed++
	}
	if entry.SourcePath != "" && s.sources != nil {
		if err := s.sources.Remove(entry.SourcePath); err != nil {
			s.logArtifactFailure("source", entry.SourcePath, entry.ID, err)
		}
	}

	s.logger.Info("library entry deleted", "library_id", entry.ID, "audio_removed", removed)
	return nil
}

func (s *Store) logArtifactFailure(kind, name, libraryID string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("artifact already missing", "kind", kind, "name", name, "library_id", libraryID)
		return
	}
	s.logger.Error("failed to remove artifact", "kind", kind, "name", name, "library_id", libraryID, "error", err)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Stats summarizes the library.
type Stats struct {
	TotalLibraries int     `json:"totalLibraries"`
	TotalItems     int     `json:"totalItems"`
	Succeeded      int     `json:"processedItems"`
	Failed         int     `json:"failedItems"`
	SuccessRate    float64 `json:"successRate"` // percent
	AudioFiles     int     `json:"audioFiles"`
}

// ComputeStats aggregates the stored counters of entries.
func ComputeStats(entries []models.LibraryEntry, audioFiles int) Stats {
	st := Stats{TotalLibraries: len(entries), AudioFiles: audioFiles}
	for _, e := range entries {
		st.TotalItems += e.Total
		st.Succeeded += e.Succeeded
		st.Failed += e.Failed
	}
	if st.TotalItems > 0 {
		st.SuccessRate = float64(st.Succeeded) * 100 / float64(st.TotalItems)
	}
	return st
}

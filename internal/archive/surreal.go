package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/sheetvoice/internal/db"
	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// LibraryDB is the subset of the SurrealDB client used by Surreal.
type LibraryDB interface {
	CreateLibraryEntry(ctx context.Context, e models.LibraryEntry) error
	ListLibraryEntries(ctx context.Context) ([]models.LibraryEntry, error)
	GetLibraryEntry(ctx context.Context, id string) (models.LibraryEntry, error)
	DeleteLibraryEntry(ctx context.Context, id string) (models.LibraryEntry, error)
	Close(ctx context.Context) error
}

// Surreal is a Backend over SurrealDB. Each entry is written by one
// CREATE statement, so it is either fully stored or absent.
type Surreal struct {
	client LibraryDB
}

// NewSurreal wraps a connected client.
func NewSurreal(client LibraryDB) *Surreal {
	return &Surreal{client: client}
}

// OpenSurreal connects to SurrealDB and initializes the library schema.
func OpenSurreal(ctx context.Context, cfg db.Config) (*Surreal, error) {
	client, err := db.NewClient(ctx, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to surrealdb: %w", err)
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return NewSurreal(client), nil
}

func (s *Surreal) Insert(ctx context.Context, entry models.LibraryEntry) error {
	if err := s.client.CreateLibraryEntry(ctx, entry); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

func (s *Surreal) List(ctx context.Context) ([]models.LibraryEntry, error) {
	return s.client.ListLibraryEntries(ctx)
}

func (s *Surreal) Get(ctx context.Context, id string) (models.LibraryEntry, error) {
	entry, err := s.client.GetLibraryEntry(ctx, id)
	return entry, mapNotFound(err, id)
}

func (s *Surreal) Remove(ctx context.Context, id string) (models.LibraryEntry, error) {
	entry, err := s.client.DeleteLibraryEntry(ctx, id)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return entry, &PersistenceError{Op: "delete", Err: err}
	}
	return entry, mapNotFound(err, id)
}

func (s *Surreal) Close() error {
	return s.client.Close(context.Background())
}

func mapNotFound(err error, id string) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/models"
	_ "modernc.org/sqlite"
)

// SQLite stores one row per entry; outcomes are kept as a JSON column.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the library database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	logger.Info("library database opened", "path", path)
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS library_entries (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    source_name TEXT NOT NULL,
    source_path TEXT NOT NULL DEFAULT '',
    voice TEXT NOT NULL,
    created_at TEXT NOT NULL,
    total INTEGER NOT NULL,
    succeeded INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    outcomes BLOB NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

const entryColumns = `id, source_name, source_path, voice, created_at, total, succeeded, failed, outcomes`

func (s *SQLite) Insert(ctx context.Context, entry models.LibraryEntry) error {
	outcomes, err := json.Marshal(entry.Outcomes)
	if err != nil {
		return &PersistenceError{Op: "save", Err: fmt.Errorf("encode outcomes: %w", err)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO library_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SourceName, entry.SourcePath, entry.Voice,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		entry.Total, entry.Succeeded, entry.Failed, outcomes,
	)
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]models.LibraryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM library_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LibraryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLite) Get(ctx context.Context, id string) (models.LibraryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM library_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LibraryEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, err
}

func (s *SQLite) Remove(ctx context.Context, id string) (models.LibraryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.LibraryEntry{}, &PersistenceError{Op: "delete", Err: err}
	}
	defer tx.Rollback()

	entry, err := scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM library_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.LibraryEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.LibraryEntry{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM library_entries WHERE id = ?`, id); err != nil {
		return models.LibraryEntry{}, &PersistenceError{Op: "delete", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return models.LibraryEntry{}, &PersistenceError{Op: "delete", Err: err}
	}
	return entry, nil
}

// Close releases underlying resources.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.LibraryEntry, error) {
	var (
		e         models.LibraryEntry
		createdAt string
		outcomes  []byte
	)
	err := row.Scan(&e.ID, &e.SourceName, &e.SourcePath, &e.Voice, &createdAt,
		&e.Total, &e.Succeeded, &e.Failed, &outcomes)
	if err != nil {
		return e, err
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return e, fmt.Errorf("parse created_at for %s: %w", e.ID, err)
	}
	if err := json.Unmarshal(outcomes, &e.Outcomes); err != nil {
		return e, fmt.Errorf("decode outcomes for %s: %w", e.ID, err)
	}
	return e, nil
}

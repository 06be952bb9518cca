package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// libraryRow is the stored shape of a library entry. The record id mirrors
// entry_id; rows are selected with OMIT id so they decode without RecordID.
type libraryRow struct {
	EntryID    string           `json:"entry_id"`
	SourceName string           `json:"source_name"`
	SourcePath string           `json:"source_path"`
	Voice      string           `json:"voice"`
	CreatedAt  time.Time        `json:"created_at"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Outcomes   []models.Outcome `json:"outcomes"`
}

func (r libraryRow) entry() models.LibraryEntry {
	return models.LibraryEntry{
		ID:         r.EntryID,
		SourceName: r.SourceName,
		SourcePath: r.SourcePath,
		CreatedAt:  r.CreatedAt,
		Total:      r.Total,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Voice:      r.Voice,
		Outcomes:   r.Outcomes,
	}
}

// entryContent converts an entry to plain maps for the CBOR codec.
func entryContent(e models.LibraryEntry) map[string]any {
	outcomes := make([]map[string]any, len(e.Outcomes))
	for i, o := range e.Outcomes {
		outcomes[i] = map[string]any{
			"id":        o.ID,
			"text":      o.Text,
			"audioFile": o.AudioRef,
			"success":   o.Success,
			"method":    string(o.Method),
			"note":      o.Note,
			"error":     o.Error,
		}
	}
	return map[string]any{
		"entry_id":    e.ID,
		"source_name": e.SourceName,
		"source_path": e.SourcePath,
		"voice":       e.Voice,
		"created_at":  e.CreatedAt.UTC(),
		"total":       e.Total,
		"succeeded":   e.Succeeded,
		"failed":      e.Failed,
		"outcomes":    outcomes,
	}
}

// CreateLibraryEntry stores an entry in a single CREATE statement.
func (c *Client) CreateLibraryEntry(ctx context.Context, e models.LibraryEntry) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("library_entry", $id) CONTENT $content
	`, map[string]any{"id": e.ID, "content": entryContent(e)})
	if err != nil {
		return fmt.Errorf("create library entry: %w", wrapQueryError(err))
	}
	return nil
}

// ListLibraryEntries returns all entries, oldest first.
func (c *Client) ListLibraryEntries(ctx context.Context) ([]models.LibraryEntry, error) {
	results, err := surrealdb.Query[[]libraryRow](ctx, c.db, `
		SELECT * OMIT id FROM library_entry ORDER BY created_at ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list library entries: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	rows := (*results)[0].Result
	entries := make([]models.LibraryEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}
	return entries, nil
}

// GetLibraryEntry retrieves an entry by id, or ErrNotFound.
func (c *Client) GetLibraryEntry(ctx context.Context, id string) (models.LibraryEntry, error) {
	results, err := surrealdb.Query[[]libraryRow](ctx, c.db, `
		SELECT * OMIT id FROM type::record("library_entry", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return models.LibraryEntry{}, fmt.Errorf("get library entry: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.LibraryEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return (*results)[0].Result[0].entry(), nil
}

// DeleteLibraryEntry removes an entry and returns what was deleted, or ErrNotFound.
func (c *Client) DeleteLibraryEntry(ctx context.Context, id string) (models.LibraryEntry, error) {
	results, err := surrealdb.Query[[]libraryRow](ctx, c.db, `
		DELETE type::record("library_entry", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return models.LibraryEntry{}, fmt.Errorf("delete library entry: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.LibraryEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return (*results)[0].Result[0].entry(), nil
}

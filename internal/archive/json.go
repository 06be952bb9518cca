package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// document is the on-disk layout of a JSONFile.
type document struct {
	Entries []models.LibraryEntry `json:"entries"`
}

// JSONFile keeps the whole library in one JSON document. Every write
// replaces the file through a rename, so readers see the old or the new
// library and never a partial one.
type JSONFile struct {
	mu   sync.Mutex
	path string
}

// OpenJSONFile uses path as the library document, creating its directory.
func OpenJSONFile(path string) (*JSONFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	f := &JSONFile{path: path}
	if _, err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *JSONFile) Insert(_ context.Context, entry models.LibraryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	if slices.ContainsFunc(doc.Entries, func(e models.LibraryEntry) bool { return e.ID == entry.ID }) {
		return &PersistenceError{Op: "save", Err: fmt.Errorf("duplicate library id %s", entry.ID)}
	}
	doc.Entries = append(doc.Entries, entry)
	if err := f.write(doc); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

func (f *JSONFile) List(_ context.Context) ([]models.LibraryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

func (f *JSONFile) Get(_ context.Context, id string) (models.LibraryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return models.LibraryEntry{}, err
	}
	for _, e := range doc.Entries {
		if e.ID == id {
			return e, nil
		}
	}
	return models.LibraryEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (f *JSONFile) Remove(_ context.Context, id string) (models.LibraryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return models.LibraryEntry{}, err
	}
	i := slices.IndexFunc(doc.Entries, func(e models.LibraryEntry) bool { return e.ID == id })
	if i < 0 {
		return models.LibraryEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry := doc.Entries[i]
	doc.Entries = slices.Delete(doc.Entries, i, i+1)
	if err := f.write(doc); err != nil {
		return models.LibraryEntry{}, &PersistenceError{Op: "delete", Err: err}
	}
	return entry, nil
}

func (f *JSONFile) Close() error {
	return nil
}

// load reads the document. A missing file is an empty library.
// Caller must hold f.mu.
func (f *JSONFile) load() (document, error) {
	var doc document
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read library: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse library %s: %w", f.path, err)
	}
	return doc, nil
}

// write replaces the document atomically. Caller must hold f.mu.
func (f *JSONFile) write(doc document) error {
	if doc.Entries == nil {
		doc.Entries = []models.LibraryEntry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode library: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".library-*.json")
	if err != nil {
		return fmt.Errorf("create temp library: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp library: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync temp library: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp library: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace library: %w", err)
	}
	return nil
}

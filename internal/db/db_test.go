//go:build integration

// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/sheetvoice/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	cfg := DefaultConfig()
	cfg.URL = fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port())
	cfg.Namespace = "test"
	cfg.Database = "test"

	testDB, err = NewClient(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func testEntry(id string, created time.Time) models.LibraryEntry {
	return models.LibraryEntry{
		ID:         id,
		SourceName: id + ".csv",
		SourcePath: id + "-upload.csv",
		CreatedAt:  created,
		Total:      2,
		Succeeded:  1,
		Failed:     1,
		Voice:      "Joanna",
		Outcomes: []models.Outcome{
			{ID: "a", Text: "hello", AudioRef: "job_a.mp3", Success: true, Method: models.MethodFallback, Note: "placeholder"},
			{ID: "b", Text: "world", Error: "disk full"},
		},
	}
}

func TestLibraryEntryLifecycle(t *testing.T) {
	ctx := context.Background()
	if err := testDB.Truncate(ctx); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := testDB.CreateLibraryEntry(ctx, testEntry("lib-2", base.Add(time.Minute))); err != nil {
		t.Fatalf("CreateLibraryEntry failed: %v", err)
	}
	if err := testDB.CreateLibraryEntry(ctx, testEntry("lib-1", base)); err != nil {
		t.Fatalf("CreateLibraryEntry failed: %v", err)
	}

	entries, err := testDB.ListLibraryEntries(ctx)
	if err != nil {
		t.Fatalf("ListLibraryEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "lib-1" {
		t.Errorf("Expected oldest entry first, got %q", entries[0].ID)
	}

	got, err := testDB.GetLibraryEntry(ctx, "lib-2")
	if err != nil {
		t.Fatalf("GetLibraryEntry failed: %v", err)
	}
	if got.Succeeded != 1 || got.Failed != 1 || len(got.Outcomes) != 2 {
		t.Errorf("Unexpected entry: %+v", got)
	}
	if got.Outcomes[0].AudioRef != "job_a.mp3" || got.Outcomes[0].Method != models.MethodFallback {
		t.Errorf("Outcome not round-tripped: %+v", got.Outcomes[0])
	}
	if !got.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("Expected created_at %v, got %v", base.Add(time.Minute), got.CreatedAt)
	}

	deleted, err := testDB.DeleteLibraryEntry(ctx, "lib-2")
	if err != nil {
		t.Fatalf("DeleteLibraryEntry failed: %v", err)
	}
	if deleted.SourcePath != "lib-2-upload.csv" {
		t.Errorf("Expected deleted entry to be returned, got %+v", deleted)
	}

	if _, err := testDB.DeleteLibraryEntry(ctx, "lib-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := testDB.GetLibraryEntry(ctx, "lib-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateDuplicateLibraryEntry(t *testing.T) {
	ctx := context.Background()
	entry := testEntry("dup", time.Now().UTC())

	if err := testDB.CreateLibraryEntry(ctx, entry); err != nil {
		t.Fatalf("CreateLibraryEntry failed: %v", err)
	}
	t.Cleanup(func() { _, _ = testDB.DeleteLibraryEntry(ctx, "dup") })

	err := testDB.CreateLibraryEntry(ctx, entry)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

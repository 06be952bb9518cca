package db

// SchemaSQL defines the library tables. Entries are schemaless so nested
// outcome objects need no per-field definitions.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS library_entry SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS library_entry_created ON library_entry FIELDS created_at;
    DEFINE INDEX IF NOT EXISTS library_entry_entry_id ON library_entry FIELDS entry_id UNIQUE;
`

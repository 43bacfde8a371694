package docstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a [MemoryStore] whose writes are persisted to SQLite.
//
// All documents are loaded into memory on open; listeners are served from
// memory exactly like [MemoryStore]. A write is committed to the database
// before any listener sees it, and a database failure fails the write.
type SQLiteStore struct {
	*MemoryStore
	db *sql.DB
}

// OpenSQLite opens (or creates) a document database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SQLiteStore{MemoryStore: NewMemoryStore(), db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.loadAll(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	s.MemoryStore.journal = s
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		fields TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents(collection, seq);
	`)
	return err
}

func (s *SQLiteStore) loadAll() error {
	rows, err := s.db.Query(`SELECT collection, id, seq, fields FROM documents ORDER BY seq`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, id, raw string
			seq           uint64
		)
		if err := rows.Scan(&name, &id, &seq, &raw); err != nil {
			return err
		}
		fields := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return fmt.Errorf("document %s/%s: %w", name, id, err)
		}
		s.MemoryStore.load(name, seq, Document{ID: id, Fields: fields})
	}
	return rows.Err()
}

func (s *SQLiteStore) put(name string, seq uint64, doc Document) error {
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO documents (collection, id, seq, fields, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(collection, id) DO UPDATE SET fields = excluded.fields, updated_at = CURRENT_TIMESTAMP
	`, name, doc.ID, seq, string(raw))
	return err
}

func (s *SQLiteStore) remove(name, id string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE collection = ? AND id = ?`, name, id)
	return err
}

// Close fails open listeners and closes the database.
func (s *SQLiteStore) Close() error {
	_ = s.MemoryStore.Close()
	return s.db.Close()
}

// Package store is the document store: the authority for messages, templates
// and transactions. The vector store is a projection that can be rebuilt from
// these rows. Updates are last-writer-wins per entity.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTemplate indicates two templates sharing
	// (type, buyer, seller, cluster) — store corruption.
	ErrDuplicateTemplate = errors.New("duplicate template for cluster key")
)

// Store wraps the SQLite database holding all business collections.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "mtmatch.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

// DB exposes the handle so the vector store can share the same database file.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initialize() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			message_type TEXT NOT NULL,
			raw_content TEXT NOT NULL,
			parsed_fields TEXT NOT NULL DEFAULT '{}',
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			status TEXT NOT NULL,
			cluster_id TEXT NOT NULL DEFAULT '',
			template_id TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_status ON messages (status);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_type ON messages (message_type);`,
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			message_type TEXT NOT NULL,
			buyer_id TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			template_content TEXT NOT NULL,
			variable_fields TEXT NOT NULL DEFAULT '[]',
			cluster_id TEXT NOT NULL,
			centroid TEXT NOT NULL DEFAULT '[]',
			message_count INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			quality_score REAL NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			sample_message_ids TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			UNIQUE (message_type, buyer_id, seller_id, cluster_id)
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			swift_message_id TEXT NOT NULL UNIQUE,
			template_id TEXT NOT NULL,
			message_type TEXT NOT NULL,
			extracted_data TEXT NOT NULL DEFAULT '{}',
			user_entered_data TEXT NOT NULL DEFAULT '{}',
			match_confidence REAL NOT NULL DEFAULT 0,
			matching_details TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			buyer_id TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			structured_analysis TEXT,
			processed_at DATETIME NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			audit_trail TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS system_configuration (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
	}
	for _, stmt := range tables {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func marshal(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalInto(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

func now() time.Time { return time.Now().UTC() }

// Package store archives harvested records in a local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"xharvest/internal/types"
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// HarvestRecord summarizes one archived run.
type HarvestRecord struct {
	ID         string
	Target     string
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
	PostCount  int
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS harvests (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		outcome TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		post_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS posts (
		harvest_id TEXT NOT NULL REFERENCES harvests(id),
		position INTEGER NOT NULL,
		post_id TEXT NOT NULL,
		handle TEXT NOT NULL,
		display_name TEXT,
		posted_at TEXT,
		body_text TEXT,
		payload TEXT NOT NULL,
		scraped_at DATETIME NOT NULL,
		PRIMARY KEY (harvest_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_posts_post_id ON posts(post_id);
	CREATE INDEX IF NOT EXISTS idx_posts_handle ON posts(handle);
	CREATE INDEX IF NOT EXISTS idx_harvests_started ON harvests(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordHarvest archives one run and its records in a transaction.
// Returns the generated harvest ID.
func (s *Store) RecordHarvest(target, outcome string, startedAt time.Time, posts []types.Post) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO harvests (id, target, outcome, started_at, finished_at, post_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, target, outcome, startedAt, now, len(posts))
	if err != nil {
		return "", err
	}

	for i := range posts {
		p := &posts[i]
		payload, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		// Keyed by position within the run, not post_id: degraded
		// records without a permalink all carry an empty ID, and the
		// archive must mirror the exported output row for row.
		_, err = tx.Exec(`
			INSERT INTO posts (harvest_id, position, post_id, handle,
				display_name, posted_at, body_text, payload, scraped_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, i, p.ID, p.Handle, p.DisplayName, p.PostedAt, p.Text,
			string(payload), now)
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Harvests returns archived runs, newest first.
func (s *Store) Harvests(limit int) ([]HarvestRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, target, outcome, started_at, finished_at, post_count
		FROM harvests
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []HarvestRecord
	for rows.Next() {
		var r HarvestRecord
		err := rows.Scan(&r.ID, &r.Target, &r.Outcome, &r.StartedAt, &r.FinishedAt, &r.PostCount)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// HarvestPosts returns the archived records for one run.
func (s *Store) HarvestPosts(harvestID string) ([]types.Post, error) {
	rows, err := s.db.Query(`
		SELECT payload FROM posts WHERE harvest_id = ? ORDER BY position
	`, harvestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []types.Post
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p types.Post
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// PostSeen checks whether a post ID appears in any archived run.
func (s *Store) PostSeen(postID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM posts WHERE post_id = ?)`, postID).Scan(&exists)
	return exists, err
}

// Package journal keeps an append-only SQLite record of lifecycle events
// across all proposals, with FTS5 search over their details.
//
// The proposal records remain the source of truth; the journal is a
// secondary index for history queries and may be disabled.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is replaced in tests.
var timeNow = time.Now

// DBFile is the journal database file name inside the data dir.
const DBFile = "journal.db"

// ─── Types ───────────────────────────────────────────────────────────────────

// Entry is one journaled event.
type Entry struct {
	ID         int64  `json:"id"`
	ProposalID string `json:"proposal_id"`
	Title      string `json:"title"`
	Action     string `json:"action"`
	Actor      string `json:"actor,omitempty"`
	Status     string `json:"status"`
	Details    string `json:"details,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// SearchResult embeds an Entry with its FTS5 rank score.
type SearchResult struct {
	Entry
	Rank float64 `json:"rank"`
}

// Stats holds aggregate journal counts.
type Stats struct {
	TotalEvents    int            `json:"total_events"`
	TotalProposals int            `json:"total_proposals"`
	ByAction       map[string]int `json:"by_action"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds journal configuration.
type Config struct {
	DataDir          string
	MaxSearchResults int
}

// DefaultConfig returns the journal defaults for a data dir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:          dataDir,
		MaxSearchResults: 50,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the journal engine backed by SQLite + FTS5.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New opens the journal in cfg.DataDir with WAL mode and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(cfg.DataDir, DBFile))
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			proposal_id TEXT NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			action      TEXT NOT NULL,
			actor       TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			details     TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_proposal ON events(proposal_id, id);
		CREATE INDEX IF NOT EXISTS idx_events_created  ON events(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_events_action   ON events(action);

		CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
			title,
			action,
			actor,
			details,
			content='events',
			content_rowid='id'
		);

		CREATE TRIGGER IF NOT EXISTS events_fts_insert AFTER INSERT ON events BEGIN
			INSERT INTO events_fts(rowid, title, action, actor, details)
			VALUES (new.id, new.title, new.action, new.actor, new.details);
		END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// Record appends an event and returns its id. CreatedAt defaults to now.
func (s *Store) Record(e Entry) (int64, error) {
	if e.ProposalID == "" || e.Action == "" {
		return 0, fmt.Errorf("journal: proposal id and action are required")
	}
	if e.CreatedAt == "" {
		e.CreatedAt = timeNow().UTC().Format(time.RFC3339Nano)
	}
	res, err := s.db.Exec(
		`INSERT INTO events (proposal_id, title, action, actor, status, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ProposalID, e.Title, e.Action, e.Actor, e.Status, e.Details, e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: record: %w", err)
	}
	return res.LastInsertId()
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// ForProposal returns every event of one proposal in insertion order.
func (s *Store) ForProposal(proposalID string) ([]Entry, error) {
	return s.queryEntries(
		`SELECT id, proposal_id, title, action, actor, status, details, created_at
		 FROM events WHERE proposal_id = ? ORDER BY id ASC`, proposalID)
}

// Recent returns the latest events across all proposals, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryEntries(
		`SELECT id, proposal_id, title, action, actor, status, details, created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
}

// Search runs a full-text query over titles, actions, actors and details.
// An empty query falls back to Recent.
func (s *Store) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults && s.cfg.MaxSearchResults > 0 {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		recent, err := s.Recent(limit)
		if err != nil {
			return nil, err
		}
		results := make([]SearchResult, len(recent))
		for i, e := range recent {
			results[i] = SearchResult{Entry: e}
		}
		return results, nil
	}

	rows, err := s.db.Query(`
		SELECT e.id, e.proposal_id, e.title, e.action, e.actor, e.status, e.details, e.created_at,
		       fts.rank
		FROM events_fts fts
		JOIN events e ON e.id = fts.rowid
		WHERE events_fts MATCH ?
		ORDER BY fts.rank LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.ProposalID, &r.Title, &r.Action, &r.Actor,
			&r.Status, &r.Details, &r.CreatedAt, &r.Rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Stats returns aggregate journal statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{ByAction: map[string]int{}}
	if err := s.db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT proposal_id) FROM events").
		Scan(&stats.TotalEvents, &stats.TotalProposals); err != nil {
		return nil, fmt.Errorf("journal: stats: %w", err)
	}

	rows, err := s.db.Query("SELECT action, COUNT(*) FROM events GROUP BY action")
	if err != nil {
		return nil, fmt.Errorf("journal: stats by action: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		stats.ByAction[action] = n
	}
	return stats, rows.Err()
}

func (s *Store) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ProposalID, &e.Title, &e.Action, &e.Actor,
			&e.Status, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "cache ttl" → `"cache" "ttl"`
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		words = append(words, `"`+w+`"`)
	}
	return strings.Join(words, " ")
}

// Package store is the SQLite-backed persistence layer for generation
// records, the only state that survives a process restart.
//
// All mutations are scoped to a single id's single row, so last-writer-wins
// is sufficient and no multi-record transactions are needed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Record is one persisted generation attempt, keyed by id for dedupe and
// resume. Token totals only grow; Stage only moves forward except that a
// resume re-enters the stage it was interrupted at.
type Record struct {
	ID           string `json:"id"`
	InputTopic   string `json:"input_topic"`
	Stage        string `json:"stage"`
	Document     string `json:"document"`
	SideArtifact string `json:"side_artifact"`

	TokensInput  int64 `json:"tokens_input"`
	TokensOutput int64 `json:"tokens_output"`
	TokensTotal  int64 `json:"tokens_total"`

	StartedAtUnixMs int64 `json:"started_at_unix_ms"`
	UpdatedAtUnixMs int64 `json:"updated_at_unix_ms"`

	IsRunning bool   `json:"is_running"`
	Failure   string `json:"failure,omitempty"`
}

// Store wraps the sqlite database holding generation records.
type Store struct {
	db      *sql.DB
	entropy *rand.Rand
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewID mints a lexicographically sortable generation id.
func (s *Store) NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}

	const targetVersion = 1
	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS generations (
  id TEXT PRIMARY KEY,
  input_topic TEXT NOT NULL DEFAULT '',
  stage TEXT NOT NULL DEFAULT '',
  document TEXT NOT NULL DEFAULT '',
  side_artifact TEXT NOT NULL DEFAULT '',
  tokens_input INTEGER NOT NULL DEFAULT 0,
  tokens_output INTEGER NOT NULL DEFAULT 0,
  tokens_total INTEGER NOT NULL DEFAULT 0,
  started_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL,
  is_running INTEGER NOT NULL DEFAULT 0,
  failure TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_generations_running ON generations(is_running, updated_at_unix_ms DESC);
`); err != nil {
		return err
	}
	if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return nil
}

// Create inserts a fresh record. It fails when the id is already present;
// callers use Get first to decide between create and resume.
func (s *Store) Create(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return errors.New("missing id")
	}
	now := time.Now().UnixMilli()
	if rec.StartedAtUnixMs <= 0 {
		rec.StartedAtUnixMs = now
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO generations (id, input_topic, stage, document, side_artifact,
  tokens_input, tokens_output, tokens_total,
  started_at_unix_ms, updated_at_unix_ms, is_running, failure)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, id, rec.InputTopic, rec.Stage, rec.Document, rec.SideArtifact,
		rec.TokensInput, rec.TokensOutput, rec.TokensTotal,
		rec.StartedAtUnixMs, now, boolToInt(rec.IsRunning), rec.Failure)
	return err
}

// Save overwrites the record for rec.ID (last-writer-wins).
func (s *Store) Save(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return errors.New("missing id")
	}
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
UPDATE generations SET
  input_topic = ?, stage = ?, document = ?, side_artifact = ?,
  tokens_input = ?, tokens_output = ?, tokens_total = ?,
  updated_at_unix_ms = ?, is_running = ?, failure = ?
WHERE id = ?
`, rec.InputTopic, rec.Stage, rec.Document, rec.SideArtifact,
		rec.TokensInput, rec.TokensOutput, rec.TokensTotal,
		now, boolToInt(rec.IsRunning), rec.Failure, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

// Get returns the record for id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing id")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT id, input_topic, stage, document, side_artifact,
  tokens_input, tokens_output, tokens_total,
  started_at_unix_ms, updated_at_unix_ms, is_running, failure
FROM generations WHERE id = ?
`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetRunning flips the running flag without touching the rest of the record.
// A non-empty failure message is recorded alongside; success clears it.
func (s *Store) SetRunning(ctx context.Context, id string, running bool, failure string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("missing id")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE generations SET is_running = ?, failure = ?, updated_at_unix_ms = ? WHERE id = ?
`, boolToInt(running), truncate(failure, 600), time.Now().UnixMilli(), id)
	return err
}

// Delete clears the resumable record for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE id = ?`, strings.TrimSpace(id))
	return err
}

// ListRecent returns records ordered by last update, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, input_topic, stage, document, side_artifact,
  tokens_input, tokens_output, tokens_total,
  started_at_unix_ms, updated_at_unix_ms, is_running, failure
FROM generations ORDER BY updated_at_unix_ms DESC, id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ListActive returns records still marked running, newest first. Used to
// find generations left behind by an interrupted process.
func (s *Store) ListActive(ctx context.Context) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, input_topic, stage, document, side_artifact,
  tokens_input, tokens_output, tokens_total,
  started_at_unix_ms, updated_at_unix_ms, is_running, failure
FROM generations WHERE is_running = 1
ORDER BY updated_at_unix_ms DESC, id DESC
`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var running int
	if err := row.Scan(&rec.ID, &rec.InputTopic, &rec.Stage, &rec.Document, &rec.SideArtifact,
		&rec.TokensInput, &rec.TokensOutput, &rec.TokensTotal,
		&rec.StartedAtUnixMs, &rec.UpdatedAtUnixMs, &running, &rec.Failure); err != nil {
		return nil, err
	}
	rec.IsRunning = running != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

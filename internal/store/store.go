// Package store journals accepted submissions to SQLite so an engine can be
// rebuilt by replaying them in order.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/tutorstats/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Submission is one journaled producer call.
type Submission struct {
	ID        int64                `json:"id"`
	Kind      model.SubmissionKind `json:"kind"`
	Payload   json.RawMessage      `json:"payload"`
	CreatedAt time.Time            `json:"created_at"`
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" journals on a single database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_kind ON submissions(kind);

	CREATE TABLE IF NOT EXISTS journal_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a submission and returns its journal ID.
func (s *Store) Append(ctx context.Context, kind model.SubmissionKind, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", kind, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (kind, payload, created_at) VALUES (?, ?, ?)`,
		string(kind), string(data), s.now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return res.LastInsertId()
}

// RecordInteraction journals an accepted interaction event.
func (s *Store) RecordInteraction(ctx context.Context, e model.InteractionEvent) (int64, error) {
	return s.Append(ctx, model.KindInteraction, e)
}

// RecordTranscript journals an accepted session transcript.
func (s *Store) RecordTranscript(ctx context.Context, t model.Transcript) (int64, error) {
	return s.Append(ctx, model.KindTranscript, t)
}

// Count returns the number of journaled submissions of a kind, or of every
// kind when kind is empty.
func (s *Store) Count(ctx context.Context, kind model.SubmissionKind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE kind = ?`, string(kind)).Scan(&n)
	}
	return n, err
}

// List returns submissions with IDs greater than afterID in journal order,
// at most limit of them. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, afterID int64, limit int) ([]Submission, error) {
	query := `SELECT id, kind, payload, created_at FROM submissions WHERE id > ? ORDER BY id`
	args := []any{afterID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		var sub Submission
		var kind, payload string
		if err := rows.Scan(&sub.ID, &kind, &payload, &sub.CreatedAt); err != nil {
			return nil, err
		}
		sub.Kind = model.SubmissionKind(kind)
		sub.Payload = json.RawMessage(payload)
		out = append(out, sub)
	}
	return out, rows.Err()
}

const replayBatch = 500

// Replay calls fn for every submission in journal order. Each batch is read
// fully before fn runs, so fn may use the store. Replay stops at the first
// error returned by fn or when ctx is done.
func (s *Store) Replay(ctx context.Context, fn func(Submission) error) error {
	var after int64
	for {
		batch, err := s.List(ctx, after, replayBatch)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		for _, sub := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(sub); err != nil {
				return fmt.Errorf("replay submission %d: %w", sub.ID, err)
			}
			after = sub.ID
		}
		if len(batch) < replayBatch {
			return nil
		}
	}
}

// SetMetadata upserts a key-value pair in the journal_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO journal_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM journal_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetReplayStats records the outcome of the latest replay.
func (s *Store) SetReplayStats(stats model.ReplayStats, at time.Time) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode replay stats: %w", err)
	}
	if err := s.SetMetadata("last_replay", string(data)); err != nil {
		return err
	}
	return s.SetMetadata("last_replay_at", at.UTC().Format(time.RFC3339))
}

// ReplayStats returns the outcome of the latest replay. The time is zero when
// no replay has been recorded.
func (s *Store) ReplayStats() (model.ReplayStats, time.Time, error) {
	var stats model.ReplayStats
	raw, err := s.GetMetadata("last_replay")
	if err != nil || raw == "" {
		return stats, time.Time{}, err
	}
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return stats, time.Time{}, fmt.Errorf("decode replay stats: %w", err)
	}
	at, err := s.GetMetadata("last_replay_at")
	if err != nil {
		return stats, time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return stats, time.Time{}, fmt.Errorf("parse replay time: %w", err)
	}
	return stats, ts, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
	"github.com/cognicore/harmonica/pkg/harmonica/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite ledger with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	dir TEXT,
	config TEXT,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS sentences (
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	length INTEGER NOT NULL,
	skipped INTEGER NOT NULL DEFAULT 0,
	used_anchors INTEGER NOT NULL DEFAULT 0,
	samples INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY(run_id, idx),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sentence_mae (
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	radius INTEGER NOT NULL,
	mae REAL NOT NULL,
	PRIMARY KEY(run_id, idx, radius),
	FOREIGN KEY(run_id, idx) REFERENCES sentences(run_id, idx) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sentence_mae_radius ON sentence_mae(run_id, radius);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// BeginRun inserts a new run row
func (s *sqliteStore) BeginRun(ctx context.Context, r store.Run) (store.Run, error) {
	if r.ID == "" {
		r.ID = store.NewID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = store.StatusRunning
	}
	r.Explained, r.Skipped = 0, 0

	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs(id, dir, config, status, started_at)
VALUES(?, ?, ?, ?, ?);
`, r.ID, r.Dir, r.Config, r.Status, r.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return store.Run{}, fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return r, nil
}

// RecordSentence replaces a sentence row and its per-radius errors
func (s *sqliteStore) RecordSentence(ctx context.Context, runID string, sent store.Sentence) error {
	if err := s.requireRun(ctx, runID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sentences WHERE run_id = ? AND idx = ?`, runID, sent.Index); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO sentences(run_id, idx, length, skipped, used_anchors, samples)
VALUES(?, ?, ?, ?, ?, ?);
`, runID, sent.Index, sent.Length, boolToInt(sent.Skipped), sent.UsedAnchors, sent.Samples)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sentence_mae(run_id, idx, radius, mae) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for radius, mae := range sent.MAE {
		if _, err := stmt.ExecContext(ctx, runID, sent.Index, radius, mae); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// FinishRun stamps the final status of a run
func (s *sqliteStore) FinishRun(ctx context.Context, runID, status string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET status = ?, finished_at = ? WHERE id = ?;
`, status, at.UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	return nil
}

// GetRun loads a run with its sentence counts
func (s *sqliteStore) GetRun(ctx context.Context, runID string) (store.Run, error) {
	var (
		r        store.Run
		started  string
		finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, dir, config, status, started_at, finished_at
FROM runs
WHERE id = ?;
`, runID).Scan(&r.ID, &r.Dir, &r.Config, &r.Status, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Run{}, fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.Run{}, err
	}

	if parsed, perr := time.Parse(time.RFC3339Nano, started); perr == nil {
		r.StartedAt = parsed
	}
	if finished.Valid {
		if parsed, perr := time.Parse(time.RFC3339Nano, finished.String); perr == nil {
			r.FinishedAt = parsed
		}
	}

	err = s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(1 - skipped), 0), COALESCE(SUM(skipped), 0)
FROM sentences
WHERE run_id = ?;
`, runID).Scan(&r.Explained, &r.Skipped)
	if err != nil {
		return store.Run{}, err
	}
	return r, nil
}

// RadiusSummary aggregates per-radius errors of explained sentences
func (s *sqliteStore) RadiusSummary(ctx context.Context, runID string) ([]store.RadiusStat, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT m.radius, COUNT(*), AVG(m.mae), MAX(m.mae)
FROM sentence_mae m
JOIN sentences s ON s.run_id = m.run_id AND s.idx = m.idx
WHERE m.run_id = ? AND s.skipped = 0
GROUP BY m.radius
ORDER BY m.radius;
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.RadiusStat
	for rows.Next() {
		var st store.RadiusStat
		if err := rows.Scan(&st.Radius, &st.Sentences, &st.MeanMAE, &st.MaxMAE); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqliteStore) requireRun(ctx context.Context, runID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

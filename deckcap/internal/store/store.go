package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/deckcap/deckcap/internal/sink"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	format       TEXT NOT NULL DEFAULT '',
	filename     TEXT NOT NULL DEFAULT '',
	total        INTEGER NOT NULL DEFAULT 0,
	pages        INTEGER NOT NULL DEFAULT 0,
	size         INTEGER NOT NULL DEFAULT 0,
	digest       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	started_at   INTEGER NOT NULL DEFAULT 0,
	finished_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS artifacts (
	run_id       TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	pages        INTEGER NOT NULL,
	digest       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	committed    INTEGER NOT NULL DEFAULT 1,
	data         BLOB NOT NULL
);
`

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = errors.New("store: not found")

// Record is one export run as persisted.
type Record struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Format     string    `json:"format"`
	Filename   string    `json:"filename,omitempty"`
	Total      int       `json:"total"`
	Pages      int       `json:"pages,omitempty"`
	Size       int       `json:"size,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Store is run history plus artifact storage. Delivered artifacts are kept
// for later download; see Sink for use behind a sink.Router.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use Memory for tests.
func Open(path string) (*Store, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// SaveRun inserts or replaces r.
func (s *Store) SaveRun(ctx context.Context, r Record) error {
	_, err := exec(ctx, s.db, `
		INSERT INTO runs (id, status, format, filename, total, pages, size, digest, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, format = excluded.format, filename = excluded.filename,
			total = excluded.total, pages = excluded.pages, size = excluded.size,
			digest = excluded.digest, error = excluded.error,
			started_at = excluded.started_at, finished_at = excluded.finished_at`,
		r.ID, r.Status, r.Format, r.Filename, r.Total, r.Pages, r.Size, r.Digest, r.Error,
		millis(r.StartedAt), millis(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("store: save run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun returns the run with id.
func (s *Store) GetRun(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, format, filename, total, pages, size, digest, error, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, format, filename, total, pages, size, digest, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(sc scanner) (Record, error) {
	var r Record
	var started, finished int64
	if err := sc.Scan(&r.ID, &r.Status, &r.Format, &r.Filename, &r.Total, &r.Pages,
		&r.Size, &r.Digest, &r.Error, &started, &finished); err != nil {
		return Record{}, err
	}
	r.StartedAt, r.FinishedAt = fromMillis(started), fromMillis(finished)
	return r, nil
}

// Deliver stores the artifact bytes under its run ID.
func (s *Store) Deliver(ctx context.Context, a sink.Artifact) error {
	p, err := s.Stage(ctx, a)
	if err != nil {
		return err
	}
	return p.Commit()
}

// Stage stores the artifact hidden from Artifact and PruneArtifacts until
// the returned Pending commits.
func (s *Store) Stage(ctx context.Context, a sink.Artifact) (sink.Pending, error) {
	_, err := exec(ctx, s.db, `
		INSERT OR REPLACE INTO artifacts (run_id, filename, content_type, pages, digest, created_at, committed, data)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		a.RunID, a.Filename, a.ContentType, a.Pages, a.Digest, millis(a.CreatedAt), a.Data)
	if err != nil {
		return nil, fmt.Errorf("store: save artifact %s: %w", a.RunID, err)
	}
	return &pendingArtifact{db: s.db, runID: a.RunID}, nil
}

// Sink returns the store as a staged sink whose Close leaves the database
// open.
func (s *Store) Sink() sink.Stager { return artifactSink{s} }

type artifactSink struct{ *Store }

func (artifactSink) Close() error { return nil }

type pendingArtifact struct {
	db    *sql.DB
	runID string
}

func (p *pendingArtifact) Commit() error {
	if _, err := exec(context.Background(), p.db, `UPDATE artifacts SET committed = 1 WHERE run_id = ?`, p.runID); err != nil {
		return fmt.Errorf("store: commit artifact %s: %w", p.runID, err)
	}
	return nil
}

func (p *pendingArtifact) Discard() error {
	if _, err := exec(context.Background(), p.db, `DELETE FROM artifacts WHERE run_id = ?`, p.runID); err != nil {
		return fmt.Errorf("store: discard artifact %s: %w", p.runID, err)
	}
	return nil
}

// Artifact loads the stored document of run id.
func (s *Store) Artifact(ctx context.Context, id string) (sink.Artifact, error) {
	var a sink.Artifact
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, filename, content_type, pages, digest, created_at, data
		FROM artifacts WHERE run_id = ? AND committed = 1`, id).
		Scan(&a.RunID, &a.Filename, &a.ContentType, &a.Pages, &a.Digest, &created, &a.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return sink.Artifact{}, fmt.Errorf("%w: artifact %s", ErrNotFound, id)
	}
	if err != nil {
		return sink.Artifact{}, fmt.Errorf("store: load artifact %s: %w", id, err)
	}
	a.Size = len(a.Data)
	a.CreatedAt = fromMillis(created)
	return a, nil
}

// PruneArtifacts keeps the newest keep artifacts and deletes the rest.
// Run history is kept.
func (s *Store) PruneArtifacts(ctx context.Context, keep int) (int64, error) {
	res, err := exec(ctx, s.db, `
		DELETE FROM artifacts WHERE committed = 1 AND run_id NOT IN (
			SELECT run_id FROM artifacts WHERE committed = 1 ORDER BY created_at DESC, run_id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

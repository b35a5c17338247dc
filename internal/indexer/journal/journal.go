// Package journal records finished index builds in PostgreSQL.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_builds (
	build_id       TEXT PRIMARY KEY,
	index_name     TEXT NOT NULL,
	output_dir     TEXT NOT NULL,
	blocks         INTEGER NOT NULL,
	documents      INTEGER NOT NULL,
	terms          INTEGER NOT NULL,
	postings       BIGINT NOT NULL,
	frequency_mode TEXT NOT NULL,
	codec          TEXT NOT NULL,
	generation     BIGINT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT NOT NULL
)`

const insertBuild = `
INSERT INTO index_builds (
	build_id, index_name, output_dir, blocks, documents, terms, postings,
	frequency_mode, codec, generation, started_at, duration_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (build_id) DO NOTHING`

const latestBuild = `
SELECT build_id, index_name, output_dir, blocks, documents, terms, postings,
	frequency_mode, codec, generation, started_at, duration_ms
FROM index_builds WHERE index_name = $1
ORDER BY started_at DESC LIMIT 1`

// Row is a single result row; *sql.Row implements it.
type Row interface {
	Scan(dest ...any) error
}

// DB is the part of a database handle the journal needs. FromSQL adapts a
// *sql.DB.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

type sqlDB struct {
	*sql.DB
}

// FromSQL adapts db to DB.
func FromSQL(db *sql.DB) DB {
	return sqlDB{DB: db}
}

func (d sqlDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return d.DB.QueryRowContext(ctx, query, args...)
}

type Journal struct {
	db DB
}

func New(db DB) *Journal {
	return &Journal{db: db}
}

// Migrate creates the journal table if it does not exist.
func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating index_builds table: %w", err)
	}
	return nil
}

// RecordBuild inserts one row per build. Re-recording the same build id is a
// no-op, so retries are safe.
func (j *Journal) RecordBuild(ctx context.Context, r indexer.BuildReport) error {
	_, err := j.db.ExecContext(ctx, insertBuild,
		r.BuildID, r.Index, r.OutputDir, r.Blocks, r.Documents, r.Terms, int64(r.Postings),
		r.Mode, r.Codec, int64(r.Generation), r.StartedAt, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording build %s: %w", r.BuildID, err)
	}
	return nil
}

// Latest returns the most recent build of the named index.
func (j *Journal) Latest(ctx context.Context, indexName string) (indexer.BuildReport, error) {
	var (
		r          indexer.BuildReport
		postings   int64
		generation int64
		durationMS int64
	)
	err := j.db.QueryRow(ctx, latestBuild, indexName).Scan(
		&r.BuildID, &r.Index, &r.OutputDir, &r.Blocks, &r.Documents, &r.Terms, &postings,
		&r.Mode, &r.Codec, &generation, &r.StartedAt, &durationMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r, apperrors.Newf(apperrors.ErrNotFound, "journal", "no recorded build of %s", indexName)
	}
	if err != nil {
		return r, fmt.Errorf("loading latest build of %s: %w", indexName, err)
	}
	r.Postings = int(postings)
	r.Generation = uint32(generation)
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return r, nil
}

// Package jobstore persists job records for localization and import steps
// in Postgres, keyed by composite resource key and producer label.
package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicdata/datastore/internal/datastore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS datastore_jobs (
    ref        TEXT        NOT NULL,
    label      TEXT        NOT NULL,
    status     TEXT        NOT NULL,
    percent    INT         NOT NULL DEFAULT 0,
    message    TEXT        NOT NULL DEFAULT '',
    file_name  TEXT        NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (ref, label)
)`

// Store is a Postgres-backed job store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the backing table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

// Store upserts one job record.
func (s *Store) Store(ctx context.Context, rec datastore.JobRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO datastore_jobs (ref, label, status, percent, message, file_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (ref, label) DO UPDATE
		SET status = EXCLUDED.status,
		    percent = EXCLUDED.percent,
		    message = EXCLUDED.message,
		    file_name = EXCLUDED.file_name,
		    updated_at = now()`,
		rec.Ref, rec.Label, string(rec.Status), rec.Percent, rec.Message, rec.File)
	if err != nil {
		return fmt.Errorf("store job %s/%s: %w", rec.Ref, rec.Label, err)
	}
	return nil
}

// Get returns one job record and whether it exists.
func (s *Store) Get(ctx context.Context, ref, label string) (datastore.JobRecord, bool, error) {
	rec := datastore.JobRecord{Ref: ref, Label: label}
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT status, percent, message, file_name
		FROM datastore_jobs WHERE ref = $1 AND label = $2`,
		ref, label).Scan(&status, &rec.Percent, &rec.Message, &rec.File)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return datastore.JobRecord{}, false, nil
		}
		return datastore.JobRecord{}, false, fmt.Errorf("get job %s/%s: %w", ref, label, err)
	}
	rec.Status = datastore.Status(status)
	return rec, true, nil
}

// List returns all job records, ordered for stable listings.
func (s *Store) List(ctx context.Context) ([]datastore.JobRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ref, label, status, percent, message, file_name
		FROM datastore_jobs ORDER BY ref, label`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []datastore.JobRecord
	for rows.Next() {
		var rec datastore.JobRecord
		var status string
		if err := rows.Scan(&rec.Ref, &rec.Label, &status, &rec.Percent, &rec.Message, &rec.File); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.Status = datastore.Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}

// Remove deletes every record for one composite resource key.
func (s *Store) Remove(ctx context.Context, ref string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM datastore_jobs WHERE ref = $1`, ref); err != nil {
		return fmt.Errorf("remove jobs for %s: %w", ref, err)
	}
	return nil
}

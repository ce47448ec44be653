// Package queue provides the Postgres-backed work queue for deferred
// imports and the worker loop that drains it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/civicdata/datastore/internal/datastore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS datastore_queue (
    id         BIGSERIAL PRIMARY KEY,
    queue      TEXT        NOT NULL,
    payload    JSONB       NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    claimed_at TIMESTAMPTZ
)`

// Item is one claimed work item.
type Item struct {
	ID      int64
	Payload datastore.ImportItem
}

// Postgres is a Postgres-backed queue. The queue name is injected at
// construction; items are claimed with SKIP LOCKED so concurrent workers
// never double-claim.
type Postgres struct {
	pool *pgxpool.Pool
	name string
}

// New creates a queue handle for the named queue.
func New(pool *pgxpool.Pool, name string) *Postgres {
	return &Postgres{pool: pool, name: name}
}

// EnsureSchema creates the backing table when missing.
func (q *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create queue table: %w", err)
	}
	return nil
}

// CreateItem enqueues a work item and returns its id.
func (q *Postgres) CreateItem(ctx context.Context, payload datastore.ImportItem) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	var id int64
	err = q.pool.QueryRow(ctx,
		`INSERT INTO datastore_queue (queue, payload) VALUES ($1, $2) RETURNING id`,
		q.name, body).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue on %s: %w", q.name, err)
	}
	return id, nil
}

// Claim takes the oldest unclaimed item, or returns (nil, nil) when the
// queue is empty.
func (q *Postgres) Claim(ctx context.Context) (*Item, error) {
	var item Item
	var body []byte
	err := q.pool.QueryRow(ctx, `
		UPDATE datastore_queue SET claimed_at = now()
		WHERE id = (
			SELECT id FROM datastore_queue
			WHERE queue = $1 AND claimed_at IS NULL
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, payload`,
		q.name).Scan(&item.ID, &body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim from %s: %w", q.name, err)
	}

	if err := json.Unmarshal(body, &item.Payload); err != nil {
		return nil, fmt.Errorf("decode item %d: %w", item.ID, err)
	}
	return &item, nil
}

// Delete removes a completed item.
func (q *Postgres) Delete(ctx context.Context, id int64) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM datastore_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}

// Release unclaims an item so another worker can retry it.
func (q *Postgres) Release(ctx context.Context, id int64) error {
	if _, err := q.pool.Exec(ctx, `UPDATE datastore_queue SET claimed_at = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("release item %d: %w", id, err)
	}
	return nil
}

// Depth returns the number of unclaimed items, for queue gauges.
func (q *Postgres) Depth(ctx context.Context) (int64, error) {
	var depth int64
	err := q.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM datastore_queue WHERE queue = $1 AND claimed_at IS NULL`,
		q.name).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

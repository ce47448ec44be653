// Package storage provides the Postgres storage handle for one imported
// resource: query execution over its table, schema with captured column
// descriptions, and teardown.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/civicdata/datastore/internal/datastore"
	"github.com/jackc/pgx/v5/pgxpool"
)

const metaSchemaSQL = `
CREATE TABLE IF NOT EXISTS datastore_columns (
    table_name  TEXT NOT NULL,
    column_name TEXT NOT NULL,
    column_type TEXT NOT NULL DEFAULT 'text',
    description TEXT NOT NULL DEFAULT '',
    ordinal     INT  NOT NULL,
    PRIMARY KEY (table_name, column_name)
)`

// EnsureMetaSchema creates the column-description meta table when missing.
func EnsureMetaSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, metaSchemaSQL); err != nil {
		return fmt.Errorf("create columns meta table: %w", err)
	}
	return nil
}

// TableName derives the storage table for a composite resource key.
// UUID dashes and the collection separator are folded into underscores so
// the result is a plain Postgres identifier.
func TableName(uniqueID string) string {
	var sb strings.Builder
	sb.WriteString("datastore_")
	for _, r := range strings.ToLower(uniqueID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

// Postgres is a storage handle on one imported resource's table.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres creates a handle for the resource with the given composite key.
func NewPostgres(pool *pgxpool.Pool, uniqueID string) *Postgres {
	return &Postgres{pool: pool, table: TableName(uniqueID)}
}

// Table returns the backing table name.
func (p *Postgres) Table() string {
	return p.table
}

// Query executes the abstract query against the resource table.
//
// Data rows are returned when the results flag is set. When the count flag
// is set a synthetic trailing row carrying the total under the "expression"
// column is appended; the count ignores limit and offset.
func (p *Postgres) Query(ctx context.Context, q datastore.Query) ([]datastore.Row, error) {
	var out []datastore.Row

	if q.Results {
		sql, args, err := buildSelect(p.table, q)
		if err != nil {
			return nil, err
		}

		rows, err := p.pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", p.table, err)
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, fmt.Errorf("read row values: %w", err)
			}
			row := make(datastore.Row, len(fields))
			for i, fd := range fields {
				row[fd.Name] = values[i]
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows error: %w", err)
		}
	}

	if q.Count {
		sql, args, err := buildCount(p.table, q)
		if err != nil {
			return nil, err
		}
		var count int64
		if err := p.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", p.table, err)
		}
		out = append(out, datastore.Row{datastore.ExpressionKey: count})
	}

	return out, nil
}

// Schema returns the resource's column metadata, in column order.
func (p *Postgres) Schema(ctx context.Context) (datastore.Schema, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT column_name, column_type, description
		FROM datastore_columns WHERE table_name = $1 ORDER BY ordinal`,
		p.table)
	if err != nil {
		return datastore.Schema{}, fmt.Errorf("schema for %s: %w", p.table, err)
	}
	defer rows.Close()

	var schema datastore.Schema
	for rows.Next() {
		var f datastore.Field
		if err := rows.Scan(&f.Name, &f.Type, &f.Description); err != nil {
			return datastore.Schema{}, fmt.Errorf("scan field: %w", err)
		}
		schema.Fields = append(schema.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return datastore.Schema{}, fmt.Errorf("rows error: %w", err)
	}
	return schema, nil
}

// Destroy drops the resource table and its column metadata.
func (p *Postgres) Destroy(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(p.table)); err != nil {
		return fmt.Errorf("drop %s: %w", p.table, err)
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM datastore_columns WHERE table_name = $1`, p.table); err != nil {
		return fmt.Errorf("drop column metadata for %s: %w", p.table, err)
	}
	return nil
}

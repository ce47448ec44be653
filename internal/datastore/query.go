package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/civicdata/datastore/internal/apperrors"
)

// RecordNumberColumn is the internal row-sequence column added by the
// importer. It is hidden from query results unless raw storage columns are
// requested.
const RecordNumberColumn = "record_number"

// ExpressionKey is the column under which the storage layer reports a
// computed row count, as a synthetic trailing row.
const ExpressionKey = "expression"

// Condition filters rows on a single column. Operator defaults to "=".
type Condition struct {
	Property string `json:"property"`
	Value    any    `json:"value"`
	Operator string `json:"operator,omitempty"`
}

// Sort orders rows on a single column. Order is "asc" or "desc".
type Sort struct {
	Property string `json:"property"`
	Order    string `json:"order,omitempty"`
}

// Query is an abstract query description bound to a collection key.
// Results and Count are independent flags: both, either, or neither may be
// set, and the response carries only the keys for flags that were true.
type Query struct {
	Collection    string      `json:"collection"`
	Results       bool        `json:"results"`
	Count         bool        `json:"count"`
	ShowDBColumns bool        `json:"show_db_columns"`
	Conditions    []Condition `json:"conditions,omitempty"`
	Sorts         []Sort      `json:"sorts,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Offset        int         `json:"offset,omitempty"`
}

// RunQuery resolves the target storage from the query's collection key and
// executes it, honoring the results/count/show-db-columns flags.
//
// Results and count are two separate storage executions, not derived from
// each other. The redundancy is deliberate; merging them would change the
// observable query count.
func (s *Service) RunQuery(ctx context.Context, q Query) (map[string]any, error) {
	identifier, version, err := ParseCollection(q.Collection)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	storage, err := s.GetStorage(ctx, identifier, version)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	response := make(map[string]any)

	if q.Results {
		resultsQuery := q
		resultsQuery.Count = false // pure select, no combined select+count
		rows, err := storage.Query(ctx, resultsQuery)
		if err != nil {
			return nil, apperrors.Internal("storage.query", err)
		}

		schema, err := storage.Schema(ctx)
		if err != nil {
			return nil, apperrors.Internal("storage.schema", err)
		}

		out := make([]Row, len(rows))
		for i, row := range rows {
			out[i] = transformRow(row, schema, q.ShowDBColumns)
		}
		response["results"] = out
	}

	if q.Count {
		rows, err := storage.Query(ctx, q)
		if err != nil {
			return nil, apperrors.Internal("storage.query", err)
		}
		count, err := trailingCount(rows)
		if err != nil {
			return nil, apperrors.Internal("storage.query", err)
		}
		response["count"] = count
	}

	if s.metrics != nil {
		s.metrics.RecordQuery(ctx, time.Since(start).Seconds())
	}
	return response, nil
}

// transformRow applies the column-description aliasing rules to one row.
//
// With showDBColumns false the internal record_number column is dropped and
// every column that has a non-empty schema description is renamed to that
// description. This is a rename, not an additive alias: the raw name is
// unavailable in this mode. With showDBColumns true the row passes through
// untouched, record_number included.
func transformRow(row Row, schema Schema, showDBColumns bool) Row {
	if showDBColumns {
		return row
	}

	out := make(Row, len(row))
	for column, value := range row {
		if column == RecordNumberColumn {
			continue
		}
		if desc := schema.Description(column); desc != "" {
			out[desc] = value
			continue
		}
		out[column] = value
	}
	return out
}

// trailingCount extracts the row count from the synthetic trailing computed
// row the storage layer appends when counting. Exactly the final element is
// consulted, never an aggregate scan of the result.
func trailingCount(rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	value, ok := rows[len(rows)-1][ExpressionKey]
	if !ok {
		return 0, fmt.Errorf("count query result has no %s column", ExpressionKey)
	}
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected count value type %T", value)
	}
}

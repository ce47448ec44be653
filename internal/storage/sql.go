package storage

import (
	"fmt"
	"strings"

	"github.com/civicdata/datastore/internal/datastore"
)

// buildSelect translates a query's pass-through clauses into a parameterized
// SELECT against the given table.
func buildSelect(table string, q datastore.Query) (string, []any, error) {
	where, args, err := buildWhere(q.Conditions, 1)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(quoteIdentifier(table))
	sb.WriteString(where)

	if len(q.Sorts) > 0 {
		parts := make([]string, 0, len(q.Sorts))
		for _, s := range q.Sorts {
			dir := strings.ToLower(s.Order)
			if dir != "desc" {
				dir = "asc"
			}
			parts = append(parts, quoteIdentifier(s.Property)+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	} else {
		// Stable default ordering on the sequence column.
		sb.WriteString(" ORDER BY " + quoteIdentifier(datastore.RecordNumberColumn) + " asc")
	}

	argIdx := len(args) + 1
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", argIdx))
		args = append(args, q.Limit)
		argIdx++
	}
	if q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", argIdx))
		args = append(args, q.Offset)
	}

	return sb.String(), args, nil
}

// buildCount translates the same WHERE clauses into a COUNT; limit and
// offset do not apply to counting.
func buildCount(table string, q datastore.Query) (string, []any, error) {
	where, args, err := buildWhere(q.Conditions, 1)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + quoteIdentifier(table) + where, args, nil
}

// buildWhere generates WHERE clause conditions for the supported operators.
func buildWhere(conditions []datastore.Condition, startArgIndex int) (string, []any, error) {
	if len(conditions) == 0 {
		return "", nil, nil
	}

	var parts []string
	var args []any
	argIdx := startArgIndex

	for _, c := range conditions {
		col := quoteIdentifier(c.Property)
		op := strings.ToLower(c.Operator)
		if op == "" {
			op = "="
		}

		switch op {
		case "=", "<>", "<", "<=", ">", ">=":
			parts = append(parts, fmt.Sprintf("%s %s $%d", col, op, argIdx))
			args = append(args, c.Value)
			argIdx++
		case "like":
			parts = append(parts, fmt.Sprintf("%s ILIKE $%d", col, argIdx))
			args = append(args, c.Value)
			argIdx++
		case "in":
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", col, argIdx))
			args = append(args, c.Value)
			argIdx++
		default:
			return "", nil, fmt.Errorf("unsupported condition operator: %s", c.Operator)
		}
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

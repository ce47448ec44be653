package importer

import (
	"strings"

	"github.com/civicdata/datastore/internal/datastore"
)

// Column pairs a storage column name with the human header label it was
// derived from.
type Column struct {
	Name  string
	Label string
}

// sanitizeColumns converts CSV header labels into storage column names:
// lowercased, spaces folded to underscores, anything outside [a-z0-9_]
// dropped, digits prefixed, duplicates suffixed. The original label is kept
// as the column description when the sanitized name differs from it.
func sanitizeColumns(header []string) []Column {
	seen := make(map[string]int, len(header))
	cols := make([]Column, 0, len(header))

	for i, label := range header {
		name := sanitizeName(label)
		if name == "" {
			name = "column_" + itoa(i+1)
		}
		if name == datastore.RecordNumberColumn {
			// Never collide with the internal sequence column.
			name = name + "_"
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = name + "_" + itoa(n+1)
		}
		seen[name] = 1
		cols = append(cols, Column{Name: name, Label: strings.TrimSpace(label)})
	}
	return cols
}

func sanitizeName(label string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.', r == '/':
			sb.WriteRune('_')
		}
	}
	name := strings.Trim(sb.String(), "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	return string(b[n:])
}

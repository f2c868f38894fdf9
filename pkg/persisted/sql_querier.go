package persisted

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PlaceholderStyle selects the bind-parameter syntax of the SQL driver.
type PlaceholderStyle int

const (
	// PlaceholderDollar uses $1, $2, ... (Postgres, lib/pq).
	PlaceholderDollar PlaceholderStyle = iota
	// PlaceholderQuestion uses ? (SQLite, modernc.org/sqlite).
	PlaceholderQuestion
)

// identPattern restricts table and column identifiers; they come from
// contract definitions, not user input, but defense here keeps a mistyped
// contract from turning into injectable SQL.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLQuerier implements StoreQuerier on database/sql. It supports both
// Postgres and SQLite via standard drivers.
type SQLQuerier struct {
	db    *sql.DB
	style PlaceholderStyle
}

// NewSQLQuerier creates a querier with the given placeholder style.
func NewSQLQuerier(db *sql.DB, style PlaceholderStyle) *SQLQuerier {
	return &SQLQuerier{db: db, style: style}
}

// Query selects fields from table with an equality-only filter. Where keys
// are sorted so the generated SQL is deterministic for a given assertion.
func (q *SQLQuerier) Query(ctx context.Context, table string, fields []string, where map[string]any) ([]map[string]any, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table identifier %q", table)
	}
	for _, f := range fields {
		if !identPattern.MatchString(f) {
			return nil, fmt.Errorf("invalid column identifier %q", f)
		}
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		if !identPattern.MatchString(k) {
			return nil, fmt.Errorf("invalid column identifier %q in where clause", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(fields, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	args := make([]any, 0, len(keys))
	if len(keys) > 0 {
		sb.WriteString(" WHERE ")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString(k)
			sb.WriteString(" = ")
			sb.WriteString(q.placeholder(i + 1))
			args = append(args, where[k])
		}
	}

	rows, err := q.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q *SQLQuerier) placeholder(n int) string {
	if q.style == PlaceholderQuestion {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// normalize converts driver byte slices to strings so assertion comparison
// sees comparable values.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

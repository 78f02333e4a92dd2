package etl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"github.com/leapstack-labs/dwprobe/pkg/core"
	"go.starlark.net/starlark"
)

// placeholders returns n bind parameters starting at index from.
func placeholders(style core.PlaceholderStyle, from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = style.Format(from + i)
	}
	return out
}

// whereEq builds "a = ? AND b = ?" for columns, numbering parameters from from.
func whereEq(style core.PlaceholderStyle, from int, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " = " + style.Format(from+i)
	}
	return strings.Join(parts, " AND ")
}

func insertSQL(style core.PlaceholderStyle, table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders(style, 1, len(columns)), ", "))
}

// bindNamed rewrites pyformat parameters (%(name)s) to the connection's
// placeholder style and returns the matching positional arguments.
func bindNamed(style core.PlaceholderStyle, query string, params map[string]any) (string, []any, error) {
	var b strings.Builder
	var args []any
	for {
		start := strings.Index(query, "%(")
		if start < 0 {
			b.WriteString(query)
			break
		}
		end := strings.Index(query[start:], ")s")
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated parameter in query at offset %d", start)
		}
		name := query[start+2 : start+end]
		v, ok := params[name]
		if !ok {
			return "", nil, fmt.Errorf("missing query parameter %q", name)
		}
		args = append(args, v)
		b.WriteString(query[:start])
		b.WriteString(style.Format(len(args)))
		query = query[start+end+2:]
	}
	return b.String(), args, nil
}

// queryArgs converts a Starlark parameter value to SQL arguments. A dict
// binds pyformat names, a list or tuple binds positionally.
func queryArgs(style core.PlaceholderStyle, query string, params starlark.Value) (string, []any, error) {
	if params == nil || params == starlark.None {
		return query, nil, nil
	}
	gv, err := starctx.ToGo(params)
	if err != nil {
		return "", nil, fmt.Errorf("parameters: %w", err)
	}
	switch p := gv.(type) {
	case map[string]any:
		return bindNamed(style, query, p)
	case []any:
		return query, p, nil
	default:
		return "", nil, fmt.Errorf("parameters must be a dict, list or tuple, got %s", params.Type())
	}
}

// fetchDicts reads every remaining row as a Starlark dict. When names is
// non-empty it replaces the column names reported by the driver.
func fetchDicts(rows *sql.Rows, names []string) ([]starlark.Value, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get column names: %w", err)
	}
	if len(names) > 0 {
		if len(names) != len(columns) {
			return nil, fmt.Errorf("incorrect number of names provided: %d given, %d needed", len(names), len(columns))
		}
		columns = names
	}

	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	var out []starlark.Value
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		dict := starlark.NewDict(len(columns))
		for i, c := range columns {
			sv, err := starctx.GoToStarlark(values[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			if err := dict.SetKey(starlark.String(c), sv); err != nil {
				return nil, err
			}
		}
		out = append(out, dict)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// queryDicts runs query on conn and returns all rows as dicts.
func queryDicts(ctx context.Context, conn *core.Connection, query string, args []any, names []string) ([]starlark.Value, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return fetchDicts(rows, names)
}

// queryValue runs a query expected to return at most one single-column row.
func queryValue(ctx context.Context, conn *core.Connection, query string, args ...any) (any, bool, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	var v any
	if err := rows.Scan(&v); err != nil {
		return nil, false, fmt.Errorf("failed to scan value: %w", err)
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	return v, true, rows.Err()
}

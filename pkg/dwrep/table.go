// Package dwrep describes the warehouse tables an ETL script defines.
//
// A Table is a normalized record of one dimension or fact table: its name,
// its column roles, the connection it lives on and the query that reads it.
// A Representation maps table names to Tables.
package dwrep

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/leapstack-labs/dwprobe/pkg/core"
)

// BatchSize is the number of rows fetched per batch when streaming a table.
const BatchSize = 500

// Kind distinguishes dimension tables from fact tables.
type Kind string

const (
	// KindDimension is a dimension table: a key, attributes and lookup attributes.
	KindDimension Kind = "dimension"
	// KindFact is a fact table: key references and measures.
	KindFact Kind = "fact"
)

// Row is one fetched row keyed by column name.
type Row map[string]any

// Table describes one table defined by a script.
type Table struct {
	// Name is the lower-cased table name.
	Name string
	Kind Kind

	// Dimension roles.
	Key        string
	Attributes []string
	LookupAtts []string

	// Fact roles.
	KeyRefs  []string
	Measures []string

	// Conn is the connection the table is read through.
	Conn *core.Connection

	columns []string
}

// NewDimension describes a dimension table. When lookupatts is empty the
// attributes double as lookup attributes.
func NewDimension(name, key string, attributes, lookupatts []string, conn *core.Connection) *Table {
	if len(lookupatts) == 0 {
		lookupatts = attributes
	}
	t := &Table{
		Name:       strings.ToLower(name),
		Kind:       KindDimension,
		Key:        key,
		Attributes: clone(attributes),
		LookupAtts: clone(lookupatts),
		Conn:       conn,
	}
	t.columns = union([]string{key}, t.Attributes, t.LookupAtts)
	return t
}

// NewFact describes a fact table.
func NewFact(name string, keyrefs, measures []string, conn *core.Connection) *Table {
	t := &Table{
		Name:     strings.ToLower(name),
		Kind:     KindFact,
		KeyRefs:  clone(keyrefs),
		Measures: clone(measures),
		Conn:     conn,
	}
	t.columns = union(t.KeyRefs, t.Measures)
	return t
}

// Columns returns the union of the role lists in declared order, with
// duplicates removed.
func (t *Table) Columns() []string {
	return clone(t.columns)
}

// Query returns the query that reads the table's columns.
func (t *Table) Query() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.columns, ", "), t.Name)
}

func (t *Table) String() string {
	return fmt.Sprintf("%s %s(%s)", t.Kind, t.Name, strings.Join(t.columns, ", "))
}

// Count returns the number of rows in the table.
func (t *Table) Count(ctx context.Context) (int64, error) {
	if t.Conn == nil {
		return 0, fmt.Errorf("table %s: no connection", t.Name)
	}
	rows, err := t.Conn.Query(ctx, "SELECT COUNT(*) FROM "+t.Name)
	if err != nil {
		return 0, fmt.Errorf("table %s: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("table %s: failed to scan count: %w", t.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("table %s: %w", t.Name, err)
	}
	return n, nil
}

// Batches streams the table's rows in batches of at most BatchSize rows.
// Column names come from the result metadata. When columns are given,
// each row holds only those columns; naming a column the result does not
// have yields an *UnknownColumnError before any row.
//
// The query runs when iteration starts and the result set is closed when
// iteration stops. An error ends the sequence.
func (t *Table) Batches(ctx context.Context, columns ...string) iter.Seq2[[]Row, error] {
	return func(yield func([]Row, error) bool) {
		if t.Conn == nil {
			yield(nil, fmt.Errorf("table %s: no connection", t.Name))
			return
		}

		rows, err := t.Conn.Query(ctx, t.Query())
		if err != nil {
			yield(nil, fmt.Errorf("table %s: %w", t.Name, err))
			return
		}
		defer func() { _ = rows.Close() }()

		names, err := rows.Columns()
		if err != nil {
			yield(nil, fmt.Errorf("table %s: failed to get column names: %w", t.Name, err))
			return
		}

		project, err := projection(t.Name, names, columns)
		if err != nil {
			yield(nil, err)
			return
		}

		values := make([]any, len(names))
		scanArgs := make([]any, len(names))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		batch := make([]Row, 0, BatchSize)
		for rows.Next() {
			if err := rows.Scan(scanArgs...); err != nil {
				yield(nil, fmt.Errorf("table %s: failed to scan row: %w", t.Name, err))
				return
			}

			row := make(Row, len(project))
			for _, i := range project {
				row[names[i]] = convertValue(values[i])
			}
			batch = append(batch, row)

			if len(batch) == BatchSize {
				if !yield(batch, nil) {
					return
				}
				batch = make([]Row, 0, BatchSize)
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("table %s: error during row iteration: %w", t.Name, err))
			return
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

// Rows streams the table's rows one at a time; see Batches.
func (t *Table) Rows(ctx context.Context, columns ...string) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for batch, err := range t.Batches(ctx, columns...) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, row := range batch {
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}

// projection maps the requested columns to result indexes. No request
// selects every column.
func projection(table string, names, columns []string) ([]int, error) {
	if len(columns) == 0 {
		idx := make([]int, len(names))
		for i := range names {
			idx[i] = i
		}
		return idx, nil
	}

	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	idx := make([]int, 0, len(columns))
	for _, c := range columns {
		i, ok := pos[c]
		if !ok {
			return nil, &UnknownColumnError{Table: table, Column: c}
		}
		idx = append(idx, i)
	}
	return idx, nil
}

func convertValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func union(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, c := range list {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

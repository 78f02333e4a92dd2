package etl

import (
	"fmt"

	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"go.starlark.net/starlark"
)

// Source is the row source built by SQLSource. The query runs when the
// source is constructed; iterating yields one dict per row.
type Source struct {
	query string
	rows  []starlark.Value
}

var (
	_ starlark.Iterable = (*Source)(nil)
	_ starlark.Sequence = (*Source)(nil)
)

func (s *Source) String() string        { return fmt.Sprintf("<SQLSource %q>", s.query) }
func (s *Source) Type() string          { return "SQLSource" }
func (s *Source) Freeze()               {}
func (s *Source) Truth() starlark.Bool  { return len(s.rows) > 0 }
func (s *Source) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: SQLSource") }
func (s *Source) Len() int              { return len(s.rows) }

func (s *Source) Iterate() starlark.Iterator {
	return &sourceIterator{rows: s.rows}
}

type sourceIterator struct {
	rows []starlark.Value
	i    int
}

func (it *sourceIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.rows) {
		return false
	}
	*p = it.rows[it.i]
	it.i++
	return true
}

func (it *sourceIterator) Done() {}

// newSource implements SQLSource(connection, query, names=None, parameters=None).
func newSource(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	rt, err := FromThread(thread)
	if err != nil {
		return nil, err
	}

	var (
		connVal starlark.Value
		query   string
		names   starlark.Value = starlark.None
		params  starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"connection", &connVal,
		"query", &query,
		"names?", &names,
		"parameters?", &params,
		"initsql?", new(starlark.Value),
		"cursorarg?", new(starlark.Value),
	); err != nil {
		return nil, err
	}

	conn, err := ConnectionOf(connVal)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	columns, err := starctx.Strings(names)
	if err != nil {
		return nil, fmt.Errorf("%s: names: %w", b.Name(), err)
	}
	q, qargs, err := queryArgs(conn.Placeholder, query, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	rows, err := queryDicts(starctx.Context(thread), conn, q, qargs, columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	rt.logger.Debug("source loaded", "connection", conn.String(), "rows", len(rows))
	return &Source{query: query, rows: rows}, nil
}

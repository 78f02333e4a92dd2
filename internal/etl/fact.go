package etl

import (
	"context"
	"fmt"
	"strings"

	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"go.starlark.net/starlark"
)

// DefaultBatchSize is the number of rows a BatchFactTable buffers before
// writing them.
const DefaultBatchSize = 500

// FactTable is a fact table in the target warehouse. A batch fact table
// buffers inserted rows and writes them when the buffer is full or its
// wrapper commits.
type FactTable struct {
	kind     string
	name     string
	keyrefs  []string
	measures []string
	target   *Wrapper

	batchSize int
	pending   [][]any
}

var _ starlark.HasAttrs = (*FactTable)(nil)

func (f *FactTable) String() string        { return fmt.Sprintf("<%s %s>", f.kind, f.name) }
func (f *FactTable) Type() string          { return f.kind }
func (f *FactTable) Freeze()               {}
func (f *FactTable) Truth() starlark.Bool  { return starlark.True }
func (f *FactTable) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", f.kind) }

func (f *FactTable) AttrNames() []string {
	return []string{"all", "ensure", "insert", "keyrefs", "lookup", "measures", "name", "targetconnection"}
}

func (f *FactTable) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(f.name), nil
	case "keyrefs":
		return stringList(f.keyrefs), nil
	case "measures":
		return stringList(f.measures), nil
	case "all":
		return stringList(f.columns()), nil
	case "targetconnection":
		return f.target, nil
	case "insert":
		return starlark.NewBuiltin(name, f.insertBuiltin), nil
	case "lookup":
		return starlark.NewBuiltin(name, f.lookupBuiltin), nil
	case "ensure":
		return starlark.NewBuiltin(name, f.ensureBuiltin), nil
	}
	return nil, nil
}

func (f *FactTable) columns() []string {
	return union(f.keyrefs, f.measures)
}

func (f *FactTable) batched() bool { return f.batchSize > 0 }

func (f *FactTable) insertBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	row, mapping, err := unpackRow(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	if err := f.insert(starctx.Context(thread), row, mapping); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", f.name, b.Name(), err)
	}
	return starlark.None, nil
}

func (f *FactTable) lookupBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	row, mapping, err := unpackRow(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	found, err := f.lookup(starctx.Context(thread), row, mapping)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", f.name, b.Name(), err)
	}
	if found == nil {
		return starlark.None, nil
	}
	return found, nil
}

// ensure inserts the row unless a fact with the same key references exists.
// It reports whether the fact was already present.
func (f *FactTable) ensureBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		rowVal  starlark.Value
		compare bool
		mapVal  starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "row", &rowVal, "compare?", &compare, "namemapping?", &mapVal); err != nil {
		return nil, err
	}
	row, mapping, err := rowAndMapping(b, rowVal, mapVal)
	if err != nil {
		return nil, err
	}
	ctx := starctx.Context(thread)

	existing, err := f.lookup(ctx, row, mapping)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", f.name, b.Name(), err)
	}
	if existing == nil {
		if err := f.insert(ctx, row, mapping); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", f.name, b.Name(), err)
		}
		return starlark.False, nil
	}

	if compare {
		for _, m := range f.measures {
			want, err := rowValue(row, m, mapping)
			if err != nil {
				return nil, err
			}
			got, _, _ := existing.Get(starlark.String(m))
			if eq, err := starlark.Equal(want, got); err != nil || !eq {
				return nil, fmt.Errorf("%s.%s: measure %s differs from the existing fact", f.name, b.Name(), m)
			}
		}
	}
	return starlark.True, nil
}

func (f *FactTable) insert(ctx context.Context, row *starlark.Dict, mapping map[string]string) error {
	values, err := rowArgs(row, f.columns(), mapping)
	if err != nil {
		return err
	}
	if f.batched() {
		f.pending = append(f.pending, values)
		if len(f.pending) >= f.batchSize {
			return f.flush(ctx)
		}
		return nil
	}
	return f.write(ctx, [][]any{values})
}

func (f *FactTable) lookup(ctx context.Context, row *starlark.Dict, mapping map[string]string) (*starlark.Dict, error) {
	if err := f.flush(ctx); err != nil {
		return nil, err
	}
	values, err := rowArgs(row, f.keyrefs, mapping)
	if err != nil {
		return nil, err
	}
	conn, err := f.target.conn.Core()
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(f.columns(), ", "), f.name, whereEq(conn.Placeholder, 1, f.keyrefs))
	rows, err := queryDicts(ctx, conn, q, values, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].(*starlark.Dict), nil
}

// flush writes buffered rows. It is a no-op for unbuffered tables.
func (f *FactTable) flush(ctx context.Context) error {
	if len(f.pending) == 0 {
		return nil
	}
	pending := f.pending
	f.pending = nil
	return f.write(ctx, pending)
}

func (f *FactTable) write(ctx context.Context, rows [][]any) error {
	conn, err := f.target.conn.Core()
	if err != nil {
		return err
	}
	stmt := insertSQL(conn.Placeholder, f.name, f.columns())
	for _, args := range rows {
		if _, err := conn.Exec(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return nil
}

func newFactBuiltin(kind string, batched bool) *starlark.Builtin {
	return starlark.NewBuiltin(kind, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		rt, err := FromThread(thread)
		if err != nil {
			return nil, err
		}

		var (
			name      string
			keyrefs   starlark.Value
			measures  starlark.Value = starlark.None
			target    starlark.Value = starlark.None
			ignored   starlark.Value
			batchSize int            = DefaultBatchSize
		)
		pairs := []any{
			"name", &name,
			"keyrefs", &keyrefs,
			"measures?", &measures,
		}
		if batched {
			pairs = append(pairs, "batchsize?", &batchSize, "usemultirow?", &ignored)
		}
		pairs = append(pairs, "targetconnection?", &target)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, pairs...); err != nil {
			return nil, err
		}

		keyrefList, err := starctx.Strings(keyrefs)
		if err != nil {
			return nil, fmt.Errorf("%s: keyrefs: %w", b.Name(), err)
		}
		measureList, err := starctx.Strings(measures)
		if err != nil {
			return nil, fmt.Errorf("%s: measures: %w", b.Name(), err)
		}
		wrapper, err := rt.target(target)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", b.Name(), name, err)
		}

		f := &FactTable{
			kind:     kind,
			name:     name,
			keyrefs:  keyrefList,
			measures: measureList,
			target:   wrapper,
		}
		if batched {
			if batchSize <= 0 {
				return nil, fmt.Errorf("%s: batchsize must be positive, got %d", b.Name(), batchSize)
			}
			f.batchSize = batchSize
			rt.batches = append(rt.batches, f)
		}
		rt.logger.Debug("table defined", "kind", kind, "name", name)
		return f, nil
	})
}

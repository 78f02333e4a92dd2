package etl

import (
	"context"
	"fmt"
	"strings"

	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"go.starlark.net/starlark"
)

// Dimension is a dimension table in the target warehouse. Rows are looked
// up by their lookup attributes; new members get the next integer key.
type Dimension struct {
	kind       string
	name       string
	key        string
	attributes []string
	lookupatts []string
	defaultID  starlark.Value
	target     *Wrapper

	// cache maps lookup attribute values to keys. It is nil for plain
	// dimensions.
	cache map[string]starlark.Value
}

var _ starlark.HasAttrs = (*Dimension)(nil)

func (d *Dimension) String() string        { return fmt.Sprintf("<%s %s>", d.kind, d.name) }
func (d *Dimension) Type() string          { return d.kind }
func (d *Dimension) Freeze()               {}
func (d *Dimension) Truth() starlark.Bool  { return starlark.True }
func (d *Dimension) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", d.kind) }

func (d *Dimension) AttrNames() []string {
	return []string{
		"all", "attributes", "defaultidvalue", "ensure", "getbykey", "insert",
		"key", "lookup", "lookupatts", "name", "targetconnection",
	}
}

func (d *Dimension) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(d.name), nil
	case "key":
		return starlark.String(d.key), nil
	case "attributes":
		return stringList(d.attributes), nil
	case "lookupatts":
		return stringList(d.lookupatts), nil
	case "all":
		return stringList(d.columns()), nil
	case "defaultidvalue":
		return d.defaultID, nil
	case "targetconnection":
		return d.target, nil
	case "lookup":
		return starlark.NewBuiltin(name, d.lookupBuiltin), nil
	case "ensure":
		return starlark.NewBuiltin(name, d.ensureBuiltin), nil
	case "insert":
		return starlark.NewBuiltin(name, d.insertBuiltin), nil
	case "getbykey":
		return starlark.NewBuiltin(name, d.getByKeyBuiltin), nil
	}
	return nil, nil
}

func (d *Dimension) columns() []string {
	return union([]string{d.key}, d.attributes, d.lookupatts)
}

func (d *Dimension) lookupBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	row, mapping, err := unpackRow(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	k, found, err := d.lookup(starctx.Context(thread), row, mapping)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.name, b.Name(), err)
	}
	if !found {
		return d.defaultID, nil
	}
	return k, nil
}

func (d *Dimension) ensureBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	row, mapping, err := unpackRow(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	ctx := starctx.Context(thread)

	k, found, err := d.lookup(ctx, row, mapping)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.name, b.Name(), err)
	}
	if !found {
		if k, err = d.insert(ctx, row, mapping); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.name, b.Name(), err)
		}
	}
	if err := row.SetKey(starlark.String(mapped(d.key, mapping)), k); err != nil {
		return nil, err
	}
	return k, nil
}

func (d *Dimension) insertBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	row, mapping, err := unpackRow(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	k, err := d.insert(starctx.Context(thread), row, mapping)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.name, b.Name(), err)
	}
	return k, nil
}

func (d *Dimension) getByKeyBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var keyValue starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "keyvalue", &keyValue); err != nil {
		return nil, err
	}
	conn, err := d.target.conn.Core()
	if err != nil {
		return nil, err
	}
	kv, err := starctx.ToGo(keyValue)
	if err != nil {
		return nil, err
	}

	cols := d.columns()
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(cols, ", "), d.name, whereEq(conn.Placeholder, 1, []string{d.key}))
	rows, err := queryDicts(starctx.Context(thread), conn, q, []any{kv}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.name, b.Name(), err)
	}
	if len(rows) == 0 {
		return starlark.None, nil
	}
	return rows[0], nil
}

func (d *Dimension) lookup(ctx context.Context, row *starlark.Dict, mapping map[string]string) (starlark.Value, bool, error) {
	values, err := rowArgs(row, d.lookupatts, mapping)
	if err != nil {
		return nil, false, err
	}

	cacheKey := fmt.Sprintf("%#v", values)
	if d.cache != nil {
		if k, ok := d.cache[cacheKey]; ok {
			return k, true, nil
		}
	}

	conn, err := d.target.conn.Core()
	if err != nil {
		return nil, false, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s", d.key, d.name, whereEq(conn.Placeholder, 1, d.lookupatts))
	v, found, err := queryValue(ctx, conn, q, values...)
	if err != nil || !found {
		return nil, false, err
	}

	k, err := starctx.GoToStarlark(v)
	if err != nil {
		return nil, false, err
	}
	if d.cache != nil {
		d.cache[cacheKey] = k
	}
	return k, true, nil
}

func (d *Dimension) insert(ctx context.Context, row *starlark.Dict, mapping map[string]string) (starlark.Value, error) {
	conn, err := d.target.conn.Core()
	if err != nil {
		return nil, err
	}

	k, found, err := row.Get(starlark.String(mapped(d.key, mapping)))
	if err != nil {
		return nil, err
	}
	if !found || k == starlark.None {
		if k, err = d.nextKey(ctx); err != nil {
			return nil, err
		}
	}
	keyArg, err := starctx.ToGo(k)
	if err != nil {
		return nil, err
	}

	cols := d.columns()
	args := []any{keyArg}
	rest, err := rowArgs(row, cols[1:], mapping)
	if err != nil {
		return nil, err
	}
	args = append(args, rest...)

	if _, err := conn.Exec(ctx, insertSQL(conn.Placeholder, d.name, cols), args...); err != nil {
		return nil, err
	}

	if d.cache != nil {
		if values, err := rowArgs(row, d.lookupatts, mapping); err == nil {
			d.cache[fmt.Sprintf("%#v", values)] = k
		}
	}
	return k, nil
}

// nextKey returns one more than the largest key in the table, or 1.
func (d *Dimension) nextKey(ctx context.Context) (starlark.Value, error) {
	conn, err := d.target.conn.Core()
	if err != nil {
		return nil, err
	}
	v, _, err := queryValue(ctx, conn, fmt.Sprintf("SELECT MAX(%s) FROM %s", d.key, d.name))
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case nil:
		return starlark.MakeInt(1), nil
	case int64:
		return starlark.MakeInt64(n + 1), nil
	case int32:
		return starlark.MakeInt64(int64(n) + 1), nil
	case int:
		return starlark.MakeInt(n + 1), nil
	default:
		return nil, fmt.Errorf("cannot derive next key from %T; supply %s in the row", v, d.key)
	}
}

// dimensionParams are the parameters Dimension and CachedDimension accept.
// Parameters without an effect here are accepted for compatibility.
type dimensionParams struct {
	name, key              string
	attributes, lookupatts starlark.Value
	defaultID              starlark.Value
	target                 starlark.Value
}

func newDimensionBuiltin(kind string, cached bool) *starlark.Builtin {
	return starlark.NewBuiltin(kind, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		rt, err := FromThread(thread)
		if err != nil {
			return nil, err
		}

		p := dimensionParams{
			lookupatts: starlark.None,
			defaultID:  starlark.None,
			target:     starlark.None,
		}
		var ignored starlark.Value
		pairs := []any{
			"name", &p.name,
			"key", &p.key,
			"attributes", &p.attributes,
			"lookupatts?", &p.lookupatts,
			"idfinder?", &ignored,
			"defaultidvalue?", &p.defaultID,
			"rowexpander?", &ignored,
			"targetconnection?", &p.target,
		}
		if cached {
			pairs = append(pairs,
				"size?", &ignored,
				"prefill?", &ignored,
				"cachefullrows?", &ignored,
				"cacheoninsert?", &ignored,
				"usefetchfirst?", &ignored,
			)
		}
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, pairs...); err != nil {
			return nil, err
		}

		attributes, err := starctx.Strings(p.attributes)
		if err != nil {
			return nil, fmt.Errorf("%s: attributes: %w", b.Name(), err)
		}
		lookupatts, err := starctx.Strings(p.lookupatts)
		if err != nil {
			return nil, fmt.Errorf("%s: lookupatts: %w", b.Name(), err)
		}
		if len(lookupatts) == 0 {
			lookupatts = attributes
		}
		target, err := rt.target(p.target)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", b.Name(), p.name, err)
		}

		d := &Dimension{
			kind:       kind,
			name:       p.name,
			key:        p.key,
			attributes: attributes,
			lookupatts: lookupatts,
			defaultID:  p.defaultID,
			target:     target,
		}
		if cached {
			d.cache = make(map[string]starlark.Value)
		}
		rt.logger.Debug("table defined", "kind", kind, "name", p.name)
		return d, nil
	})
}

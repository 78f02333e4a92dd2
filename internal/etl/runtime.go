// Package etl implements the table and connection vocabulary ETL scripts
// are written against: ConnectionWrapper, SQLSource, Dimension,
// CachedDimension, FactTable and BatchFactTable.
//
// The constructors are fixed builtins. Per-run state lives in a Runtime
// attached to the executing thread, so concurrent runs never share state.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"github.com/leapstack-labs/dwprobe/internal/script"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const threadKey = "dwprobe.etl.runtime"

// Runtime holds the state of one script execution.
type Runtime struct {
	logger        *slog.Logger
	defaultTarget *Wrapper
	batches       []*FactTable
}

// NewRuntime creates the state for one run.
func NewRuntime(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runtime{logger: logger}
}

// Attach makes the runtime available to the builtins of every thread the
// executor starts.
func (rt *Runtime) Attach(e *starctx.Executor) *starctx.Executor {
	return e.WithThreadLocal(threadKey, rt)
}

// FromThread returns the runtime attached to thread.
func FromThread(thread *starlark.Thread) (*Runtime, error) {
	rt, ok := thread.Local(threadKey).(*Runtime)
	if !ok || rt == nil {
		return nil, errors.New("etl runtime not attached to thread")
	}
	return rt, nil
}

// Flush writes the rows buffered by every batch table.
func (rt *Runtime) Flush(ctx context.Context) error {
	return rt.flush(ctx, nil)
}

// flush writes the buffered rows of batch tables targeting w, or of all
// batch tables when w is nil.
func (rt *Runtime) flush(ctx context.Context, w *Wrapper) error {
	for _, f := range rt.batches {
		if w != nil && f.target != w {
			continue
		}
		if err := f.flush(ctx); err != nil {
			return fmt.Errorf("flush %s: %w", f.name, err)
		}
	}
	return nil
}

// target resolves a table's targetconnection argument. None selects the
// most recently created ConnectionWrapper.
func (rt *Runtime) target(v starlark.Value) (*Wrapper, error) {
	switch t := v.(type) {
	case *Wrapper:
		return t, nil
	case *Conn:
		return &Wrapper{conn: t, rt: rt}, nil
	case nil, starlark.NoneType:
		if rt.defaultTarget == nil {
			return nil, errors.New("no target connection: create a ConnectionWrapper first")
		}
		return rt.defaultTarget, nil
	default:
		return nil, fmt.Errorf("targetconnection must be a ConnectionWrapper, got %s", v.Type())
	}
}

// Builtins returns the constructor vocabulary, both as top-level names and
// grouped in the pygrametl, tables and datasources namespaces, plus the
// connect functions of the sqlite3 and psycopg2 driver namespaces.
func Builtins() starlark.StringDict {
	wrapper := starlark.NewBuiltin(script.ConnectionWrapper, newWrapper)
	source := starlark.NewBuiltin(script.SQLSource, newSource)
	dimension := newDimensionBuiltin(script.Dimension, false)
	cachedDimension := newDimensionBuiltin(script.CachedDimension, true)
	fact := newFactBuiltin(script.FactTable, false)
	batchFact := newFactBuiltin(script.BatchFactTable, true)

	tables := starlark.StringDict{
		script.Dimension:       dimension,
		script.CachedDimension: cachedDimension,
		script.FactTable:       fact,
		script.BatchFactTable:  batchFact,
	}
	datasources := starlark.StringDict{
		script.SQLSource: source,
	}
	pygrametl := starlark.StringDict{
		script.ConnectionWrapper: wrapper,
		"tables":                 starlarkstruct.FromStringDict(starlark.String("tables"), tables),
		"datasources":            starlarkstruct.FromStringDict(starlark.String("datasources"), datasources),
	}

	builtins := starlark.StringDict{
		script.ConnectionWrapper: wrapper,
		script.SQLSource:         source,
		"connect":                starlark.NewBuiltin("connect", connect),
		"pygrametl":              starlarkstruct.FromStringDict(starlark.String("pygrametl"), pygrametl),
		"tables":                 starlarkstruct.FromStringDict(starlark.String("tables"), tables),
		"datasources":            starlarkstruct.FromStringDict(starlark.String("datasources"), datasources),
	}
	for name, v := range tables {
		builtins[name] = v
	}
	for _, driver := range []string{"sqlite3", "psycopg2"} {
		builtins[driver] = starlarkstruct.FromStringDict(starlark.String(driver), starlark.StringDict{
			"connect": driverConnect(driver),
		})
	}
	return builtins
}

// unpackRow unpacks the (row, namemapping={}) parameters shared by the
// table methods.
func unpackRow(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*starlark.Dict, map[string]string, error) {
	var rowVal starlark.Value
	var mapVal starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "row", &rowVal, "namemapping?", &mapVal); err != nil {
		return nil, nil, err
	}
	return rowAndMapping(b, rowVal, mapVal)
}

func rowAndMapping(b *starlark.Builtin, rowVal, mapVal starlark.Value) (*starlark.Dict, map[string]string, error) {
	row, ok := rowVal.(*starlark.Dict)
	if !ok {
		return nil, nil, fmt.Errorf("%s: row must be a dict, got %s", b.Name(), rowVal.Type())
	}
	if mapVal == starlark.None {
		return row, nil, nil
	}
	md, ok := mapVal.(*starlark.Dict)
	if !ok {
		return nil, nil, fmt.Errorf("%s: namemapping must be a dict, got %s", b.Name(), mapVal.Type())
	}
	mapping := make(map[string]string, md.Len())
	for _, item := range md.Items() {
		k, kok := starlark.AsString(item[0])
		v, vok := starlark.AsString(item[1])
		if !kok || !vok {
			return nil, nil, fmt.Errorf("%s: namemapping must map strings to strings", b.Name())
		}
		mapping[k] = v
	}
	return row, mapping, nil
}

// mapped returns the row key an attribute is read from.
func mapped(att string, mapping map[string]string) string {
	if m, ok := mapping[att]; ok {
		return m
	}
	return att
}

func rowValue(row *starlark.Dict, att string, mapping map[string]string) (starlark.Value, error) {
	name := mapped(att, mapping)
	v, found, err := row.Get(starlark.String(name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("row has no value for %q", name)
	}
	return v, nil
}

// rowArgs reads the attributes from row as SQL arguments.
func rowArgs(row *starlark.Dict, atts []string, mapping map[string]string) ([]any, error) {
	args := make([]any, len(atts))
	for i, att := range atts {
		v, err := rowValue(row, att, mapping)
		if err != nil {
			return nil, err
		}
		if args[i], err = starctx.ToGo(v); err != nil {
			return nil, fmt.Errorf("attribute %s: %w", att, err)
		}
	}
	return args, nil
}

func stringList(s []string) *starlark.List {
	elems := make([]starlark.Value, len(s))
	for i, v := range s {
		elems[i] = starlark.String(v)
	}
	return starlark.NewList(elems)
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

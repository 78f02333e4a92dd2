package extract

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/dwprobe/internal/etl"
	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"github.com/leapstack-labs/dwprobe/pkg/dwrep"
)

// Builtins returns the descriptor constructors the extraction program calls.
func Builtins() starlark.StringDict {
	return starlark.StringDict{
		DWRepresentation:  starlark.NewBuiltin(DWRepresentation, newRepresentation),
		DimRepresentation: starlark.NewBuiltin(DimRepresentation, newDimRepresentation),
		FTRepresentation:  starlark.NewBuiltin(FTRepresentation, newFTRepresentation),
	}
}

// Result returns the descriptor mapping bound to reserved in scope.
func Result(scope *starctx.Scope, reserved string) (*dwrep.Representation, error) {
	v, ok := scope.Lookup(reserved)
	if !ok {
		return nil, fmt.Errorf("%s is not bound", reserved)
	}
	r, ok := v.(*Representation)
	if !ok {
		return nil, fmt.Errorf("%s is a %s, not a %s", reserved, v.Type(), DWRepresentation)
	}
	return r.repr, nil
}

// Representation is the Starlark value of a descriptor mapping.
type Representation struct {
	repr *dwrep.Representation
}

var _ starlark.HasAttrs = (*Representation)(nil)

func (r *Representation) String() string        { return r.repr.String() }
func (r *Representation) Type() string          { return DWRepresentation }
func (r *Representation) Freeze()               {}
func (r *Representation) Truth() starlark.Bool  { return r.repr.Len() > 0 }
func (r *Representation) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", DWRepresentation) }
func (r *Representation) AttrNames() []string   { return []string{"add", "names"} }

func (r *Representation) Attr(name string) (starlark.Value, error) {
	switch name {
	case "add":
		return starlark.NewBuiltin(name, r.add), nil
	case "names":
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			names := r.repr.Names()
			out := make([]starlark.Value, len(names))
			for i, n := range names {
				out[i] = starlark.String(n)
			}
			return starlark.NewList(out), nil
		}), nil
	}
	return nil, nil
}

func (r *Representation) add(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var t *TableValue
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "table", &t); err != nil {
		return nil, err
	}
	if err := r.repr.Add(t.table); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// TableValue is the Starlark value of a table descriptor.
type TableValue struct {
	table *dwrep.Table
}

func (t *TableValue) String() string        { return t.table.String() }
func (t *TableValue) Type() string          { return "TableRepresentation" }
func (t *TableValue) Freeze()               {}
func (t *TableValue) Truth() starlark.Bool  { return starlark.True }
func (t *TableValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: TableRepresentation") }

func newRepresentation(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return &Representation{repr: dwrep.New()}, nil
}

func newDimRepresentation(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name, key  string
		attributes starlark.Value
		lookupatts starlark.Value = starlark.None
		connection starlark.Value
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &name,
		"key", &key,
		"attributes", &attributes,
		"connection", &connection,
		"lookupatts?", &lookupatts,
	); err != nil {
		return nil, err
	}

	attrs, err := starctx.Strings(attributes)
	if err != nil {
		return nil, fmt.Errorf("%s %s: attributes: %w", b.Name(), name, err)
	}
	lookups, err := starctx.Strings(lookupatts)
	if err != nil {
		return nil, fmt.Errorf("%s %s: lookupatts: %w", b.Name(), name, err)
	}
	conn, err := etl.ConnectionOf(connection)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", b.Name(), name, err)
	}
	return &TableValue{table: dwrep.NewDimension(name, key, attrs, lookups, conn)}, nil
}

func newFTRepresentation(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name       string
		keyrefs    starlark.Value
		measures   starlark.Value = starlark.None
		connection starlark.Value
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &name,
		"keyrefs", &keyrefs,
		"measures", &measures,
		"connection", &connection,
	); err != nil {
		return nil, err
	}

	refs, err := starctx.Strings(keyrefs)
	if err != nil {
		return nil, fmt.Errorf("%s %s: keyrefs: %w", b.Name(), name, err)
	}
	ms, err := starctx.Strings(measures)
	if err != nil {
		return nil, fmt.Errorf("%s %s: measures: %w", b.Name(), name, err)
	}
	conn, err := etl.ConnectionOf(connection)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", b.Name(), name, err)
	}
	return &TableValue{table: dwrep.NewFact(name, refs, ms, conn)}, nil
}

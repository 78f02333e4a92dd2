// Package extract builds the program that collects the tables an executed
// ETL script defined into a single descriptor mapping.
package extract

import (
	"strconv"

	"go.starlark.net/syntax"

	"github.com/leapstack-labs/dwprobe/internal/script"
	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"github.com/leapstack-labs/dwprobe/pkg/core"
)

// DefaultReservedName is the name the descriptor mapping is bound to.
const DefaultReservedName = "extract_src_dict"

// Constructor names of the extraction vocabulary.
const (
	DWRepresentation  = "DWRepresentation"
	DimRepresentation = "DimRepresentation"
	FTRepresentation  = "FTRepresentation"
)

// Table is a table-defining assignment found at the top level of a script.
type Table struct {
	// Var is the variable the table object is bound to.
	Var  string
	Kind script.CallKind
}

// Tables returns the top-level assignments of a dimension or fact
// constructor call to a plain variable, in source order. A variable
// assigned more than once is reported once, at its first assignment.
func Tables(f *syntax.File) []Table {
	var tables []Table
	seen := make(map[string]bool)
	for _, stmt := range f.Stmts {
		assign, ok := stmt.(*syntax.AssignStmt)
		if !ok || assign.Op != syntax.EQ {
			continue
		}
		lhs, ok := assign.LHS.(*syntax.Ident)
		if !ok {
			continue
		}
		call, ok := assign.RHS.(*syntax.CallExpr)
		if !ok {
			continue
		}
		kind := script.Classify(call)
		if kind != script.CallDimension && kind != script.CallFact {
			continue
		}
		if seen[lhs.Name] {
			continue
		}
		seen[lhs.Name] = true
		tables = append(tables, Table{Var: lhs.Name, Kind: kind})
	}
	return tables
}

// TempName returns the name of the i-th descriptor temporary.
func TempName(reserved string, i int) string {
	return reserved + "_" + strconv.Itoa(i)
}

// Synthesize builds the extraction program for the executed script f:
//
//	reserved = DWRepresentation()
//	reserved_0 = DimRepresentation(name=v.name, key=v.key, ...)
//	reserved.add(reserved_0)
//	...
//
// It fails with a *core.NameCollisionError, before building anything, when
// scope already binds reserved, one of the temporaries or one of the
// descriptor constructors.
func Synthesize(f *syntax.File, reserved string, scope *starctx.Scope) (*syntax.File, error) {
	tables := Tables(f)

	if scope.Has(reserved) {
		return nil, &core.NameCollisionError{Name: reserved}
	}
	for i := range tables {
		if name := TempName(reserved, i); scope.Has(name) {
			return nil, &core.NameCollisionError{Name: name}
		}
	}
	for _, name := range []string{DWRepresentation, DimRepresentation, FTRepresentation} {
		if scope.Has(name) {
			return nil, &core.NameCollisionError{Name: name}
		}
	}

	path := "<extract>"
	b := &builder{path: &path, line: 1}

	stmts := []syntax.Stmt{
		b.assign(reserved, b.call(DWRepresentation)),
	}
	for i, t := range tables {
		temp := TempName(reserved, i)
		b.line++
		stmts = append(stmts, b.assign(temp, b.descriptor(t)))
		b.line++
		stmts = append(stmts, &syntax.ExprStmt{X: b.method(reserved, "add", b.ident(temp))})
	}

	return &syntax.File{
		Path:    path,
		Stmts:   stmts,
		Options: script.FileOptions(),
	}, nil
}

// builder creates syntax nodes positioned on the current line.
type builder struct {
	path *string
	line int32
}

func (b *builder) pos() syntax.Position {
	return syntax.MakePosition(b.path, b.line, 1)
}

func (b *builder) ident(name string) *syntax.Ident {
	return &syntax.Ident{NamePos: b.pos(), Name: name}
}

func (b *builder) call(fn string, args ...syntax.Expr) *syntax.CallExpr {
	return &syntax.CallExpr{Fn: b.ident(fn), Lparen: b.pos(), Args: args, Rparen: b.pos()}
}

func (b *builder) method(recv, name string, args ...syntax.Expr) *syntax.CallExpr {
	return &syntax.CallExpr{Fn: b.attr(recv, name), Lparen: b.pos(), Args: args, Rparen: b.pos()}
}

func (b *builder) attr(recv, name string) *syntax.DotExpr {
	return &syntax.DotExpr{X: b.ident(recv), Dot: b.pos(), NamePos: b.pos(), Name: b.ident(name)}
}

func (b *builder) kwarg(name string, v syntax.Expr) *syntax.BinaryExpr {
	return &syntax.BinaryExpr{X: b.ident(name), OpPos: b.pos(), Op: syntax.EQ, Y: v}
}

func (b *builder) assign(name string, rhs syntax.Expr) *syntax.AssignStmt {
	return &syntax.AssignStmt{OpPos: b.pos(), Op: syntax.EQ, LHS: b.ident(name), RHS: rhs}
}

// descriptor builds the descriptor constructor call for table t, reading
// the role lists and target connection off the table object.
func (b *builder) descriptor(t Table) *syntax.CallExpr {
	if t.Kind == script.CallFact {
		return b.call(FTRepresentation,
			b.kwarg("name", b.attr(t.Var, "name")),
			b.kwarg("keyrefs", b.attr(t.Var, "keyrefs")),
			b.kwarg("measures", b.attr(t.Var, "measures")),
			b.kwarg("connection", b.attr(t.Var, "targetconnection")),
		)
	}
	return b.call(DimRepresentation,
		b.kwarg("name", b.attr(t.Var, "name")),
		b.kwarg("key", b.attr(t.Var, "key")),
		b.kwarg("attributes", b.attr(t.Var, "attributes")),
		b.kwarg("lookupatts", b.attr(t.Var, "lookupatts")),
		b.kwarg("connection", b.attr(t.Var, "targetconnection")),
	)
}

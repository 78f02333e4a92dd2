// Package rewrite replaces the connections hard-coded in an ETL script with
// binding placeholders, so the script can be re-run against any connections.
package rewrite

import (
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/dwprobe/internal/script"
	"github.com/leapstack-labs/dwprobe/pkg/core"
)

// Usage is one distinct source-connection usage found in a script.
type Usage struct {
	// Key identifies the usage: "name:<ident>" when the connection argument
	// is a bare identifier, otherwise "site:<line:col>" of the argument.
	Key string

	// Placeholder is the binding name assigned to the usage.
	Placeholder string

	// Pos is the position of the first argument with this key.
	Pos syntax.Position
}

// Result describes what a rewrite changed.
type Result struct {
	// Sources lists distinct source usages in first-occurrence order.
	Sources []Usage

	// TargetSites counts rewritten target constructor calls.
	TargetSites int

	// SourceSites counts rewritten source constructor calls.
	SourceSites int
}

// site is one connection argument scheduled for replacement.
type site struct {
	call *syntax.CallExpr
	arg  int
	kind script.CallKind
	key  string
}

// Rewrite substitutes the connection argument of every target constructor
// call with target and of every source constructor call with the source
// placeholder of its usage. Usages get placeholders in the order they are
// first encountered, top to bottom and left to right.
//
// The number of distinct source usages must equal len(sources), and the
// script must use at least one connection; otherwise f is left unmodified
// and a *core.BindingCountMismatchError is returned.
func Rewrite(f *syntax.File, sources []string, target string) (*Result, error) {
	sites := collect(f)

	result := &Result{}
	placeholders := make(map[string]string)
	for _, s := range sites {
		if s.kind != script.CallSource {
			result.TargetSites++
			continue
		}
		result.SourceSites++
		if _, seen := placeholders[s.key]; seen {
			continue
		}
		u := Usage{Key: s.key, Pos: syntax.Start(s.call.Args[s.arg])}
		if n := len(result.Sources); n < len(sources) {
			u.Placeholder = sources[n]
		}
		placeholders[s.key] = u.Placeholder
		result.Sources = append(result.Sources, u)
	}

	if len(sites) == 0 || len(result.Sources) != len(sources) {
		return nil, &core.BindingCountMismatchError{
			Expected: len(sources),
			Found:    len(result.Sources),
		}
	}

	for _, s := range sites {
		name := target
		if s.kind == script.CallSource {
			name = placeholders[s.key]
		}
		replace(s.call, s.arg, name)
	}

	return result, nil
}

// collect finds every connection argument of a target or source call.
// Connection arguments are not descended into: they are replaced whole.
func collect(f *syntax.File) []site {
	var sites []site
	skip := make(map[syntax.Node]bool)

	syntax.Walk(f, func(n syntax.Node) bool {
		if skip[n] {
			return false
		}
		switch n := n.(type) {
		case *syntax.CallExpr:
			kind := script.Classify(n)
			if kind != script.CallTarget && kind != script.CallSource {
				return true
			}
			idx := script.ConnectionArg(n)
			if idx < 0 {
				return true
			}
			arg := script.ArgValue(n.Args[idx])
			skip[arg] = true
			sites = append(sites, site{call: n, arg: idx, kind: kind, key: usageKey(arg)})
		default:
			// Everything else is left unchanged; Walk recurses into children.
		}
		return true
	})

	return sites
}

func usageKey(arg syntax.Expr) string {
	if id, ok := arg.(*syntax.Ident); ok {
		return "name:" + id.Name
	}
	return "site:" + syntax.Start(arg).String()
}

// replace swaps the connection argument for an identifier reference,
// keeping the keyword form and source position of the original.
func replace(call *syntax.CallExpr, idx int, name string) {
	arg := call.Args[idx]
	if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
		kw.Y = &syntax.Ident{NamePos: syntax.Start(kw.Y), Name: name}
		return
	}
	call.Args[idx] = &syntax.Ident{NamePos: syntax.Start(arg), Name: name}
}

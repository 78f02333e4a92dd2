package script

import "go.starlark.net/syntax"

// CallKind classifies a call expression by the constructor it invokes.
type CallKind int

const (
	// CallOther is any call outside the recognized vocabulary.
	CallOther CallKind = iota
	// CallTarget constructs the warehouse connection wrapper.
	CallTarget
	// CallSource constructs a data source reading from a source connection.
	CallSource
	// CallDimension constructs a dimension-shaped table object.
	CallDimension
	// CallFact constructs a fact-shaped table object.
	CallFact
)

func (k CallKind) String() string {
	switch k {
	case CallTarget:
		return "target"
	case CallSource:
		return "source"
	case CallDimension:
		return "dimension"
	case CallFact:
		return "fact"
	default:
		return "other"
	}
}

// Constructor names, shared with the runtime that implements them.
const (
	ConnectionWrapper = "ConnectionWrapper"
	SQLSource         = "SQLSource"
	Dimension         = "Dimension"
	CachedDimension   = "CachedDimension"
	FactTable         = "FactTable"
	BatchFactTable    = "BatchFactTable"
)

var constructors = map[string]CallKind{
	ConnectionWrapper: CallTarget,
	SQLSource:         CallSource,
	Dimension:         CallDimension,
	CachedDimension:   CallDimension,
	FactTable:         CallFact,
	BatchFactTable:    CallFact,
}

// KindOf returns the kind of the named constructor.
func KindOf(name string) CallKind {
	return constructors[name]
}

// Classify reports which constructor a call invokes. Both plain
// (Dimension(...)) and namespaced (tables.Dimension(...)) callees match.
func Classify(call *syntax.CallExpr) CallKind {
	return KindOf(CalleeName(call))
}

// CalleeName returns the trailing name of the called expression, or ""
// when the callee is not a name or attribute selection.
func CalleeName(call *syntax.CallExpr) string {
	switch fn := call.Fn.(type) {
	case *syntax.Ident:
		return fn.Name
	case *syntax.DotExpr:
		return fn.Name.Name
	default:
		return ""
	}
}

// ConnectionParam is the keyword naming a constructor's connection argument.
const ConnectionParam = "connection"

// ConnectionArg locates the connection argument of a target or source call:
// the connection= keyword if present, otherwise the first positional
// argument. It returns the index into call.Args, or -1.
func ConnectionArg(call *syntax.CallExpr) int {
	for i, arg := range call.Args {
		if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
			if id, ok := kw.X.(*syntax.Ident); ok && id.Name == ConnectionParam {
				return i
			}
		}
	}
	if len(call.Args) > 0 && isPositional(call.Args[0]) {
		return 0
	}
	return -1
}

// ArgValue returns the value expression of an argument, looking through
// the name= of keyword arguments.
func ArgValue(arg syntax.Expr) syntax.Expr {
	if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
		if _, ok := kw.X.(*syntax.Ident); ok {
			return kw.Y
		}
	}
	return arg
}

func isPositional(arg syntax.Expr) bool {
	switch a := arg.(type) {
	case *syntax.BinaryExpr:
		return a.Op != syntax.EQ
	case *syntax.UnaryExpr:
		return a.Op != syntax.STAR && a.Op != syntax.STARSTAR
	default:
		return true
	}
}

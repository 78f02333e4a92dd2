// Package script parses ETL scripts into Starlark syntax trees and
// recognizes the small constructor vocabulary the engine works with.
package script

import (
	"errors"
	"fmt"
	"os"

	"github.com/leapstack-labs/dwprobe/pkg/core"
	"go.starlark.net/syntax"
)

// FileOptions are the dialect options ETL scripts are parsed and compiled
// with. Scripts drive their load loop from the top level and rebind
// variables, so both are allowed.
func FileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
}

// Parse parses script text into a syntax tree.
func Parse(filename string, src []byte) (*syntax.File, error) {
	f, err := FileOptions().Parse(filename, src, 0)
	if err != nil {
		return nil, toParseError(filename, err)
	}
	return f, nil
}

// ParseFile reads and parses the script at path.
func ParseFile(path string) (*syntax.File, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is the user-selected script
	if err != nil {
		return nil, &core.ParseError{
			File: path,
			Msg:  fmt.Sprintf("failed to read file: %v", err),
		}
	}
	return Parse(path, content)
}

// Load parses program either as script text or as a path to it.
func Load(program string, isPath bool) (*syntax.File, error) {
	if isPath {
		return ParseFile(program)
	}
	return Parse("<script>", []byte(program))
}

// IsIdentifier reports whether name can be bound by a script: a single
// identifier that is not a keyword.
func IsIdentifier(name string) bool {
	expr, err := FileOptions().ParseExpr("<name>", name, 0)
	if err != nil {
		return false
	}
	id, ok := expr.(*syntax.Ident)
	return ok && id.Name == name
}

func toParseError(filename string, err error) *core.ParseError {
	var serr syntax.Error
	if errors.As(err, &serr) {
		return &core.ParseError{
			File:   filename,
			Line:   int(serr.Pos.Line),
			Column: int(serr.Pos.Col),
			Msg:    serr.Msg,
		}
	}
	return &core.ParseError{File: filename, Msg: err.Error()}
}

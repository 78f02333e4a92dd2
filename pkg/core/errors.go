package core

import "fmt"

// Phase names the execution stage of a reinterpretation run.
type Phase string

const (
	// PhaseTransform runs the rewritten ETL script.
	PhaseTransform Phase = "transform"
	// PhaseExtract runs the synthesized extraction program.
	PhaseExtract Phase = "extract"
)

// ParseError reports malformed script text.
type ParseError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// BindingCountMismatchError is returned when the connections supplied by the
// caller do not match the connection usages found in the script.
type BindingCountMismatchError struct {
	Expected int
	Found    int
}

func (e *BindingCountMismatchError) Error() string {
	if e.Found == 0 && e.Expected == 0 {
		return "binding count mismatch: script uses no connections"
	}
	return fmt.Sprintf("binding count mismatch: %d source connection(s) supplied, script uses %d", e.Expected, e.Found)
}

// NameCollisionError is returned when the script binds a name the
// extraction program needs for itself.
type NameCollisionError struct {
	Name string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("name collision: %q is already bound by the script", e.Name)
}

// ExecutionError wraps a fault raised while running a program.
type ExecutionError struct {
	Phase Phase
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

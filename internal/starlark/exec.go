package starlark

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/dwprobe/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const contextKey = "dwprobe.context"

// Executor compiles and runs syntax trees against a Scope.
type Executor struct {
	// Logger receives script print output at debug level.
	Logger *slog.Logger

	// Builtins are predeclared in every execution. Scope bindings take
	// precedence over builtins of the same name.
	Builtins starlark.StringDict

	locals map[string]any
}

// NewExecutor creates an executor with the given builtins.
func NewExecutor(logger *slog.Logger, builtins starlark.StringDict) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		Logger:   logger,
		Builtins: builtins,
		locals:   make(map[string]any),
	}
}

// WithThreadLocal attaches a value to every thread the executor creates,
// retrievable by builtins through thread.Local(key).
func (e *Executor) WithThreadLocal(key string, value any) *Executor {
	if e.locals == nil {
		e.locals = make(map[string]any)
	}
	e.locals[key] = value
	return e
}

// Exec compiles f and runs its top-level code. Names bound in scope or
// in the builtins are visible to f; the globals f defines are merged back
// into scope when execution succeeds. Any compile or runtime failure is
// returned as a *core.ExecutionError for phase.
//
// Resolving mutates f, so a tree can be executed only once.
func (e *Executor) Exec(ctx context.Context, f *syntax.File, scope *Scope, phase core.Phase) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	predeclared := make(starlark.StringDict, len(e.Builtins)+scope.Len())
	for name, v := range e.Builtins {
		predeclared[name] = v
	}
	for name, v := range scope.StringDict() {
		predeclared[name] = v
	}

	if err := ctx.Err(); err != nil {
		return &core.ExecutionError{Phase: phase, Err: err}
	}

	prog, err := starlark.FileProgram(f, predeclared.Has)
	if err != nil {
		return &core.ExecutionError{Phase: phase, Err: fmt.Errorf("compile: %w", err)}
	}

	thread := &starlark.Thread{
		Name: string(phase),
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug("script output", "phase", phase, "msg", msg)
		},
	}
	for key, value := range e.locals {
		thread.SetLocal(key, value)
	}
	thread.SetLocal(contextKey, ctx)

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	logger.Debug("executing tree", "phase", phase, "file", f.Path, "statements", len(f.Stmts))

	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		return &core.ExecutionError{Phase: phase, Err: err}
	}

	scope.Merge(globals)
	return nil
}

// Context returns the context the thread's execution was started with.
func Context(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// Package reinterpreter re-runs an ETL script against caller-supplied
// connections and returns descriptors of the tables it defines.
//
// A run parses the script, replaces the connections it hard-codes with
// binding placeholders, executes it, then executes a synthesized program
// that collects every dimension and fact table the script built:
//
//	repr, err := reinterpreter.Reinterpret(ctx, reinterpreter.Options{
//		Program: "etl.star", ProgramIsPath: true,
//		Sources: []*core.Connection{src},
//		Target:  dw,
//	})
package reinterpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/dwprobe/internal/etl"
	"github.com/leapstack-labs/dwprobe/internal/extract"
	"github.com/leapstack-labs/dwprobe/internal/rewrite"
	"github.com/leapstack-labs/dwprobe/internal/script"
	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"github.com/leapstack-labs/dwprobe/pkg/core"
	"github.com/leapstack-labs/dwprobe/pkg/dwrep"
)

// State is the progress of a Reinterpreter.
type State string

// States in the order a successful run passes through them.
const (
	StateNew            State = "new"
	StateParsed         State = "parsed"
	StateRewritten      State = "rewritten"
	StateScriptExecuted State = "script_executed"
	StateExtracted      State = "extracted"
	StateFailed         State = "failed"
)

// ErrAlreadyRun is returned when Run is called on a used Reinterpreter.
var ErrAlreadyRun = errors.New("reinterpreter has already run")

// Options configure a reinterpretation.
type Options struct {
	// Program is the script text, or its path when ProgramIsPath is set.
	Program       string
	ProgramIsPath bool

	// Sources replace the script's source connections in the order the
	// script first uses them.
	Sources []*core.Connection

	// Target replaces the script's warehouse connection.
	Target *core.Connection

	// ReservedName is the name the descriptor mapping is collected under.
	// Defaults to extract_src_dict. The script must not bind it.
	ReservedName string

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Reinterpreter performs a single reinterpretation run.
type Reinterpreter struct {
	opts   Options
	logger *slog.Logger
	runID  string

	mu      sync.Mutex
	state   State
	started bool
}

// New validates opts and prepares a run.
func New(opts Options) (*Reinterpreter, error) {
	if opts.Target == nil {
		return nil, errors.New("target connection is required")
	}
	for i, src := range opts.Sources {
		if src == nil {
			return nil, fmt.Errorf("source connection %d is nil", i+1)
		}
	}
	if opts.ReservedName == "" {
		opts.ReservedName = extract.DefaultReservedName
	}
	if !script.IsIdentifier(opts.ReservedName) {
		return nil, fmt.Errorf("reserved name %q is not a valid identifier", opts.ReservedName)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	runID := uuid.NewString()
	return &Reinterpreter{
		opts:   opts,
		logger: logger.With("run_id", runID),
		runID:  runID,
		state:  StateNew,
	}, nil
}

// Reinterpret creates a Reinterpreter for opts and runs it.
func Reinterpret(ctx context.Context, opts Options) (*dwrep.Representation, error) {
	r, err := New(opts)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// State returns the current state.
func (r *Reinterpreter) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RunID identifies the run in log records.
func (r *Reinterpreter) RunID() string {
	return r.runID
}

// Run performs the reinterpretation. It returns the descriptor mapping
// only when every stage succeeded; on failure the error is one of
// *core.ParseError, *core.BindingCountMismatchError,
// *core.NameCollisionError or *core.ExecutionError.
//
// A Reinterpreter runs once; later calls return ErrAlreadyRun.
func (r *Reinterpreter) Run(ctx context.Context) (*dwrep.Representation, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	r.started = true
	r.mu.Unlock()

	start := time.Now()
	r.logger.Info("reinterpretation started", "sources", len(r.opts.Sources), "target", r.opts.Target.String())

	repr, err := r.run(ctx)
	if err != nil {
		r.transition(StateFailed)
		r.logger.Info("reinterpretation failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	r.logger.Info("reinterpretation finished", "tables", repr.Len(), "duration", time.Since(start))
	return repr, nil
}

func (r *Reinterpreter) run(ctx context.Context) (*dwrep.Representation, error) {
	f, err := script.Load(r.opts.Program, r.opts.ProgramIsPath)
	if err != nil {
		return nil, err
	}
	r.transition(StateParsed)

	sources := core.SourcePlaceholders(len(r.opts.Sources))
	rewritten, err := rewrite.Rewrite(f, sources, core.TargetPlaceholder)
	if err != nil {
		return nil, err
	}
	for i, u := range rewritten.Sources {
		r.logger.Debug("source bound", "placeholder", u.Placeholder, "usage", u.Key,
			"position", u.Pos.String(), "connection", r.opts.Sources[i].String())
	}
	r.transition(StateRewritten)

	scope := starctx.NewScope()
	scope.Bind(core.TargetPlaceholder, etl.Bind(r.opts.Target))
	for i, src := range r.opts.Sources {
		scope.Bind(sources[i], etl.Bind(src))
	}

	transform := etl.NewRuntime(r.logger).Attach(starctx.NewExecutor(r.logger, etl.Builtins()))
	if err := transform.Exec(ctx, f, scope, core.PhaseTransform); err != nil {
		return nil, err
	}
	r.transition(StateScriptExecuted)

	program, err := extract.Synthesize(f, r.opts.ReservedName, scope)
	if err != nil {
		return nil, err
	}
	extractor := starctx.NewExecutor(r.logger, extract.Builtins())
	if err := extractor.Exec(ctx, program, scope, core.PhaseExtract); err != nil {
		return nil, err
	}
	repr, err := extract.Result(scope, r.opts.ReservedName)
	if err != nil {
		return nil, &core.ExecutionError{Phase: core.PhaseExtract, Err: err}
	}
	r.transition(StateExtracted)

	return repr, nil
}

func (r *Reinterpreter) transition(to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.mu.Unlock()
	r.logger.Debug("state transition", "from", from, "to", to)
}

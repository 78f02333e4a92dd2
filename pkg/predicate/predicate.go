// Package predicate defines how data-quality checks consume the tables
// a reinterpreted ETL script produced. Checks themselves live elsewhere.
package predicate

import (
	"context"

	"github.com/leapstack-labs/dwprobe/pkg/dwrep"
)

// Predicate is a data-quality check over a descriptor mapping.
type Predicate interface {
	// Name identifies the predicate in reports.
	Name() string

	// Run evaluates the predicate against the tables in repr.
	Run(ctx context.Context, repr *dwrep.Representation) (*Report, error)
}

// Report is the outcome of one predicate run.
type Report struct {
	Predicate string
	Tables    []string
	Passed    bool

	// Violations holds offending rows, keyed by column name.
	Violations []dwrep.Row
	Message    string
}

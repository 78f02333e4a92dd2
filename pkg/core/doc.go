// Package core defines the shared language of the dwprobe system.
//
// This package contains:
//   - Connections handed to the engine (Connection, Queryer, PlaceholderStyle)
//   - The engine's error taxonomy (ParseError, BindingCountMismatchError,
//     NameCollisionError, ExecutionError)
//   - The adapter contract databases are opened through (Adapter, AdapterConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core

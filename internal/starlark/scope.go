package starlark

import (
	"sort"
	"sync"

	"go.starlark.net/starlark"
)

// Scope is the binding environment of one reinterpretation run. Both
// execution phases read and write the same Scope: the transform phase
// binds the script's globals, the extract phase reads them and binds the
// descriptor mapping.
type Scope struct {
	mu       sync.RWMutex
	bindings starlark.StringDict
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{bindings: make(starlark.StringDict)}
}

// Bind sets name to v, replacing any previous binding.
func (s *Scope) Bind(name string, v starlark.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[name] = v
}

// Lookup returns the value bound to name.
func (s *Scope) Lookup(name string) (starlark.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.bindings[name]
	return v, ok
}

// Has reports whether name is bound.
func (s *Scope) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Names returns the bound names in sorted order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.bindings))
	for name := range s.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge binds every entry of globals, overwriting existing bindings.
func (s *Scope) Merge(globals starlark.StringDict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range globals {
		s.bindings[name] = v
	}
}

// StringDict returns a snapshot of the bindings.
func (s *Scope) StringDict() starlark.StringDict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(starlark.StringDict, len(s.bindings))
	for name, v := range s.bindings {
		out[name] = v
	}
	return out
}

// Len returns the number of bindings.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}

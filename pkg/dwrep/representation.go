package dwrep

import (
	"fmt"
	"sort"
	"strings"
)

// Representation maps lower-cased table names to table descriptors.
type Representation struct {
	tables map[string]*Table
}

// New creates an empty Representation.
func New() *Representation {
	return &Representation{tables: make(map[string]*Table)}
}

// Add inserts t. Table names are compared case-insensitively; adding a
// second table with the same name fails and leaves the mapping unchanged.
func (r *Representation) Add(t *Table) error {
	name := strings.ToLower(t.Name)
	if _, exists := r.tables[name]; exists {
		return &DuplicateTableError{Name: name}
	}
	t.Name = name
	r.tables[name] = t
	return nil
}

// Get returns the table with the given name, ignoring case.
func (r *Representation) Get(name string) (*Table, bool) {
	t, ok := r.tables[strings.ToLower(name)]
	return t, ok
}

// Names returns the table names in sorted order.
func (r *Representation) Names() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tables returns the tables sorted by name.
func (r *Representation) Tables() []*Table {
	names := r.Names()
	out := make([]*Table, len(names))
	for i, name := range names {
		out[i] = r.tables[name]
	}
	return out
}

// Len returns the number of tables.
func (r *Representation) Len() int {
	return len(r.tables)
}

func (r *Representation) String() string {
	parts := make([]string, 0, len(r.tables))
	for _, t := range r.Tables() {
		parts = append(parts, t.String())
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}

// DuplicateTableError is returned when two tables share a name.
type DuplicateTableError struct {
	Name string
}

func (e *DuplicateTableError) Error() string {
	return fmt.Sprintf("table names are not unique: %q defined more than once", e.Name)
}

// UnknownColumnError is returned when a projection names a column the
// table's query does not return.
type UnknownColumnError struct {
	Table  string
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("table %s has no column %q", e.Table, e.Column)
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/dwprobe/pkg/dwrep"
)

// Mode selects how results are printed.
type Mode string

// Output modes.
const (
	ModeAuto  Mode = "auto"
	ModeTable Mode = "table"
	ModeJSON  Mode = "json"
	ModeYAML  Mode = "yaml"
)

// ParseMode validates an output mode name. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeTable, ModeJSON, ModeYAML:
		return m, nil
	}
	return "", fmt.Errorf("invalid output format %q (want auto, table, json or yaml)", s)
}

// Renderer prints descriptors and rows in one output mode.
type Renderer struct {
	w    io.Writer
	mode Mode
}

// NewRenderer creates a renderer writing to w. Auto mode prints tables
// to terminals and JSON otherwise.
func NewRenderer(w io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(w, mode, isTerminal(w))
}

// NewRendererWithTTY creates a renderer with explicit terminal detection.
func NewRendererWithTTY(w io.Writer, mode Mode, isTTY bool) *Renderer {
	if mode == ModeAuto || mode == "" {
		mode = ModeJSON
		if isTTY {
			mode = ModeTable
		}
	}
	return &Renderer{w: w, mode: mode}
}

// Mode returns the resolved output mode.
func (r *Renderer) Mode() Mode {
	return r.mode
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TableSummary describes one extracted table for output.
type TableSummary struct {
	Name       string     `json:"name" yaml:"name"`
	Kind       dwrep.Kind `json:"kind" yaml:"kind"`
	Key        string     `json:"key,omitempty" yaml:"key,omitempty"`
	Attributes []string   `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	LookupAtts []string   `json:"lookupatts,omitempty" yaml:"lookupatts,omitempty"`
	KeyRefs    []string   `json:"keyrefs,omitempty" yaml:"keyrefs,omitempty"`
	Measures   []string   `json:"measures,omitempty" yaml:"measures,omitempty"`
	Columns    []string   `json:"columns" yaml:"columns"`
	Query      string     `json:"query" yaml:"query"`
	Connection string     `json:"connection" yaml:"connection"`
	Rows       *int64     `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// Summarize builds the output form of t.
func Summarize(t *dwrep.Table) TableSummary {
	s := TableSummary{
		Name:       t.Name,
		Kind:       t.Kind,
		Key:        t.Key,
		Attributes: t.Attributes,
		LookupAtts: t.LookupAtts,
		KeyRefs:    t.KeyRefs,
		Measures:   t.Measures,
		Columns:    t.Columns(),
		Query:      t.Query(),
	}
	if t.Conn != nil {
		s.Connection = t.Conn.String()
	}
	return s
}

// Tables prints table summaries.
func (r *Renderer) Tables(tables []TableSummary) error {
	switch r.mode {
	case ModeJSON:
		return r.renderJSON(tables)
	case ModeYAML:
		return r.renderYAML(tables)
	}

	if len(tables) == 0 {
		_, _ = fmt.Fprintln(r.w, "(0 tables)")
		return nil
	}

	counted := tables[0].Rows != nil
	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleLight)

	header := table.Row{"Name", "Kind", "Columns"}
	if counted {
		header = append(header, "Rows")
	}
	t.AppendHeader(append(header, "Connection", "Query"))

	for _, s := range tables {
		row := table.Row{s.Name, s.Kind, strings.Join(s.Columns, ", ")}
		if counted {
			row = append(row, formatValue(derefCount(s.Rows)))
		}
		t.AppendRow(append(row, s.Connection, s.Query))
	}

	t.Render()
	_, _ = fmt.Fprintf(r.w, "(%d tables)\n", len(tables))
	return nil
}

func derefCount(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

// Rows prints the rows of seq under cols and returns how many it printed.
// JSON prints one object per line and YAML one document per row, as rows
// arrive. Table mode buffers. A positive limit stops after that many rows.
func (r *Renderer) Rows(cols []string, seq iter.Seq2[dwrep.Row, error], limit int) (int, error) {
	var (
		emit  func(dwrep.Row) error
		flush = func() error { return nil }
	)

	switch r.mode {
	case ModeJSON:
		enc := json.NewEncoder(r.w)
		emit = func(row dwrep.Row) error { return enc.Encode(row) }
	case ModeYAML:
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		emit = func(row dwrep.Row) error { return enc.Encode(row) }
		flush = enc.Close
	default:
		t := table.NewWriter()
		t.SetOutputMirror(r.w)
		t.SetStyle(table.StyleLight)
		header := make(table.Row, len(cols))
		for i, c := range cols {
			header[i] = c
		}
		t.AppendHeader(header)
		emit = func(row dwrep.Row) error {
			out := make(table.Row, len(cols))
			for i, c := range cols {
				out[i] = formatValue(row[c])
			}
			t.AppendRow(out)
			return nil
		}
		flush = func() error {
			t.Render()
			return nil
		}
	}

	n := 0
	for row, err := range seq {
		if err != nil {
			return n, err
		}
		if err := emit(row); err != nil {
			return n, err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	if err := flush(); err != nil {
		return n, err
	}
	if r.mode == ModeTable {
		_, _ = fmt.Fprintf(r.w, "(%d rows)\n", n)
	}
	return n, nil
}

func (r *Renderer) renderJSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) renderYAML(v any) error {
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

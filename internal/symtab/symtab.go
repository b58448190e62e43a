// Package symtab collects the candidate strings of one library into the name
// and method-type tables that become NativeNameCandidate and
// NativeMethodTypeCandidate facts.
package symtab

import (
	"strings"

	"github.com/elliotchance/orderedmap"

	"jniscan/internal/classify"
	"jniscan/internal/correlate"
	"jniscan/internal/section"
)

const (
	UnknownFunction = "-"
	UnknownOffset   = int64(-1)
)

// Row locates one occurrence of a candidate string.
type Row struct {
	Function string
	Offset   int64
}

// Table maps a candidate string to its rows. Strings and rows keep insertion
// order.
type Table struct {
	m *orderedmap.OrderedMap
}

func NewTable() *Table {
	return &Table{m: orderedmap.NewOrderedMap()}
}

// Add appends row under sym.
func (t *Table) Add(sym string, row Row) {
	v, _ := t.m.Get(sym)
	rows, _ := v.([]Row)
	t.m.Set(sym, append(rows, row))
}

// Symbols lists the strings in insertion order.
func (t *Table) Symbols() []string {
	keys := t.m.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.(string)
	}
	return out
}

func (t *Table) Rows(sym string) []Row {
	v, ok := t.m.Get(sym)
	if !ok {
		return nil
	}
	return v.([]Row)
}

func (t *Table) Len() int { return t.m.Len() }

// Each calls fn for every row, strings in insertion order.
func (t *Table) Each(fn func(sym string, row Row)) {
	for _, sym := range t.Symbols() {
		for _, row := range t.Rows(sym) {
			fn(sym, row)
		}
	}
}

// Tables is the pair of tables built for a library.
type Tables struct {
	Names       *Table
	MethodTypes *Table
}

func New() *Tables {
	return &Tables{Names: NewTable(), MethodTypes: NewTable()}
}

// Add classifies s and files row under the matching table. An "@..." suffix
// is dropped before classifying. Strings that are neither kind are ignored.
func (ts *Tables) Add(s string, row Row) classify.Kind {
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	k := classify.Classify(s)
	switch k {
	case classify.MethodType:
		ts.MethodTypes.Add(s, row)
	case classify.Name:
		ts.Names.Add(s, row)
	}
	return k
}

// AddCorrelated records strings whose using function is known. Their offset
// is unknown.
func (ts *Tables) AddCorrelated(res *correlate.Result) {
	for _, s := range res.Strings() {
		for _, fn := range res.Functions(s) {
			ts.Add(s, Row{Function: fn, Offset: UnknownOffset})
		}
	}
}

// AddHeuristic records the external finder's strings. The offset is the
// string's position in the finder output.
func (ts *Tables) AddHeuristic(lines []string) {
	for i, s := range lines {
		ts.Add(s, Row{Function: UnknownFunction, Offset: int64(i)})
	}
}

// AddRodata records raw section strings at their file offsets.
func (ts *Tables) AddRodata(lits []section.StringLiteral) {
	for _, lit := range lits {
		ts.Add(lit.Text, Row{Function: UnknownFunction, Offset: int64(lit.Offset)})
	}
}

// Sources selects the inputs of Build.
type Sources struct {
	Correlated *correlate.Result
	Heuristic  []string
	Rodata     []section.StringLiteral
	Precise    bool // omit Rodata
}

// Build fills new tables from src: correlated strings first, then heuristic
// strings, then raw rodata strings.
func Build(src Sources) *Tables {
	ts := New()
	if src.Correlated != nil {
		ts.AddCorrelated(src.Correlated)
	}
	ts.AddHeuristic(src.Heuristic)
	if !src.Precise {
		ts.AddRodata(src.Rodata)
	}
	return ts
}

// Package facts writes scan results as tab separated .facts files, one file
// per predicate.
package facts

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"jniscan/internal/entrypoint"
	"jniscan/internal/symtab"
)

// Predicate names a fact table and its file.
type Predicate string

const (
	LibEntryPoint       Predicate = "NativeLibEntryPoint"
	NameCandidate       Predicate = "NativeNameCandidate"
	MethodTypeCandidate Predicate = "NativeMethodTypeCandidate"
)

// Predicates lists every table the writer creates.
var Predicates = []Predicate{LibEntryPoint, NameCandidate, MethodTypeCandidate}

// File returns the facts file of p inside dir.
func (p Predicate) File(dir string) string {
	return filepath.Join(dir, string(p)+".facts")
}

var escaper = strings.NewReplacer(`"`, `\\"`, "\n", `\\n`, "\t", `\\t`)

// Escape quotes the characters that would break a tab separated row.
func Escape(col string) string {
	if !strings.ContainsAny(col, "\"\n\t") {
		return col
	}
	return escaper.Replace(col)
}

type row struct {
	pred Predicate
	cols []string
}

// Batch holds the rows of one library in emission order.
type Batch struct {
	rows []row
}

func (b *Batch) Add(p Predicate, cols ...string) {
	b.rows = append(b.rows, row{pred: p, cols: cols})
}

func (b *Batch) Len() int { return len(b.rows) }

// Count returns the number of rows for p.
func (b *Batch) Count(p Predicate) int {
	n := 0
	for _, r := range b.rows {
		if r.pred == p {
			n++
		}
	}
	return n
}

// AddTables emits one candidate row per table entry: names first, then
// method types.
func (b *Batch) AddTables(lib string, ts *symtab.Tables) {
	add := func(p Predicate) func(string, symtab.Row) {
		return func(sym string, r symtab.Row) {
			b.Add(p, lib, r.Function, sym, strconv.FormatInt(r.Offset, 10))
		}
	}
	ts.Names.Each(add(NameCandidate))
	ts.MethodTypes.Each(add(MethodTypeCandidate))
}

// AddEntryPoints emits (lib, symbol, decimal address) rows.
func (b *Batch) AddEntryPoints(lib string, eps entrypoint.Table) {
	for _, ep := range eps {
		b.Add(LibEntryPoint, lib, ep.Name, strconv.FormatUint(ep.Addr, 10))
	}
}

// Writer appends batches to the facts files of a directory. It is safe for
// concurrent use.
type Writer struct {
	mu    sync.Mutex
	dir   string
	files map[Predicate]*os.File
	bufs  map[Predicate]*bufio.Writer
}

// Create opens one file per predicate in dir, creating dir if needed.
// Existing files are truncated unless appendRows is set.
func Create(dir string, appendRows bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create facts dir: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendRows {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	w := &Writer{
		dir:   dir,
		files: make(map[Predicate]*os.File, len(Predicates)),
		bufs:  make(map[Predicate]*bufio.Writer, len(Predicates)),
	}
	for _, p := range Predicates {
		f, err := os.OpenFile(p.File(dir), flags, 0o644)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("open facts file: %w", err)
		}
		w.files[p] = f
		w.bufs[p] = bufio.NewWriter(f)
	}
	return w, nil
}

func (w *Writer) Dir() string { return w.dir }

// Write appends every row of b. Rows of one batch are never interleaved with
// rows of another.
func (w *Writer) Write(b *Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range b.rows {
		bw, ok := w.bufs[r.pred]
		if !ok {
			return fmt.Errorf("unknown predicate %s", r.pred)
		}
		for i, col := range r.cols {
			if i > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(Escape(col))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write %s: %w", r.pred, err)
		}
	}
	return nil
}

// Close flushes and closes every file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, p := range Predicates {
		if bw, ok := w.bufs[p]; ok {
			errs = append(errs, bw.Flush())
		}
		if f, ok := w.files[p]; ok {
			errs = append(errs, f.Close())
		}
	}
	w.bufs, w.files = nil, nil
	return errors.Join(errs...)
}

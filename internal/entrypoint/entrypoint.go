// Package entrypoint recovers exported JNI functions from nm output.
package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"jniscan/internal/toolrun"
)

var (
	// ErrEmptySymbol means a symbol line parsed to an empty name. It is the
	// only parse failure that aborts a library scan.
	ErrEmptySymbol = errors.New("empty symbol name")

	ErrMalformed  = errors.New("unrecognized symbol line")
	ErrUndefined  = errors.New("undefined symbol")
	ErrBadAddress = errors.New("bad symbol address")
	ErrJNIEnv     = errors.New("JNIEnv method")
)

const jniEnvPrefix = "_JNIEnv::"

// EntryPoint is an exported JNI-tagged function.
type EntryPoint struct {
	Addr uint64
	Name string
}

// Table holds entry points ordered by ascending address, one per address.
type Table []EntryPoint

// Names returns the symbol names in address order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, ep := range t {
		names[i] = ep.Name
	}
	return names
}

// Options select nm flags.
type Options struct {
	DefinedOnly bool
	Demangle    bool
}

// Args builds the nm command line for lib.
func (o Options) Args(lib string) []string {
	args := []string{"--dynamic"}
	if o.DefinedOnly {
		args = append(args, "--defined-only")
	}
	if o.Demangle {
		args = append(args, "--demangle")
	}
	return append(args, lib)
}

// Symbols runs nm on the dynamic symbol table of lib.
func Symbols(ctx context.Context, r toolrun.Runner, nm, lib string, opts Options) ([]string, error) {
	lines, err := r.Run(ctx, nm, opts.Args(lib)...)
	if err != nil {
		return nil, fmt.Errorf("dynamic symbols of %s: %w", lib, err)
	}
	return lines, nil
}

// Extract runs nm and parses its output.
func Extract(ctx context.Context, r toolrun.Runner, nm, lib string, opts Options, logger *log.Logger) (Table, error) {
	lines, err := Symbols(ctx, r, nm, lib, opts)
	if err != nil {
		return nil, err
	}
	return Parse(lines, logger)
}

// Parse keeps the lines mentioning JNI and turns them into a Table. Lines that
// do not parse are logged and skipped, except for ErrEmptySymbol.
func Parse(lines []string, logger *log.Logger) (Table, error) {
	byAddr := make(map[uint64]string)
	for _, line := range lines {
		if !strings.Contains(line, "JNI") {
			continue
		}
		ep, err := ParseLine(line)
		switch {
		case err == nil:
			byAddr[ep.Addr] = ep.Name
		case errors.Is(err, ErrEmptySymbol):
			return nil, err
		case errors.Is(err, ErrMalformed), errors.Is(err, ErrBadAddress):
			logger.Warn("Skipping symbol", "line", line, "err", err)
		default:
			logger.Debug("Ignoring symbol", "line", line, "reason", err)
		}
	}

	table := make(Table, 0, len(byAddr))
	for addr, name := range byAddr {
		table = append(table, EntryPoint{Addr: addr, Name: name})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Addr < table[j].Addr })
	return table, nil
}

func cutAt(s, delim string) string {
	if i := strings.Index(s, delim); i >= 0 {
		return s[:i]
	}
	return s
}

// ParseLine parses one line of nm output such as
// "00001234 T Java_com_example_Foo_bar".
func ParseLine(line string) (EntryPoint, error) {
	prefix := cutAt(cutAt(line, "("), "<")

	last := strings.LastIndexByte(prefix, ' ')
	if last < 0 {
		return EntryPoint{}, ErrMalformed
	}
	if last > 0 && prefix[last-1] == 'U' {
		return EntryPoint{}, ErrUndefined
	}

	field := prefix[:strings.IndexByte(prefix, ' ')]
	field = strings.TrimPrefix(field, "'")
	addr, err := strconv.ParseUint(field, 16, 64)
	if err != nil {
		return EntryPoint{}, fmt.Errorf("%w %q", ErrBadAddress, field)
	}

	name := prefix[last+1:]
	switch {
	case strings.HasPrefix(name, jniEnvPrefix):
		return EntryPoint{}, ErrJNIEnv
	case name == "":
		return EntryPoint{}, fmt.Errorf("%w in line %q", ErrEmptySymbol, line)
	}
	return EntryPoint{Addr: addr, Name: name}, nil
}

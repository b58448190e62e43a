// Package disasm produces the textual disassembly the correlators consume,
// either from external tools or from an in-process decoder.
package disasm

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"jniscan/internal/toolrun"
)

// Backend names accepted by New.
const (
	BackendAuto    = "auto"
	BackendGDB     = "gdb"
	BackendBuiltin = "builtin"
)

var (
	ErrUnsupportedArch = errors.New("unsupported architecture")
	ErrNoFunction      = errors.New("function not found")
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64 // virtual address of instruction
	Len  int    // encoded length in bytes
	Text string // formatted disassembly string
	Op   string // mnemonic in lowercase
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// SectionDumper disassembles a whole section, objdump style.
type SectionDumper interface {
	DumpSection(ctx context.Context, lib, section string) ([]string, error)
}

// FunctionDumper disassembles one function, gdb style.
type FunctionDumper interface {
	DumpFunction(ctx context.Context, lib, fn string) ([]string, error)
}

// Source combines both views of a library.
type Source struct {
	SectionDumper
	FunctionDumper
}

// Objdump runs "objdump -j <section> -d".
type Objdump struct {
	Runner toolrun.Runner
	Bin    string
}

func (o Objdump) DumpSection(ctx context.Context, lib, section string) ([]string, error) {
	lines, err := o.Runner.Run(ctx, o.Bin, "-j", section, "-d", lib)
	if err != nil {
		return nil, fmt.Errorf("disassemble %s of %s: %w", section, lib, err)
	}
	return lines, nil
}

// GDB runs "gdb -batch -ex 'disassemble <fn>'".
type GDB struct {
	Runner toolrun.Runner
	Bin    string
}

func (g GDB) DumpFunction(ctx context.Context, lib, fn string) ([]string, error) {
	lines, err := g.Runner.Run(ctx, g.Bin, "-batch", "-ex", "disassemble "+fn, lib)
	if err != nil {
		return nil, fmt.Errorf("disassemble %s in %s: %w", fn, lib, err)
	}
	return lines, nil
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// New returns a Source whose section dumps come from objdump and whose
// function dumps come from the named backend. "auto" picks gdb when it is on
// PATH and the builtin decoder otherwise.
func New(backend string, r toolrun.Runner, objdump, gdb string) (Source, error) {
	src := Source{SectionDumper: Objdump{Runner: r, Bin: objdump}}
	switch backend {
	case BackendGDB:
		src.FunctionDumper = GDB{Runner: r, Bin: gdb}
	case BackendBuiltin:
		src.FunctionDumper = Builtin{}
	case BackendAuto, "":
		if _, err := lookPath(gdb); err == nil {
			src.FunctionDumper = GDB{Runner: r, Bin: gdb}
		} else {
			src.FunctionDumper = Builtin{}
		}
	default:
		return Source{}, fmt.Errorf("unknown disassembler backend %q", backend)
	}
	return src, nil
}

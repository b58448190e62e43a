// Package scanner runs the full analysis of one native library: architecture
// detection, entry point extraction, string extraction, correlation and
// symbol table construction.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"jniscan/internal/arch"
	"jniscan/internal/config"
	"jniscan/internal/correlate"
	"jniscan/internal/decompress"
	"jniscan/internal/disasm"
	"jniscan/internal/entrypoint"
	"jniscan/internal/facts"
	"jniscan/internal/heuristic"
	"jniscan/internal/section"
	"jniscan/internal/symtab"
	"jniscan/internal/toolrun"
)

// Reasons a library produced no facts.
const (
	SkipNoSymbols    = "nm failed"
	SkipNoRodata     = "no .rodata section"
	SkipEmptyProduct = "no known name/type pair"
)

// Report summarizes one library scan. Facts is nil for skipped libraries.
type Report struct {
	Lib         string
	Arch        arch.Arch
	EntryPoints int
	Strings     int
	Correlated  int
	Names       int
	MethodTypes int
	JNIEnv      entrypoint.JNIEnvCalls
	Skipped     string
	Facts       *facts.Batch
}

// Scanner holds what every library scan shares. It is safe for concurrent use.
type Scanner struct {
	Config *config.Toolchain
	Runner toolrun.Runner
	Log    *log.Logger

	// MethodStrings restricts .rodata strings to known method names and
	// descriptors when non-nil.
	MethodStrings symtab.MethodStrings
}

// New builds a Scanner from tc, loading the method strings file if set.
func New(tc *config.Toolchain, r toolrun.Runner, logger *log.Logger) (*Scanner, error) {
	s := &Scanner{Config: tc, Runner: r, Log: logger}
	if tc.MethodStrings != "" {
		ms, err := symtab.LoadMethodStrings(tc.MethodStrings)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded method strings", "count", len(ms))
		s.MethodStrings = ms
	}
	return s, nil
}

// Scan handles a library or a compressed .xzs / .zstd payload.
func (s *Scanner) Scan(ctx context.Context, path string) (*Report, error) {
	if !decompress.IsCompressed(path) {
		return s.ScanLib(ctx, path)
	}
	s.Log.Info("Processing packed native code", "path", path)
	u := decompress.Unpacker{Runner: s.Runner, XZ: s.Config.XZ, Zstd: s.Config.Zstd, Log: s.Log}
	lib, err := u.Unpack(ctx, path)
	if err != nil {
		s.Log.Error("Could not unpack native code", "path", path, "err", err)
		return &Report{Lib: path, Skipped: "unpack failed"}, nil
	}
	return s.ScanLib(ctx, lib)
}

// ScanLib scans one library. Tool failures and missing sections end the scan
// with a Report naming the reason; the only error returned for a readable
// library is entrypoint.ErrEmptySymbol.
func (s *Scanner) ScanLib(ctx context.Context, path string) (*Report, error) {
	lib, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	tc := s.Config
	logger := s.Log.With("lib", lib)
	logger.Info("Processing library")

	rep := &Report{Lib: lib}
	rep.Arch = arch.Detect(ctx, s.Runner, tc.File, lib, logger)

	nm, objdump, fromToolchain := tc.Binutils(rep.Arch)
	if env := config.ToolchainEnv(rep.Arch); env != "" && !fromToolchain {
		logger.Warn("No toolchain for architecture, using system binutils", "arch", rep.Arch, "env", env)
	}

	opts := entrypoint.Options{DefinedOnly: tc.DefinedOnly, Demangle: tc.Demangle}
	syms, err := entrypoint.Symbols(ctx, s.Runner, nm, lib, opts)
	if err != nil {
		logger.Error("Could not read dynamic symbols", "err", err)
		rep.Skipped = SkipNoSymbols
		return rep, nil
	}
	if tc.CheckJNIEnv {
		rep.JNIEnv = entrypoint.CheckJNIEnvCalls(syms)
		if rep.JNIEnv.Any() {
			logger.Info("Library uses JNIEnv lookups", "GetMethodID", rep.JNIEnv.GetMethodID, "GetFieldID", rep.JNIEnv.GetFieldID)
		}
	}
	eps, err := entrypoint.Parse(syms, logger)
	if err != nil {
		return rep, fmt.Errorf("entry points of %s: %w", lib, err)
	}
	rep.EntryPoints = len(eps)

	rodata, err := s.readRodata(ctx, objdump, lib, logger)
	if err != nil {
		logger.Warn("Library has no readable string section", "section", section.Rodata, "err", err)
		rep.Skipped = SkipNoRodata
		return rep, nil
	}

	lits := rodata.Strings()
	var strs correlate.Strings = rodata
	if s.MethodStrings != nil {
		kept, ok := s.MethodStrings.Filter(lits)
		logger.Info("Filtered strings", "kept", len(kept), "total", len(lits))
		if !ok {
			logger.Info("Product [name x type] is empty, ignoring library")
			rep.Skipped = SkipEmptyProduct
			return rep, nil
		}
		lits = kept
		strs = stringMap(kept)
	}
	rep.Strings = len(lits)

	src, err := disasm.New(tc.Disassembler, s.Runner, objdump, tc.GDB)
	if err != nil {
		return rep, err
	}
	res := correlate.Run(ctx, src, lib, rep.Arch, eps, strs, logger)
	rep.Correlated = res.Len()

	var heur []string
	if tc.UseHeuristic {
		f := heuristic.Finder{Runner: s.Runner, Python: tc.Python, Script: tc.HeuristicScript()}
		heur = f.Collect(ctx, lib, logger)
	}

	ts := symtab.Build(symtab.Sources{
		Correlated: res,
		Heuristic:  heur,
		Rodata:     lits,
		Precise:    tc.PreciseOnly,
	})
	rep.Names, rep.MethodTypes = ts.Names.Len(), ts.MethodTypes.Len()
	logger.Info("Library scanned", "arch", rep.Arch, "entryPoints", rep.EntryPoints, "names", rep.Names, "methodTypes", rep.MethodTypes)

	rep.Facts = &facts.Batch{}
	rep.Facts.AddTables(lib, ts)
	rep.Facts.AddEntryPoints(lib, eps)
	return rep, nil
}

// readRodata locates .rodata through objdump, falling back to debug/elf when
// objdump cannot be run.
func (s *Scanner) readRodata(ctx context.Context, objdump, lib string, logger *log.Logger) (*section.Section, error) {
	sec, err := section.Read(ctx, s.Runner, objdump, lib, section.Rodata, logger)
	var te *toolrun.ToolError
	if err == nil || !errors.As(err, &te) {
		return sec, err
	}
	logger.Warn("objdump failed, reading section headers directly", "err", err)
	return section.ReadELF(lib, section.Rodata)
}

func stringMap(lits []section.StringLiteral) correlate.StringMap {
	m := make(correlate.StringMap, len(lits))
	for _, lit := range lits {
		m[lit.Offset] = lit.Text
	}
	return m
}

// Package correlate attributes string literals to the functions that form
// their addresses. Each architecture has a strategy that simulates the
// address-forming instructions of its disassembly text.
package correlate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/elliotchance/orderedmap"

	"jniscan/internal/arch"
	"jniscan/internal/disasm"
	"jniscan/internal/entrypoint"
)

// TextSection is the section the whole-section strategies disassemble.
const TextSection = ".text"

// Strings resolves an address to the string literal starting there.
type Strings interface {
	Lookup(addr uint64) (string, bool)
}

// StringMap is a Strings backed by a map.
type StringMap map[uint64]string

func (m StringMap) Lookup(addr uint64) (string, bool) {
	s, ok := m[addr]
	return s, ok
}

// Result maps each resolved string to the functions using it, both in first
// seen order. A function is listed once per string.
type Result struct {
	m *orderedmap.OrderedMap
}

func NewResult() *Result {
	return &Result{m: orderedmap.NewOrderedMap()}
}

// Add records that fn uses str.
func (r *Result) Add(str, fn string) {
	v, ok := r.m.Get(str)
	if !ok {
		r.m.Set(str, []string{fn})
		return
	}
	fns := v.([]string)
	for _, f := range fns {
		if f == fn {
			return
		}
	}
	r.m.Set(str, append(fns, fn))
}

// Strings lists the resolved strings.
func (r *Result) Strings() []string {
	keys := r.m.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.(string)
	}
	return out
}

// Functions lists the functions using str.
func (r *Result) Functions(str string) []string {
	v, ok := r.m.Get(str)
	if !ok {
		return nil
	}
	return v.([]string)
}

func (r *Result) Len() int { return r.m.Len() }

// Merge adds every pair of o to r.
func (r *Result) Merge(o *Result) {
	for _, s := range o.Strings() {
		for _, fn := range o.Functions(s) {
			r.Add(s, fn)
		}
	}
}

// Strategy is the correlation algorithm for one architecture.
type Strategy int

const (
	None Strategy = iota
	X86Strategy
	X8664Strategy
	AArch64Strategy
	ARMStrategy // ARMEABI and ARMEABI-v7a listings, merged
)

func (s Strategy) String() string {
	switch s {
	case X86Strategy:
		return "x86"
	case X8664Strategy:
		return "x86_64"
	case AArch64Strategy:
		return "aarch64"
	case ARMStrategy:
		return "armeabi"
	}
	return "none"
}

// ForArch selects the strategy for a.
func ForArch(a arch.Arch) Strategy {
	switch a {
	case arch.X86:
		return X86Strategy
	case arch.X86_64:
		return X8664Strategy
	case arch.AARCH64:
		return AArch64Strategy
	case arch.ARMEABI:
		return ARMStrategy
	}
	return None
}

// PerFunction reports whether s disassembles entry points one at a time
// rather than the whole text section.
func (s Strategy) PerFunction() bool {
	return s == X8664Strategy || s == AArch64Strategy
}

// Run fetches the disassembly of lib through src and applies the strategy for
// a. Tool failures are logged and leave the result empty or partial.
func Run(ctx context.Context, src disasm.Source, lib string, a arch.Arch, eps entrypoint.Table, strs Strings, logger *log.Logger) *Result {
	res := NewResult()
	strategy := ForArch(a)
	switch {
	case strategy == None:
		logger.Warn("No correlation strategy, strings will not be attributed to functions", "lib", lib, "arch", a)
	case strategy.PerFunction():
		for _, ep := range eps {
			if err := ctx.Err(); err != nil {
				return res
			}
			lines, err := src.DumpFunction(ctx, lib, ep.Name)
			if err != nil {
				logger.Warn("Could not disassemble function", "lib", lib, "fn", ep.Name, "err", err)
				continue
			}
			if strategy == X8664Strategy {
				res.Merge(X8664(ep.Name, lines, strs))
			} else {
				res.Merge(AArch64(ep.Name, lines, strs))
			}
		}
	default:
		lines, err := src.DumpSection(ctx, lib, TextSection)
		if err != nil {
			logger.Warn("Could not disassemble section", "lib", lib, "section", TextSection, "err", err)
			return res
		}
		if strategy == X86Strategy {
			res.Merge(X86(lines, strs))
		} else {
			res.Merge(ARMEABI(lines, strs, logger))
			res.Merge(ARMEABIv7a(lines, strs, logger))
		}
	}
	logger.Debug("Correlated strings", "lib", lib, "strategy", strategy, "strings", res.Len())
	return res
}

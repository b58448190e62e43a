package disasm

import (
	"context"
	"debug/elf"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"jniscan/internal/elfx"
)

// Builtin decodes functions in process and prints them the way gdb does, so
// the gdb-driven correlators work without gdb installed.
type Builtin struct{}

func (Builtin) DumpFunction(_ context.Context, lib, fn string) ([]string, error) {
	im, err := elfx.Open(lib)
	if err != nil {
		return nil, err
	}
	defer im.Close()

	stream, err := DecodeFunction(im, fn)
	if err != nil {
		return nil, err
	}
	return FormatGDB(fn, stream), nil
}

// DecodeFunction decodes the body of the named function.
func DecodeFunction(im *elfx.Image, fn string) (Stream, error) {
	sym, ok := im.FindFunctionByName(fn)
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", fn, im.Path, ErrNoFunction)
	}
	size := im.FunctionSize(sym)
	code, ok := im.SliceVA(sym.Addr, size)
	if !ok {
		return nil, fmt.Errorf("%s in %s: code at 0x%x out of bounds", fn, im.Path, sym.Addr)
	}

	switch im.Machine() {
	case elf.EM_AARCH64:
		return DecodeARM64(code, sym.Addr), nil
	case elf.EM_X86_64:
		return DecodeX86(code, sym.Addr, 64), nil
	case elf.EM_386:
		return DecodeX86(code, sym.Addr, 32), nil
	}
	return nil, fmt.Errorf("%s: %w", im.Machine(), ErrUnsupportedArch)
}

// DecodeARM64 decodes fixed-width A64 code starting at va. Undecodable words
// are emitted as .inst.
func DecodeARM64(code []byte, va uint64) Stream {
	var out Stream
	for i := 0; i+4 <= len(code); i += 4 {
		pc := va + uint64(i)
		inst, err := arm64asm.Decode(code[i : i+4])
		if err != nil {
			word := uint32(code[i]) | uint32(code[i+1])<<8 | uint32(code[i+2])<<16 | uint32(code[i+3])<<24
			out = append(out, Inst{VA: pc, Len: 4, Text: fmt.Sprintf(".inst\t0x%08x", word), Op: ".inst"})
			continue
		}
		out = append(out, Inst{VA: pc, Len: 4, Text: arm64Text(inst, pc), Op: strings.ToLower(inst.Op.String())})
	}
	return out
}

func arm64Text(inst arm64asm.Inst, pc uint64) string {
	if inst.Op == arm64asm.ADRP {
		if pcRel, ok := inst.Args[1].(arm64asm.PCRel); ok {
			page := uint64(int64(pc)+int64(pcRel)) &^ 0xfff
			return fmt.Sprintf("adrp\t%s, 0x%x", strings.ToLower(inst.Args[0].String()), page)
		}
	}
	text := strings.ToLower(inst.String())
	if op, rest, ok := strings.Cut(text, " "); ok {
		return op + "\t" + rest
	}
	return text
}

// DecodeX86 decodes x86 code in the given mode (32 or 64). RIP-relative lea
// gets the "# 0x<target>" comment gdb prints.
func DecodeX86(code []byte, va uint64, mode int) Stream {
	noSyms := func(uint64) (string, uint64) { return "", 0 }
	var out Stream
	for i := 0; i < len(code); {
		pc := va + uint64(i)
		inst, err := x86asm.Decode(code[i:], mode)
		if err != nil || inst.Len == 0 {
			out = append(out, Inst{VA: pc, Len: 1, Text: fmt.Sprintf("(bad)\t0x%02x", code[i]), Op: "(bad)"})
			i++
			continue
		}
		text := x86asm.GNUSyntax(inst, pc, noSyms)
		if inst.Op == x86asm.LEA {
			if mem, ok := inst.Args[1].(x86asm.Mem); ok && mem.Base == x86asm.RIP {
				target := uint64(int64(pc) + int64(inst.Len) + mem.Disp)
				text = fmt.Sprintf("%s        # 0x%x", text, target)
			}
		}
		out = append(out, Inst{VA: pc, Len: inst.Len, Text: text, Op: strings.ToLower(inst.Op.String())})
		i += inst.Len
	}
	return out
}

// FormatGDB renders a stream like gdb's "disassemble" command.
func FormatGDB(fn string, s Stream) []string {
	lines := make([]string, 0, len(s)+2)
	lines = append(lines, fmt.Sprintf("Dump of assembler code for function %s:", fn))
	if len(s) > 0 {
		start := s[0].VA
		for _, in := range s {
			lines = append(lines, fmt.Sprintf("   0x%016x <+%d>:\t%s", in.VA, in.VA-start, in.Text))
		}
	}
	lines = append(lines, "End of assembler dump.")
	return lines
}

package correlate

import (
	"regexp"
	"unicode"
)

var (
	funPattern = regexp.MustCompile(`^.*<(.*)>:$`)

	// x86: "4f6: 81 c3 0b 1b 00 00   add $0x1b0b,%ebx" after a get_pc_thunk call.
	x86AddPattern = regexp.MustCompile(`^\s+([a-f0-9]+).*add\s+\$0x([a-f0-9]+),%(.*)$`)
	// x86: "lea -0x1720(%ebx),%eax"; group 1 is the sign position.
	x86LeaPattern = regexp.MustCompile(`^.*lea\s+(.)0x([a-f0-9]+)\(%(.*)\).*$`)

	// x86-64 gdb listings annotate RIP-relative operands: "lea 0x1e5(%rip),%rdi # 0xc08".
	x8664LeaPattern = regexp.MustCompile(`^.*lea.*#\s0x([a-f0-9]+)$`)
)

// X86 walks an objdump listing of the whole .text section of a 32-bit x86
// library. PIC code loads the GOT address with "add $imm,%reg" right after the
// pc thunk returns, so the register holds line address + imm; a later
// "lea disp(%reg)" then forms the string address.
func X86(lines []string, strs Strings) *Result {
	res := NewResult()
	var fn string
	var rf regs
	for _, line := range lines {
		if name, ok := funcLabel(line); ok {
			fn, rf = name, regs{}
			continue
		}
		if rf == nil {
			continue
		}
		if m := x86AddPattern.FindStringSubmatch(line); m != nil {
			addr, err1 := parseHex(m[1])
			imm, err2 := parseHex(m[2])
			if err1 == nil && err2 == nil {
				rf.set(m[3], addr+imm)
			}
			continue
		}
		m := x86LeaPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		base, ok := rf[m[3]]
		if !ok {
			continue
		}
		disp, err := parseHex(m[2])
		if err != nil {
			continue
		}
		addr := base.v
		switch sign := rune(m[1][0]); {
		case sign == '-':
			addr -= disp
		case unicode.IsSpace(sign):
			addr += disp
		}
		if s, ok := strs.Lookup(addr); ok {
			res.Add(s, fn)
		}
	}
	return res
}

// X8664 scans the gdb disassembly of function fn for RIP-relative lea
// instructions, whose absolute target gdb prints as a comment.
func X8664(fn string, lines []string, strs Strings) *Result {
	res := NewResult()
	for _, line := range lines {
		m := x8664LeaPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		addr, err := parseHex(m[1])
		if err != nil {
			continue
		}
		if s, ok := strs.Lookup(addr); ok {
			res.Add(s, fn)
		}
	}
	return res
}

package correlate

import "regexp"

var (
	adrpPattern = regexp.MustCompile(`^.*adrp\s+([a-z0-9]+),\s0x([a-f0-9]+)(?:\s+<.*>)?$`)
	addPattern  = regexp.MustCompile(`^.*add\s+([a-z0-9]+),\s([a-z0-9]+),\s#0x([a-f0-9]+)$`)
	movPattern  = regexp.MustCompile(`^.*mov\s+([a-z0-9]+),\s([a-z0-9]+)$`)
)

// AArch64 simulates the adrp/add idiom over the gdb disassembly of fn:
//
//	adrp x0, 0x1000        x0 = page
//	add  x0, x0, #0x20     x0 = page + 0x20, looked up
//	mov  x1, x0            x1 = x0
func AArch64(fn string, lines []string, strs Strings) *Result {
	res := NewResult()
	rf := regs{}
	for _, line := range lines {
		if m := adrpPattern.FindStringSubmatch(line); m != nil {
			if page, err := parseHex(m[2]); err == nil {
				rf.set(m[1], page)
			}
			continue
		}
		if m := addPattern.FindStringSubmatch(line); m != nil {
			base, ok := rf[m[2]]
			if !ok {
				delete(rf, m[1])
				continue
			}
			off, err := parseHex(m[3])
			if err != nil {
				continue
			}
			addr := base.v + off
			rf.set(m[1], addr)
			if s, ok := strs.Lookup(addr); ok {
				res.Add(s, fn)
			}
			continue
		}
		if m := movPattern.FindStringSubmatch(line); m != nil {
			rf.copyReg(m[1], m[2])
		}
	}
	return res
}

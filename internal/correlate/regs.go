package correlate

import (
	"strconv"
	"strings"
)

// value is a tracked register value. digits is the hex width it was written
// with, which the Thumb carry correction compares against.
type value struct {
	v      uint64
	digits int
}

// regs is the register file of the function being walked. A fresh one is made
// at every function boundary.
type regs map[string]value

func hexDigits(v uint64) int {
	return len(strconv.FormatUint(v, 16))
}

func (r regs) set(name string, v uint64) {
	r[name] = value{v: v, digits: hexDigits(v)}
}

// copyReg makes dst an alias of src, or forgets dst when src is untracked.
func (r regs) copyReg(dst, src string) {
	if v, ok := r[src]; ok {
		r[dst] = v
		return
	}
	delete(r, dst)
}

func parseHex(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

// funcLabel extracts the name from an objdump label line such as
// "00001230 <Java_foo@@Base>:", dropping any symbol version suffix.
func funcLabel(line string) (string, bool) {
	m := funPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	name, _, _ := strings.Cut(m[1], "@")
	return name, true
}

package correlate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// PC reads ahead of the executing instruction by two instructions.
const (
	armPCBias   = 8
	thumbPCBias = 4
)

var (
	// ARM: "    1230:	e59f0010 	ldr	r0, [pc, #16]	; 1248 <f+0x18>"
	armInsPattern = regexp.MustCompile(`^\s*([a-f0-9]+):\s+([a-f0-9]+)\s+\.?(\w+)(.*)$`)
	armLdrPattern = regexp.MustCompile(`^\s+(\w+).*\bpc.*;\s([a-f0-9]+).*$`)
	armAddPattern = regexp.MustCompile(`^\s+(\w+),\s(\w+),\s(\w+)$`)
	armMovPattern = regexp.MustCompile(`^\s+(\w+),\s(\w+)$`)

	// Thumb: "    1232:	f8df 0010 	ldr.w	r0, [pc, #16]	; 1244 <f+0x14>"
	thumbCodePattern = regexp.MustCompile(`^\s+([a-f0-9]+):\s+([a-f0-9]+)\s?([a-f0-9]*)\s+.*$`)
	thumbInsPattern  = regexp.MustCompile(`^\s+([a-f0-9]+):\s+([a-f0-9]+)\s?([a-f0-9]*)\s+(\w+[.]?\w+)(.*)$`)
	thumbLdrPattern  = regexp.MustCompile(`^\s+(\w+),\s.*\bpc.*;\s\(([a-f0-9]+).*$`)
	thumbLdrwPattern = regexp.MustCompile(`^\s+(\w+),\s.*\bpc.*;\s([a-f0-9]+).*$`)
	thumbAddPattern  = regexp.MustCompile(`^\s(\w+),\s(\w+),?\s?(\w*)(.*)$`)
	thumbMovPattern  = regexp.MustCompile(`^\s(\w+),\s(\w+)$`)
	thumbAdrComment  = regexp.MustCompile(`\badr\s+\w+,\s([a-f0-9]+)`)
	immPattern       = regexp.MustCompile(`#(-?(?:0x[0-9a-f]+|[0-9]+))`)
)

// ARMEABI walks an objdump listing of ARM-mode code. Pass 1 collects the
// literal pool (".word" rows). Pass 2 tracks "ldr rX, [pc, #n]" loads from the
// pool and "add rd, rn, rm" sums with pc, looking each sum up.
func ARMEABI(lines []string, strs Strings, logger *log.Logger) *Result {
	words := make(map[uint64]value)
	for _, line := range lines {
		m := armInsPattern.FindStringSubmatch(line)
		if m == nil || m[3] != "word" {
			continue
		}
		addr, err1 := parseHex(m[1])
		w, err2 := parseHex(m[2])
		if err1 != nil || err2 != nil {
			logger.Debug("Malformed literal", "line", line)
			continue
		}
		words[addr] = value{v: w, digits: len(m[2])}
	}

	res := NewResult()
	var fn string
	var rf regs
	for _, line := range lines {
		if name, ok := funcLabel(line); ok {
			fn, rf = name, regs{}
			continue
		}
		m := armInsPattern.FindStringSubmatch(line)
		if m == nil || rf == nil {
			continue
		}
		pc, err := parseHex(m[1])
		if err != nil {
			logger.Debug("Malformed address", "line", line, "err", err)
			continue
		}
		rf["pc"] = value{v: pc + armPCBias, digits: len(m[1])}

		operands := m[4]
		switch m[3] {
		case "ldr":
			lm := armLdrPattern.FindStringSubmatch(operands)
			if lm == nil {
				continue
			}
			lit, err := parseHex(lm[2])
			if err != nil {
				logger.Debug("Malformed literal address", "line", line, "err", err)
				continue
			}
			if w, ok := words[lit]; ok {
				rf[lm[1]] = w
			} else {
				delete(rf, lm[1])
			}
		case "add":
			am := armAddPattern.FindStringSubmatch(operands)
			if am == nil {
				continue
			}
			a, ok1 := rf[am[2]]
			b, ok2 := rf[am[3]]
			if !ok1 || !ok2 {
				delete(rf, am[1])
				continue
			}
			addr := a.v + b.v
			rf.set(am[1], addr)
			if s, ok := strs.Lookup(addr); ok {
				res.Add(s, fn)
			}
		case "mov":
			if mm := armMovPattern.FindStringSubmatch(operands); mm != nil {
				rf.copyReg(mm[1], mm[2])
			}
		}
	}
	return res
}

// halfwords maps each 2-byte aligned address of a Thumb listing to its
// encoding. Rows print either one or two halfwords, or a 32-bit word for
// data and ARM-mode code.
type halfwords map[uint64]string

func buildHalfwords(lines []string) halfwords {
	hw := make(halfwords)
	for _, line := range lines {
		m := thumbCodePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		addr, err := parseHex(m[1])
		if err != nil {
			continue
		}
		switch {
		case m[3] != "":
			hw[addr] = m[2]
			hw[addr+2] = m[3]
		case len(m[2]) == 8:
			// A word is printed most significant half first.
			hw[addr] = m[2][4:]
			hw[addr+2] = m[2][:4]
		default:
			hw[addr] = m[2]
		}
	}
	return hw
}

// word reads the little-endian 32-bit literal at addr, or a lone halfword when
// the upper half is not in the listing.
func (hw halfwords) word(addr uint64) (value, error) {
	lo, ok := hw[addr]
	if !ok {
		return value{}, fmt.Errorf("no code at 0x%x", addr)
	}
	text := lo
	if hi, ok := hw[addr+2]; ok {
		text = hi + lo
	}
	v, err := strconv.ParseUint(text, 16, 64)
	if err != nil {
		return value{}, err
	}
	return value{v: v, digits: len(text)}, nil
}

// thumb is the pass 2 state of ARMEABIv7a.
type thumb struct {
	hw   halfwords
	strs Strings
	res  *Result
	fn   string
	rf   regs
}

// ARMEABIv7a walks an objdump listing of Thumb-2 code. Literal loads are
// resolved from the halfword table; "add rd, pc" and friends combine the
// literal with pc. When a sum has more hex digits than both operands the
// leading digit is a carry artifact of 32-bit wraparound and is dropped.
func ARMEABIv7a(lines []string, strs Strings, logger *log.Logger) *Result {
	t := &thumb{hw: buildHalfwords(lines), strs: strs, res: NewResult()}
	for _, line := range lines {
		if name, ok := funcLabel(line); ok {
			t.fn, t.rf = name, regs{}
			continue
		}
		m := thumbInsPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if t.rf == nil {
			logger.Debug("Instruction outside of a function", "line", line)
			continue
		}
		if err := t.step(m); err != nil {
			logger.Debug("Skipping instruction", "line", line, "err", err)
		}
	}
	return t.res
}

// step applies one matched instruction row.
func (t *thumb) step(m []string) error {
	pc, err := parseHex(m[1])
	if err != nil {
		return err
	}
	t.rf["pc"] = value{v: pc + thumbPCBias, digits: len(m[1])}

	mnemonic, operands := m[4], m[5]
	switch {
	case mnemonic == "ldr" || mnemonic == "ldr.w":
		pattern := thumbLdrPattern
		if mnemonic == "ldr.w" {
			pattern = thumbLdrwPattern
		}
		lm := pattern.FindStringSubmatch(operands)
		if lm == nil {
			return nil
		}
		delete(t.rf, lm[1])
		lit, err := parseHex(lm[2])
		if err != nil {
			return err
		}
		w, err := t.hw.word(lit)
		if err != nil {
			return err
		}
		t.rf[lm[1]] = w

	case mnemonic == "adr" || mnemonic == "adr.w":
		am := thumbAddPattern.FindStringSubmatch(operands)
		if am == nil {
			return nil
		}
		addr, err := parseHex(am[2])
		if err != nil {
			return err
		}
		t.record(am[1], addr)

	case strings.Contains(mnemonic, "add"):
		am := thumbAddPattern.FindStringSubmatch(operands)
		if am == nil {
			return nil
		}
		addr, ok, err := t.add(am)
		if err != nil {
			return err
		}
		if ok {
			t.record(am[1], addr)
		}

	case mnemonic == "mov":
		if mm := thumbMovPattern.FindStringSubmatch(operands); mm != nil {
			t.rf.copyReg(mm[1], mm[2])
		}
	}
	return nil
}

// add evaluates the operands of an add. The forms are
//
//	add rd, rm             rd + rm
//	add rd, rn, rm         rn + rm
//	add rd, rn, #imm       rn + imm
//	add rd, pc, #imm ; (adr rd, target)
//
// ok is false when an operand is not tracked.
func (t *thumb) add(am []string) (addr uint64, ok bool, err error) {
	rd, rn, rm, rest := am[1], am[2], am[3], am[4]

	if c := thumbAdrComment.FindStringSubmatch(rest); c != nil {
		addr, err := parseHex(c[1])
		return addr, err == nil, err
	}

	switch {
	case rm != "":
		a, ok1 := t.rf[rn]
		b, ok2 := t.rf[rm]
		if !ok1 || !ok2 {
			delete(t.rf, rd)
			return 0, false, nil
		}
		return carry(a, b), true, nil
	case strings.HasPrefix(strings.TrimSpace(rest), "#"):
		base, ok := t.rf[rn]
		if !ok {
			delete(t.rf, rd)
			return 0, false, nil
		}
		im := immPattern.FindStringSubmatch(rest)
		if im == nil {
			return 0, false, fmt.Errorf("bad immediate %q", rest)
		}
		imm, err := strconv.ParseInt(im[1], 0, 64)
		if err != nil {
			return 0, false, err
		}
		return base.v + uint64(imm), true, nil
	default:
		a, ok1 := t.rf[rd]
		b, ok2 := t.rf[rn]
		if !ok1 || !ok2 {
			delete(t.rf, rd)
			return 0, false, nil
		}
		return carry(a, b), true, nil
	}
}

// carry adds two tracked values, dropping a leading hex digit that neither
// operand was wide enough to produce.
func carry(a, b value) uint64 {
	sum := a.v + b.v
	n := hexDigits(sum)
	if n > a.digits && n > b.digits && n > 1 {
		sum %= 1 << (4 * uint(n-1))
	}
	return sum
}

// record binds rd to addr and attributes the string at addr, if any.
func (t *thumb) record(rd string, addr uint64) {
	t.rf.set(rd, addr)
	if s, ok := t.strs.Lookup(addr); ok {
		t.res.Add(s, t.fn)
	}
}

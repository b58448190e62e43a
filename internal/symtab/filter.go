package symtab

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"jniscan/internal/classify"
	"jniscan/internal/section"
)

// MethodStrings is the set of method names and descriptors known from the
// bytecode side of the analysis.
type MethodStrings map[string]struct{}

// LoadMethodStrings reads one string per line. Blank lines are skipped.
func LoadMethodStrings(path string) (MethodStrings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open method strings: %w", err)
	}
	defer f.Close()

	ms := MethodStrings{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s := strings.TrimRight(sc.Text(), "\r"); s != "" {
			ms[s] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read method strings %s: %w", path, err)
	}
	return ms, nil
}

func (ms MethodStrings) Contains(s string) bool {
	_, ok := ms[s]
	return ok
}

// Filter keeps the literals that are in the set and classify as a name or a
// method type. ok is false when the kept literals lack either kind, in which
// case no name/type pair can come out of the library.
func (ms MethodStrings) Filter(lits []section.StringLiteral) (kept []section.StringLiteral, ok bool) {
	var names, types int
	for _, lit := range lits {
		if !ms.Contains(lit.Text) {
			continue
		}
		switch classify.Classify(lit.Text) {
		case classify.MethodType:
			types++
		case classify.Name:
			names++
		default:
			continue
		}
		kept = append(kept, lit)
	}
	return kept, names > 0 && types > 0
}

// Package colorize highlights disassembly listings for the terminal.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"jniscan/internal/arch"
)

// EnvNoColor disables highlighting when set to any value.
const EnvNoColor = "JNISCAN_NO_COLOR"

// Enabled reports whether output should be highlighted.
func Enabled() bool {
	return os.Getenv(EnvNoColor) == ""
}

// lexer picks an assembly lexer for a, with fallbacks.
func lexer(a arch.Arch) chroma.Lexer {
	candidates := []string{"gas", "armasm", "nasm"}
	switch a {
	case arch.ARMEABI, arch.AARCH64:
		candidates = []string{"armasm", "gas", "nasm"}
	}
	for _, name := range candidates {
		if l := lexers.Get(name); l != nil {
			return l
		}
	}
	return nil
}

func style() *chroma.Style {
	for _, name := range []string{StyleName, "dracula", "monokai"} {
		if s := styles.Get(name); s != nil {
			return s
		}
	}
	return styles.Fallback
}

func formatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if f := formatters.Get(name); f != nil {
			return f
		}
	}
	return formatters.Fallback
}

// Listing highlights a whole listing of architecture a. The input is returned
// unchanged when colors are disabled or highlighting fails.
func Listing(code string, a arch.Arch) string {
	if !Enabled() {
		return code
	}
	l := lexer(a)
	if l == nil {
		return code
	}
	it, err := l.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter().Format(&buf, style(), it); err != nil {
		return code
	}
	return buf.String()
}

// StripANSI removes SGR escape sequences.
func StripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Package classify decides whether a string found in a native library looks
// like a JVM method name or a method descriptor.
package classify

import (
	"strings"
	"unicode"
)

// Kind is the class of a candidate string.
type Kind int

const (
	None Kind = iota
	Name
	MethodType
)

func (k Kind) String() string {
	switch k {
	case Name:
		return "name"
	case MethodType:
		return "method-type"
	}
	return "none"
}

func isNameRune(r rune) bool {
	switch r {
	case '$', '/', '_', '<', '>':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isMethodTypeRune(r rune) bool {
	switch r {
	case ',', '/', '$', '[', '(', ')', ';', '_':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func all(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// IsName reports whether s can be a method or class name. A class descriptor
// such as "Lfoo/Bar;" is accepted as well.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	if all(s, isNameRune) {
		return true
	}
	if len(s) > 2 && s[0] == 'L' && s[len(s)-1] == ';' {
		return all(s[1:len(s)-1], isNameRune)
	}
	return false
}

// IsMethodType reports whether s can be a method descriptor like "(II)V".
func IsMethodType(s string) bool {
	if !strings.HasPrefix(s, "(") || !strings.Contains(s, ")") {
		return false
	}
	return all(s, isMethodTypeRune)
}

// Classify tests for a method type first, then for a name.
func Classify(s string) Kind {
	switch {
	case IsMethodType(s):
		return MethodType
	case IsName(s):
		return Name
	}
	return None
}

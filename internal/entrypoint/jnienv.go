package entrypoint

import (
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// JNIEnvCalls reports which JNIEnv lookups a library carries weak copies of.
type JNIEnvCalls struct {
	GetMethodID bool
	GetFieldID  bool
}

// Any reports whether either lookup was found.
func (c JNIEnvCalls) Any() bool { return c.GetMethodID || c.GetFieldID }

// CheckJNIEnvCalls scans raw nm lines for weak _JNIEnv::GetMethodID and
// _JNIEnv::GetFieldID definitions. Names are demangled in process so nm can be
// run without --demangle.
func CheckJNIEnvCalls(lines []string) JNIEnvCalls {
	var c JNIEnvCalls
	for _, line := range lines {
		name, ok := weakSymbol(line)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(name, jniEnvPrefix+"GetMethodID("):
			c.GetMethodID = true
		case strings.HasPrefix(name, jniEnvPrefix+"GetFieldID("):
			c.GetFieldID = true
		}
	}
	return c
}

// weakSymbol returns the demangled name of a "W" symbol line. Already
// demangled names may contain spaces, so the name is everything after the
// type letter.
func weakSymbol(line string) (string, bool) {
	_, name, ok := strings.Cut(line, " W ")
	if !ok {
		return "", false
	}
	name = strings.TrimSpace(name)
	return demangle.Filter(name, demangle.NoClones), name != ""
}

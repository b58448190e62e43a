// Package arch classifies the instruction set of a native library from the
// output of the file(1) tool.
package arch

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"jniscan/internal/toolrun"
)

// Arch is the target instruction set of a library.
type Arch int

const (
	AARCH64 Arch = iota
	X86
	X86_64
	ARMEABI
	MIPS
)

// Default is used when the file type cannot be classified.
const Default = AARCH64

func (a Arch) String() string {
	switch a {
	case X86:
		return "x86"
	case X86_64:
		return "x86_64"
	case AARCH64:
		return "aarch64"
	case ARMEABI:
		return "armeabi"
	case MIPS:
		return "mips"
	}
	return "unknown"
}

// Parse returns the Arch named s, as printed by String.
func Parse(s string) (Arch, bool) {
	switch strings.ToLower(s) {
	case "x86", "i386", "i686":
		return X86, true
	case "x86_64", "x86-64", "amd64":
		return X86_64, true
	case "aarch64", "arm64", "arm64-v8a":
		return AARCH64, true
	case "armeabi", "arm", "armeabi-v7a":
		return ARMEABI, true
	case "mips":
		return MIPS, true
	}
	return Default, false
}

// fromLine matches one line of file(1) output. Markers are tried in a fixed
// order so "ARM aarch64" resolves to AARCH64.
func fromLine(line string) (Arch, bool) {
	switch {
	case strings.Contains(line, "80386"):
		return X86, true
	case strings.Contains(line, "x86-64"):
		return X86_64, true
	case strings.Contains(line, "aarch64"):
		return AARCH64, true
	case strings.Contains(line, "ARM"), strings.Contains(line, "EABI"):
		return ARMEABI, true
	case strings.Contains(line, "MIPS"):
		return MIPS, true
	}
	return Default, false
}

// FromFileOutput returns the architecture named by the first line carrying a
// known marker. ok is false when no line matched.
func FromFileOutput(lines []string) (a Arch, ok bool) {
	for _, line := range lines {
		if a, ok := fromLine(line); ok {
			return a, true
		}
	}
	return Default, false
}

// Detect runs the file tool on lib and classifies its output. It never fails:
// an unclassified library or a tool failure yields Default.
func Detect(ctx context.Context, r toolrun.Runner, fileTool, lib string, logger *log.Logger) Arch {
	lines, err := r.Run(ctx, fileTool, lib)
	if err != nil {
		logger.Warn("File type detection failed, assuming "+Default.String(), "lib", lib, "err", err)
		return Default
	}
	a, ok := FromFileOutput(lines)
	if !ok {
		logger.Warn("Unrecognized file type, assuming "+Default.String(), "lib", lib, "type", strings.Join(lines, " "))
		return Default
	}
	logger.Debug("Detected architecture", "lib", lib, "arch", a)
	return a
}

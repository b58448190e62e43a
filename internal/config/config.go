// Package config resolves the toolchain used by the native scanner. A Toolchain
// is built once at process start and shared read-only by every library scan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"jniscan/internal/arch"
)

const (
	EnvARMEABI  = "ARMEABI_TOOLCHAIN"
	EnvAARCH64  = "AARCH64_TOOLCHAIN"
	EnvDoopHome = "DOOP_HOME"

	EnvDisassembler = "JNISCAN_DISASSEMBLER"
	EnvJobs         = "JNISCAN_JOBS"
)

// Disassembler backends for the per-function correlators.
const (
	DisasmAuto    = "auto"
	DisasmGDB     = "gdb"
	DisasmBuiltin = "builtin"
)

// Toolchain holds tool paths and scan options.
type Toolchain struct {
	NM      string `json:"nm" yaml:"nm" jsonschema:"title=nm,description=Default nm binary"`
	Objdump string `json:"objdump" yaml:"objdump" jsonschema:"title=objdump,description=Default objdump binary"`
	GDB     string `json:"gdb" yaml:"gdb" jsonschema:"title=gdb,description=gdb binary used to disassemble single functions"`
	File    string `json:"file" yaml:"file" jsonschema:"title=file,description=File type identification tool"`
	XZ      string `json:"xz" yaml:"xz" jsonschema:"title=xz,description=xz binary for .xzs payloads"`
	Zstd    string `json:"zstd" yaml:"zstd" jsonschema:"title=zstd,description=zstd binary for .zstd payloads"`
	Python  string `json:"python" yaml:"python" jsonschema:"title=Python,description=Interpreter for the external string finder"`

	ARMEABIDir string `json:"armeabiToolchain" yaml:"armeabiToolchain" jsonschema:"title=ARMEABI toolchain,description=Directory with bin/nm and bin/objdump for ARM libraries"`
	AARCH64Dir string `json:"aarch64Toolchain" yaml:"aarch64Toolchain" jsonschema:"title=AARCH64 toolchain,description=Directory with bin/nm and bin/objdump for AArch64 libraries"`
	DoopHome   string `json:"doopHome" yaml:"doopHome" jsonschema:"title=DOOP_HOME,description=Directory holding bin/radare-strings.py"`

	Disassembler string `json:"disassembler" yaml:"disassembler" jsonschema:"title=Disassembler,enum=auto,enum=gdb,enum=builtin"`
	Demangle     bool   `json:"demangle" yaml:"demangle" jsonschema:"title=Demangle,description=Ask nm to demangle symbol names"`
	DefinedOnly  bool   `json:"definedOnly" yaml:"definedOnly" jsonschema:"title=Defined only,description=Pass --defined-only to nm"`
	UseHeuristic bool   `json:"useHeuristic" yaml:"useHeuristic" jsonschema:"title=Heuristic strings,description=Run the external string finder script"`
	PreciseOnly  bool   `json:"preciseOnly" yaml:"preciseOnly" jsonschema:"title=Precise only,description=Only emit strings localized inside a function"`
	CheckJNIEnv  bool   `json:"checkJNIEnv" yaml:"checkJNIEnv" jsonschema:"title=Check JNIEnv,description=Report GetMethodID/GetFieldID references"`
	Jobs         int    `json:"jobs" yaml:"jobs" jsonschema:"title=Jobs,description=Libraries scanned in parallel"`

	MethodStrings string `json:"methodStrings" yaml:"methodStrings" jsonschema:"title=Method strings,description=File with one known method name or descriptor per line"`
}

// Default returns a Toolchain using the system binaries.
func Default() *Toolchain {
	return &Toolchain{
		NM:           "nm",
		Objdump:      "objdump",
		GDB:          "gdb",
		File:         "file",
		XZ:           "xz",
		Zstd:         "zstd",
		Python:       "python",
		Disassembler: DisasmAuto,
		Jobs:         runtime.NumCPU(),
	}
}

// Load builds the Toolchain: defaults, then the optional YAML file, then the
// environment.
func Load(path string) (*Toolchain, error) {
	tc := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, tc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	tc.ApplyEnv(os.LookupEnv)
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// ApplyEnv overrides fields from environment variables looked up with lookup.
func (tc *Toolchain) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvARMEABI); ok && v != "" {
		tc.ARMEABIDir = v
	}
	if v, ok := lookup(EnvAARCH64); ok && v != "" {
		tc.AARCH64Dir = v
	}
	if v, ok := lookup(EnvDoopHome); ok && v != "" {
		tc.DoopHome = v
	}
	if v, ok := lookup(EnvDisassembler); ok && v != "" {
		tc.Disassembler = v
	}
	if v, ok := lookup(EnvJobs); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			tc.Jobs = n
		}
	}
}

// Validate checks option values.
func (tc *Toolchain) Validate() error {
	switch tc.Disassembler {
	case DisasmAuto, DisasmGDB, DisasmBuiltin:
	case "":
		tc.Disassembler = DisasmAuto
	default:
		return fmt.Errorf("unknown disassembler %q (want auto, gdb or builtin)", tc.Disassembler)
	}
	if tc.Jobs < 1 {
		tc.Jobs = 1
	}
	return nil
}

// Binutils returns the nm and objdump binaries to use for a library of the
// given architecture, and whether the architecture-specific toolchain was used.
// ARM and AArch64 libraries prefer the toolchain named by ARMEABI_TOOLCHAIN and
// AARCH64_TOOLCHAIN; everything else uses the system tools.
func (tc *Toolchain) Binutils(a arch.Arch) (nm, objdump string, fromToolchain bool) {
	var dir string
	switch a {
	case arch.ARMEABI:
		dir = tc.ARMEABIDir
	case arch.AARCH64:
		dir = tc.AARCH64Dir
	}
	if dir == "" {
		return tc.NM, tc.Objdump, false
	}
	return filepath.Join(dir, "bin", "nm"), filepath.Join(dir, "bin", "objdump"), true
}

// ToolchainEnv names the environment variable that selects the toolchain for a,
// or "" when a always uses the system tools.
func ToolchainEnv(a arch.Arch) string {
	switch a {
	case arch.ARMEABI:
		return EnvARMEABI
	case arch.AARCH64:
		return EnvAARCH64
	}
	return ""
}

// HeuristicScript returns the external string finder script, or "" when
// DOOP_HOME is not set.
func (tc *Toolchain) HeuristicScript() string {
	if tc.DoopHome == "" {
		return ""
	}
	return filepath.Join(tc.DoopHome, "bin", "radare-strings.py")
}

package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jniscan/internal/arch"
	"jniscan/internal/config"
	"jniscan/internal/disasm"
	"jniscan/internal/facts"
	"jniscan/internal/logging"
	"jniscan/internal/scanner"
	"jniscan/internal/toolrun"
	"jniscan/internal/ui/colorize"
)

const headers = `
Sections:
Idx Name          Size      VMA       LMA       File off  Algn
 10 .rodata       00000010  00000010  00000010  00000010  2**2
`

func writeLib(t *testing.T, dir, name string) string {
	t.Helper()
	lib := filepath.Join(dir, name)
	data := make([]byte, 0x20)
	copy(data[0x10:], "(I)V\x00run\x00")
	require.NoError(t, os.WriteFile(lib, data, 0o644))
	return lib
}

// ebx = 0x1000 + 0x1000, then lea -0x1ff0(%ebx) = 0x10.
func x86Fake(lib string) *toolrun.Fake {
	return toolrun.NewFake().
		Set("file "+lib, "ELF 32-bit LSB shared object, Intel 80386").
		Set("nm --dynamic "+lib, "00001000 T Java_com_example_JNI_run\n").
		Set("objdump --headers "+lib, headers).
		Set("objdump -j .text -d "+lib, `
00001000 <Java_com_example_JNI_run>:
    1000:	81 c3 00 10 00 00    	add    $0x1000,%ebx
    1006:	8d 83 10 e0 ff ff    	lea    -0x1ff0(%ebx),%eax
`)
}

func TestRunScanDeterministic(t *testing.T) {
	dir := t.TempDir()
	libA := writeLib(t, dir, "liba.so")
	libB := writeLib(t, dir, "libb.so")
	fake := x86Fake(libA)
	for k, v := range x86Fake(libB).Outputs {
		fake.Outputs[k] = v
	}

	tc := config.Default()
	tc.Jobs = 2
	run := func(out string) string {
		reports, err := runScan(context.Background(), tc, fake, logging.Discard(), scanOptions{Inputs: []string{libA, libB}, OutDir: out})
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Equal(t, libA, reports[0].Lib)
		data, err := os.ReadFile(facts.MethodTypeCandidate.File(out))
		require.NoError(t, err)
		return string(data)
	}
	out := filepath.Join(t.TempDir(), "facts")
	first := run(out)
	assert.Equal(t, first, run(out))
	assert.Equal(t, strings.Join([]string{
		libA + "\tJava_com_example_JNI_run\t(I)V\t-1",
		libA + "\t-\t(I)V\t16",
		libB + "\tJava_com_example_JNI_run\t(I)V\t-1",
		libB + "\t-\t(I)V\t16",
	}, "\n")+"\n", first)
}

func TestRunScanSkipsAndSummarizes(t *testing.T) {
	dir := t.TempDir()
	lib := writeLib(t, dir, "liba.so")
	missing := filepath.Join(dir, "libmissing.so")
	fake := x86Fake(lib)

	out := t.TempDir()
	reports, err := runScan(context.Background(), config.Default(), fake, logging.Discard(), scanOptions{Inputs: []string{lib, missing}, OutDir: out})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Empty(t, reports[0].Skipped)
	assert.Equal(t, scanner.SkipNoSymbols, reports[1].Skipped)

	summary := colorize.StripANSI(renderSummary(reports, out))
	assert.Contains(t, summary, "liba.so [x86] 1 entry points, 2 strings, 1 attributed, 1 names, 1 method types")
	assert.Contains(t, summary, "libmissing.so skipped: nm failed")
	assert.Contains(t, summary, "1 of 2 libraries scanned")
}

func TestApplyScanFlags(t *testing.T) {
	tc := config.Default()
	require.NoError(t, scanCmd.Flags().Parse([]string{"--precise", "-j", "3", "--method-strings", "m.txt"}))
	applyScanFlags(scanCmd, tc)
	assert.True(t, tc.PreciseOnly)
	assert.Equal(t, 3, tc.Jobs)
	assert.Equal(t, "m.txt", tc.MethodStrings)
	assert.False(t, tc.UseHeuristic)
}

func TestToolchainSchema(t *testing.T) {
	bts, err := toolchainSchema()
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(bts, &doc))
	assert.Contains(t, string(bts), "armeabiToolchain")
	assert.Contains(t, string(bts), "preciseOnly")
}

func TestDumpListing(t *testing.T) {
	fake := toolrun.NewFake().
		Set("objdump -j .text -d lib.so", "00001000 <_ZN3foo3barEv>:\n    1000:\tbl\t1000 <_ZN3foo3barEv+0x4>\n").
		Set("gdb -batch -ex disassemble Java_a lib.so", "Dump of assembler code for function Java_a:\n")
	src := disasm.Source{
		SectionDumper:  disasm.Objdump{Runner: fake, Bin: "objdump"},
		FunctionDumper: disasm.GDB{Runner: fake, Bin: "gdb"},
	}

	lines, err := dumpListing(context.Background(), src, "lib.so", "", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"00001000 <foo::bar()>:", "    1000:\tbl\t1000 <foo::bar()+0x4>"}, lines)

	lines, err = dumpListing(context.Background(), src, "lib.so", "Java_a", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dump of assembler code for function Java_a:"}, lines)

	_, err = dumpListing(context.Background(), src, "other.so", "", false)
	assert.Error(t, err)
}

func TestListingArch(t *testing.T) {
	fake := toolrun.NewFake().Set("file lib.so", "ELF 32-bit LSB shared object, Intel 80386")
	tests := []struct {
		name    string
		flag    string
		want    arch.Arch
		wantErr bool
	}{
		{"detected", "", arch.X86, false},
		{"alias", "arm64-v8a", arch.AARCH64, false},
		{"canonical", "armeabi", arch.ARMEABI, false},
		{"unknown", "sparc", arch.Default, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := listingArch(context.Background(), fake, "file", "lib.so", tt.flag)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a)
		})
	}
}

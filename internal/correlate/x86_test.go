package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jniscan/internal/disasm"
	"jniscan/internal/toolrun"
)

const x86Listing = `
libfoo.so:     file format elf32-i386


Disassembly of section .text:

000004f0 <Java_com_example_Foo_init>:
 4f0:	53                   	push   %ebx
 4f1:	e8 00 00 00 00       	call   4f6 <Java_com_example_Foo_init+0x6>
 4f6:	81 c3 0a 1b 00 00    	add    $0x1b0a,%ebx
 4fc:	8d 83 20 e9 ff ff    	lea    -0x16e0(%ebx),%eax
 502:	8d 93 10 00 00 00    	lea    0x10(%ebx),%edx
 508:	5b                   	pop    %ebx
 509:	c3                   	ret

00000510 <Java_com_example_Foo_run@@Base>:
 510:	8d 83 20 e9 ff ff    	lea    -0x16e0(%ebx),%eax
 516:	c3                   	ret
`

func TestX86(t *testing.T) {
	lines, err := toolrun.SplitLines([]byte(x86Listing))
	require.NoError(t, err)

	// ebx = 0x4f6 + 0x1b0a = 0x2000
	strs := StringMap{0x2000 - 0x16e0: "init", 0x2010: "(Ljava/lang/String;)V"}
	res := X86(lines, strs)

	assert.Equal(t, []string{"init", "(Ljava/lang/String;)V"}, res.Strings())
	assert.Equal(t, []string{"Java_com_example_Foo_init"}, res.Functions("init"))
	assert.Equal(t, []string{"Java_com_example_Foo_init"}, res.Functions("(Ljava/lang/String;)V"))
}

func TestX8664(t *testing.T) {
	lines := []string{
		"Dump of assembler code for function Java_Foo_bar:",
		"   0x0000000000000a1c <+12>:\tlea    0x1e5(%rip),%rdi        # 0xc08",
		"   0x0000000000000a23 <+19>:\tlea    0x1f0(%rip),%rsi        # 0xc1a",
		"   0x0000000000000a2a <+26>:\tlea    0x1e5(%rip),%rdi        # 0xc08",
		"End of assembler dump.",
	}
	res := X8664("Java_Foo_bar", lines, StringMap{0xc08: "(II)I"})
	assert.Equal(t, []string{"(II)I"}, res.Strings())
	assert.Equal(t, []string{"Java_Foo_bar"}, res.Functions("(II)I"))
}

func TestX8664BuiltinListing(t *testing.T) {
	// lea 0x1e5(%rip),%rdi ; ret
	code := []byte{0x48, 0x8d, 0x3d, 0xe5, 0x01, 0x00, 0x00, 0xc3}
	lines := disasm.FormatGDB("Java_Foo_bar", disasm.DecodeX86(code, 0xa1c, 64))

	res := X8664("Java_Foo_bar", lines, StringMap{0xc08: "sum"})
	assert.Equal(t, []string{"Java_Foo_bar"}, res.Functions("sum"))
}

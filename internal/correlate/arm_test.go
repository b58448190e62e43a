package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jniscan/internal/logging"
	"jniscan/internal/toolrun"
)

const armListing = `
Disassembly of section .text:

00001000 <Java_com_example_Bar_run>:
    1000:	e59f0008 	ldr	r0, [pc, #8]	; 1010 <Java_com_example_Bar_run+0x10>
    1004:	e08f0000 	add	r0, pc, r0
    1008:	e1a01000 	mov	r1, r0
    100c:	e12fff1e 	bx	lr
    1010:	00000ff4 	.word	0x00000ff4

00001014 <Java_com_example_Bar_stop>:
    1014:	e08f0000 	add	r0, pc, r0
    1018:	e12fff1e 	bx	lr
`

func TestARMEABI(t *testing.T) {
	lines, err := toolrun.SplitLines([]byte(armListing))
	require.NoError(t, err)

	// r0 = 0xff4 + (0x1004 + 8)
	res := ARMEABI(lines, StringMap{0x2000: "run"}, logging.Discard())
	assert.Equal(t, []string{"run"}, res.Strings())
	assert.Equal(t, []string{"Java_com_example_Bar_run"}, res.Functions("run"))
}

const thumbListing = `
Disassembly of section .text:

00001230 <Java_com_example_Baz_init@@Base>:
    1230:	4803      	ldr	r0, [pc, #12]	; (1240 <Java_com_example_Baz_init+0x10>)
    1232:	4478      	add	r0, pc
    1234:	4601      	mov	r1, r0
    1236:	f8df 2008 	ldr.w	r2, [pc, #8]	; 1240 <Java_com_example_Baz_init+0x10>
    123a:	a101      	add	r1, pc, #4	; (adr r1, 1240 <Java_com_example_Baz_init+0x10>)
    123c:	4770      	bx	lr
    123e:	bf00      	nop
    1240:	0dc8      	lsls	r0, r1, #23
    1242:	0000      	movs	r0, r0

00001244 <Java_com_example_Baz_wide>:
    1244:	f8df 0004 	ldr.w	r0, [pc, #4]	; 124c <Java_com_example_Baz_wide+0x8>
    1248:	4478      	add	r0, pc
    124a:	4770      	bx	lr
    124c:	fffffd00 	.word	0xfffffd00
`

func TestARMEABIv7a(t *testing.T) {
	lines, err := toolrun.SplitLines([]byte(thumbListing))
	require.NoError(t, err)

	strs := StringMap{
		0x1ffe: "(I)V",    // 0xdc8 + (0x1232 + 4)
		0x1240: "literal", // adr target
		0x0f4c: "wrapped", // 0xfffffd00 + (0x1248 + 4), carry dropped
	}
	res := ARMEABIv7a(lines, strs, logging.Discard())

	assert.Equal(t, []string{"(I)V", "literal", "wrapped"}, res.Strings())
	assert.Equal(t, []string{"Java_com_example_Baz_init"}, res.Functions("(I)V"))
	assert.Equal(t, []string{"Java_com_example_Baz_init"}, res.Functions("literal"))
	assert.Equal(t, []string{"Java_com_example_Baz_wide"}, res.Functions("wrapped"))
}

func TestHalfwords(t *testing.T) {
	hw := buildHalfwords([]string{
		"    1236:\tf8df 2008 \tldr.w\tr2, [pc, #8]",
		"    1240:\t0dc8      \tlsls\tr0, r1, #23",
		"    1242:\t0000      \tmovs\tr0, r0",
		"    124c:\tfffffd00 \t.word\t0xfffffd00",
	})
	assert.Equal(t, "f8df", hw[0x1236])
	assert.Equal(t, "2008", hw[0x1238])

	w, err := hw.word(0x1240)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdc8), w.v)
	assert.Equal(t, 8, w.digits)

	w, err = hw.word(0x124c)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xfffffd00), w.v)

	_, err = hw.word(0x2000)
	assert.Error(t, err)
}

func TestCarry(t *testing.T) {
	tests := []struct {
		name string
		a, b value
		want uint64
	}{
		{"no carry", value{0xdc8, 8}, value{0x1236, 4}, 0x1ffe},
		{"carry dropped", value{0xfffffd00, 8}, value{0x124c, 4}, 0xf4c},
		{"wider operand keeps digit", value{0xf000, 4}, value{0x1000, 5}, 0x10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, carry(tt.a, tt.b))
		})
	}
}

package colorize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jniscan/internal/arch"
)

const listing = "00001000 <Java_a>:\n    1000:\te59f0008 \tldr\tr0, [pc, #8]\t; 1010 <Java_a+0x10>\n"

func TestListingDisabled(t *testing.T) {
	t.Setenv(EnvNoColor, "1")
	assert.False(t, Enabled())
	assert.Equal(t, listing, Listing(listing, arch.ARMEABI))
}

func TestListingRoundTrip(t *testing.T) {
	t.Setenv(EnvNoColor, "")
	for _, a := range []arch.Arch{arch.ARMEABI, arch.X86} {
		t.Run(a.String(), func(t *testing.T) {
			assert.Equal(t, listing, StripANSI(Listing(listing, a)))
		})
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "ldr r0", StripANSI("\x1b[38;2;255;255;255mldr\x1b[0m r0"))
	assert.Equal(t, "plain", StripANSI("plain"))
}

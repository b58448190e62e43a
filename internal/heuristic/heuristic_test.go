package heuristic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jniscan/internal/logging"
	"jniscan/internal/toolrun"
)

func TestStrings(t *testing.T) {
	fake := toolrun.NewFake().Set("python /opt/doop/bin/radare-strings.py lib.so", "(I)V\nrun\n")
	f := Finder{Runner: fake, Python: "python", Script: "/opt/doop/bin/radare-strings.py"}

	got, err := f.Strings(context.Background(), "lib.so")
	require.NoError(t, err)
	assert.Equal(t, []string{"(I)V", "run"}, got)
}

func TestStringsWithoutScript(t *testing.T) {
	f := Finder{Runner: toolrun.NewFake(), Python: "python"}
	_, err := f.Strings(context.Background(), "lib.so")
	assert.ErrorIs(t, err, ErrNoScript)
	assert.Nil(t, f.Collect(context.Background(), "lib.so", logging.Discard()))
}

func TestCollectToolFailure(t *testing.T) {
	fake := toolrun.NewFake().Fail("python s.py lib.so", errors.New("exit status 2"))
	f := Finder{Runner: fake, Python: "python", Script: "s.py"}

	_, err := f.Strings(context.Background(), "lib.so")
	var te *toolrun.ToolError
	assert.ErrorAs(t, err, &te)
	assert.Empty(t, f.Collect(context.Background(), "lib.so", logging.Discard()))
}

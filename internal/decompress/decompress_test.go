package decompress

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"jniscan/internal/logging"
	"jniscan/internal/toolrun"
)

var payload = bytes.Repeat([]byte("\x7fELF\x02\x01\x01\x00(I)V\x00run\x00"), 64)

func writeXZ(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeZstd(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write(payload)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestIsCompressed(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"lib/libs.xzs", true},
		{"lib/libs.zstd", true},
		{"lib/arm64-v8a/libfoo.so", false},
		{"libs.xz", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCompressed(tt.path))
		})
	}
}

func TestUnpackXZSInProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libs.xzs")
	writeXZ(t, path)

	fake := toolrun.NewFake()
	u := Unpacker{Runner: fake, XZ: "xz", Zstd: "zstd", Log: logging.Discard()}
	out, err := u.Unpack(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "libs"), out)
	assert.True(t, fake.Called("xz --decompress --force "+filepath.Join(dir, "libs.xz")))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(dir, "libs.xz"))
}

func TestUnpackTwice(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		write func(*testing.T, string)
	}{
		{"xzs", "libs.xzs", writeXZ},
		{"zstd", "libs.zstd", writeZstd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			tt.write(t, path)
			u := Unpacker{Runner: toolrun.NewFake(), XZ: "xz", Zstd: "zstd"}

			first, err := u.Unpack(context.Background(), path)
			require.NoError(t, err)
			assert.FileExists(t, path)

			second, err := u.Unpack(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.FileExists(t, path)

			got, err := os.ReadFile(second)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestUnpackZstdInProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libs.zstd")
	writeZstd(t, path)

	u := Unpacker{Runner: toolrun.NewFake(), XZ: "xz", Zstd: "zstd"}
	out, err := u.Unpack(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "libs"), out)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.FileExists(t, path)
}

func TestUnpackWithTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libs.zstd")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	out := filepath.Join(dir, "libs")

	fake := toolrun.NewFake().Set("zstd -d -f -o "+out+" "+path, "")
	u := Unpacker{Runner: fake, XZ: "xz", Zstd: "zstd"}
	got, err := u.Unpack(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, out, got)
}

func TestUnpackToolFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libs.zstd")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	fake := toolrun.NewFake().Fail("zstd -d -f -o "+filepath.Join(dir, "libs")+" "+path, errors.New("exit status 1"))
	u := Unpacker{Runner: fake, XZ: "xz", Zstd: "zstd"}
	_, err := u.Unpack(context.Background(), path)
	var te *toolrun.ToolError
	assert.ErrorAs(t, err, &te)
	assert.NoFileExists(t, filepath.Join(dir, "libs"))
}

func TestUnpackCorruptInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libs.xzs")
	require.NoError(t, os.WriteFile(path, []byte("not xz"), 0o644))

	u := Unpacker{Runner: toolrun.NewFake(), XZ: "xz", Zstd: "zstd"}
	_, err := u.Unpack(context.Background(), path)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "libs"))
	assert.NoFileExists(t, filepath.Join(dir, "libs.xz"))
	assert.FileExists(t, path)
}

func TestUnpackUnknown(t *testing.T) {
	u := Unpacker{Runner: toolrun.NewFake()}
	_, err := u.Unpack(context.Background(), "libfoo.so")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

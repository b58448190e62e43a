// Package decompress unpacks the compressed native libraries some APKs ship
// (libs.xzs, libs.zstd) so they can be scanned like plain libraries.
package decompress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"jniscan/internal/toolrun"
)

const (
	ExtXZS  = ".xzs"
	ExtZstd = ".zstd"
)

var ErrUnknownFormat = errors.New("not a compressed library")

// IsCompressed reports whether path names a payload Unpack handles.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ExtXZS) || strings.HasSuffix(path, ExtZstd)
}

// Unpacker runs the xz and zstd tools, decompressing in-process when a tool is
// not installed.
type Unpacker struct {
	Runner toolrun.Runner
	XZ     string
	Zstd   string
	Log    *log.Logger
}

// Unpack decompresses path next to itself and returns the output path. The
// input is left untouched and an existing output is overwritten, so unpacking
// the same payload twice yields the same file.
//
// A .xzs file is copied to .xz and decompressed in place, leaving the path
// without the extension. A .zstd file is decompressed to the path without the
// extension.
func (u Unpacker) Unpack(ctx context.Context, path string) (string, error) {
	switch {
	case strings.HasSuffix(path, ExtXZS):
		return u.unpackXZS(ctx, path)
	case strings.HasSuffix(path, ExtZstd):
		return u.unpackZstd(ctx, path)
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

func (u Unpacker) unpackXZS(ctx context.Context, path string) (out string, err error) {
	xzPath := strings.TrimSuffix(path, "s")
	out = strings.TrimSuffix(xzPath, ".xz")
	if err := copyFile(path, xzPath); err != nil {
		return "", err
	}
	// xz removes its input on success only.
	defer func() {
		if rmErr := os.Remove(xzPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = fmt.Errorf("remove %s: %w", xzPath, rmErr)
		}
	}()

	_, err = u.Runner.Run(ctx, u.XZ, "--decompress", "--force", xzPath)
	if err == nil {
		return out, nil
	}
	if !missingTool(err) {
		return "", err
	}
	u.logFallback(u.XZ, xzPath)
	if err := inflate(xzPath, out, newXZReader); err != nil {
		return "", err
	}
	return out, nil
}

func (u Unpacker) unpackZstd(ctx context.Context, path string) (string, error) {
	out := strings.TrimSuffix(path, ExtZstd)

	_, err := u.Runner.Run(ctx, u.Zstd, "-d", "-f", "-o", out, path)
	if err == nil {
		return out, nil
	}
	if !missingTool(err) {
		return "", err
	}
	u.logFallback(u.Zstd, path)
	if err := inflate(path, out, newZstdReader); err != nil {
		return "", err
	}
	return out, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", dst, cerr)
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}

func (u Unpacker) logFallback(tool, path string) {
	if u.Log != nil {
		u.Log.Warn("Decompression tool not found, decompressing in-process", "tool", tool, "path", path)
	}
}

func missingTool(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, toolrun.ErrNotFound)
}

type openFunc func(io.Reader) (io.ReadCloser, error)

func newXZReader(r io.Reader) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(xr), nil
}

func newZstdReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func inflate(src, dst string, open openFunc) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	r, err := open(in)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", src, err)
	}
	defer r.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", dst, cerr)
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("decompress %s: %w", src, err)
	}
	return nil
}

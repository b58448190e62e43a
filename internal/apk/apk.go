// Package apk pulls native code out of Android archives. An APK is a zip file;
// native libraries live under lib/<abi>/ and some apps pack them into a
// single libs.xzs or libs.zstd entry.
package apk

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	isArchive = regexp.MustCompile(`(?i)\.(apk|aar|jar|zip)$`)
	isNative  = regexp.MustCompile(`(\.so|libs\.xzs|libs\.zstd)$`)
)

// IsArchive reports whether path looks like an archive to walk rather than a
// library to scan.
func IsArchive(p string) bool {
	return isArchive.MatchString(p)
}

// IsNative reports whether a zip entry name holds native code.
func IsNative(name string) bool {
	return !strings.HasSuffix(name, "/") && isNative.MatchString(name)
}

// Entry is a native entry copied out of an archive.
type Entry struct {
	Name string // name inside the archive
	Path string // extracted file
}

// Extract copies every native entry of archive into dir. Each entry gets its
// own subdirectory so equal base names from different ABIs do not collide.
func Extract(archive, dir string) ([]Entry, error) {
	rc, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archive, err)
	}
	defer rc.Close()

	var out []Entry
	for i, f := range rc.File {
		if !IsNative(f.Name) {
			continue
		}
		dst := filepath.Join(dir, strconv.Itoa(i), path.Base(f.Name))
		if err := extractFile(f, dst); err != nil {
			return out, fmt.Errorf("archive %s entry %s: %w", archive, f.Name, err)
		}
		out = append(out, Entry{Name: f.Name, Path: dst})
	}
	return out, nil
}

func extractFile(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

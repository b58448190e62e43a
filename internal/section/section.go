// Package section locates an ELF section with objdump and extracts the
// NUL-terminated strings it holds.
package section

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"jniscan/internal/elfx"
	"jniscan/internal/toolrun"
)

// Rodata is the section holding string literals.
const Rodata = ".rodata"

// ErrNoSection is returned when the requested section is not in the header
// listing.
var ErrNoSection = errors.New("section not found")

// StringLiteral is a NUL-terminated string found in a section.
type StringLiteral struct {
	Offset uint64 // absolute file offset of the first byte
	Text   string
}

// Section is the raw contents of one section. It is immutable after Read.
type Section struct {
	Name   string
	Offset uint64
	Size   uint64
	Data   []byte

	once   sync.Once
	strs   []StringLiteral
	byAddr map[uint64]string
}

// New wraps data read from file offset off.
func New(name string, off uint64, data []byte) *Section {
	return &Section{Name: name, Offset: off, Size: uint64(len(data)), Data: data}
}

// Read finds section name in lib using objdump --headers and loads its bytes.
func Read(ctx context.Context, r toolrun.Runner, objdump, lib, name string, logger *log.Logger) (*Section, error) {
	lines, err := r.Run(ctx, objdump, "--headers", lib)
	if err != nil {
		return nil, fmt.Errorf("section headers of %s: %w", lib, err)
	}
	off, size, err := FromHeaders(lines, name)
	if err != nil {
		if errors.Is(err, ErrNoSection) {
			logger.Debug("Section headers", "lib", lib, "output", strings.Join(lines, "\n"))
		}
		return nil, fmt.Errorf("%s in %s: %w", name, lib, err)
	}
	data, err := readAt(lib, off, size)
	if err != nil {
		return nil, err
	}
	logger.Debug("Read section", "lib", lib, "section", name, "offset", off, "size", size)
	return New(name, off, data), nil
}

// ReadELF loads section name through debug/elf. It serves when objdump is not
// available for the library's architecture.
func ReadELF(lib, name string) (*Section, error) {
	im, err := elfx.Open(lib)
	if err != nil {
		return nil, err
	}
	defer im.Close()

	s, ok := im.Section(name)
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", name, lib, ErrNoSection)
	}
	data, ok := im.SliceOff(s.Off, s.Size)
	if !ok {
		return nil, fmt.Errorf("%s in %s: section out of file bounds", name, lib)
	}
	return New(name, s.Off, append([]byte(nil), data...)), nil
}

func readAt(lib string, off, size uint64) ([]byte, error) {
	f, err := os.Open(lib)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	defer f.Close()

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, int64(off)); err != nil && !(errors.Is(err, io.EOF) && size == 0) {
		return nil, fmt.Errorf("read %d bytes at 0x%x of %s: %w", size, off, lib, err)
	}
	return buf, nil
}

// FromHeaders parses objdump --headers output and returns the file offset and
// size of section name. Column positions are taken from the header row since
// their alignment differs between binutils versions.
func FromHeaders(lines []string, name string) (off, size uint64, err error) {
	sizeCol, offCol := -1, -1
	for _, line := range lines {
		if sizeCol < 0 {
			si, oi := strings.Index(line, "Size "), strings.Index(line, "File off")
			if si >= 0 && oi >= 0 {
				sizeCol, offCol = si, oi
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != name {
			continue
		}
		size, err1 := hexAt(line, sizeCol)
		off, err2 := hexAt(line, offCol)
		if err1 == nil && err2 == nil {
			return off, size, nil
		}
		// Misaligned row: Idx Name Size VMA LMA File-off Algn.
		if len(fields) >= 6 {
			size, err1 = strconv.ParseUint(fields[2], 16, 64)
			off, err2 = strconv.ParseUint(fields[5], 16, 64)
			if err1 == nil && err2 == nil {
				return off, size, nil
			}
		}
		return 0, 0, fmt.Errorf("malformed header row %q: %w", line, errors.Join(err1, err2))
	}
	if sizeCol < 0 {
		return 0, 0, fmt.Errorf("no header row: %w", ErrNoSection)
	}
	return 0, 0, ErrNoSection
}

// hexAt parses the hex number starting at column col and running to the next
// space.
func hexAt(line string, col int) (uint64, error) {
	if col >= len(line) {
		return 0, fmt.Errorf("column %d past end of line", col)
	}
	s := line[col:]
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return strconv.ParseUint(s, 16, 64)
}

// Strings returns every non-empty NUL-delimited run in the section, ordered by
// offset. The result is computed once.
func (s *Section) Strings() []StringLiteral {
	s.once.Do(func() {
		s.strs = Extract(s.Data, s.Offset)
		s.byAddr = make(map[uint64]string, len(s.strs))
		for _, lit := range s.strs {
			s.byAddr[lit.Offset] = lit.Text
		}
	})
	return s.strs
}

// Lookup returns the string starting exactly at addr.
func (s *Section) Lookup(addr uint64) (string, bool) {
	s.Strings()
	text, ok := s.byAddr[addr]
	return text, ok
}

// Extract splits data on NUL bytes. Each non-empty run is recorded at
// base + its index in data. A trailing run with no terminator is dropped.
func Extract(data []byte, base uint64) []StringLiteral {
	var out []StringLiteral
	start := 0
	for i, b := range data {
		if b != 0 {
			continue
		}
		if i > start {
			out = append(out, StringLiteral{Offset: base + uint64(start), Text: string(data[start:i])})
		}
		start = i + 1
	}
	return out
}

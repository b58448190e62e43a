// Package elfx provides helpers for opening ELF binaries, locating sections, and mapping virtual addresses to file offsets.
package elfx

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"syscall"
)

type Image struct {
	Path     string
	File     *elf.File
	All      []byte
	Loads    []Seg
	Sections []Section
	Text     Section
	Dynsyms  []Sym
	Syms     []Sym
	f        *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Sym is a function or object symbol. Size is zero when the symbol table does
// not record one.
type Sym struct {
	Name string
	Addr uint64
	Size uint64
	Func bool
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	var all []byte
	if fi.Size() > 0 {
		all, err = syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			of.Close()
			f.Close()
			return nil, fmt.Errorf("mmap file: %w", err)
		}
	}

	im := &Image{Path: path, File: f, All: all, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		sec := Section{s.Name, s.Addr, s.Offset, s.Size}
		if s.Type == elf.SHT_NOBITS {
			sec.Size = 0
		}
		im.Sections = append(im.Sections, sec)
		if s.Name == ".text" {
			im.Text = sec
		}
	}

	im.Dynsyms = loadSyms(f.DynamicSymbols)
	im.Syms = loadSyms(f.Symbols)

	// Stripped section headers: fall back to the executable segment.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	return im, nil
}

// loadSyms keeps defined symbols. A missing table yields nil.
func loadSyms(read func() ([]elf.Symbol, error)) []Sym {
	syms, err := read()
	if err != nil {
		return nil
	}
	var out []Sym
	for _, s := range syms {
		if s.Section == elf.SHN_UNDEF || s.Value == 0 {
			continue
		}
		out = append(out, Sym{
			Name: s.Name,
			Addr: s.Value,
			Size: s.Size,
			Func: elf.ST_TYPE(s.Info) == elf.STT_FUNC,
		})
	}
	return out
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Machine returns the ELF machine type.
func (im *Image) Machine() elf.Machine {
	return im.File.Machine
}

// Section returns the section called name.
func (im *Image) Section(name string) (Section, bool) {
	for _, s := range im.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceOff returns the file bytes [off, off+size).
func (im *Image) SliceOff(off, size uint64) ([]byte, bool) {
	end := off + size
	if end < off || end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	return im.SliceOff(off, size)
}

// FindFunctionByName searches the dynamic then the static symbol table for a
// function symbol. The ARM Thumb bit is cleared from the returned address.
func (im *Image) FindFunctionByName(name string) (Sym, bool) {
	for _, tab := range [][]Sym{im.Dynsyms, im.Syms} {
		for _, sym := range tab {
			if sym.Name == name && sym.Func {
				if im.File.Machine == elf.EM_ARM {
					sym.Addr &^= 1
				}
				return sym, true
			}
		}
	}
	return Sym{}, false
}

// FunctionSize returns sym.Size, or the distance to the next known symbol in
// .text when the table records none.
func (im *Image) FunctionSize(sym Sym) uint64 {
	if sym.Size != 0 {
		return sym.Size
	}
	var addrs []uint64
	for _, tab := range [][]Sym{im.Dynsyms, im.Syms} {
		for _, s := range tab {
			if s.Addr > sym.Addr {
				addrs = append(addrs, s.Addr)
			}
		}
	}
	end := im.Text.VA + im.Text.Size
	if len(addrs) > 0 {
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		if addrs[0] < end {
			end = addrs[0]
		}
	}
	if end <= sym.Addr {
		return 0
	}
	return end - sym.Addr
}

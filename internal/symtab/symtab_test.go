package symtab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jniscan/internal/classify"
	"jniscan/internal/correlate"
	"jniscan/internal/section"
)

func TestBuildOrder(t *testing.T) {
	res := correlate.NewResult()
	res.Add("(I)V", "Java_a")
	res.Add("run", "Java_a")
	res.Add("(I)V", "Java_b")
	res.Add("%d bytes", "Java_b")

	lits := []section.StringLiteral{
		{Offset: 0x2000, Text: "(I)V"},
		{Offset: 0x2005, Text: "stop"},
		{Offset: 0x200a, Text: "not a name!"},
	}
	ts := Build(Sources{Correlated: res, Heuristic: []string{"Lcom/example/Foo;", "(J)Z"}, Rodata: lits})

	assert.Equal(t, []string{"(I)V", "(J)Z"}, ts.MethodTypes.Symbols())
	assert.Equal(t, []Row{
		{Function: "Java_a", Offset: -1},
		{Function: "Java_b", Offset: -1},
		{Function: "-", Offset: 0x2000},
	}, ts.MethodTypes.Rows("(I)V"))
	assert.Equal(t, []Row{{Function: "-", Offset: 1}}, ts.MethodTypes.Rows("(J)Z"))

	assert.Equal(t, []string{"run", "Lcom/example/Foo;", "stop"}, ts.Names.Symbols())
	assert.Equal(t, []Row{{Function: "-", Offset: 0}}, ts.Names.Rows("Lcom/example/Foo;"))
}

func TestBuildPrecise(t *testing.T) {
	lits := []section.StringLiteral{{Offset: 0x2000, Text: "run"}}
	ts := Build(Sources{Rodata: lits, Precise: true})
	assert.Equal(t, 0, ts.Names.Len())
	assert.Equal(t, 0, ts.MethodTypes.Len())
}

func TestAddStripsAtSuffix(t *testing.T) {
	ts := New()
	assert.Equal(t, classify.Name, ts.Add("run@@Base", Row{Function: "f", Offset: -1}))
	ts.Add("run", Row{Function: "g", Offset: -1})
	assert.Equal(t, classify.MethodType, ts.Add("(I)V@plt", Row{Function: "f", Offset: -1}))

	assert.Equal(t, []string{"run"}, ts.Names.Symbols())
	assert.Equal(t, []string{"(I)V"}, ts.MethodTypes.Symbols())
	var got []string
	ts.Names.Each(func(sym string, row Row) { got = append(got, sym+"/"+row.Function) })
	assert.Equal(t, []string{"run/f", "run/g"}, got)
}

func TestFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "methods.txt")
	require.NoError(t, os.WriteFile(path, []byte("run\n(I)V\n\nbad name\n"), 0o644))
	ms, err := LoadMethodStrings(path)
	require.NoError(t, err)
	assert.Len(t, ms, 3)

	lits := []section.StringLiteral{
		{Offset: 1, Text: "run"},
		{Offset: 2, Text: "other"},
		{Offset: 3, Text: "(I)V"},
		{Offset: 4, Text: "bad name"},
	}
	tests := []struct {
		name string
		in   []section.StringLiteral
		kept []uint64
		ok   bool
	}{
		{"name and type survive", lits, []uint64{1, 3}, true},
		{"names only", lits[:2], []uint64{1}, false},
		{"nothing known", lits[1:2], nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, ok := ms.Filter(tt.in)
			var offs []uint64
			for _, lit := range kept {
				offs = append(offs, lit.Offset)
			}
			assert.Equal(t, tt.kept, offs)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLoadMethodStringsMissing(t *testing.T) {
	_, err := LoadMethodStrings(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

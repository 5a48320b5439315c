package recomp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDemangler struct {
	table map[string]string
}

func (f fakeDemangler) Demangle(_ context.Context, mangled string) (string, error) {
	if d, ok := f.table[mangled]; ok {
		return d, nil
	}
	return mangled, nil
}

func TestParseSymbolListing(t *testing.T) {
	raw := "" +
		"08048420 T main\n" +
		"08049608 D g_counter\n" +
		"0804960c b g_buffer\n" +
		"         U printf@@GLIBC_2.0\n" +
		"bad\n" +
		"\n"

	syms, warnings, err := ParseSymbolListing(raw)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Len(t, syms, 4)

	assert.Equal(t, "main", syms[0].Mangled)
	assert.Equal(t, SymbolText, syms[0].Class)
	assert.Equal(t, uint32(0x08048420), syms[0].Address)

	assert.Equal(t, "g_counter", syms[1].Mangled)
	assert.Equal(t, SymbolData, syms[1].Class)

	assert.Equal(t, "g_buffer", syms[2].Mangled)
	assert.Equal(t, SymbolBss, syms[2].Class)
}

func TestParseSymbolListingRejects64Bit(t *testing.T) {
	_, _, err := ParseSymbolListing("0000000000404020 T main\n")
	require.Error(t, err)
	var envErr EnvironmentError
	require.ErrorAs(t, err, &envErr)
}

func TestParseSymbolListingGlibcVersionSuffix(t *testing.T) {
	raw := "08048300 U printf@@GLIBC_2.0\n"
	syms, _, err := ParseSymbolListing(raw)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "printf", syms[0].Mangled)
	assert.True(t, syms[0].IsGlibc)
}

func TestBuildSymbolIndexDemangles(t *testing.T) {
	raw := "08048420 T _ZN3Foo3barEv\n"
	demangler := fakeDemangler{table: map[string]string{
		"_ZN3Foo3barEv": "Foo::bar()",
	}}

	idx, warnings, err := BuildSymbolIndex(context.Background(), raw, demangler)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	sym, ok := idx.ByMangled["_ZN3Foo3barEv"]
	require.True(t, ok)
	assert.Equal(t, "Foo::bar()", sym.DemangledFull)
	assert.Equal(t, "Foo::bar", sym.DemangledShort)

	byShort, ok := idx.ByDemangledShort["Foo::bar"]
	require.True(t, ok)
	assert.Equal(t, "_ZN3Foo3barEv", byShort.Mangled)
}

func TestResolveAliasHeuristics(t *testing.T) {
	idx := newSymbolIndex()
	idx.ByMangled["memcpy"] = &Symbol{Mangled: "memcpy"}
	idx.ByMangled["_helper"] = &Symbol{Mangled: "_helper"}

	sym, canonical, ok := idx.ResolveAlias("memcpy_12")
	require.True(t, ok)
	assert.Equal(t, "memcpy", canonical)
	assert.Equal(t, "memcpy", sym.Mangled)

	sym, canonical, ok = idx.ResolveAlias("helper")
	require.True(t, ok)
	assert.Equal(t, "_helper", canonical)
	assert.Equal(t, "_helper", sym.Mangled)

	_, _, ok = idx.ResolveAlias("nonexistent")
	assert.False(t, ok)
}

func TestSymbolIndexSaveAndLoad(t *testing.T) {
	raw := "08048420 T main\n08049608 D g_counter\n"
	idx, _, err := BuildSymbolIndex(context.Background(), raw, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "symbols.json")
	require.NoError(t, SaveSymbolIndex(path, idx))

	loaded, ok, err := LoadCachedSymbolIndex(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, loaded.ByMangled, 2)

	_, ok, err = LoadCachedSymbolIndex(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDataAndFunctionSymbolNames(t *testing.T) {
	raw := "08048420 T main\n08049608 D g_counter\n0804960c b g_buffer\n"
	idx, _, err := BuildSymbolIndex(context.Background(), raw, nil)
	require.NoError(t, err)

	data := idx.DataSymbolNames()
	assert.True(t, data["g_counter"])
	assert.True(t, data["g_buffer"])
	assert.False(t, data["main"])

	fns := idx.FunctionSymbolNames()
	assert.True(t, fns["main"])
	assert.False(t, fns["g_counter"])
}

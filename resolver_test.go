package recomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, stmt string) *TypeDecl {
	t.Helper()
	decl, ok := ParseDeclarationStatement(stmt)
	require.True(t, ok, "failed to parse: %s", stmt)
	return decl
}

func TestResolveDeclarationOrderSimpleChain(t *testing.T) {
	b := mustParse(t, "typedef struct B { int x; } B;")
	a := mustParse(t, "typedef struct A { struct B inner; } A;")

	result := ResolveDeclarationOrder([]*TypeDecl{a, b}, 4)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Ordered, 2)
	assert.Equal(t, "B", result.Ordered[0].PrimaryName())
	assert.Equal(t, "A", result.Ordered[1].PrimaryName())
}

func TestResolveDeclarationOrderCyclicPointerPair(t *testing.T) {
	// Raw decompiler-style text never carries the struct/union/enum
	// keyword on a field type — the resolver's substitution rule
	// (spec.md §4.3) is what's supposed to restore it.
	foo := mustParse(t, "typedef struct Foo { Bar *link; int tag; } Foo;")
	bar := mustParse(t, "typedef struct Bar { Foo *link; int tag; } Bar;")

	result := ResolveDeclarationOrder([]*TypeDecl{foo, bar}, 4)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Ordered, 2)
	assert.NotEmpty(t, result.ForwardDecls, "a cyclic pointer pair needs a synthesized forward declaration")

	for _, d := range result.Ordered {
		switch d.PrimaryName() {
		case "Foo":
			assert.Contains(t, d.Line, "struct Bar *link", "substitution rule 1 should prepend struct to the forward-declared field type")
		case "Bar":
			assert.Contains(t, d.Line, "struct Foo *link", "substitution rule 1 should apply symmetrically to both sides of the cycle")
		}
	}
}

func TestResolveDeclarationOrderPromotesEnumTypedef(t *testing.T) {
	e := mustParse(t, "enum E { A, B };")
	tdef := mustParse(t, "typedef E T;")

	result := ResolveDeclarationOrder([]*TypeDecl{e, tdef}, 4)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Ordered, 1)
	assert.Equal(t, "typedef enum E T;", result.Ordered[0].Line)
}

func TestResolveDeclarationOrderByValueCycleIsUnresolvable(t *testing.T) {
	foo := mustParse(t, "typedef struct Foo { struct Bar inner; } Foo;")
	bar := mustParse(t, "typedef struct Bar { struct Foo inner; } Bar;")

	result := ResolveDeclarationOrder([]*TypeDecl{foo, bar}, 4)
	require.NotEmpty(t, result.Errors)
	require.NotEmpty(t, result.Missing)
	for _, m := range result.Missing {
		assert.True(t, m.Commented)
	}
}

func TestResolveDeclarationOrderForwardDeclarationHonored(t *testing.T) {
	fwd := mustParse(t, "struct Opaque;")
	user := mustParse(t, "typedef struct Holder { struct Opaque *ptr; } Holder;")

	result := ResolveDeclarationOrder([]*TypeDecl{fwd, user}, 4)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Ordered, 1)
	assert.Equal(t, "Holder", result.Ordered[0].PrimaryName())
}

func TestRenderDeclarationsSections(t *testing.T) {
	result := &ResolverResult{
		PoundDefines: []*TypeDecl{{Line: "#define FOO 1"}},
		ForwardDecls: []*TypeDecl{{Line: "struct Bar;"}},
		Enums:        []*TypeDecl{{Line: "typedef enum { A } E;"}},
		Ordered:      []*TypeDecl{{Line: "typedef struct Bar { int x; } Bar;"}},
	}
	out := RenderDeclarations(result)
	assert.Contains(t, out, "// POUND DEFINES")
	assert.Contains(t, out, "// FORWARD DECLS")
	assert.Contains(t, out, "// ENUMERATED TYPES")
	assert.Contains(t, out, "#define FOO 1")
}

package recomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeclarationStatementForwardStruct(t *testing.T) {
	decl, ok := ParseDeclarationStatement("struct Foo;")
	require.True(t, ok)
	assert.Equal(t, KindForwardStruct, decl.Kind)
	assert.Equal(t, []string{"Foo"}, decl.Names)
}

func TestParseDeclarationStatementTypedefStruct(t *testing.T) {
	decl, ok := ParseDeclarationStatement("typedef struct Point { int x; int y; } Point;")
	require.True(t, ok)
	assert.Equal(t, KindTypedefStruct, decl.Kind)
	assert.Equal(t, "Point", decl.PrimaryName())
	assert.Empty(t, decl.Requires)
}

func TestParseDeclarationStatementStructWithPointerField(t *testing.T) {
	decl, ok := ParseDeclarationStatement("typedef struct Node { struct Node *next; int value; } Node;")
	require.True(t, ok)
	require.True(t, decl.Requires["Node"])
	assert.False(t, decl.ByValue["Node"], "self-pointer isn't a by-value requirement of itself")
}

func TestParseDeclarationStatementStructByValueField(t *testing.T) {
	decl, ok := ParseDeclarationStatement("typedef struct Wrapper { struct Inner payload; int tag; } Wrapper;")
	require.True(t, ok)
	assert.True(t, decl.Requires["Inner"])
	assert.True(t, decl.ByValue["Inner"])
}

func TestParseDeclarationStatementSimpleTypedef(t *testing.T) {
	decl, ok := ParseDeclarationStatement("typedef unsigned int DWORD;")
	require.True(t, ok)
	assert.Equal(t, KindSimpleTypedef, decl.Kind)
	assert.Equal(t, "DWORD", decl.PrimaryName())
}

func TestParseDeclarationStatementFnPtrTypedef(t *testing.T) {
	decl, ok := ParseDeclarationStatement("typedef int (*callback_t)(int, char *);")
	require.True(t, ok)
	assert.Equal(t, KindFnPtrTypedef, decl.Kind)
	assert.Equal(t, "callback_t", decl.PrimaryName())
}

func TestParseDeclarationStatementEnum(t *testing.T) {
	decl, ok := ParseDeclarationStatement("typedef enum { RED, GREEN, BLUE } Color;")
	require.True(t, ok)
	assert.Equal(t, KindEnum, decl.Kind)
	assert.Contains(t, decl.Names, "Color")
}

func TestParseDeclarationStatementUnrecognized(t *testing.T) {
	_, ok := ParseDeclarationStatement("this is not a declaration")
	assert.False(t, ok)
}

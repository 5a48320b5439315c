package recomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStubKindPlain(t *testing.T) {
	proto := FunctionProto{Name: "do_thing", ReturnType: "int"}
	kind := ClassifyStubKind(proto, map[string]bool{}, map[string]bool{})
	assert.Equal(t, StubPlain, kind)
}

func TestClassifyStubKindStdioCollision(t *testing.T) {
	proto := FunctionProto{Name: "fopen", ReturnType: "void *"}
	stdio := map[string]bool{"fopen": true}
	kind := ClassifyStubKind(proto, stdio, map[string]bool{})
	assert.Equal(t, StubStdioCollision, kind)
}

func TestClassifyStubKindGlibcEbx(t *testing.T) {
	proto := FunctionProto{Name: "memcpy", ReturnType: "void *", IsGlibc: true}
	kind := ClassifyStubKind(proto, map[string]bool{}, map[string]bool{})
	assert.Equal(t, StubGlibcEbx, kind)
}

func TestClassifyStubKindValistGlibc(t *testing.T) {
	proto := FunctionProto{Name: "printf", ReturnType: "int", IsGlibc: true, Variadic: true}
	variadic := map[string]bool{"printf": true}
	kind := ClassifyStubKind(proto, map[string]bool{}, variadic)
	assert.Equal(t, StubValistGlibc, kind)
}

func TestSynthesizeStubPlain(t *testing.T) {
	proto := FunctionProto{Name: "helper", ReturnType: "int", Params: []Param{{Type: "int", Name: "a"}}}
	stub := SynthesizeStub(proto, StubPlain, "det_")
	assert.Equal(t, "helper", stub.LocalRefName)
	assert.Contains(t, stub.TypedefLine, "t_helper")
	assert.Contains(t, stub.PointerVarLine, "= NULL;")
	assert.Empty(t, stub.Trampoline)
}

func TestSynthesizeStubGlibcEbxHasTrampoline(t *testing.T) {
	proto := FunctionProto{Name: "memcpy", ReturnType: "void *", IsGlibc: true, Params: []Param{{Type: "void *", Name: "dst"}, {Type: "const void *", Name: "src"}, {Type: "size_t", Name: "n"}}}
	stub := SynthesizeStub(proto, StubGlibcEbx, "det_")
	require.Equal(t, "x__memcpy", stub.LocalRefName)
	assert.Equal(t, "z__memcpy", stub.RawPointerName, "the assignable pointer must be distinct from the x__ trampoline function name")
	assert.Contains(t, stub.PointerVarLine, "z__memcpy")
	assert.Contains(t, stub.Trampoline, "x__memcpy(", "the trampoline function itself must be named x__NAME so call sites can invoke it")
	assert.Contains(t, stub.Trampoline, "z__memcpy(", "the trampoline must call through the raw pointer, not itself")
	assert.Contains(t, stub.Trampoline, "origPLT_EBX")
	assert.Contains(t, stub.Trampoline, "%ebx")
}

func TestSynthesizeStubVariadicHasVaListShim(t *testing.T) {
	proto := FunctionProto{Name: "printf", ReturnType: "int", IsGlibc: true, Variadic: true, Params: []Param{{Type: "const char *", Name: "fmt"}}}
	stub := SynthesizeStub(proto, StubValistGlibc, "det_")
	require.Equal(t, "x__printf", stub.LocalRefName)
	assert.Equal(t, "z__vprintf", stub.RawPointerName, "the pointer is typed against the v-prefixed counterpart")
	assert.Contains(t, stub.TypedefLine, "vprintf")
	assert.Contains(t, stub.Trampoline, "x__printf(", "the shim function itself must be named x__NAME so call sites can invoke it")
	assert.Contains(t, stub.Trampoline, "va_start")
	assert.Contains(t, stub.Trampoline, "z__vprintf(")
}

func TestRewriteCallSitesRewritesToLocalRefName(t *testing.T) {
	proto := FunctionProto{Name: "printf", ReturnType: "int", IsGlibc: true, Variadic: true, Params: []Param{{Type: "const char *", Name: "fmt"}}}
	stub := SynthesizeStub(proto, StubValistGlibc, "det_")

	body := `int helper(void) { return printf("hi %d", 1); }`
	rewritten := RewriteCallSites(body, []*StubEntry{stub})
	assert.Contains(t, rewritten, "x__printf(")
	assert.NotContains(t, rewritten, " printf(")
}

func TestRewriteCallSitesLeavesPlainStubsAlone(t *testing.T) {
	proto := FunctionProto{Name: "helper_util", ReturnType: "int"}
	stub := SynthesizeStub(proto, StubPlain, "det_")

	body := `int caller(void) { return helper_util(1); }`
	rewritten := RewriteCallSites(body, []*StubEntry{stub})
	assert.Equal(t, body, rewritten)
}

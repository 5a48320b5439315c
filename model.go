// Package recomp implements the type-and-symbol reconciliation engine that
// turns raw decompiler output into a compilable recompilation harness: a
// translation unit plus the stub/wrapper interface a downstream binary
// patcher detours into.
package recomp

import "fmt"

// SymbolClass partitions a Symbol by the ELF/nm section it was found in.
type SymbolClass int

const (
	SymbolUndefined SymbolClass = iota
	SymbolText
	SymbolData
	SymbolBss
	SymbolWeak
)

func (c SymbolClass) String() string {
	switch c {
	case SymbolText:
		return "text"
	case SymbolData:
		return "data"
	case SymbolBss:
		return "bss"
	case SymbolWeak:
		return "weak"
	default:
		return "undef"
	}
}

// Symbol is one row of the binary's symbol table, demangled and classified.
// Symbols are created once from the symbol lister's output and never
// mutated afterward.
type Symbol struct {
	Mangled        string
	DemangledShort string
	DemangledFull  string
	Class          SymbolClass
	IsGlibc        bool
	Address        uint32
}

// TypeDeclKind tags the shape a declaration line was classified as.
type TypeDeclKind int

const (
	KindPoundDefine TypeDeclKind = iota
	KindForwardStruct
	KindForwardUnion
	KindEnum
	KindSimpleTypedef
	KindStruct
	KindUnion
	KindTypedefStruct
	KindTypedefUnion
	KindFnPtrTypedef
)

func (k TypeDeclKind) String() string {
	switch k {
	case KindPoundDefine:
		return "pound_define"
	case KindForwardStruct:
		return "forward_struct"
	case KindForwardUnion:
		return "forward_union"
	case KindEnum:
		return "enum"
	case KindSimpleTypedef:
		return "simple_typedef"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindTypedefStruct:
		return "typedef_struct"
	case KindTypedefUnion:
		return "typedef_union"
	case KindFnPtrTypedef:
		return "fnptr_typedef"
	default:
		return "unknown"
	}
}

// TypeDecl is one parsed declaration from the harvested type dump. Names
// holds every name this declaration binds (a `typedef struct S {...} T;`
// binds both `S` and `T`). Requires is the set of type names this
// declaration's layout depends on (by value or by pointer — Resolver tells
// the two apart via ByValue). Line is the rendered source text and
// may be rewritten in place by the Resolver (to prepend `struct`/`union`/
// `enum`, or to comment the line out as unresolvable).
type TypeDecl struct {
	Kind     TypeDeclKind
	Names    []string
	Base     string
	Requires map[string]bool
	ByValue  map[string]bool // subset of Requires used without a pointer indirection
	Line     string

	// Commented marks a declaration emitted as `// missing definition`
	// because it (or a dependency) could not be resolved.
	Commented bool
}

// PrimaryName is the name other declarations should reference this
// TypeDecl by: the typedef alias when present, otherwise the first bound
// name.
func (t *TypeDecl) PrimaryName() string {
	if len(t.Names) == 0 {
		return ""
	}
	if t.Kind == KindTypedefStruct || t.Kind == KindTypedefUnion || t.Kind == KindSimpleTypedef || t.Kind == KindFnPtrTypedef {
		return t.Names[len(t.Names)-1]
	}
	return t.Names[0]
}

// Param is one function parameter or a function-pointer typedef argument.
type Param struct {
	Type string
	Name string
}

func (p Param) String() string {
	if p.Name == "" {
		return p.Type
	}
	return fmt.Sprintf("%s %s", p.Type, p.Name)
}

// FunctionProto is a parsed function prototype, deduplicated across
// targets by its rendered prototype text.
type FunctionProto struct {
	Name       string
	ReturnType string
	Params     []Param
	Variadic   bool
	IsExternal bool
	IsGlibc    bool
	IsWeak     bool

	// RawLine is the prototype line exactly as it appeared in the
	// decompiler's "Function declarations" section, used as the dedup
	// and textual-substitution key.
	RawLine string
}

// Signature renders the canonical `RET NAME(ARGS)` form used as a map key.
func (f FunctionProto) Signature() string {
	args := ""
	for i, p := range f.Params {
		if i > 0 {
			args += ", "
		}
		args += p.Type
	}
	if f.Variadic {
		if args != "" {
			args += ", "
		}
		args += "..."
	}
	return fmt.Sprintf("%s %s(%s)", f.ReturnType, f.Name, args)
}

// DataDecl is one global variable referenced by decompiled code.
type DataDecl struct {
	Name         string
	BaseType     string
	ArrayRank    int
	IsTwoDim     bool
	OriginalLine string

	// PointerAliasLine and AccessorDefine are the generated
	// `TYPE *(pNAME);` and `#define NAME (*pNAME)` lines (§4.2/§4.7 of
	// spec.md; the two-dim case omits AccessorDefine and is passed as
	// an opaque void*).
	PointerAliasLine string
	AccessorDefine   string
}

// StubKind tags which of the four stub shapes §4.6 describes was
// synthesized for a given external FunctionProto.
type StubKind int

const (
	StubPlain StubKind = iota
	StubStdioCollision
	StubGlibcEbx
	StubValistGlibc
)

func (k StubKind) String() string {
	switch k {
	case StubStdioCollision:
		return "stdio_collision"
	case StubGlibcEbx:
		return "glibc_ebx"
	case StubValistGlibc:
		return "valist_glibc"
	default:
		return "plain"
	}
}

// StubEntry is the generated pointer/typedef (and, for glibc imports, a
// trampoline) backing one external function reference. Entries are keyed
// by their FunctionProto's prototype text so a symbol referenced by
// several targets is only ever synthesized once.
type StubEntry struct {
	Proto FunctionProto
	Kind  StubKind

	TypedefLine    string
	PointerVarLine string
	Trampoline     string

	// RawPointerName is the variable the wrapper binds at runtime to the
	// resolved symbol address (`NAME` for a plain stub, `x__NAME` when
	// the name collides with a stdio symbol, `z__NAME`/`z__vNAME` when a
	// trampoline function occupies the `x__NAME` identifier instead).
	RawPointerName string

	// TypedefName is the `t_NAME`-style function-pointer typedef
	// RawPointerName is declared with.
	TypedefName string

	// LocalRefName is the identifier call sites are rewritten to use:
	// RawPointerName for plain/stdio-collision stubs, the trampoline
	// function's name (`x__NAME`) for glibc-EBX/variadic stubs.
	LocalRefName string
}

// TargetFunction is one function named in the input target list, resolved
// against the Symbol Index.
type TargetFunction struct {
	Mangled   string
	Demangled string
}

// DetourMeta captures the naming/offset convention a TargetRecord's entry
// point is exposed under (spec.md §6 "Detour naming").
type DetourMeta struct {
	EntryName string // e.g. det_foo, or det_patchmain for the main target
	BinSymbol string // the binary symbol the detour corresponds to
	Offset    int    // +7 for main, 0 otherwise
	CallSpec  string // "entry:sym1,sym2,..." per spec.md §6 funcstubs line

	// Stubs and Data are this one function's propagated closure
	// (PropagateDependencies, spec.md §4.7): every target function gets
	// its own detour entry point and its own parameter list, since two
	// functions in the same target can reach different external symbols
	// through different local callees.
	Stubs    []*StubEntry
	Data     []*DataDecl
	NeedsEBX bool
}

// TargetRecord is one row of the input target list plus everything derived
// for it: the closure of required stubs and data, and the final emitted
// artifacts.
type TargetRecord struct {
	Name      string
	Path      string
	Functions []TargetFunction

	Stubs []*StubEntry
	Data  []*DataDecl

	NeedsEBX bool

	// FunctionProtos and LocalBodies are keyed by mangled function name:
	// each target function's own prototype (for its wrapper's parameter
	// list/return type) and its call-site-rewritten decompiled body
	// (spec.md §4.7/§4.8 — the part the original assembles into
	// "Decompiled Function Definitions").
	FunctionProtos map[string]FunctionProto
	LocalBodies    map[string]string

	WrapperSource string
	Detours       []DetourMeta

	// Failed functions recorded during decompilation (spec.md §5/§7:
	// one failure doesn't abort the target).
	FailedFunctions []string
}

// Succeeded reports whether at least one target function was decompiled
// successfully (spec.md §5: "if all functions in a target fail, the target
// is skipped").
func (t *TargetRecord) Succeeded() bool {
	return len(t.FailedFunctions) < len(t.Functions)
}

package recomp

import (
	"fmt"
	"regexp"
)

// identifierPattern matches whole-word occurrences of name, used to find
// and rewrite call sites without touching substring matches inside other
// identifiers.
func identifierPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
}

// ClassifyStubKind decides which of the four stub shapes (spec.md §4.6)
// a prototype needs: a plain function-pointer stub, a renamed stub for a
// libc name that collides with one of our own stdio wrapper helpers, a
// glibc PLT/EBX trampoline, or a variadic va_list forwarding shim.
// stdioCollisions and variadicGlibc are the configured name sets
// (config.go's stubs.stdio_collisions / stubs.variadic_glibc).
func ClassifyStubKind(proto FunctionProto, stdioCollisions, variadicGlibc map[string]bool) StubKind {
	if proto.Variadic && proto.IsGlibc && variadicGlibc[proto.Name] {
		return StubValistGlibc
	}
	if proto.IsGlibc {
		return StubGlibcEbx
	}
	if stdioCollisions[proto.Name] {
		return StubStdioCollision
	}
	return StubPlain
}

// SynthesizeStub builds the full StubEntry for one external FunctionProto
// (spec.md §4.6):
//
//   - plain: the pointer variable is the bare name; call sites are left
//     untouched.
//   - stdio collision: the pointer variable itself is renamed to
//     `x__NAME`; call sites rewrite to that name.
//   - glibc EBX: the raw pointer (bound at runtime) is `z__NAME`; a
//     separate trampoline FUNCTION literally named `x__NAME` saves/
//     restores %ebx around a call through z__NAME, and call sites
//     rewrite to `x__NAME`.
//   - variadic glibc: the raw pointer is `z__vNAME`, typed against the
//     `v`-prefixed counterpart (vprintf for printf, ...); the shim
//     function `x__NAME` opens a va_list and forwards through it, and
//     call sites rewrite to `x__NAME`.
func SynthesizeStub(proto FunctionProto, kind StubKind, detourPrefix string) *StubEntry {
	entry := &StubEntry{Proto: proto, Kind: kind}

	switch kind {
	case StubPlain:
		entry.RawPointerName = proto.Name
		entry.TypedefName = "t_" + proto.Name
		entry.LocalRefName = entry.RawPointerName

	case StubStdioCollision:
		entry.RawPointerName = "x__" + proto.Name
		entry.TypedefName = "t_" + proto.Name
		entry.LocalRefName = entry.RawPointerName

	case StubGlibcEbx:
		entry.RawPointerName = "z__" + proto.Name
		entry.TypedefName = "t_" + proto.Name
		entry.LocalRefName = "x__" + proto.Name
		entry.Trampoline = renderEbxTrampoline(proto, entry.RawPointerName, entry.LocalRefName)

	case StubValistGlibc:
		entry.RawPointerName = "z__v" + proto.Name
		entry.TypedefName = "t_v" + proto.Name
		entry.LocalRefName = "x__" + proto.Name
		entry.Trampoline = renderValistShim(proto, entry.RawPointerName, entry.LocalRefName)
	}

	entry.TypedefLine = fmt.Sprintf("typedef %s;", renderFunctionPointerType(entry.TypedefName, variadicTarget(proto, kind)))
	entry.PointerVarLine = fmt.Sprintf("%s %s = NULL;", entry.TypedefName, entry.RawPointerName)
	return entry
}

// variadicTarget returns the prototype the pointer/typedef should be typed
// against: for a variadic glibc stub that's the `v`-prefixed counterpart
// (fixed args followed by a va_list), not proto itself.
func variadicTarget(proto FunctionProto, kind StubKind) FunctionProto {
	if kind != StubValistGlibc {
		return proto
	}
	target := proto
	target.Name = "v" + proto.Name
	target.Variadic = false
	target.Params = append(append([]Param{}, proto.Params...), Param{Type: "va_list", Name: "args"})
	return target
}

// renderFunctionPointerType renders `RET (*NAME)(ARGS)` for use inside a
// typedef statement.
func renderFunctionPointerType(name string, proto FunctionProto) string {
	args := ""
	for i, p := range proto.Params {
		if i > 0 {
			args += ", "
		}
		args += p.Type
	}
	if proto.Variadic {
		if args != "" {
			args += ", "
		}
		args += "..."
	}
	if args == "" {
		args = "void"
	}
	return fmt.Sprintf("%s (*%s)(%s)", proto.ReturnType, name, args)
}

// renderEbxTrampoline emits the PLT/EBX save-call-restore sequence for a
// glibc import (spec.md §4.6's glibc PLT/EBX stub variant): it copies the
// caller's %ebx into a local origPLT_EBX, calls through rawPointer, and
// moves the saved value back into %ebx afterwards. It does not load any
// other value into %ebx before the call.
// trampolineName is the function's own name (`x__NAME`, what call sites
// rewrite to); rawPointer is the runtime-bound pointer it calls through
// (`z__NAME`).
func renderEbxTrampoline(proto FunctionProto, rawPointer, trampolineName string) string {
	w := newOutputWriter("    ")
	retVar := ""
	if proto.ReturnType != "void" {
		retVar = proto.ReturnType + " z__ret"
	}

	w.writeilf("%s %s(%s) {", proto.ReturnType, trampolineName, joinParams(proto.Params))
	w.indent()
	w.writeil("unsigned long origPLT_EBX;")
	if retVar != "" {
		w.writeilf("%s;", retVar)
	}
	w.writeil("__asm__ volatile (\"movl %%ebx, %0\" : \"=r\"(origPLT_EBX));")
	if retVar != "" {
		w.writeilf("z__ret = %s(%s);", rawPointer, joinArgNames(proto.Params))
	} else {
		w.writeilf("%s(%s);", rawPointer, joinArgNames(proto.Params))
	}
	w.writeil("__asm__ volatile (\"movl %0, %%ebx\" : : \"r\"(origPLT_EBX));")
	if retVar != "" {
		w.writeil("return z__ret;")
	}
	w.unindent()
	w.writeil("}")
	return w.String()
}

// renderValistShim emits a forwarding shim for a variadic glibc call
// (printf/scanf family): it builds a va_list over the caller's variadic
// tail and forwards to the `v`-prefixed vprintf/vscanf-style counterpart
// through rawPointer (`z__vNAME`), since our stub pointer can't itself be
// called with a variable argument count through a function pointer
// typedef portably. shimName is the function's own name (`x__NAME`).
func renderValistShim(proto FunctionProto, rawPointer, shimName string) string {
	w := newOutputWriter("    ")
	fixed := proto.Params

	w.writeilf("%s %s(%s, ...) {", proto.ReturnType, shimName, joinParams(fixed))
	w.indent()
	w.writeil("va_list args;")
	lastParam := "fmt"
	if len(fixed) > 0 {
		lastParam = fixed[len(fixed)-1].Name
	}
	w.writeilf("va_start(args, %s);", lastParam)
	retPrefix := ""
	if proto.ReturnType != "void" {
		retPrefix = proto.ReturnType + " z__ret = "
	}
	w.writeilf("%s%s(%s, args);", retPrefix, rawPointer, joinArgNames(fixed))
	w.writeil("va_end(args);")
	if proto.ReturnType != "void" {
		w.writeil("return z__ret;")
	}
	w.unindent()
	w.writeil("}")
	return w.String()
}

// RewriteCallSites rewrites every external call-site reference in a
// decompiled function body to the corresponding stub's LocalRefName
// (spec.md §8 scenario 2: "every call site in the body now reads
// x__printf(...)"). Matching is whole-identifier to avoid mangling
// substring occurrences inside longer names.
func RewriteCallSites(body string, stubs []*StubEntry) string {
	for _, s := range stubs {
		if s.LocalRefName == s.Proto.Name {
			continue
		}
		body = identifierPattern(s.Proto.Name).ReplaceAllString(body, s.LocalRefName)
	}
	return body
}

func joinParams(params []Param) string {
	s := ""
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		if p.Name == "" {
			s += fmt.Sprintf("%s a%d", p.Type, i)
		} else {
			s += p.String()
		}
	}
	return s
}

func joinArgNames(params []Param) string {
	s := ""
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		if p.Name == "" {
			s += fmt.Sprintf("a%d", i)
		} else {
			s += p.Name
		}
	}
	return s
}

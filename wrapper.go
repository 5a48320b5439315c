package recomp

import "fmt"

// WrapperInput is everything WrapperEmitter needs to build one target's
// detour entry function and its invocation inside main() (spec.md §4.8).
// Stubs and Data must already be
// in the deterministic order PropagateDependencies produced: that order
// becomes the wrapper's parameter list, so it has to match exactly
// between the entry prototype and the main() call site.
type WrapperInput struct {
	TargetName   string
	OwnParams    []Param
	OwnReturn    string
	DetourPrefix string
	NeedsEBX     bool
	Stubs        []*StubEntry
	Data         []*DataDecl
}

// entryName returns the detour-prefixed identifier this target is exposed
// under, special-casing "main" to "patchmain" (spec.md §6: a locally
// defined main() would otherwise collide with the harness's own main()).
func (w WrapperInput) entryName() string {
	return detourEntryName(w.TargetName, w.DetourPrefix)
}

// detourEntryName applies spec.md §6's detour naming convention: the
// configured prefix, with "main" special-cased to "patchmain" so a
// function literally named main doesn't collide with the harness's own
// entry point.
func detourEntryName(name, detourPrefix string) string {
	if name == "main" {
		name = "patchmain"
	}
	return detourPrefix + name
}

// localSymbolName is the identifier the decompiled function body itself
// uses (spec.md §6: "patchmain", +7 offset, otherwise the original name).
func (w WrapperInput) localSymbolName() string {
	if w.TargetName == "main" {
		return "patchmain"
	}
	return w.TargetName
}

// EmitWrapper renders the detour entry function for one target: its
// parameter list (EBX first if needed, then stub void*/void** params,
// then data void* params, then the target's own parameters), its body
// (cast and assign each stub/data pointer, call __prd_init/invoke/
// __prd_exit, emit the asm-stack marker, return the captured value if
// non-void). The leading ebx_save parameter is part of the signature
// only; the body does not read it.
func EmitWrapper(in WrapperInput) string {
	w := newOutputWriter("    ")

	w.write(in.OwnReturn)
	w.write(" ")
	w.write(in.entryName())
	w.writel("(")
	w.indent()

	type wparam struct {
		typ  string
		name string
	}
	var params []wparam
	if in.NeedsEBX {
		params = append(params, wparam{"void *", "ebx_save"})
	}
	for _, s := range in.Stubs {
		typ := "void*"
		if s.Proto.IsWeak {
			typ = "void**"
		}
		params = append(params, wparam{typ, "my" + s.Proto.Name})
	}
	for _, d := range in.Data {
		params = append(params, wparam{"void*", "my" + d.Name})
	}
	for i, p := range in.OwnParams {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("a%d", i)
		}
		params = append(params, wparam{p.Type, name})
	}

	for i, p := range params {
		suffix := ","
		if i == len(params)-1 {
			suffix = ""
		}
		w.writeilf("%s %s%s", p.typ, p.name, suffix)
	}
	w.unindent()
	w.writel(")")
	w.writeil("{")
	w.indent()

	if in.OwnReturn != "void" {
		w.writeilf("%s retValue;", in.OwnReturn)
		w.writel("")
	}

	for _, d := range in.Data {
		w.writeilf("p%s = (%s*) my%s;", d.Name, d.BaseType, d.Name)
	}
	for _, s := range in.Stubs {
		star := ""
		if s.Proto.IsWeak {
			star = "*"
		}
		w.writeilf("%s = (%s) (%smy%s);", s.RawPointerName, s.TypedefName, star, s.Proto.Name)
	}

	w.writel("")
	w.writeil("__prd_init();")
	w.writel("")

	call := ""
	if in.OwnReturn != "void" {
		call += "retValue = "
	}
	call += in.localSymbolName() + "("
	w.writei(call)
	w.writel("")
	w.indent()
	for i, p := range in.OwnParams {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("a%d", i)
		}
		suffix := ","
		if i == len(in.OwnParams)-1 {
			suffix = ""
		}
		w.writeilf("%s%s", name, suffix)
	}
	w.unindent()
	w.writeil(");")
	w.writel("")
	w.writeil("__prd_exit();")
	w.writel("")
	w.writeilf("/* ASM STACK %s HERE */", in.localSymbolName())

	if in.OwnReturn != "void" {
		w.writel("")
		w.writeil("return retValue;")
	}

	w.unindent()
	w.writeil("}")
	return w.String()
}

// EmitMainHarness renders the synthetic main() that calls every target's
// detour entry in sequence with NULL / typed-zero placeholder arguments
// (spec.md §4.8), used as the recompiled binary's real entry point.
func EmitMainHarness(targets []WrapperInput) string {
	w := newOutputWriter("    ")
	w.writeil("int main(void)")
	w.writeil("{")
	w.indent()

	for _, in := range targets {
		w.writeilf("%s(", in.entryName())
		w.indent()

		var args []string
		if in.NeedsEBX {
			args = append(args, "NULL")
		}
		for range in.Stubs {
			args = append(args, "NULL")
		}
		for range in.Data {
			args = append(args, "NULL")
		}
		for _, p := range in.OwnParams {
			args = append(args, zeroValueFor(p.Type))
		}
		for i, a := range args {
			suffix := ","
			if i == len(args)-1 {
				suffix = ""
			}
			w.writeilf("%s%s", a, suffix)
		}

		w.unindent()
		w.writeil(");")
	}
	w.writeil("return 0;")
	w.unindent()
	w.writeil("}")
	return w.String()
}

// zeroValueFor renders the placeholder argument main() passes for a
// target's own parameter: a typed 0 for numeric types, NULL for pointers
// and struct-by-value types (spec.md §4.8: "heap-allocated struct-typed
// args" get a NULL placeholder here and are wired up by the caller if the
// struct body needs populating).
func zeroValueFor(typ string) string {
	for _, numeric := range []string{"int", "long", "short", "char", "float", "double"} {
		if contains(typ, numeric) && !contains(typ, "*") {
			return fmt.Sprintf("(%s) 0", typ)
		}
	}
	return fmt.Sprintf("(%s) NULL", typ)
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

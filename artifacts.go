package recomp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ArtifactInput is everything the Artifact Emitter needs to write one
// target's prd_include.mk / prd_info.json pair (spec.md §4.9), grounded
// on prd_multidecomp_ida.py's makefile_target_info dict.
type ArtifactInput struct {
	Target       string
	DetourPrefix string
	Stubs        []*StubEntry
}

// detourSpec is one DETOURS makefile-variable entry: with a prefix P it is
// "Ptarget:target"; with no prefix, main becomes "patchmain:main". A main
// target gets "+7" appended either way.
func (a ArtifactInput) detourSpec() string {
	entry := a.Target
	define := entry
	if a.DetourPrefix != "" {
		entry = a.DetourPrefix + a.Target
		define = entry + ":" + a.Target
	} else if a.Target == "main" {
		entry = "patchmain"
		define = entry + ":" + a.Target
	}
	if a.Target == "main" {
		define += "+7"
	}
	return define
}

// funcStubLine is the colon-joined list of external stub names this
// target's detour declares, the DETOUR_DEFS makefile variable's value.
func (a ArtifactInput) funcStubLine() string {
	names := make([]string, len(a.Stubs))
	for i, s := range a.Stubs {
		names[i] = s.Proto.Name
	}
	return strings.Join(names, ":")
}

// EmitMakefileInclude renders the prd_include.mk fragment (spec.md §4.9):
// BIN, DETOUR_BIN, MYSRC, MYREP, DETOUR_PREFIX, DETOUR_DEFS, DETOUR_CALLS
// (a $(patsubst ...) expansion over DETOUR_DEFS), DETOURS, and
// FUNCINSERT_PARAMS.
func EmitMakefileInclude(a ArtifactInput) string {
	w := newOutputWriter("    ")
	w.writeil("# Auto-generated Makefile include file")
	w.writeilf("BIN := %s", a.Target)
	w.writeil("DETOUR_BIN ?= $(BIN).trampoline.bin")
	w.writeilf("MYSRC ?= %s_recomp.c", a.Target)
	w.writeil("MYREP ?= repair.c")
	w.writeilf("DETOUR_PREFIX := %s", a.DetourPrefix)
	w.writeilf("DETOUR_DEFS := %s", a.funcStubLine())
	w.writeil("DETOUR_CALLS := $(patsubst %, --external-funcs $(DETOUR_PREFIX)%, $(DETOUR_DEFS))")
	w.writeilf("DETOURS := %s", a.detourSpec())
	w.writeil("FUNCINSERT_PARAMS := $(DETOURS) $(DETOUR_CALLS) --debug")
	return w.String()
}

// prdInfo mirrors the prd_info.json document the original tool emits
// alongside the makefile include, so downstream tooling built against
// that JSON shape keeps working unchanged.
type prdInfo struct {
	BIN          string   `json:"BIN"`
	MYSRC        string   `json:"MYSRC"`
	MYREP        string   `json:"MYREP"`
	DetourPrefix string   `json:"DETOUR_PREFIX"`
	Detours      []string `json:"DETOURS"`
	FuncStubs    []string `json:"FUNCSTUB_LIST"`
}

// AssembleTranslationUnit renders one target's full `<target>_recomp.c`
// content (spec.md §4.8/§4.9), grounded on prd_multidecomp_ida.py's
// top-level assembly order (includes, resolved type declarations,
// __prd_init/__prd_exit placeholders, "Function Declarations" (stubs plus
// local prototypes), "Decompiled Variables", "Decompiled Function
// Declarations", "Decompiled Function Definitions" with call sites already
// rewritten, then one detour wrapper per target function). resolverResult
// may be nil if no --typedefs dump was supplied for this run.
func AssembleTranslationUnit(target *TargetRecord, resolverResult *ResolverResult, detourPrefix string) string {
	w := newOutputWriter("    ")

	w.writeil("#include <stddef.h>")
	w.writeil(`#include "defs.h"`)
	w.writel("")

	if resolverResult != nil {
		w.write(RenderDeclarations(resolverResult))
		w.writel("")
	}

	w.writeil("void __prd_init() {")
	w.writeil("}")
	w.writeil("void __prd_exit() {")
	w.writeil("}")
	w.writel("")

	w.writeil("// Function Declarations")
	for _, s := range target.Stubs {
		w.writeil(s.TypedefLine)
		w.writeil(s.PointerVarLine)
		if s.Trampoline != "" {
			w.write(s.Trampoline)
			w.writel("")
		}
	}
	for _, fn := range target.Functions {
		if proto, ok := target.FunctionProtos[fn.Mangled]; ok {
			w.writeil(renderPrototypeLine(proto))
		}
	}
	w.writel("")

	if len(target.Data) > 0 {
		w.writeil("// Decompiled Variables")
		for _, d := range target.Data {
			w.writeil(d.PointerAliasLine)
			if d.AccessorDefine != "" {
				w.writeil(d.AccessorDefine)
			}
		}
		w.writel("")
	}

	w.writeil("// Decompiled Function Declarations")
	for _, fn := range target.Functions {
		if proto, ok := target.FunctionProtos[fn.Mangled]; ok {
			w.writeil(renderPrototypeLine(proto))
		}
	}
	w.writel("")

	w.writeil("// Decompiled Function Definitions")
	for _, fn := range target.Functions {
		if body, ok := target.LocalBodies[fn.Mangled]; ok {
			w.write(body)
			w.writel("")
		}
	}

	for _, meta := range target.Detours {
		in := wrapperInputFor(target, meta, detourPrefix)
		w.write(EmitWrapper(in))
		w.writel("")
	}

	return w.String()
}

// renderPrototypeLine renders `RET NAME(ARGS);` from a parsed
// FunctionProto, used for both the global and the per-function
// declaration regions of the assembled translation unit.
func renderPrototypeLine(p FunctionProto) string {
	args := ""
	for i, param := range p.Params {
		if i > 0 {
			args += ", "
		}
		args += param.String()
	}
	if p.Variadic {
		if args != "" {
			args += ", "
		}
		args += "..."
	}
	if args == "" {
		args = "void"
	}
	return fmt.Sprintf("%s %s(%s);", p.ReturnType, p.Name, args)
}

// wrapperInputFor builds the WrapperInput for one target function's detour
// entry from its propagated DetourMeta (spec.md §4.7/§4.8: every function a
// target names gets its own entry point and its own parameter list, since
// two functions in the same target can reach different externals through
// different local callees).
func wrapperInputFor(target *TargetRecord, meta DetourMeta, detourPrefix string) WrapperInput {
	proto := target.FunctionProtos[meta.BinSymbol]
	return WrapperInput{
		TargetName:   meta.BinSymbol,
		OwnParams:    proto.Params,
		OwnReturn:    orDefault(proto.ReturnType, "void"),
		DetourPrefix: detourPrefix,
		NeedsEBX:     meta.NeedsEBX,
		Stubs:        meta.Stubs,
		Data:         meta.Data,
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// EmitInfoJSON renders the prd_info.json artifact for one target.
func EmitInfoJSON(a ArtifactInput) ([]byte, error) {
	names := make([]string, len(a.Stubs))
	for i, s := range a.Stubs {
		names[i] = s.Proto.Name
	}
	info := prdInfo{
		BIN:          a.Target,
		MYSRC:        fmt.Sprintf("%s_recomp.c", a.Target),
		MYREP:        "repair.c",
		DetourPrefix: a.DetourPrefix,
		Detours:      []string{a.detourSpec()},
		FuncStubs:    names,
	}
	return json.MarshalIndent(info, "", "  ")
}

package recomp

import (
	"regexp"
	"sort"
	"strings"
)

// ResolverResult is the Type Resolver's output (spec.md §4.3): a legally
// ordered declaration list plus whatever couldn't be placed.
type ResolverResult struct {
	PoundDefines []*TypeDecl
	ForwardDecls []*TypeDecl
	Enums        []*TypeDecl
	Ordered      []*TypeDecl
	Missing      []*TypeDecl // commented out, §7 TypeUnresolvableError
	Errors       []error
}

// ResolveDeclarationOrder runs the dependency-graph ordering pass (spec.md
// §4.3 / Design Notes §9): repeatedly place every TypeDecl whose
// dependencies are already satisfied, synthesize forward-declaration
// placeholders for cyclic pointer-only references once no further direct
// progress is possible, and retry. A TypeDecl rejected as a placeholder
// target because something depends on it by value (and everything that in
// turn depends on it) is emitted commented out (Commented=true) rather
// than silently dropped. maxExtraPasses bounds the placeholder-synthesis
// retries (spec.md's "resolver.max_extra_passes" setting).
func ResolveDeclarationOrder(decls []*TypeDecl, maxExtraPasses int) *ResolverResult {
	result := &ResolverResult{}

	defined := map[string]bool{}
	forwardDeclared := map[string]bool{}
	nameOwner := map[string]*TypeDecl{}

	// tagKind records which struct/union/enum tag every declared name
	// belongs to, independent of ordering, so the substitution rules
	// (spec.md §4.3) can tell a bare field/param reference apart from one
	// that needs a struct/union/enum keyword prepended.
	tagKind := map[string]TypeDeclKind{}
	for _, d := range decls {
		for _, n := range d.Names {
			tagKind[n] = d.Kind
		}
	}

	var pending []*TypeDecl
	for _, d := range decls {
		switch d.Kind {
		case KindPoundDefine:
			result.PoundDefines = append(result.PoundDefines, d)
			continue
		case KindForwardStruct:
			forwardDeclared[d.Names[0]] = true
			result.ForwardDecls = append(result.ForwardDecls, d)
			continue
		case KindForwardUnion:
			forwardDeclared[d.Names[0]] = true
			result.ForwardDecls = append(result.ForwardDecls, d)
			continue
		case KindEnum:
			for _, n := range d.Names {
				defined[n] = true
			}
			result.Enums = append(result.Enums, d)
			continue
		}
		for _, n := range d.Names {
			nameOwner[n] = d
		}
		pending = append(pending, d)
	}

	placeholdersSynthesized := map[string]bool{}
	pass := 0
	for len(pending) > 0 {
		var progressed bool
		pending, progressed = placementPass(pending, defined, forwardDeclared, tagKind, result)
		if len(pending) == 0 {
			break
		}
		if progressed {
			continue // try another direct pass before spending a placeholder round
		}

		pass++
		if pass > maxExtraPasses {
			break
		}
		synthesized := synthesizePlaceholders(pending, forwardDeclared, placeholdersSynthesized)
		if len(synthesized) == 0 {
			break // no progress possible at all; give up on the remainder
		}
		for _, ph := range synthesized {
			result.ForwardDecls = append(result.ForwardDecls, ph)
			placeholdersSynthesized[ph.Names[0]] = true
			forwardDeclared[ph.Names[0]] = true
		}
	}

	if len(pending) > 0 {
		missing := markUnresolvable(pending, defined, forwardDeclared)
		result.Missing = append(result.Missing, missing...)
		var remaining []string
		for _, m := range missing {
			remaining = append(remaining, m.PrimaryName())
		}
		sort.Strings(remaining)
		result.Errors = append(result.Errors, OrderingError{Remaining: remaining})
	}

	return result
}

// placementPass makes one sweep over pending, moving every TypeDecl whose
// dependencies are already satisfied into result.Ordered. It returns the
// still-unsatisfied remainder and whether anything was placed this sweep.
//
// Substitution rules (spec.md §4.3) are applied against a snapshot of
// `defined` taken before this pass starts, not the live map: two decls
// placed in the same pass (the classic cyclic-pointer-pair case) must each
// see the other as "only forward-declared," even though placing the first
// one marks it defined before the second is reached.
func placementPass(pending []*TypeDecl, defined, forwardDeclared map[string]bool, tagKind map[string]TypeDeclKind, result *ResolverResult) ([]*TypeDecl, bool) {
	var remaining []*TypeDecl
	progressed := false
	definedAtPassStart := cloneBoolMap(defined)

	changed := true
	current := pending
	for changed {
		changed = false
		var next []*TypeDecl
		for _, d := range current {
			if dependenciesSatisfied(d, defined, forwardDeclared) {
				applySubstitutionRules(d, tagKind, definedAtPassStart, forwardDeclared)
				result.Ordered = append(result.Ordered, d)
				for _, n := range d.Names {
					defined[n] = true
				}
				changed = true
				progressed = true
			} else {
				next = append(next, d)
			}
		}
		current = next
	}
	remaining = current
	return remaining, progressed
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// tagKeyword returns the C keyword ("struct"/"union"/"enum") a bare
// reference to a name of this kind needs prepended, or "" if the kind
// needs no keyword (typedefs, #defines).
func tagKeyword(kind TypeDeclKind) string {
	switch kind {
	case KindForwardStruct, KindStruct, KindTypedefStruct:
		return "struct"
	case KindForwardUnion, KindUnion, KindTypedefUnion:
		return "union"
	case KindEnum:
		return "enum"
	default:
		return ""
	}
}

// applySubstitutionRules rewrites d.Line per spec.md §4.3's two rules:
//
//  1. any field/param type referencing a name that is only forward-
//     declared (not yet fully defined) at this point gets the matching
//     struct/union keyword prepended; an enum tag always needs its
//     keyword, since decompiler output rarely typedefs enum tags to
//     themselves.
//  2. a bare `typedef T NAME;` gets promoted to `typedef enum/struct/union
//     T NAME;` when T's own kind is an enum/struct/union.
func applySubstitutionRules(d *TypeDecl, tagKind map[string]TypeDeclKind, defined, forwardDeclared map[string]bool) {
	if d.Kind == KindSimpleTypedef {
		if keyword := tagKeyword(tagKind[d.Base]); keyword != "" {
			rest := strings.TrimPrefix(d.Line, "typedef ")
			if rest != d.Line && !strings.HasPrefix(rest, keyword+" ") {
				d.Line = "typedef " + keyword + " " + rest
			}
		}
	}

	var names []string
	for req := range d.Requires {
		names = append(names, req)
	}
	sort.Strings(names)

	for _, req := range names {
		if isSelfReference(d, req) {
			continue
		}
		kind, known := tagKind[req]
		if !known {
			continue
		}
		keyword := tagKeyword(kind)
		if keyword == "" {
			continue
		}
		onlyForwardDeclared := !defined[req] && forwardDeclared[req]
		if kind != KindEnum && !onlyForwardDeclared {
			continue
		}
		d.Line = prependTagKeyword(d.Line, keyword, req)
	}
}

// identBoundaryPattern matches a bare identifier occurrence not already
// preceded by its struct/union/enum keyword.
func identBoundaryPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
}

// prependTagKeyword inserts "struct "/"union "/"enum " before every bare
// occurrence of name in line that isn't already preceded by that keyword.
func prependTagKeyword(line, keyword, name string) string {
	alreadyTagged := regexp.MustCompile(`\b` + keyword + `\s+` + regexp.QuoteMeta(name) + `\b`)
	placeholder := "\x00TAGGED\x00"
	marked := alreadyTagged.ReplaceAllString(line, placeholder)
	marked = identBoundaryPattern(name).ReplaceAllString(marked, keyword+" "+name)
	return strings.ReplaceAll(marked, placeholder, keyword+" "+name)
}

// dependenciesSatisfied reports whether d can be legally emitted given the
// current defined/forwardDeclared sets: every by-value dependency must be
// fully defined, and every pointer-only dependency must be either defined
// or forward-declared.
func dependenciesSatisfied(d *TypeDecl, defined, forwardDeclared map[string]bool) bool {
	for req := range d.Requires {
		if isSelfReference(d, req) {
			continue
		}
		if d.ByValue[req] {
			if !defined[req] {
				return false
			}
			continue
		}
		if !defined[req] && !forwardDeclared[req] {
			return false
		}
	}
	return true
}

func isSelfReference(d *TypeDecl, name string) bool {
	for _, n := range d.Names {
		if n == name {
			return true
		}
	}
	return false
}

// synthesizePlaceholders finds pointer-only dependency targets that
// nothing in pending requires by value, and emits a forward declaration
// for each (spec.md §4.3's cyclic-pointer-pair case: two structs each
// holding only a pointer to the other). A name used by value anywhere in
// pending is never a placeholder candidate (Open Question decision: a
// by-value use disqualifies the placeholder outright rather than being
// silently forward-declared).
func synthesizePlaceholders(pending []*TypeDecl, forwardDeclared map[string]bool, alreadySynthesized map[string]bool) []*TypeDecl {
	candidates := map[string]bool{}
	rejected := map[string]bool{}

	for _, d := range pending {
		for req := range d.Requires {
			if isSelfReference(d, req) || forwardDeclared[req] || alreadySynthesized[req] {
				continue
			}
			if d.ByValue[req] {
				rejected[req] = true
				continue
			}
			candidates[req] = true
		}
	}

	var names []string
	for name := range candidates {
		if !rejected[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []*TypeDecl
	for _, name := range names {
		kind := KindForwardStruct
		out = append(out, &TypeDecl{
			Kind:     kind,
			Names:    []string{name},
			Line:     "struct " + name + ";",
			Requires: map[string]bool{},
			ByValue:  map[string]bool{},
		})
	}
	return out
}

// markUnresolvable comments out every TypeDecl left in pending (and
// transitively, anything among them that depends on a still-unresolvable
// one), attaching the missing-dependency diagnostic.
func markUnresolvable(pending []*TypeDecl, defined, forwardDeclared map[string]bool) []*TypeDecl {
	stillMissing := map[string]bool{}
	for _, d := range pending {
		stillMissing[d.PrimaryName()] = true
	}

	for _, d := range pending {
		d.Commented = true
		missing := firstUnsatisfiedRequirement(d, defined, forwardDeclared, stillMissing)
		d.Line = "// missing definition: " + missing + "\n// " + d.Line
	}
	return pending
}

func firstUnsatisfiedRequirement(d *TypeDecl, defined, forwardDeclared map[string]bool, stillMissing map[string]bool) string {
	var names []string
	for req := range d.Requires {
		names = append(names, req)
	}
	sort.Strings(names)
	for _, req := range names {
		if isSelfReference(d, req) {
			continue
		}
		if d.ByValue[req] && !defined[req] {
			return req
		}
		if !d.ByValue[req] && !defined[req] && !forwardDeclared[req] {
			return req
		}
	}
	for name := range stillMissing {
		if name != d.PrimaryName() {
			return name
		}
	}
	return "(unknown)"
}

// RenderDeclarations writes a ResolverResult as sectioned C source, using
// the shared indent-tracking buffer every emitter in this package builds
// on (gen.go).
func RenderDeclarations(result *ResolverResult) string {
	w := newOutputWriter("    ")

	if len(result.PoundDefines) > 0 {
		w.writeil("// POUND DEFINES")
		for _, d := range result.PoundDefines {
			w.writeil(d.Line)
		}
		w.writel("")
	}
	if len(result.ForwardDecls) > 0 {
		w.writeil("// FORWARD DECLS")
		for _, d := range result.ForwardDecls {
			w.writeil(d.Line)
		}
		w.writel("")
	}
	if len(result.Enums) > 0 {
		w.writeil("// ENUMERATED TYPES")
		for _, d := range result.Enums {
			w.writeil(d.Line)
		}
		w.writel("")
	}
	for _, d := range result.Ordered {
		w.writeil(d.Line)
	}
	if len(result.Missing) > 0 {
		w.writel("")
		w.writeil("// MISSING")
		for _, d := range result.Missing {
			w.writeil(d.Line)
		}
	}
	return w.String()
}

package recomp

import (
	"regexp"
	"strings"
)

// protoLinePattern matches a `RET NAME(ARGS);` prototype line from the
// "Function declarations" section. ARGS may be empty, "void", end with
// "...", or be absent entirely for a K&R-style bare declaration.
var protoLinePattern = regexp.MustCompile(`^(.+?)\s+(\**\w+)\s*\((.*)\)\s*;?$`)

// ParsePrototypeLines parses the raw lines of the decompiler's "Function
// declarations" section into FunctionProtos (spec.md §4.5/§4.6's
// prototype-parsing stage). IsExternal/IsGlibc/IsWeak are left false here;
// EnrichPrototypesWithSymbols fills them in once the Symbol Index is
// available.
func ParsePrototypeLines(lines []string) []FunctionProto {
	var protos []FunctionProto
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		m := protoLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		retType := strings.TrimSpace(m[1])
		name := strings.TrimLeft(strings.TrimSpace(m[2]), "*")
		argString := strings.TrimSpace(m[3])

		variadic := false
		var params []Param
		if argString != "" && argString != "void" {
			for _, arg := range strings.Split(argString, ",") {
				arg = strings.TrimSpace(arg)
				if arg == "..." {
					variadic = true
					continue
				}
				typ, pname := splitTypeAndLabel(arg)
				params = append(params, Param{Type: typ, Name: pname})
			}
		}

		protos = append(protos, FunctionProto{
			Name:       name,
			ReturnType: retType,
			Params:     params,
			Variadic:   variadic,
			RawLine:    line,
		})
	}
	return protos
}

// idbSuffixPattern matches the weak-declaration marker spec.md §4.6's
// tie-break discards in favor of a concrete duplicate.
var idbSuffixPattern = regexp.MustCompile(`//\s*idb\s*$`)

// DropWeakerDuplicates implements spec.md §4.6's prototype tie-break: when
// the same function name appears more than once in the "Function
// declarations" section, a line ending in the `// idb` weak-declaration
// marker is discarded in favor of a concrete one. The marker is stripped
// from every returned line, so a weak line kept for lack of a concrete one
// comes back as a plain prototype. First-seen order is otherwise preserved.
func DropWeakerDuplicates(lines []string) []string {
	type entry struct {
		line string
		weak bool
	}
	byName := map[string]*entry{}
	var order []string

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		weak := idbSuffixPattern.MatchString(line)
		clean := strings.TrimSpace(idbSuffixPattern.ReplaceAllString(line, ""))

		name := clean
		if m := protoLinePattern.FindStringSubmatch(clean); m != nil {
			name = strings.TrimLeft(strings.TrimSpace(m[2]), "*")
		}

		existing, ok := byName[name]
		if !ok {
			byName[name] = &entry{line: clean, weak: weak}
			order = append(order, name)
			continue
		}
		if existing.weak && !weak {
			existing.line = clean
			existing.weak = false
		}
	}

	out := make([]string, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name].line)
	}
	return out
}

// MergeGuessedPrototypes appends each "using guessed type" hint
// (spec.md §4.5) that has no concrete prototype of the same name,
// discarding the rest: a guessed hint is only tentative, and is dropped
// the moment a real definition for that symbol exists.
func MergeGuessedPrototypes(concrete []FunctionProto, guessedLines []string) []FunctionProto {
	if len(guessedLines) == 0 {
		return concrete
	}
	have := map[string]bool{}
	for _, p := range concrete {
		have[p.Name] = true
	}
	for _, p := range ParsePrototypeLines(guessedLines) {
		if have[p.Name] {
			continue
		}
		concrete = append(concrete, p)
		have[p.Name] = true
	}
	return concrete
}

// findProtoByName looks up a parsed prototype by its function name.
func findProtoByName(protos []FunctionProto, name string) (FunctionProto, bool) {
	for _, p := range protos {
		if p.Name == name {
			return p, true
		}
	}
	return FunctionProto{}, false
}

// EnrichPrototypesWithSymbols cross-references each parsed prototype
// against the Symbol Index to decide whether it's external (undefined in
// this binary, i.e. needs a stub) versus a locally-defined helper, and
// whether it's a glibc import or a weak symbol (spec.md §4.6).
func EnrichPrototypesWithSymbols(protos []FunctionProto, idx *SymbolIndex) []FunctionProto {
	if idx == nil {
		return protos
	}
	out := make([]FunctionProto, len(protos))
	for i, p := range protos {
		sym, _, ok := idx.ResolveAlias(p.Name)
		if ok {
			p.IsExternal = sym.Class == SymbolUndefined
			p.IsGlibc = sym.IsGlibc
			p.IsWeak = sym.Class == SymbolWeak
		} else {
			// Absent from the symbol table entirely: spec.md §7 treats
			// this as a dropped SymbolNotFoundError, but the prototype
			// itself is kept as a best-effort external stub candidate.
			p.IsExternal = true
		}
		out[i] = p
	}
	return out
}

// dataHeaderPattern matches a global-data line's declarator, e.g.
// `int g_counter;` or `char g_buffer[64];`, stripping any trailing
// initializer.
var dataHeaderPattern = regexp.MustCompile(`^(.+?)\s+(\**\w+(\[\d*\])*)\s*;?$`)

// PartitionDataLines is the data-declaration half of the Section
// Splitter/Type Harvester boundary (spec.md §4.2/§4.7), grounded on
// process_datalines: it drops lines the decompiler's own ELF header noise
// produces, filters out names absent from the symbol table's data/bss
// classes, and for everything else generates the pointer-alias
// declaration plus accessor #define that lets the wrapper bind the
// caller-supplied void* into a typed global.
func PartitionDataLines(lines []string, dataSyms map[string]bool) (dropped []string, rejected []string, decls []*DataDecl) {
	var statement strings.Builder
	flush := func() {
		if statement.Len() == 0 {
			return
		}
		line := strings.TrimSpace(statement.String())
		statement.Reset()
		if line == "" {
			return
		}
		if strings.Contains(line, "Elf") {
			dropped = append(dropped, line)
			return
		}
		header := strings.SplitN(line, "=", 2)[0]
		header = strings.TrimSpace(strings.TrimSuffix(header, ";"))

		m := dataHeaderPattern.FindStringSubmatch(header + ";")
		if m == nil {
			dropped = append(dropped, line)
			return
		}
		baseType := strings.TrimSpace(m[1])
		rawName := m[2]
		baseName := rawName
		if idx := strings.IndexByte(baseName, '['); idx >= 0 {
			baseName = baseName[:idx]
		}
		baseName = strings.TrimLeft(baseName, "*")

		if dataSyms != nil && !dataSyms[baseName] {
			rejected = append(rejected, baseName)
			return
		}

		arrayRank := strings.Count(rawName, "[")
		decl := &DataDecl{Name: baseName, BaseType: baseType, ArrayRank: arrayRank, OriginalLine: line}

		switch {
		case arrayRank >= 2:
			decl.IsTwoDim = true
			decl.PointerAliasLine = baseType + " *(p" + baseName + ");"
		case arrayRank == 1 && (!strings.Contains(baseType, "*") || strings.Contains(rawName, "[]")):
			decl.PointerAliasLine = baseType + " *(p" + baseName + ");"
			decl.AccessorDefine = "#define " + baseName + " (p" + baseName + ")"
		default:
			decl.PointerAliasLine = baseType + " *(p" + baseName + ");"
			decl.AccessorDefine = "#define " + baseName + " (*p" + baseName + ")"
		}
		decls = append(decls, decl)
	}

	for _, raw := range lines {
		statement.WriteString(raw)
		if strings.Contains(raw, ";") {
			flush()
		} else {
			statement.WriteString("\n")
		}
	}
	flush()
	return dropped, rejected, decls
}

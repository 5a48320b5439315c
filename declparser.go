package recomp

import (
	"regexp"
	"strings"
)

// primitiveTypes never need a Requires edge: they're always available.
var primitiveTypes = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"_Bool": true, "_BoolDef": true, "...": true,
}

var (
	fnPtrTypedefPattern = regexp.MustCompile(`^typedef\s+(.+?)\s*\(\s*\*\s*(\w+)\s*\)\s*\((.*)\)$`)
	forwardStructPattern = regexp.MustCompile(`^struct\s+(\w+)$`)
	forwardUnionPattern  = regexp.MustCompile(`^union\s+(\w+)$`)
	typedefStructPattern = regexp.MustCompile(`^typedef\s+(struct|union)\s*(\w*)\s*\{(.*)\}\s*(\w+)$`)
	bareStructPattern    = regexp.MustCompile(`^(struct|union)\s+(\w+)\s*\{(.*)\}$`)
	enumPattern          = regexp.MustCompile(`^(typedef\s+)?enum\s*(\w*)\s*\{(.*)\}\s*(\w*)$`)
	simpleTypedefPattern = regexp.MustCompile(`^typedef\s+(.+?)\s+(\**\w+)$`)
)

// ParseDeclarationStatement classifies one harvested, `;`-stripped
// declaration statement into a TypeDecl (spec.md §4.3's first stage:
// shape classification). Statements this dialect doesn't recognize are
// returned with ok=false so the caller can drop or log them.
func ParseDeclarationStatement(stmt string) (*TypeDecl, bool) {
	stmt = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	stmt = attributePattern.ReplaceAllString(stmt, "")
	if stmt == "" {
		return nil, false
	}

	if m := typedefStructPattern.FindStringSubmatch(collapseWhitespace(stmt)); m != nil {
		kind := KindTypedefStruct
		if m[1] == "union" {
			kind = KindTypedefUnion
		}
		decl := &TypeDecl{Kind: kind, Base: m[2], Names: []string{m[4]}}
		if decl.Base != "" {
			decl.Names = []string{m[2], m[4]}
		}
		requires, byValue := fieldDependencies(m[3])
		decl.Requires, decl.ByValue = requires, byValue
		decl.Line = stmt + ";"
		return decl, true
	}

	if m := bareStructPattern.FindStringSubmatch(collapseWhitespace(stmt)); m != nil {
		kind := KindStruct
		if m[1] == "union" {
			kind = KindUnion
		}
		decl := &TypeDecl{Kind: kind, Names: []string{m[2]}, Base: m[2]}
		requires, byValue := fieldDependencies(m[3])
		decl.Requires, decl.ByValue = requires, byValue
		decl.Line = stmt + ";"
		return decl, true
	}

	if m := enumPattern.FindStringSubmatch(collapseWhitespace(stmt)); m != nil {
		names := []string{}
		if m[2] != "" {
			names = append(names, m[2])
		}
		if m[4] != "" {
			names = append(names, m[4])
		}
		if len(names) == 0 {
			names = []string{"(anonymous enum)"}
		}
		return &TypeDecl{
			Kind:     KindEnum,
			Names:    names,
			Requires: map[string]bool{},
			ByValue:  map[string]bool{},
			Line:     stmt + ";",
		}, true
	}

	if m := fnPtrTypedefPattern.FindStringSubmatch(stmt); m != nil {
		retType := strings.TrimSpace(m[1])
		decl := &TypeDecl{Kind: KindFnPtrTypedef, Names: []string{m[2]}, Base: retType}
		requires := map[string]bool{}
		byValue := map[string]bool{}
		addTypeDependency(requires, byValue, retType)
		for _, arg := range strings.Split(m[3], ",") {
			addTypeDependency(requires, byValue, strings.TrimSpace(arg))
		}
		decl.Requires, decl.ByValue = requires, byValue
		decl.Line = stmt + ";"
		return decl, true
	}

	if m := forwardStructPattern.FindStringSubmatch(collapseWhitespace(stmt)); m != nil {
		return &TypeDecl{Kind: KindForwardStruct, Names: []string{m[1]}, Requires: map[string]bool{}, ByValue: map[string]bool{}, Line: stmt + ";"}, true
	}
	if m := forwardUnionPattern.FindStringSubmatch(collapseWhitespace(stmt)); m != nil {
		return &TypeDecl{Kind: KindForwardUnion, Names: []string{m[1]}, Requires: map[string]bool{}, ByValue: map[string]bool{}, Line: stmt + ";"}, true
	}

	if strings.HasPrefix(stmt, "typedef ") {
		if m := simpleTypedefPattern.FindStringSubmatch(collapseWhitespace(stmt)); m != nil {
			aliasedType := strings.TrimSpace(m[1])
			name := strings.TrimLeft(m[2], "*")
			decl := &TypeDecl{Kind: KindSimpleTypedef, Names: []string{name}, Base: aliasedType}
			requires := map[string]bool{}
			byValue := map[string]bool{}
			addTypeDependency(requires, byValue, aliasedType)
			decl.Requires, decl.ByValue = requires, byValue
			decl.Line = stmt + ";"
			return decl, true
		}
	}

	if strings.HasPrefix(stmt, "#define") {
		return &TypeDecl{Kind: KindPoundDefine, Names: nil, Line: stmt, Requires: map[string]bool{}, ByValue: map[string]bool{}}, true
	}

	return nil, false
}

var attributePattern = regexp.MustCompile(`__attribute__\(\(\w+(\(\w+\))?\)\)`)

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// fieldDependencies splits a struct/union body on `;` and records a
// Requires edge for each field's base type, marking it ByValue unless the
// field is a pointer (spec.md §4.3: "pointer fields need only a forward
// declaration; value fields need the complete type").
func fieldDependencies(body string) (requires, byValue map[string]bool) {
	requires = map[string]bool{}
	byValue = map[string]bool{}
	for _, field := range strings.Split(body, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		typ, _ := splitTypeAndLabel(field)
		addTypeDependency(requires, byValue, typ)
	}
	return requires, byValue
}

// splitTypeAndLabel separates a C declarator into its base type and
// declared name, mirroring getTypeAndLabel's heuristic: trailing `[N]`
// array suffixes are dropped from the label, and leading `*` pointer
// markers are moved from the label onto the type.
func splitTypeAndLabel(decl string) (typ, name string) {
	decl = strings.TrimSpace(decl)
	decl = strings.TrimSuffix(decl, ")")

	if idx := strings.IndexByte(decl, '('); idx >= 0 && strings.Contains(decl, "*") {
		// function-pointer field: `RET (*name)(args)` — treat RET as the type.
		return strings.TrimSpace(decl[:idx]), ""
	}

	fields := strings.Fields(decl)
	if len(fields) == 0 {
		return decl, ""
	}
	last := fields[len(fields)-1]
	typ = strings.TrimSpace(strings.Join(fields[:len(fields)-1], " "))

	for strings.HasPrefix(last, "*") {
		typ += " *"
		last = last[1:]
	}
	if idx := strings.IndexByte(last, '['); idx >= 0 {
		last = last[:idx]
	}
	return strings.TrimSpace(typ), last
}

// addTypeDependency records a Requires edge for typeExpr's base type name,
// and adds it to byValue unless the expression carries a pointer marker.
func addTypeDependency(requires, byValue map[string]bool, typeExpr string) {
	typeExpr = strings.TrimSpace(typeExpr)
	if typeExpr == "" || typeExpr == "void" {
		return
	}
	isPointer := strings.Contains(typeExpr, "*")
	base := strings.TrimRight(typeExpr, "* ")
	base = strings.TrimPrefix(base, "const ")
	base = strings.TrimPrefix(base, "struct ")
	base = strings.TrimPrefix(base, "union ")
	base = strings.TrimPrefix(base, "enum ")
	base = strings.TrimSpace(base)

	fields := strings.Fields(base)
	if len(fields) == 0 {
		return
	}
	name := fields[len(fields)-1]
	if name == "" || primitiveTypes[name] {
		return
	}
	requires[name] = true
	if !isPointer {
		byValue[name] = true
	}
}

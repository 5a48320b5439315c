package recomp

import (
	"regexp"
	"strings"
)

// TypedefStart/TypedefEnd are the sentinel lines the typedef-dump helper
// script prints around the decompiler's ordinal type listing (see
// get_ida_details.py's START/END banner), used to find the type dump
// region inside a raw decompiler log.
const (
	TypedefStart = "============================== START =============================="
	TypedefEnd   = "============================== END =============================="
)

// artifactSubstitutions is the ordered textual-substitution table the Type
// Harvester applies to every harvested declaration line, in application
// order. Order matters: the bool -> _Bool -> _BoolDef two-step keeps a
// literal "_Bool" already present in the dump from colliding with the
// rewrite of "bool".
var artifactSubstitutions = []struct{ from, to string }{
	{"__cdecl ", ""},
	{"__cdecl", ""},
	{"::", "__"},
	{"int64", "long"},
	{"int32", "int"},
	{"int16", "short"},
	{"int8", "char"},
	{"bool", "_Bool"},
	{"_Bool", "_BoolDef"},
	{"_DWORD", "int"},
	{"_WORD", "short"},
	{"_BYTE", "char"},
	{"_UNKNOWN", "void"},
}

// underscoredPrimitivePattern strips the `__` prefix from a whole-word
// `__long`/`__int`/`__short`/`__char`, wherever the word starts (line
// start, after a space, `(`, `*` or `,`), once the table above has run.
var underscoredPrimitivePattern = regexp.MustCompile(`\b__(long|int|short|char)\b`)

// NormalizeArtifacts applies the decompiler-artifact substitution table to
// a harvested type dump (spec.md §4.2). Lines mentioning a "<defs.h>"
// include directive are dropped entirely.
func NormalizeArtifacts(raw string) string {
	var out strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if strings.Contains(line, "<defs.h>") {
			continue
		}
		for _, sub := range artifactSubstitutions {
			line = strings.ReplaceAll(line, sub.from, sub.to)
		}
		line = underscoredPrimitivePattern.ReplaceAllString(line, "$1")
		out.WriteString(line)
		out.WriteString("\n")
	}
	return out.String()
}

// ExtractTypedefDump pulls the ordinal type listing out between the
// TypedefStart/TypedefEnd sentinels. ok is false if either sentinel is
// missing (the typedef helper never ran, or produced no output).
func ExtractTypedefDump(raw string) (dump string, ok bool) {
	startIdx := strings.Index(raw, TypedefStart)
	if startIdx < 0 {
		return "", false
	}
	body := raw[startIdx+len(TypedefStart):]
	endIdx := strings.Index(body, TypedefEnd)
	if endIdx < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:endIdx]), true
}

// SplitDeclarationStatements breaks a normalized type dump into individual
// `;`-terminated declaration statements, joining any line lacking a `;`
// onto the next (decompiler type dumps wrap long struct bodies across
// several physical lines).
func SplitDeclarationStatements(normalized string) []string {
	var stmts []string
	var current strings.Builder

	for _, line := range strings.Split(normalized, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)

		if strings.Contains(line, ";") {
			// A struct/union/enum body can itself contain many `;`
			// separated field declarations before the one that closes
			// the statement (the trailing `};`), so only flush once the
			// open-brace count is balanced.
			text := current.String()
			if strings.Count(text, "{") == strings.Count(text, "}") {
				stmts = append(stmts, strings.TrimSpace(text))
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		stmts = append(stmts, strings.TrimSpace(current.String()))
	}
	return stmts
}

var poundDefinePattern = regexp.MustCompile(`^\s*#define\b`)

// collapseCommentLines implements spec.md §4.2's "lines containing inline
// C-style comments are collapsed to a blank line" rule, grounded on
// get_typedef_mappings' `if "/*" in line and "*/" in line: structDump +=
// "\n"`: a self-contained block comment on its own line is blanked so a
// stray `;`/`{`/`}` inside it can't desynchronize
// SplitDeclarationStatements' brace-balance counting. #define lines are
// preserved verbatim even when they carry one.
func collapseCommentLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if poundDefinePattern.MatchString(line) {
			continue
		}
		if strings.Contains(line, "/*") && strings.Contains(line, "*/") {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// HarvestTypeDeclarations runs the full Type Harvester pipeline (spec.md
// §4.2): extract the typedef dump, normalize artifacts, and split into
// per-statement raw declaration text ready for the declaration parser.
// #define lines are preserved verbatim (they're not `;`-terminated C
// declarations) and returned separately from statement text.
func HarvestTypeDeclarations(raw string) (statements []string, poundDefines []string, ok bool) {
	dump, found := ExtractTypedefDump(raw)
	if !found {
		return nil, nil, false
	}
	normalized := collapseCommentLines(NormalizeArtifacts(dump))

	var bodyLines []string
	for _, line := range strings.Split(normalized, "\n") {
		if poundDefinePattern.MatchString(line) {
			poundDefines = append(poundDefines, strings.TrimSpace(line))
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	statements = SplitDeclarationStatements(strings.Join(bodyLines, "\n"))
	return statements, poundDefines, true
}

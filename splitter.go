package recomp

import (
	"regexp"
	"strings"
)

// Sentinel comment lines the decompiler driver prints around each region
// of its combined output (spec.md §4.5), grounded on prd_multidecomp_ida's
// IDA_STUB_START/IDA_DATA_START/IDA_DECOMP_START/IDA_SECTION_END markers.
const (
	sectionFunctionDeclarations = "// Function declarations"
	sectionDataDeclarations     = "// Data declarations"
	sectionBodyMarkerPrefix     = "//----- ("
	sectionEnd                  = "//-----"
)

// SplitSections is the Section Splitter component (spec.md §4.5): it
// separates a combined decompiler output blob into the three regions the
// rest of the pipeline consumes independently.
type SplitSections struct {
	Prototypes        []string          // raw "Function declarations" lines
	DataLines         []string          // raw "Data declarations" lines
	Bodies            map[string]string // body text keyed by the "(ADDR)" marker label
	GuessedPrototypes []string          // tentative "using guessed type" hints (spec.md §4.5)
}

// guessedTypePattern matches a decompiler comment of the form
// "// 0041F3A0: using guessed type int foo(int a);" and captures the
// declarator it's hinting at.
var guessedTypePattern = regexp.MustCompile(`^\s*//\s*[0-9A-Fa-f]+:\s*using guessed type\s+(.+?)\s*;?\s*$`)

func SplitSections(source string) *SplitSections {
	result := &SplitSections{Bodies: map[string]string{}}

	inPrototypes, inData := false, false
	currentBodyKey := ""
	var currentBody strings.Builder

	flushBody := func() {
		if currentBodyKey != "" {
			result.Bodies[currentBodyKey] = currentBody.String()
		}
		currentBodyKey = ""
		currentBody.Reset()
	}

	for _, line := range strings.Split(source, "\n") {
		if m := guessedTypePattern.FindStringSubmatch(line); m != nil {
			result.GuessedPrototypes = append(result.GuessedPrototypes, m[1]+";")
			continue
		}

		switch {
		case strings.Contains(line, sectionFunctionDeclarations):
			inPrototypes, inData = true, false
			continue
		case strings.Contains(line, sectionDataDeclarations):
			inPrototypes, inData = false, true
			continue
		case strings.Contains(line, sectionBodyMarkerPrefix):
			flushBody()
			inPrototypes, inData = false, false
			currentBodyKey = extractBodyLabel(line)
			continue
		case strings.Contains(line, sectionEnd):
			inPrototypes, inData = false, false
			flushBody()
			continue
		}

		switch {
		case inPrototypes:
			if strings.TrimSpace(line) != "" {
				result.Prototypes = append(result.Prototypes, line)
			}
		case inData:
			if strings.TrimSpace(line) != "" {
				result.DataLines = append(result.DataLines, line)
			}
		case currentBodyKey != "":
			currentBody.WriteString(line)
			currentBody.WriteString("\n")
		}
	}
	flushBody()

	return result
}

var bodyMarkerPattern = regexp.MustCompile(`\(([^()]*)\)`)

func extractBodyLabel(markerLine string) string {
	if m := bodyMarkerPattern.FindStringSubmatch(markerLine); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(markerLine)
}

// MatchBodyToFunction finds which split body blob belongs to the given
// function name. The decompiler driver is an external collaborator
// (spec.md §1) whose body marker only carries an address label, not the
// function name, so correlation has to go by content: the body whose text
// actually defines that identifier (its own `name(` signature) is the
// match. A signature line starts in the first column; indented call sites
// of name inside other bodies do not count.
func MatchBodyToFunction(bodies map[string]string, name string) (string, bool) {
	pattern := regexp.MustCompile(`(?m)^\S[^\n]*\b` + regexp.QuoteMeta(name) + `\s*\(`)
	for _, body := range bodies {
		if pattern.MatchString(body) {
			return body, true
		}
	}
	return "", false
}

// constDeclPattern matches a top-level `const TYPE name;` declaration
// inside a function body, the first half of the two-line
// declare-then-assign pattern hex-rays tends to emit for compile-time
// constants.
var constDeclPattern = regexp.MustCompile(`^const\s+.+?\s(\w+)\s*;\s*(//.*)?$`)

// FoldConstAssignments merges the "declare, then assign on the next
// reachable line" shape hex-rays emits for const locals into a single
// initialized declaration (e.g. `const int x; ... x = 5;` becomes
// `const int x = 5;`), dropping the now-redundant assignment statement.
// Grounded on genprog_decomp_ida.py's get_consts/handle_const_assigns.
func FoldConstAssignments(body string) string {
	lines := strings.Split(body, "\n")

	type constInfo struct {
		declLine   string
		lineIdx    int
		name       string
		comment    string
		assignLine string
		assignIdx  int
		value      string
	}
	consts := map[string]*constInfo{}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := constDeclPattern.FindStringSubmatch(trimmed); m != nil {
			consts[m[1]] = &constInfo{declLine: line, lineIdx: i, name: m[1], comment: m[2]}
			continue
		}
		for name, info := range consts {
			if info.assignLine != "" {
				continue
			}
			if strings.HasPrefix(trimmed, name+" =") || strings.HasPrefix(trimmed, name+"=") {
				parts := strings.SplitN(trimmed, "=", 2)
				if len(parts) == 2 {
					info.assignLine = line
					info.assignIdx = i
					info.value = strings.TrimSuffix(strings.TrimSpace(parts[1]), ";")
				}
			}
		}
	}

	drop := map[int]bool{}
	for _, info := range consts {
		if info.assignLine == "" {
			continue
		}
		declText := strings.TrimSuffix(strings.TrimSpace(info.declLine), ";")
		declText = strings.TrimSuffix(declText, info.comment)
		newLine := strings.TrimSpace(declText) + " = " + info.value + ";"
		if info.comment != "" {
			newLine += " " + info.comment
		}
		lines[info.lineIdx] = newLine
		drop[info.assignIdx] = true
	}

	var out []string
	for i, line := range lines {
		if drop[i] {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

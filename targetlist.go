package recomp

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// scopeEscape is a placeholder that stands in for a literal `::` inside a
// mangled C++ name while the function list is split on `:` (spec.md §4's
// target-list grammar: "fn1:fn2:...:fnN", which would otherwise be
// ambiguous with a qualified name like "Foo::bar").
const scopeEscape = "\x00SCOPE\x00"

// ParseTargetList reads the input target-list file (spec.md §3: one row
// per target, "target_name, binary_path, fn1:fn2:...:fnN"), building one
// TargetRecord skeleton per line. Blank lines are skipped.
func ParseTargetList(r io.Reader) ([]*TargetRecord, error) {
	var records []*TargetRecord
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parseTargetListLine(line)
		if err != nil {
			return nil, fmt.Errorf("target list line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseTargetListLine(line string) (*TargetRecord, error) {
	fields := strings.SplitN(line, ",", 3)
	if len(fields) != 3 {
		return nil, fmt.Errorf("expected 3 comma-separated fields, got %d: %q", len(fields), line)
	}

	name := strings.TrimSpace(fields[0])
	path := strings.TrimSpace(fields[1])
	funcsField := strings.ReplaceAll(strings.TrimSpace(fields[2]), "::", scopeEscape)

	var functions []TargetFunction
	for _, f := range strings.Split(funcsField, ":") {
		f = strings.ReplaceAll(strings.TrimSpace(f), scopeEscape, "::")
		if f == "" {
			continue
		}
		functions = append(functions, TargetFunction{Mangled: f})
	}
	if len(functions) == 0 {
		return nil, fmt.Errorf("no functions named for target %q", name)
	}

	return &TargetRecord{Name: name, Path: path, Functions: functions}, nil
}

package recomp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Decompiler is the primary external decompiler collaborator: given a
// binary and the set of functions to recover, it produces one combined C
// source blob (spec.md §4.4's "-Ohexrays:-nosave:<out>:<f1:f2:...fn> -A
// <binary>" invocation contract).
type Decompiler interface {
	Decompile(ctx context.Context, binaryPath string, functions []string) (string, error)
}

// SecondaryDecompiler is consulted only when the primary output contains
// the defect marker a hex-rays decompilation sometimes leaves behind
// (spec.md §4.4: an unresolved stack/register reference like `&dword_NNN`
// or `&unk_NNN`). It's a distinct external command because in practice
// it's a different invocation profile (a slower, more exhaustive pass),
// not a retry of the same one.
type SecondaryDecompiler interface {
	Decompile(ctx context.Context, binaryPath string, functions []string) (string, error)
}

// defectMarkerPattern matches the "&dword_NNN"/"&unk_NNN"-shaped leftover
// hex-rays sometimes emits when it can't resolve a stack reference,
// signalling that the secondary decompiler should be tried instead.
var defectMarkerPattern = regexp.MustCompile(`&(dword|unk|byte|word|qword)_[0-9A-Fa-f]+\b`)

// HasDefectMarker reports whether decompiled source carries the
// stack-reference defect marker spec.md §4.4 names.
func HasDefectMarker(source string) bool {
	return defectMarkerPattern.MatchString(source)
}

// ExecDecompiler shells out to a real hex-rays-style batch decompiler.
// Command is a template with three substitutions: %OUT% (the output file
// path the decompiler is told to write, minus its .c suffix), %FUNCS%
// (the colon-joined function list) and %BIN% (the binary path). Output is read back from
// <tmpdir>/<first-func>.c and removed once read, mirroring the original
// tool's /tmp/<func>.c handoff convention.
type ExecDecompiler struct {
	Command   []string // e.g. {"idat", "-Ohexrays:-nosave:%OUT%:%FUNCS%", "-A", "%BIN%"}
	OutputDir string   // defaults to os.TempDir()
}

func (d ExecDecompiler) Decompile(ctx context.Context, binaryPath string, functions []string) (string, error) {
	if len(functions) == 0 {
		return "", fmt.Errorf("decompile: empty function list")
	}
	if len(d.Command) == 0 {
		return "", EnvironmentError{Message: "decompiler command is not configured"}
	}

	outDir := d.OutputDir
	if outDir == "" {
		outDir = os.TempDir()
	}
	outBase := filepath.Join(outDir, strings.TrimSpace(functions[0]))
	funcs := strings.Join(functions, ":")

	args := make([]string, 0, len(d.Command))
	for _, a := range d.Command[1:] {
		a = strings.ReplaceAll(a, "%OUT%", outBase)
		a = strings.ReplaceAll(a, "%FUNCS%", funcs)
		a = strings.ReplaceAll(a, "%BIN%", binaryPath)
		args = append(args, a)
	}

	cmd := exec.CommandContext(ctx, d.Command[0], args...)
	if err := cmd.Run(); err != nil {
		return "", DecompilationError{
			Target:   binaryPath,
			Function: funcs,
			Reason:   err.Error(),
		}
	}

	outPath := outBase + ".c"
	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", DecompilationError{
			Target:   binaryPath,
			Function: funcs,
			Reason:   "decompiler produced no output file",
		}
	}
	os.Remove(outPath)
	return string(data), nil
}

// cacheKeyForFunctions builds the on-disk cache file name for a function
// group, stable regardless of slice identity.
func cacheKeyForFunctions(binaryPath string, functions []string) string {
	return fmt.Sprintf("%s__%s.c", filepath.Base(binaryPath), strings.Join(functions, "_"))
}

// CachingDecompiler wraps a Decompiler with the file-based cache spec.md
// §4.4 describes: "a non-empty cache file is treated as valid and the
// underlying decompiler is never invoked for that function group again."
type CachingDecompiler struct {
	Underlying Decompiler
	CacheDir   string
	Enabled    bool
}

func (c CachingDecompiler) Decompile(ctx context.Context, binaryPath string, functions []string) (string, error) {
	if !c.Enabled || c.CacheDir == "" {
		return c.Underlying.Decompile(ctx, binaryPath, functions)
	}

	cachePath := filepath.Join(c.CacheDir, cacheKeyForFunctions(binaryPath, functions))
	if info, err := os.Stat(cachePath); err == nil && info.Size() > 0 {
		data, err := os.ReadFile(cachePath)
		if err == nil {
			return string(data), nil
		}
	}

	out, err := c.Underlying.Decompile(ctx, binaryPath, functions)
	if err != nil {
		return "", err
	}
	if mkErr := os.MkdirAll(c.CacheDir, 0755); mkErr == nil {
		_ = os.WriteFile(cachePath, []byte(out), 0644)
	}
	return out, nil
}

// DecompileWithFallback runs the primary decompiler and, only if its
// output carries the defect marker, retries against the secondary
// decompiler and keeps whichever result lacks the marker (preferring the
// secondary's output if both still carry it, since it's the more
// exhaustive pass).
func DecompileWithFallback(ctx context.Context, primary Decompiler, secondary SecondaryDecompiler, binaryPath string, functions []string) (string, error) {
	out, err := primary.Decompile(ctx, binaryPath, functions)
	if err != nil {
		return "", err
	}
	if !HasDefectMarker(out) || secondary == nil {
		return out, nil
	}
	secondOut, secErr := secondary.Decompile(ctx, binaryPath, functions)
	if secErr != nil {
		return out, nil
	}
	return secondOut, nil
}

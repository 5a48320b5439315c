package recomp

import "fmt"

// Location names where in a source artifact a diagnostic applies: a line
// number within a harvested type dump, a decompiled function body, or a
// target-list row. File is empty when the location isn't file-backed (most
// of this pipeline's inputs are in-memory strings, not files on disk).
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// EnvironmentError is fatal and reported before any target is processed
// (spec.md §7: "decompiler binary missing").
type EnvironmentError struct {
	Message string
}

func (e EnvironmentError) Error() string {
	return fmt.Sprintf("environment error: %s", e.Message)
}

// DecompilationError records a per-function decompilation failure. It is
// never fatal: the owning target drops the function and continues.
type DecompilationError struct {
	Target   string
	Function string
	Reason   string
}

func (e DecompilationError) Error() string {
	return fmt.Sprintf("decompilation failed for %s::%s: %s", e.Target, e.Function, e.Reason)
}

// SymbolNotFoundError is raised when a prototype references an identifier
// absent from the Symbol Index after both heuristic rewrites have been
// tried. The offending line is dropped; this is a warning, not a fatal.
type SymbolNotFoundError struct {
	Symbol   string
	Location Location
}

func (e SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol not found: %q @ %s", e.Symbol, e.Location)
}

// TypeUnresolvableError names a declaration that could not be placed in a
// legal order because one of its required types is neither defined,
// forward-declared, nor definable. The declaration (and every transitive
// user of it) is commented out rather than dropped.
type TypeUnresolvableError struct {
	TypeName string
	Missing  string
	Location Location
}

func (e TypeUnresolvableError) Error() string {
	return fmt.Sprintf("missing definition for %q (needed by %q) @ %s", e.Missing, e.TypeName, e.Location)
}

// OrderingError is raised when the resolver leaves declarations unplaced:
// a pass made no placement progress and there was no placeholder left to
// synthesize, or the maxExtraPasses placeholder rounds were used up. A
// partial ordering is still emitted; this names what's left over.
type OrderingError struct {
	Remaining []string
}

func (e OrderingError) Error() string {
	return fmt.Sprintf("could not order %d declaration(s): %v", len(e.Remaining), e.Remaining)
}

// isFatal reports whether err should halt the whole run rather than being
// recorded against the current target and skipped (spec.md §7: "Nothing is
// retried; nothing is fatal except environment preconditions and the
// 'no targets succeeded' terminal check").
func isFatal(err error) bool {
	_, ok := err.(EnvironmentError)
	return ok
}

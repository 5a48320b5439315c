package recomp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// SymbolLister is the external `nm <binary>` collaborator (spec.md §6).
type SymbolLister interface {
	List(ctx context.Context, binaryPath string) (string, error)
}

// Demangler is the external `c++filt <name>` collaborator.
type Demangler interface {
	Demangle(ctx context.Context, mangled string) (string, error)
}

// ExecSymbolLister shells out to a real `nm`-compatible binary.
type ExecSymbolLister struct {
	Command string // defaults to "nm"
}

func (l ExecSymbolLister) List(ctx context.Context, binaryPath string) (string, error) {
	cmd := l.Command
	if cmd == "" {
		cmd = "nm"
	}
	out, err := exec.CommandContext(ctx, cmd, binaryPath).Output()
	if err != nil {
		return "", fmt.Errorf("running %s %s: %w", cmd, binaryPath, err)
	}
	return string(out), nil
}

// ExecDemangler shells out to a real `c++filt`-compatible binary.
type ExecDemangler struct {
	Command string // defaults to "c++filt"
}

func (d ExecDemangler) Demangle(ctx context.Context, mangled string) (string, error) {
	cmd := d.Command
	if cmd == "" {
		cmd = "c++filt"
	}
	out, err := exec.CommandContext(ctx, cmd, mangled).Output()
	if err != nil {
		return "", fmt.Errorf("running %s %s: %w", cmd, mangled, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// the nm class code -> SymbolClass. Upper or lowercase letters both count
// (case marks local vs global binding, irrelevant to our classification).
var symbolClassCodes = map[byte]SymbolClass{
	't': SymbolText, 'T': SymbolText,
	'd': SymbolData, 'D': SymbolData,
	'b': SymbolBss, 'B': SymbolBss,
	'u': SymbolUndefined, 'U': SymbolUndefined,
	'w': SymbolWeak, 'W': SymbolWeak,
	'v': SymbolWeak, 'V': SymbolWeak,
}

// minSymbolLineWidth is the minimum width for the fixed-column listing
// format (address[0:8] + space + class[9] + space + name[11:]) per
// spec.md §6.
const minSymbolLineWidth = 11

var hex8Pattern = regexp.MustCompile(`^[0-9a-fA-F]{8}$`)

// ParseSymbolListing turns raw `nm` output into Symbols, per spec.md §4.1.
// Lines shorter than the minimum column width are skipped with a warning
// (returned as part of the Warnings slice, never as an error). A blank
// address field (how nm prints undefined symbols) is read as address 0.
// A listing that looks 64-bit (address field isn't exactly 8 hex digits
// followed by a space) is fatal.
func ParseSymbolListing(raw string) (syms []Symbol, warnings []string, err error) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) < minSymbolLineWidth {
			if strings.TrimSpace(line) != "" {
				warnings = append(warnings, fmt.Sprintf("symbol listing line %d too short, skipped: %q", lineNo, line))
			}
			continue
		}

		addrField := line[0:8]
		classField := line[9]
		nameField := line[11:]

		blankAddr := strings.TrimSpace(addrField) == ""
		if line[8] != ' ' || (!blankAddr && !hex8Pattern.MatchString(addrField)) {
			return nil, warnings, EnvironmentError{
				Message: fmt.Sprintf("symbol listing line %d has a non-8-hex-digit address (64-bit layout?): %q", lineNo, line),
			}
		}

		var addr64 uint64
		if !blankAddr {
			var parseErr error
			addr64, parseErr = strconv.ParseUint(addrField, 16, 32)
			if parseErr != nil {
				return nil, warnings, EnvironmentError{
					Message: fmt.Sprintf("symbol listing line %d address %q is not valid hex", lineNo, addrField),
				}
			}
		}

		class, ok := symbolClassCodes[classField]
		if !ok {
			class = SymbolUndefined
		}

		mangled, isGlibc := stripVersionSuffix(nameField)

		syms = append(syms, Symbol{
			Mangled: mangled,
			Class:   class,
			IsGlibc: isGlibc,
			Address: uint32(addr64),
		})
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, warnings, fmt.Errorf("scanning symbol listing: %w", scanErr)
	}
	return syms, warnings, nil
}

// stripVersionSuffix strips a glibc symbol-versioning suffix
// (`memcpy@@GLIBC_2.14` -> `memcpy`) and reports whether one was present.
func stripVersionSuffix(name string) (string, bool) {
	if idx := strings.IndexByte(name, '@'); idx >= 0 {
		return name[:idx], true
	}
	return name, false
}

// SymbolIndex is the Symbol Index component (spec.md §4.1): a mapping from
// mangled -> (demangled short, demangled full) and its reverse, partitioned
// by symbol class.
type SymbolIndex struct {
	ByMangled        map[string]*Symbol
	ByDemangledShort map[string]*Symbol
	ByDemangledFull  map[string]*Symbol
	Buckets          map[SymbolClass][]*Symbol
}

func newSymbolIndex() *SymbolIndex {
	return &SymbolIndex{
		ByMangled:        make(map[string]*Symbol),
		ByDemangledShort: make(map[string]*Symbol),
		ByDemangledFull:  make(map[string]*Symbol),
		Buckets:          make(map[SymbolClass][]*Symbol),
	}
}

// BuildSymbolIndex parses a raw `nm` listing and demangles every symbol via
// the supplied Demangler, producing the forward/reverse lookup tables.
// Demangling failures are non-fatal: the symbol is kept with its mangled
// name standing in for both demangled forms, and a warning is recorded.
func BuildSymbolIndex(ctx context.Context, raw string, demangler Demangler) (*SymbolIndex, []string, error) {
	parsed, warnings, err := ParseSymbolListing(raw)
	if err != nil {
		return nil, warnings, err
	}

	idx := newSymbolIndex()
	for i := range parsed {
		sym := parsed[i]

		short, full := sym.Mangled, sym.Mangled
		if demangler != nil {
			if d, derr := demangler.Demangle(ctx, sym.Mangled); derr == nil && d != "" {
				full = d
				short = shortDemangledForm(d)
			} else if derr != nil {
				warnings = append(warnings, fmt.Sprintf("demangling %q: %v", sym.Mangled, derr))
			}
		}
		sym.DemangledShort = short
		sym.DemangledFull = full

		stored := sym
		idx.ByMangled[sym.Mangled] = &stored
		idx.ByDemangledShort[short] = &stored
		idx.ByDemangledFull[full] = &stored
		idx.Buckets[sym.Class] = append(idx.Buckets[sym.Class], &stored)
	}
	return idx, warnings, nil
}

// shortDemangledForm drops a trailing `(args...)` signature and any
// leading return-type tokens from a c++filt full demangling, leaving just
// the qualified function/variable name.
func shortDemangledForm(full string) string {
	name := full
	if idx := strings.IndexByte(name, '('); idx >= 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndex(name, " "); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSpace(name)
}

// ResolveAlias applies the two heuristic rewrites spec.md §7 names for a
// prototype symbol absent from the index: strip a trailing `_NN` suffix,
// or try a prepended underscore. It returns the resolved Symbol and the
// rewrite that worked, or ok=false if neither heuristic resolves.
var inlinedAliasSuffix = regexp.MustCompile(`^(\w+)(_\d+)$`)

func (idx *SymbolIndex) ResolveAlias(name string) (sym *Symbol, canonical string, ok bool) {
	if s, found := idx.ByMangled[name]; found {
		return s, name, true
	}
	if m := inlinedAliasSuffix.FindStringSubmatch(name); m != nil {
		if s, found := idx.ByMangled[m[1]]; found {
			return s, m[1], true
		}
	}
	alt := "_" + name
	if s, found := idx.ByMangled[alt]; found {
		return s, alt, true
	}
	return nil, "", false
}

// DataSymbolNames returns every mangled name classified as data or bss,
// used by the Section Splitter to tell global-variable references apart
// from function references.
func (idx *SymbolIndex) DataSymbolNames() map[string]bool {
	set := make(map[string]bool)
	for _, cls := range []SymbolClass{SymbolData, SymbolBss} {
		for _, s := range idx.Buckets[cls] {
			set[s.Mangled] = true
		}
	}
	return set
}

// FunctionSymbolNames returns every mangled name classified as text or
// undefined (i.e. a callable, whether locally defined or imported).
func (idx *SymbolIndex) FunctionSymbolNames() map[string]bool {
	set := make(map[string]bool)
	for _, cls := range []SymbolClass{SymbolText, SymbolUndefined} {
		for _, s := range idx.Buckets[cls] {
			set[s.Mangled] = true
		}
	}
	return set
}

// cachedIndex is the on-disk representation written beside the work
// directory (spec.md §4.1: "serialized to disk... cache invalidation:
// non-empty file implies valid").
type cachedIndex struct {
	Symbols []Symbol `json:"symbols"`
}

// LoadCachedSymbolIndex reads a previously serialized index. A missing or
// empty file is reported as a cache miss (ok=false), not an error.
func LoadCachedSymbolIndex(path string) (*SymbolIndex, bool, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	var cached cachedIndex
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, err
	}

	idx := newSymbolIndex()
	for i := range cached.Symbols {
		sym := cached.Symbols[i]
		idx.ByMangled[sym.Mangled] = &sym
		idx.ByDemangledShort[sym.DemangledShort] = &sym
		idx.ByDemangledFull[sym.DemangledFull] = &sym
		idx.Buckets[sym.Class] = append(idx.Buckets[sym.Class], &sym)
	}
	return idx, true, nil
}

// SaveSymbolIndex serializes the index beside the work directory so
// subsequent invocations can skip re-running `nm`/`c++filt`.
func SaveSymbolIndex(path string, idx *SymbolIndex) error {
	cached := cachedIndex{}
	for _, sym := range idx.ByMangled {
		cached.Symbols = append(cached.Symbols, *sym)
	}
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

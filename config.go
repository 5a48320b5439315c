package recomp

import "fmt"

// Config is a flat, typed settings map in the same shape the original
// tool's globals (`IDA_PATH`, `DETOUR_PREFIX`, the stdio/variadic symbol
// lists) collapsed into: one explicit object threaded through the pipeline
// instead of package-level state (Design Notes §9).
type Config map[string]*cfgVal

// NewConfig returns a Config primed with every default this pipeline needs
// to run against the original tool's fixed lists (spec.md §4.6), now
// overridable via the CLI's config-file loader (loadConfig in
// cmd/recompharness).
func NewConfig() *Config {
	m := make(Config)

	m.SetString("decompiler.primary_cmd", "")
	m.SetString("decompiler.secondary_cmd_template", "")
	m.SetString("decompiler.typedef_script", "get_ida_details.py")
	m.SetString("symbols.lister_cmd", "nm")
	m.SetString("symbols.demangler_cmd", "c++filt")

	m.SetString("cache.dir", ".prd_cache")
	m.SetBool("cache.enabled", true)

	m.SetString("detour.prefix", "det_")
	m.SetString("output.dir", "out")

	m.SetInt("resolver.max_extra_passes", 4)

	m.SetStringSlice("stubs.stdio_collisions", []string{
		"printf", "fprintf", "sprintf", "snprintf",
		"scanf", "fscanf", "sscanf",
		"fopen", "fclose", "fread", "fwrite", "fflush",
		"stdin", "stdout", "stderr",
		"puts", "fputs", "putchar", "getchar", "gets",
		"malloc", "free", "realloc", "calloc",
		"exit", "abort",
	})
	m.SetStringSlice("stubs.variadic_glibc", []string{
		"printf", "fprintf", "sprintf", "scanf", "sscanf", "fscanf",
	})

	return &m
}

type cfgValType int

const (
	cfgValTypeUndefined cfgValType = iota
	cfgValTypeBool
	cfgValTypeInt
	cfgValTypeString
	cfgValTypeStringSlice
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValTypeUndefined:   "undefined",
		cfgValTypeBool:        "bool",
		cfgValTypeInt:         "int",
		cfgValTypeString:      "string",
		cfgValTypeStringSlice: "[]string",
	}[vt]
}

type cfgVal struct {
	typ        cfgValType
	asBool     bool
	asInt      int
	asString   string
	asStrSlice []string
}

func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValTypeUndefined {
		panic(fmt.Sprintf("can't assign %s to type %s", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("can't retrieve %s from %s setting", vt, v.typ))
	}
}

func (c *Config) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValTypeBool)
	(*c)[path].asBool = v
}

func (c *Config) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValTypeInt)
	(*c)[path].asInt = v
}

func (c *Config) SetString(path string, v string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValTypeString)
	(*c)[path].asString = v
}

func (c *Config) SetStringSlice(path string, v []string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValTypeStringSlice)
	(*c)[path].asStrSlice = v
}

func (c *Config) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValTypeBool)
		return val.asBool
	}
	panic(fmt.Sprintf("bool setting %q does not exist", path))
}

func (c *Config) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValTypeInt)
		return val.asInt
	}
	panic(fmt.Sprintf("int setting %q does not exist", path))
}

func (c *Config) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValTypeString)
		return val.asString
	}
	panic(fmt.Sprintf("string setting %q does not exist", path))
}

func (c *Config) GetStringSlice(path string) []string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValTypeStringSlice)
		return val.asStrSlice
	}
	panic(fmt.Sprintf("[]string setting %q does not exist", path))
}

// StringSet returns a setting as a lookup set, used by the stub synthesizer
// to test symbol-name membership in the stdio-collision/variadic lists.
func (c *Config) StringSet(path string) map[string]bool {
	set := make(map[string]bool)
	for _, s := range c.GetStringSlice(path) {
		set[s] = true
	}
	return set
}

package recomp

import (
	"regexp"
	"sort"
)

// FunctionRequirements is the direct (non-transitive) set of external
// stub/data names one locally-decompiled function references, plus the
// local callees it invokes.
type FunctionRequirements struct {
	ExternalStubs []string
	ExternalData  []string
	LocalCallees  []string
}

// PropagationResult is the transitive closure computed for one target
// entry point set (spec.md §4.7).
type PropagationResult struct {
	Stubs []string
	Data  []string
}

// closeLocalCallees computes the set of every function transitively
// reachable from entry via LocalCallees edges, grounded on
// prd_multidecomp_ida.py's add_to_set worklist-closure routine.
func closeLocalCallees(entry []string, requirements map[string]FunctionRequirements) map[string]bool {
	reached := map[string]bool{}
	var stack []string
	stack = append(stack, entry...)

	for len(stack) > 0 {
		fn := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[fn] {
			continue
		}
		reached[fn] = true
		for _, callee := range requirements[fn].LocalCallees {
			if !reached[callee] {
				stack = append(stack, callee)
			}
		}
	}
	return reached
}

// PropagateDependencies computes the transitive closure of external
// stub/data requirements over a target's local-callee graph: the union of
// every function reachable from entry's direct requirements. This
// ordering — deterministic, sorted — is what wrapper.go uses for the
// detour entry function's parameter list (spec.md §4.7/§4.8).
func PropagateDependencies(entry []string, requirements map[string]FunctionRequirements) PropagationResult {
	reached := closeLocalCallees(entry, requirements)

	stubSet := map[string]bool{}
	dataSet := map[string]bool{}
	for fn := range reached {
		for _, s := range requirements[fn].ExternalStubs {
			stubSet[s] = true
		}
		for _, d := range requirements[fn].ExternalData {
			dataSet[d] = true
		}
	}

	result := PropagationResult{}
	for s := range stubSet {
		result.Stubs = append(result.Stubs, s)
	}
	for d := range dataSet {
		result.Data = append(result.Data, d)
	}
	sort.Strings(result.Stubs)
	sort.Strings(result.Data)
	return result
}

// BuildFunctionRequirements scans one decompiled function's body for the
// direct (non-transitive) external stubs, global data, and local callees it
// references, the per-function input PropagateDependencies closes over
// (spec.md §4.7). Matching is whole-identifier so a name occurring only as
// a substring of another identifier isn't mistaken for a reference.
func BuildFunctionRequirements(body string, stubs map[string]*StubEntry, localNames map[string]bool, data map[string]*DataDecl) FunctionRequirements {
	var req FunctionRequirements
	for name := range stubs {
		if referencesIdentifier(body, name) {
			req.ExternalStubs = append(req.ExternalStubs, name)
		}
	}
	for name := range localNames {
		if referencesIdentifier(body, name) {
			req.LocalCallees = append(req.LocalCallees, name)
		}
	}
	for name := range data {
		if referencesIdentifier(body, name) {
			req.ExternalData = append(req.ExternalData, name)
		}
	}
	sort.Strings(req.ExternalStubs)
	sort.Strings(req.ExternalData)
	sort.Strings(req.LocalCallees)
	return req
}

func referencesIdentifier(body, name string) bool {
	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	return pattern.MatchString(body)
}

// DedupDataDeclarations merges DataDecl entries sharing a Name across
// every target's declaration list into one canonical set, keyed by name,
// first-seen wins. This is the cross-target global-data dedup spec.md's
// Supplemented Features section adds on top of the original per-target
// behavior: two targets referencing the same global no longer each emit
// their own pointer-alias declaration for it.
func DedupDataDeclarations(perTarget [][]*DataDecl) []*DataDecl {
	seen := map[string]*DataDecl{}
	var order []string
	for _, decls := range perTarget {
		for _, d := range decls {
			if _, ok := seen[d.Name]; !ok {
				seen[d.Name] = d
				order = append(order, d.Name)
			}
		}
	}
	sort.Strings(order)
	out := make([]*DataDecl, 0, len(order))
	for _, name := range order {
		out = append(out, seen[name])
	}
	return out
}

package recomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropagateDependenciesTransitiveClosure(t *testing.T) {
	requirements := map[string]FunctionRequirements{
		"main": {ExternalStubs: []string{"exit"}, LocalCallees: []string{"helper"}},
		"helper": {ExternalStubs: []string{"printf"}, ExternalData: []string{"g_counter"},
			LocalCallees: []string{"deeper"}},
		"deeper": {ExternalStubs: []string{"memcpy"}},
	}

	result := PropagateDependencies([]string{"main"}, requirements)
	assert.Equal(t, []string{"exit", "memcpy", "printf"}, result.Stubs)
	assert.Equal(t, []string{"g_counter"}, result.Data)
}

func TestPropagateDependenciesNoCallees(t *testing.T) {
	requirements := map[string]FunctionRequirements{
		"lonely": {ExternalStubs: []string{"abort"}},
	}
	result := PropagateDependencies([]string{"lonely"}, requirements)
	assert.Equal(t, []string{"abort"}, result.Stubs)
	assert.Empty(t, result.Data)
}

func TestPropagateDependenciesSharedHelperReachesBothTargets(t *testing.T) {
	// Two distinct target entry points call the same local helper h,
	// which itself needs an external stub: both targets' propagated
	// closures must include it (spec.md §8 scenario 6).
	requirements := map[string]FunctionRequirements{
		"target_a": {LocalCallees: []string{"h"}},
		"target_b": {LocalCallees: []string{"h"}},
		"h":        {ExternalStubs: []string{"printf"}},
	}

	a := PropagateDependencies([]string{"target_a"}, requirements)
	b := PropagateDependencies([]string{"target_b"}, requirements)
	assert.Equal(t, []string{"printf"}, a.Stubs)
	assert.Equal(t, []string{"printf"}, b.Stubs)
}

func TestBuildFunctionRequirementsScansBody(t *testing.T) {
	body := `int worker(void) {
  printf("hi");
  helper();
  return g_counter;
}`
	stubs := map[string]*StubEntry{"printf": {}}
	local := map[string]bool{"helper": true}
	data := map[string]*DataDecl{"g_counter": {Name: "g_counter"}}

	req := BuildFunctionRequirements(body, stubs, local, data)
	assert.Equal(t, []string{"printf"}, req.ExternalStubs)
	assert.Equal(t, []string{"helper"}, req.LocalCallees)
	assert.Equal(t, []string{"g_counter"}, req.ExternalData)
}

func TestDedupDataDeclarationsAcrossTargets(t *testing.T) {
	a := []*DataDecl{{Name: "g_shared"}, {Name: "g_a_only"}}
	b := []*DataDecl{{Name: "g_shared"}, {Name: "g_b_only"}}

	deduped := DedupDataDeclarations([][]*DataDecl{a, b})
	names := make([]string, len(deduped))
	for i, d := range deduped {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"g_a_only", "g_b_only", "g_shared"}, names)
}

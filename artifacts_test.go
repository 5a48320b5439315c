package recomp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitMakefileIncludeMainTargetOffset(t *testing.T) {
	in := ArtifactInput{Target: "main", DetourPrefix: "det_", Stubs: []*StubEntry{
		{Proto: FunctionProto{Name: "printf"}},
	}}
	out := EmitMakefileInclude(in)
	assert.Contains(t, out, "BIN := main")
	assert.Contains(t, out, "DETOURS := det_main:main+7")
	assert.Contains(t, out, "DETOUR_DEFS := printf")
}

func TestEmitMakefileIncludeOrdinaryTarget(t *testing.T) {
	in := ArtifactInput{Target: "helper", DetourPrefix: "det_"}
	out := EmitMakefileInclude(in)
	assert.Contains(t, out, "DETOURS := det_helper:helper")
	assert.NotContains(t, out, "+7")
}

func TestEmitInfoJSONRoundTrips(t *testing.T) {
	in := ArtifactInput{Target: "helper", DetourPrefix: "det_", Stubs: []*StubEntry{
		{Proto: FunctionProto{Name: "memcpy"}},
	}}
	data, err := EmitInfoJSON(in)
	require.NoError(t, err)

	var decoded prdInfo
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "helper", decoded.BIN)
	assert.Equal(t, []string{"memcpy"}, decoded.FuncStubs)
	assert.Equal(t, []string{"det_helper:helper"}, decoded.Detours)
}

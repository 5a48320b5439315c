package recomp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunPipelineAllSucceed(t *testing.T) {
	rc := NewRunContext(NewConfig(), zap.NewNop())
	targets := []*TargetRecord{
		{Name: "a", Functions: []TargetFunction{{Mangled: "a"}}},
		{Name: "b", Functions: []TargetFunction{{Mangled: "b"}}},
	}

	result, err := RunPipeline(context.Background(), rc, targets, func(_ context.Context, _ *RunContext, _ *TargetRecord) error {
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)
}

func TestRunPipelinePartialFailureStillSucceeds(t *testing.T) {
	rc := NewRunContext(NewConfig(), zap.NewNop())
	targets := []*TargetRecord{
		{Name: "ok", Functions: []TargetFunction{{Mangled: "ok"}}},
		{Name: "bad", Functions: []TargetFunction{{Mangled: "bad"}}},
	}

	result, err := RunPipeline(context.Background(), rc, targets, func(_ context.Context, _ *RunContext, t *TargetRecord) error {
		if t.Name == "bad" {
			t.FailedFunctions = append(t.FailedFunctions, "bad")
			return DecompilationError{Target: "bad", Function: "bad", Reason: "no output"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 1)
	assert.Len(t, result.Failed, 1)
}

func TestRunPipelineFatalErrorAborts(t *testing.T) {
	rc := NewRunContext(NewConfig(), zap.NewNop())
	targets := []*TargetRecord{{Name: "a", Functions: []TargetFunction{{Mangled: "a"}}}}

	_, err := RunPipeline(context.Background(), rc, targets, func(_ context.Context, _ *RunContext, _ *TargetRecord) error {
		return EnvironmentError{Message: "decompiler binary missing"}
	})
	require.Error(t, err)
}

func TestProcessTargetAssemblesBodyStubsAndPropagation(t *testing.T) {
	source := `// Function declarations
int helper(int a);
int printf(const char *fmt, ...);
//-----
// Data declarations
int g_counter;
//-----
//----- (1000) ----------
int worker(int a)
{
  g_counter = helper(a);
  printf("done %d", g_counter);
  return g_counter;
}
//-----
//----- (2000) ----------
int helper(int a)
{
  return a + 1;
}
//-----
`
	nmListing := "00000000 T helper\n" +
		"00000000 U printf@GLIBC_2.0\n" +
		"00000000 D g_counter\n"
	idx, _, err := BuildSymbolIndex(context.Background(), nmListing, nil)
	require.NoError(t, err)

	rc := NewRunContext(NewConfig(), zap.NewNop())
	rc.SymbolIndex = idx
	rc.Decompiler = fakeDecompilerFunc(func() (string, error) { return source, nil })

	target := &TargetRecord{
		Name: "worker", Path: "/bin/target",
		Functions: []TargetFunction{{Mangled: "worker"}},
	}

	err = ProcessTarget(context.Background(), rc, target)
	require.NoError(t, err)

	require.Contains(t, target.LocalBodies, "worker")
	assert.Contains(t, target.LocalBodies["worker"], "x__printf(", "printf call site should be rewritten to the glibc trampoline name")
	assert.NotContains(t, target.LocalBodies["worker"], ` printf("done`, "the raw printf identifier must not survive call-site rewriting")

	require.Len(t, target.Detours, 1)
	meta := target.Detours[0]
	var stubNames []string
	for _, s := range meta.Stubs {
		stubNames = append(stubNames, s.Proto.Name)
	}
	assert.ElementsMatch(t, []string{"printf"}, stubNames, "helper is local and must not itself appear as a propagated stub")
	require.Len(t, meta.Data, 1)
	assert.Equal(t, "g_counter", meta.Data[0].Name)

	out := AssembleTranslationUnit(target, nil, "det_")
	assert.Contains(t, out, "// Decompiled Function Definitions")
	assert.Contains(t, out, "det_worker(")
	assert.Contains(t, out, "x__printf(")
}

func TestRunPipelineNoTargetsSucceededIsError(t *testing.T) {
	rc := NewRunContext(NewConfig(), zap.NewNop())
	targets := []*TargetRecord{{Name: "a", Functions: []TargetFunction{{Mangled: "a"}}}}

	_, err := RunPipeline(context.Background(), rc, targets, func(_ context.Context, _ *RunContext, t *TargetRecord) error {
		t.FailedFunctions = append(t.FailedFunctions, "a")
		return nil
	})
	require.Error(t, err)
}

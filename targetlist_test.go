package recomp

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargetListBasic(t *testing.T) {
	input := "main, /bin/target, main:helper:cleanup\n" +
		"worker, /bin/target, worker_loop\n"

	records, err := ParseTargetList(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "main", records[0].Name)
	assert.Equal(t, "/bin/target", records[0].Path)
	require.Len(t, records[0].Functions, 3)
	assert.Equal(t, "cleanup", records[0].Functions[2].Mangled)

	assert.Equal(t, "worker", records[1].Name)
	require.Len(t, records[1].Functions, 1)
}

func TestParseTargetListPreservesQualifiedNames(t *testing.T) {
	input := "obj, /bin/target, Foo::bar:Foo::baz\n"
	records, err := ParseTargetList(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Functions, 2)
	assert.Equal(t, "Foo::bar", records[0].Functions[0].Mangled)
	assert.Equal(t, "Foo::baz", records[0].Functions[1].Mangled)
}

func TestParseTargetListRejectsMalformedLine(t *testing.T) {
	_, err := ParseTargetList(strings.NewReader("not enough fields\n"))
	assert.Error(t, err)
}

func TestParseTargetListSkipsBlankLines(t *testing.T) {
	input := "\nmain, /bin/target, main\n\n"
	records, err := ParseTargetList(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestParseTargetListFunctionsMatchExactly(t *testing.T) {
	input := "worker, /bin/target, worker_loop:worker_cleanup\n"
	records, err := ParseTargetList(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)

	want := []TargetFunction{{Mangled: "worker_loop"}, {Mangled: "worker_cleanup"}}
	if diff := cmp.Diff(want, records[0].Functions); diff != "" {
		t.Errorf("functions mismatch (-want +got):\n%s", diff)
	}
}

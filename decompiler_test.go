package recomp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecompiler struct {
	out string
	err error
}

func (f fakeDecompiler) Decompile(_ context.Context, _ string, _ []string) (string, error) {
	return f.out, f.err
}

func TestHasDefectMarker(t *testing.T) {
	assert.True(t, HasDefectMarker("v0 = &dword_804A010;"))
	assert.True(t, HasDefectMarker("x = &unk_1234;"))
	assert.False(t, HasDefectMarker("v0 = 1 + 2;"))
}

func TestDecompileWithFallbackUsesSecondaryOnDefect(t *testing.T) {
	primary := fakeDecompiler{out: "x = &dword_1000;"}
	secondary := fakeDecompiler{out: "x = 42;"}

	out, err := DecompileWithFallback(context.Background(), primary, secondary, "bin", []string{"foo"})
	require.NoError(t, err)
	assert.Equal(t, "x = 42;", out)
}

func TestDecompileWithFallbackSkipsSecondaryWhenClean(t *testing.T) {
	primary := fakeDecompiler{out: "x = 42;"}
	secondary := fakeDecompiler{out: "should not be used"}

	out, err := DecompileWithFallback(context.Background(), primary, secondary, "bin", []string{"foo"})
	require.NoError(t, err)
	assert.Equal(t, "x = 42;", out)
}

func TestCachingDecompilerWritesAndReadsCache(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	underlying := fakeDecompilerFunc(func() (string, error) {
		calls++
		return "decompiled output", nil
	})
	cd := CachingDecompiler{Underlying: underlying, CacheDir: dir, Enabled: true}

	out1, err := cd.Decompile(context.Background(), "bin", []string{"main"})
	require.NoError(t, err)
	assert.Equal(t, "decompiled output", out1)
	assert.Equal(t, 1, calls)

	out2, err := cd.Decompile(context.Background(), "bin", []string{"main"})
	require.NoError(t, err)
	assert.Equal(t, "decompiled output", out2)
	assert.Equal(t, 1, calls, "second call should be served from cache")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, cacheKeyForFunctions("bin", []string{"main"}), entries[0].Name())
}

func TestCachingDecompilerIgnoresEmptyCacheFile(t *testing.T) {
	dir := t.TempDir()
	key := cacheKeyForFunctions("bin", []string{"main"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, key), nil, 0644))

	calls := 0
	underlying := fakeDecompilerFunc(func() (string, error) {
		calls++
		return "fresh output", nil
	})
	cd := CachingDecompiler{Underlying: underlying, CacheDir: dir, Enabled: true}

	out, err := cd.Decompile(context.Background(), "bin", []string{"main"})
	require.NoError(t, err)
	assert.Equal(t, "fresh output", out)
	assert.Equal(t, 1, calls)
}

type fakeDecompilerFunc func() (string, error)

func (f fakeDecompilerFunc) Decompile(_ context.Context, _ string, _ []string) (string, error) {
	return f()
}

package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNotFound(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.iso")
	_, err := Load(target)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateThenLoad(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.iso")
	desc := New(target, "https://example.com/file.iso", 6)
	require.NoError(t, desc.Create())

	loaded, err := Load(target)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/file.iso", loaded.URL)
	assert.Equal(t, 6, loaded.Parallel)
	assert.Equal(t, target+Suffix, loaded.Path())
	assert.Equal(t, target, loaded.Target())
}

func TestCreateIsExclusive(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.iso")
	require.NoError(t, New(target, "https://example.com/a", 2).Create())

	err := New(target, "https://example.com/b", 8).Create()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist))

	loaded, err := Load(target)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", loaded.URL)
	assert.Equal(t, 2, loaded.Parallel)
}

func TestLoadDefaultsParallel(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.iso")
	require.NoError(t, os.WriteFile(PathFor(target), []byte("url: https://example.com/file.iso\n"), 0644))

	loaded, err := Load(target)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Parallel)
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty file", content: ""},
		{name: "not yaml", content: "url: [unterminated\n"},
		{name: "missing url", content: "parallel: 4\n"},
		{name: "zero parallel", content: "url: https://example.com/x\nparallel: 0\n"},
		{name: "parallel above limit", content: "url: https://example.com/x\nparallel: 5000\n"},
		{name: "relative url", content: "url: /just/a/path\nparallel: 2\n"},
		{name: "unknown field", content: "url: https://example.com/x\nparallel: 2\nchecksum: abc\n"},
		{name: "wrong type", content: "url: https://example.com/x\nparallel: four\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := filepath.Join(t.TempDir(), "file.iso")
			require.NoError(t, os.WriteFile(PathFor(target), []byte(tt.content), 0644))

			_, err := Load(target)
			require.Error(t, err)
			var corrupt *CorruptError
			require.True(t, errors.As(err, &corrupt), "expected CorruptError, got %T", err)
			assert.Equal(t, PathFor(target), corrupt.Path)
			assert.False(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestDelete(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.iso")
	desc := New(target, "https://example.com/file.iso", 1)
	require.NoError(t, desc.Create())
	require.NoError(t, desc.Delete())

	_, err := Load(target)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, desc.Delete())
}

func TestTargetFor(t *testing.T) {
	assert.Equal(t, "dir/file.iso", TargetFor("dir/file.iso.yaml"))
	assert.Equal(t, "file.iso", TargetFor("file.iso"))
}

func TestRemoveCorrupt(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.iso")
	require.NoError(t, os.WriteFile(PathFor(target), []byte("::not yaml"), 0644))

	removed, err := Remove(target)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = Remove(target)
	require.NoError(t, err)
	assert.False(t, removed)
}

package partfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	tests := []struct {
		name   string
		target string
		index  int
		want   string
	}{
		{name: "double extension", target: "archive.tar.gz", index: 2, want: "archive.tar.gz.part2"},
		{name: "no extension", target: "download", index: 0, want: "download.part0"},
		{name: "nested path", target: filepath.Join("a", "b", "file.iso"), index: 11, want: filepath.Join("a", "b", "file.iso.part11")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Path(tt.target, tt.index))
		})
	}
}

func TestCreateTruncates(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(Path(target, 1), []byte("stale bytes"), 0644))

	f, err := Create(target, 1)
	require.NoError(t, err)
	_, err = f.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(Path(target, 1))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestOpenOrCreateAppends(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.bin")

	f, existing, err := OpenOrCreate(target, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), existing)
	_, err = f.Write([]byte("hello "))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, existing, err = OpenOrCreate(target, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), existing)
	_, err = f.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(Path(target, 0))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestSize(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.bin")

	n, err := Size(target, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, os.WriteFile(Path(target, 3), make([]byte, 42), 0644))
	n, err = Size(target, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestDeleteTwiceFails(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.bin")
	f, err := Create(target, 0)
	require.NoError(t, err)

	require.NoError(t, f.Delete())
	_, err = os.Stat(Path(target, 0))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	err = f.Delete()
	assert.ErrorIs(t, err, ErrDeleted)

	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrDeleted)
}

func TestOpenReadsContents(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(Path(target, 4), []byte("segment four"), 0644))

	f, err := Open(target, 4)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "segment four", string(data))
	assert.Equal(t, 4, f.Index())
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.bin")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(Path(target, i), []byte("x"), 0644))
	}
	keep := []string{"file.bin", "file.bin.partial", "other.bin.part0"}
	for _, name := range keep {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	removed, err := Clean(target)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	for _, name := range keep {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanq16/rget/internal/partfile"
	"github.com/tanq16/rget/internal/state"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func fileServer(t *testing.T, content []byte) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRootDownloads(t *testing.T) {
	content := []byte(strings.Repeat("rget test payload ", 200))
	srv := fileServer(t, content)
	target := filepath.Join(t.TempDir(), "payload.txt")

	out, err := runCommand(t, srv.URL+"/payload.txt", "-o", target, "-n", "3", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "Downloaded "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.NoFileExists(t, state.PathFor(target))
}

func TestRootRejectsInvalidFlags(t *testing.T) {
	_, err := runCommand(t, "http://example.com/file", "-n", "0")
	assert.ErrorContains(t, err, "parallel must be between 1 and 64")

	_, err = runCommand(t, "http://example.com/file", "--limit-rate", "fast")
	assert.ErrorContains(t, err, "invalid rate limit")
}

func TestRootRejectsInvalidEnv(t *testing.T) {
	t.Setenv("RGET_PARALLEL", "100")
	_, err := runCommand(t, "http://example.com/file")
	assert.Error(t, err)
}

func TestRootMissingSource(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nothing.bin")
	_, err := runCommand(t, "-o", target, "-q")
	assert.ErrorContains(t, err, "no download descriptor found")
}

func TestRootReportsResumableFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "1000")
			return
		}
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	target := filepath.Join(t.TempDir(), "file.bin")

	out, err := runCommand(t, srv.URL, "-o", target, "-n", "2", "-q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 segments failed")
	assert.Contains(t, out, "run again to resume")
	assert.FileExists(t, state.PathFor(target))
}

func TestRootReportsInconsistentParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
	}))
	t.Cleanup(srv.Close)
	target := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, state.New(target, srv.URL, 2).Create())
	require.NoError(t, os.WriteFile(partfile.Path(target, 0), bytes.Repeat([]byte("x"), 600), 0644))

	out, err := runCommand(t, state.PathFor(target), "-q")
	require.Error(t, err)
	assert.Contains(t, out, "rget clean "+target)
	assert.NotContains(t, out, "run again to resume")
	assert.FileExists(t, state.PathFor(target))
}

func TestClean(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, state.New(target, "http://example.com/file.bin", 3).Create())
	for i := range 3 {
		require.NoError(t, os.WriteFile(partfile.Path(target, i), []byte("x"), 0644))
	}
	unrelated := target + ".partial"
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0644))

	out, err := runCommand(t, "clean", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 4 temporary files")
	assert.NoFileExists(t, state.PathFor(target))
	for i := range 3 {
		assert.NoFileExists(t, partfile.Path(target, i))
	}
	assert.FileExists(t, unrelated)

	out, err = runCommand(t, "clean", state.PathFor(target))
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to clean up")
}

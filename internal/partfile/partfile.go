// Package partfile manages the on-disk staging files that hold one segment's
// bytes until they are merged into the target.
//
// A part file lives next to its target and is named by appending ".part<N>"
// to the target path, so "archive.tar.gz" segment 2 is "archive.tar.gz.part2".
// The name is recoverable on resume from the target path and index alone.
package partfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const suffix = ".part"

// ErrDeleted is returned when a part file is used after Delete.
var ErrDeleted = errors.New("partfile: already deleted")

// File is one segment's staging file. It is owned by exactly one goroutine at a
// time: its worker while fetching, then the merger.
type File struct {
	file    *os.File
	path    string
	index   int
	deleted bool
}

// Path returns the part file name for segment index of target.
func Path(target string, index int) string {
	return target + suffix + strconv.Itoa(index)
}

// Create truncates or creates the part file for a fresh segment.
func Create(target string, index int) (*File, error) {
	path := Path(target, index)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating part file: %w", err)
	}
	return &File{file: f, path: path, index: index}, nil
}

// OpenOrCreate opens the part file for append, creating it empty when absent,
// and reports how many bytes it already holds.
func OpenOrCreate(target string, index int) (*File, int64, error) {
	path := Path(target, index)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("error opening part file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("error getting part file info: %w", err)
	}
	return &File{file: f, path: path, index: index}, info.Size(), nil
}

// Open opens an existing part file for reading.
func Open(target string, index int) (*File, error) {
	path := Path(target, index)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening part file: %w", err)
	}
	return &File{file: f, path: path, index: index}, nil
}

// Size reports the current length of segment index's part file, or 0 when it
// does not exist.
func Size(target string, index int) (int64, error) {
	info, err := os.Stat(Path(target, index))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error getting part file info: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("part file %s is a directory", info.Name())
	}
	return info.Size(), nil
}

func (f *File) Path() string { return f.path }
func (f *File) Index() int   { return f.index }

func (f *File) Write(p []byte) (int, error) {
	if f.deleted {
		return 0, ErrDeleted
	}
	return f.file.Write(p)
}

func (f *File) Read(p []byte) (int, error) {
	if f.deleted {
		return 0, ErrDeleted
	}
	return f.file.Read(p)
}

// WriteTo lets io.Copy hand the descriptor straight to the destination.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	if f.deleted {
		return 0, ErrDeleted
	}
	return io.Copy(w, f.file)
}

func (f *File) Sync() error {
	if f.deleted {
		return ErrDeleted
	}
	return f.file.Sync()
}

func (f *File) Close() error {
	if f.deleted {
		return nil
	}
	return f.file.Close()
}

// Delete closes and removes the part file. Ownership moves exactly once, so a
// second Delete is an error rather than a no-op.
func (f *File) Delete() error {
	if f.deleted {
		return fmt.Errorf("%s: %w", f.path, ErrDeleted)
	}
	f.deleted = true
	f.file.Close()
	if err := os.Remove(f.path); err != nil {
		return fmt.Errorf("error removing part file: %w", err)
	}
	return nil
}

// Remove deletes segment index's part file if present.
func Remove(target string, index int) error {
	err := os.Remove(Path(target, index))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing part file: %w", err)
	}
	return nil
}

// Clean removes every part file belonging to target and returns how many were
// removed.
func Clean(target string) (int, error) {
	dir := filepath.Dir(target)
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	partPrefix := filepath.Base(target) + suffix
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), partPrefix) {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(file.Name(), partPrefix)); err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(dir, file.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

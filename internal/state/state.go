// Package state persists the descriptor of an in-progress download so that a
// later invocation can resume it.
//
// The descriptor lives at the target path plus Suffix. While it exists the
// download is incomplete and resumable; it is removed once the merge succeeds.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tanq16/rget/internal/utils"
)

const Suffix = ".yaml"

// ErrNotFound is returned by Load when no descriptor exists for the target.
var ErrNotFound = errors.New("state: no download descriptor found")

// CorruptError reports a descriptor that exists but cannot be used.
type CorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("invalid data in download descriptor %s: %s", e.Path, e.Reason)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Descriptor identifies an in-progress download. The target path is implied by
// the descriptor's own location and is not serialized.
type Descriptor struct {
	URL      string `yaml:"url"`
	Parallel int    `yaml:"parallel"`

	path string
}

// New returns an unsaved descriptor for target.
func New(target, rawURL string, parallel int) *Descriptor {
	return &Descriptor{URL: rawURL, Parallel: parallel, path: PathFor(target)}
}

// PathFor returns the descriptor location for target.
func PathFor(target string) string {
	return target + Suffix
}

// TargetFor strips the descriptor suffix from a descriptor path.
func TargetFor(descriptorPath string) string {
	return strings.TrimSuffix(descriptorPath, Suffix)
}

func (d *Descriptor) Path() string   { return d.path }
func (d *Descriptor) Target() string { return TargetFor(d.path) }

// Load reads the descriptor belonging to target.
func Load(target string) (*Descriptor, error) {
	path := PathFor(target)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading download descriptor: %w", err)
	}

	desc := Descriptor{Parallel: 1}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &CorruptError{Path: path, Reason: "empty file", Err: err}
		}
		return nil, &CorruptError{Path: path, Reason: "unparseable", Err: err}
	}
	if err := desc.validate(); err != nil {
		return nil, &CorruptError{Path: path, Reason: err.Error(), Err: err}
	}
	desc.path = path
	return &desc, nil
}

// Create writes a fresh descriptor. It refuses to replace an existing one so a
// concurrent run's state is never silently overwritten.
func (d *Descriptor) Create() error {
	if err := d.validate(); err != nil {
		return fmt.Errorf("refusing to write descriptor: %w", err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("error encoding download descriptor: %w", err)
	}
	f, err := os.OpenFile(d.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("error creating download descriptor: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(d.path)
		return fmt.Errorf("error writing download descriptor: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(d.path)
		return fmt.Errorf("error syncing download descriptor: %w", err)
	}
	return f.Close()
}

// Delete removes the descriptor file.
func (d *Descriptor) Delete() error {
	if err := os.Remove(d.path); err != nil {
		return fmt.Errorf("error removing download descriptor: %w", err)
	}
	return nil
}

// Remove deletes target's descriptor without parsing it, so corrupt ones can
// be cleared too. It reports whether a file was removed.
func Remove(target string) (bool, error) {
	err := os.Remove(PathFor(target))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error removing download descriptor: %w", err)
	}
	return true, nil
}

func (d *Descriptor) validate() error {
	if err := utils.ValidateParallel(d.Parallel); err != nil {
		return err
	}
	if d.URL == "" {
		return errors.New("missing url")
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("url %q is not absolute", d.URL)
	}
	return nil
}

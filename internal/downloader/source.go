package downloader

import (
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/tanq16/rget/internal/state"
)

// Source is a resolved input: the URL to fetch, if one was given, and the
// target path the download is assembled into.
type Source struct {
	URL    string
	Target string
}

// ResolveSource interprets input as either a download URL or the path of an
// existing descriptor. output overrides the derived target path.
func ResolveSource(input, output string) (Source, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		if output == "" {
			return Source{}, ErrMissingSource
		}
		return Source{Target: output}, nil
	}
	if u, err := url.Parse(input); err == nil && u.Scheme != "" && u.Scheme != "file" && u.Host != "" {
		if u.Scheme != "http" && u.Scheme != "https" {
			return Source{}, errors.New("unsupported scheme: " + u.Scheme)
		}
		target := output
		if target == "" {
			target = nameFromURL(u)
		}
		return Source{URL: u.String(), Target: target}, nil
	}
	target := output
	if target == "" {
		target = state.TargetFor(strings.TrimPrefix(input, "file://"))
	}
	return Source{Target: target}, nil
}

func nameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "download"
	}
	return name
}

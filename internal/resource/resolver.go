// Package resource maps request paths to files under the resource root.
package resource

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Status is the outcome of a resolution.
type Status int

const (
	Found Status = iota
	NotFound
)

func (s Status) String() string {
	if s == Found {
		return "found"
	}
	return "not found"
}

// Resolution names the file to serve and whether it was the one requested.
type Resolution struct {
	Path   string
	Status Status
}

// Resolver resolves request paths beneath a fixed root. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	root         string
	realRoot     string
	defaultPage  string
	notFoundPath string
}

// NewResolver returns a Resolver for root. defaultPage is served for "/" and
// notFoundPage whenever the requested file does not exist; both are slash
// separated paths relative to root.
func NewResolver(root, defaultPage, notFoundPage string) (*Resolver, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("resource root %q is not absolute", root)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resource root: %w", err)
	}
	if defaultPage == "" || notFoundPage == "" {
		return nil, errors.New("default and not found pages must be set")
	}

	return &Resolver{
		root:         filepath.Clean(root),
		realRoot:     realRoot,
		defaultPage:  path.Clean("/" + defaultPage),
		notFoundPath: filepath.Join(root, filepath.FromSlash(path.Clean("/"+notFoundPage))),
	}, nil
}

// Root returns the configured resource root.
func (r *Resolver) Root() string { return r.root }

// NotFoundPath returns the sentinel page served for missing resources.
func (r *Resolver) NotFoundPath() string { return r.notFoundPath }

// Resolve maps requestPath to a file. The request path is percent-decoded,
// NFC-normalized and cleaned as if rooted at "/", so ".." segments cannot
// climb above root. Paths that still leave root through a symlink, name a
// directory or do not exist resolve to the sentinel page with NotFound.
func (r *Resolver) Resolve(requestPath string) Resolution {
	if p, ok := r.locate(requestPath); ok {
		return Resolution{Path: p, Status: Found}
	}
	return Resolution{Path: r.notFoundPath, Status: NotFound}
}

func (r *Resolver) locate(requestPath string) (string, bool) {
	if i := strings.IndexAny(requestPath, "?#"); i >= 0 {
		requestPath = requestPath[:i]
	}
	decoded, err := url.PathUnescape(requestPath)
	if err != nil || strings.IndexByte(decoded, 0) >= 0 {
		return "", false
	}

	clean := path.Clean("/" + norm.NFC.String(decoded))
	if clean == "/" {
		clean = r.defaultPage
	}

	full := filepath.Join(r.root, filepath.FromSlash(clean))
	if !within(r.root, full) {
		return "", false
	}

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil || !within(r.realRoot, resolved) {
		return "", false
	}
	fi, err := os.Stat(resolved)
	if err != nil || !fi.Mode().IsRegular() {
		return "", false
	}
	return resolved, true
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

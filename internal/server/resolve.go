// resolve.go - Maps raw request paths onto locations inside the root.
package server

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrMalformedPath is returned when the path cannot be percent-decoded
	// or does not decode to valid UTF-8.
	ErrMalformedPath = errors.New("malformed request path")
	// ErrForbiddenPath is returned when the path contains a denied sequence
	// or would resolve outside the root directory.
	ErrForbiddenPath = errors.New("forbidden request path")
)

// forbiddenSequences may never appear in a file name.
var forbiddenSequences = []string{"\x00", "..", "/"}

// Target is the outcome of resolving a request path.
type Target struct {
	// Index is true for "/", which always means the index document.
	Index bool
	// Name is the decoded file name inside the upload folder. Empty for the index.
	Name string
	// Path is the absolute, cleaned filesystem location.
	Path string
}

// Resolver turns request paths into filesystem paths rooted under Root.
// It never touches the filesystem.
type Resolver struct {
	root      string
	uploadDir string
	indexFile string
}

// NewResolver returns a resolver for the given root directory, upload
// subfolder and index document name. The root is made absolute.
func NewResolver(root, uploadDir, indexFile string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	return &Resolver{
		root:      filepath.Clean(abs),
		uploadDir: uploadDir,
		indexFile: indexFile,
	}, nil
}

// Root returns the absolute root directory.
func (r *Resolver) Root() string { return r.root }

// UploadPath returns the absolute upload folder.
func (r *Resolver) UploadPath() string { return filepath.Join(r.root, r.uploadDir) }

// IndexPath returns the absolute index document location.
func (r *Resolver) IndexPath() string { return filepath.Join(r.root, r.indexFile) }

// Resolve decodes an escaped URL path (as returned by url.URL.EscapedPath)
// and maps it to a Target.
func (r *Resolver) Resolve(escapedPath string) (Target, error) {
	p, err := url.PathUnescape(escapedPath)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrMalformedPath, err)
	}
	if !utf8.ValidString(p) {
		return Target{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformedPath)
	}

	if p == "/" || p == "" {
		return Target{Index: true, Path: r.IndexPath()}, nil
	}

	name := strings.TrimPrefix(p, "/")
	for _, seq := range forbiddenSequences {
		if strings.Contains(name, seq) {
			return Target{}, ErrForbiddenPath
		}
	}

	full, err := ensureWithinRoot(r.root, filepath.Join(r.UploadPath(), name))
	if err != nil {
		return Target{}, ErrForbiddenPath
	}
	return Target{Name: name, Path: full}, nil
}

func ensureWithinRoot(cleanRoot, p string) (string, error) {
	cleanP := filepath.Clean(p)
	rel, err := filepath.Rel(cleanRoot, cleanP)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root")
	}
	return cleanP, nil
}

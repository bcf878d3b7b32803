// Package fsutil confines client-supplied virtual paths to a sandbox root.
package fsutil

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrPathTraversal reports a virtual path that resolves outside the root.
var ErrPathTraversal = errors.New("path escapes root")

// ResolveWithinRoot maps a client virtual path to a real path under root.
// Both separators are accepted in userPath; the result is cleaned and must be
// root itself or a descendant of it, including after following existing symlinks.
func ResolveWithinRoot(root, userPath string) (string, error) {
	rootAbs, err := cleanRoot(root)
	if err != nil {
		return "", err
	}

	p := strings.ReplaceAll(userPath, `\`, "/")
	p = strings.TrimLeft(p, "/")
	joined := filepath.Clean(filepath.Join(rootAbs, filepath.FromSlash(p)))

	if !isWithin(rootAbs, joined) {
		return "", ErrPathTraversal
	}

	// Deny symlink traversal: if any existing component under root is a symlink, reject.
	if hasSymlinkComponent(rootAbs, joined) {
		return "", ErrPathTraversal
	}

	existing := nearestExisting(joined)
	if existing != "" {
		resolved, err := filepath.EvalSymlinks(existing)
		if err != nil {
			return "", err
		}
		realRoot, err := filepath.EvalSymlinks(rootAbs)
		if err != nil {
			realRoot = rootAbs
		}
		if !isWithin(filepath.Clean(realRoot), filepath.Clean(resolved)) {
			return "", ErrPathTraversal
		}
	}

	return joined, nil
}

// Relativize is the inverse of ResolveWithinRoot: it turns a real path under
// root into a slash-separated virtual path starting with "/".
func Relativize(root, realPath string) (string, error) {
	rootAbs, err := cleanRoot(root)
	if err != nil {
		return "", err
	}
	p, err := filepath.Abs(realPath)
	if err != nil {
		return "", err
	}
	p = filepath.Clean(p)
	if !isWithin(rootAbs, p) {
		return "", ErrPathTraversal
	}
	rel, err := filepath.Rel(rootAbs, p)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "/", nil
	}
	return path.Clean("/" + filepath.ToSlash(rel)), nil
}

// IsRoot reports whether realPath is the sandbox root itself.
func IsRoot(root, realPath string) bool {
	rootAbs, err := cleanRoot(root)
	if err != nil {
		return false
	}
	return filepath.Clean(realPath) == rootAbs
}

func cleanRoot(root string) (string, error) {
	if root == "" {
		return "", errors.New("root is required")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	return filepath.Clean(rootAbs), nil
}

func hasSymlinkComponent(rootAbs, fullPath string) bool {
	rel, err := filepath.Rel(rootAbs, fullPath)
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	cur := rootAbs
	for _, p := range strings.Split(rel, string(filepath.Separator)) {
		if p == "" || p == "." {
			continue
		}
		cur = filepath.Join(cur, p)
		st, err := os.Lstat(cur)
		if err != nil {
			// Component doesn't exist (yet): no symlink to traverse.
			return false
		}
		if st.Mode()&os.ModeSymlink != 0 {
			return true
		}
	}
	return false
}

// isWithin compares cleaned paths on a separator boundary so that
// "/data2" is not treated as a child of "/data".
func isWithin(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)
	if root == candidate {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(candidate, root)
}

func nearestExisting(p string) string {
	cur := p
	for {
		_, err := os.Lstat(cur)
		if err == nil {
			return cur
		}
		if !os.IsNotExist(err) {
			return ""
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return ""
		}
		cur = parent
	}
}

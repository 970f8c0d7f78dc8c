package utils

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	gwerrors "github.com/objectfs/gateway/pkg/errors"
)

// Normalize converts an untrusted client path into canonical relative form:
// forward slashes only, surrounding whitespace trimmed, leading slashes
// stripped. An empty result denotes the storage root.
//
// Normalize does not reject traversal; Resolve and ObjectKey do.
//
// Example usage:
//
//	Normalize(`\docs\a.txt`)  // "docs/a.txt"
//	Normalize("  /  ")        // ""
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	clean := strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	return strings.TrimLeft(clean, "/")
}

// hasTraversal reports whether any segment of p is "..".
func hasTraversal(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// isAbsolute reports whether a raw client path tries to override the root.
func isAbsolute(p string) bool {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	return strings.HasPrefix(p, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != ""
}

// Resolve joins an untrusted path onto root and returns the absolute target.
// Both root and target are canonicalized with symlinks evaluated, so the
// containment check cannot be defeated by "..", absolute overrides or links
// pointing outside the root. Any violation is PermissionDenied.
//
// Example usage:
//
//	full, err := Resolve("/var/lib/gateway", userPath)
//	if err != nil {
//		return err // PermissionDenied
//	}
func Resolve(root, p string) (string, error) {
	if root == "" {
		return "", gwerrors.New(gwerrors.KindInternal, "storage root is not configured")
	}

	raw := strings.ReplaceAll(p, `\`, "/")
	if isAbsolute(raw) || hasTraversal(raw) {
		return "", gwerrors.PermissionDenied(p, "path traversal detected")
	}

	realRoot, err := canonicalize(root)
	if err != nil {
		return "", gwerrors.Wrap(err, "resolve", "")
	}

	rel := Normalize(raw)
	target, err := canonicalize(filepath.Join(realRoot, filepath.FromSlash(rel)))
	if err != nil {
		return "", gwerrors.Wrap(err, "resolve", rel)
	}

	if !within(realRoot, target) {
		return "", gwerrors.PermissionDenied(p, "path escapes storage root")
	}
	return target, nil
}

// ObjectKey validates an untrusted path for use as an object key. There is no
// filesystem to resolve against, so any ".." segment is rejected outright.
func ObjectKey(p string) (string, error) {
	key := Normalize(p)
	if hasTraversal(key) {
		return "", gwerrors.PermissionDenied(p, "path traversal detected")
	}
	key = strings.TrimRight(key, "/")
	if key == "" {
		return "", nil
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// canonicalize returns the absolute form of p with symlinks evaluated. When p
// does not exist yet, the deepest existing ancestor is evaluated and the
// missing remainder appended, so a link anywhere on the path is still seen.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var missing []string
	current := abs
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			parts := append([]string{resolved}, reverse(missing)...)
			return filepath.Join(parts...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

func within(root, target string) bool {
	if target == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(target, prefix)
}

func reverse(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// Package paths provides path resolution utilities.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
)

// Resolve turns a configured path into an absolute path.
//
// Input normalization:
//   - "~/data/latest.json" -> "$HOME/data/latest.json"
//   - "/abs/path"          -> "/abs/path"
//   - "data/latest.json"   -> "<root>/data/latest.json"
//   - ""                   -> ""
//
// Relative paths are only ever resolved against root, never against the
// process working directory.
func Resolve(root, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", path, err)
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	if root == "" {
		return "", fmt.Errorf("relative path %q requires a root directory", path)
	}
	base, err := ResolveRoot(root)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, expanded), nil
}

// ResolveRoot expands and cleans the root directory itself. A relative root
// is taken as given by the operator (typically from a flag) and made absolute.
func ResolveRoot(root string) (string, error) {
	expanded, err := homedir.Expand(strings.TrimSpace(root))
	if err != nil {
		return "", fmt.Errorf("expanding root %q: %w", root, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolving root %q: %w", root, err)
	}
	return abs, nil
}

// Within reports whether path lies inside dir (or is dir).
func Within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}

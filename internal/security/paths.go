// Package security provides the single path validator every filesystem access
// goes through. It resolves symlinks and confirms containment in an allowed
// root, returning either a canonical path or a refusal.
package security

import (
	"os"
	"path/filepath"
	"strings"

	"taskforge/internal/types"
)

// Validator canonicalizes paths and enforces root containment.
type Validator struct {
	root string
}

// NewValidator creates a validator rooted at allowedRoot. An empty root
// disables containment checks (canonicalization still applies).
func NewValidator(allowedRoot string) (*Validator, error) {
	if allowedRoot == "" {
		return &Validator{}, nil
	}
	abs, err := filepath.Abs(allowedRoot)
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidInput, err, "invalid allowed root %q", allowedRoot)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Root may not exist yet; fall back to the absolute form.
		resolved = abs
	}
	return &Validator{root: resolved}, nil
}

// Root returns the configured containment root ("" when unrestricted).
func (v *Validator) Root() string { return v.root }

// Validate returns the canonical form of path, or an invalid_input error when
// the path escapes the allowed root (including via symlinks).
func (v *Validator) Validate(path string) (string, error) {
	if path == "" {
		return "", types.NewError(types.ErrInvalidInput, "empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", types.WrapError(types.ErrInvalidInput, err, "invalid path %q", path)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// Resolve the deepest existing ancestor so a symlinked parent
			// cannot smuggle the path outside the root.
			resolved, err = resolveMissing(abs)
			if err != nil {
				return "", types.WrapError(types.ErrInvalidInput, err, "cannot resolve %q", path)
			}
		} else {
			return "", types.WrapError(types.ErrInvalidInput, err, "cannot resolve %q", path)
		}
	}

	if v.root != "" && !contained(v.root, resolved) {
		return "", types.NewError(types.ErrInvalidInput, "path %q escapes allowed root", path)
	}
	return resolved, nil
}

// ValidateExisting is Validate plus an existence check.
func (v *Validator) ValidateExisting(path string) (string, error) {
	canonical, err := v.Validate(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(canonical); err != nil {
		if os.IsNotExist(err) {
			return "", types.NewError(types.ErrResourceNotFound, "path %q does not exist", path)
		}
		return "", types.WrapError(types.ErrInternal, err, "cannot stat %q", path)
	}
	return canonical, nil
}

// resolveMissing resolves symlinks on the longest existing prefix of abs and
// rejoins the missing suffix.
func resolveMissing(abs string) (string, error) {
	dir := abs
	var suffix []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		suffix = append([]string{filepath.Base(dir)}, suffix...)
		dir = parent
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, suffix...)...), nil
}

// contained reports whether path is root or beneath it.
func contained(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

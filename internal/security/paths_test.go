package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/types"
)

func TestValidateInsideRoot(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(sub, 0755))

	v, err := NewValidator(root)
	require.NoError(t, err)

	got, err := v.Validate(sub)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestValidateRejectsEscape(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()

	v, err := NewValidator(root)
	require.NoError(t, err)

	_, err = v.Validate(other)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.KindOf(err))

	_, err = v.Validate(filepath.Join(root, "..", filepath.Base(other)))
	assert.Error(t, err)
}

func TestValidateRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks unreliable on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(outside, link))

	v, err := NewValidator(root)
	require.NoError(t, err)

	_, err = v.Validate(link)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.KindOf(err))

	// A path through the symlink is rejected too, even if the leaf is missing.
	_, err = v.Validate(filepath.Join(link, "missing.md"))
	assert.Error(t, err)
}

func TestValidateExisting(t *testing.T) {
	root := t.TempDir()
	v, err := NewValidator(root)
	require.NoError(t, err)

	_, err = v.ValidateExisting(filepath.Join(root, "nope.md"))
	require.Error(t, err)
	assert.Equal(t, types.ErrResourceNotFound, types.KindOf(err))

	file := filepath.Join(root, "yes.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	got, err := v.ValidateExisting(file)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestEmptyRootDisablesContainment(t *testing.T) {
	v, err := NewValidator("")
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = v.Validate(dir)
	assert.NoError(t, err)
}

package validate

import (
	"os"
	"path/filepath"
	"testing"

	"oss.nandlabs.io/keephive/testing/assert"
)

func TestValidateHappyPath(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	result, err := Validate(src, dst)
	assert.NoError(t, err)
	_ = result

	info, err := os.Stat(dst)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidateRejectsMissingSource(t *testing.T) {
	_, err := Validate("/no/such/source", t.TempDir())
	assert.Error(t, err)
}

func TestValidateRejectsSourceEqualsTarget(t *testing.T) {
	dir := t.TempDir()
	_, err := Validate(dir, dir)
	assert.Error(t, err)
}

func TestValidateRejectsTargetNestedInSource(t *testing.T) {
	src := t.TempDir()
	target := filepath.Join(src, "backups")
	assert.NoError(t, os.MkdirAll(target, 0o755))

	_, err := Validate(src, target)
	assert.Error(t, err)
}

func TestValidateRejectsNonDirectorySource(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notadir")
	assert.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Validate(file, t.TempDir())
	assert.Error(t, err)
}

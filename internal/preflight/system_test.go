package preflight

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecker_CheckDiskSpace_MissingDirUsesParent(t *testing.T) {
	// Given: an index directory that does not exist yet
	path := filepath.Join(t.TempDir(), "not", "yet", "created")

	// When: checking disk space
	result := New().CheckDiskSpace(path)

	// Then: free space is measured on the nearest parent
	assert.Equal(t, "disk_space", result.Name)
	assert.Contains(t, result.Message, "free")
	assert.False(t, result.IsCritical())
}

func TestChecker_CheckFileDescriptors(t *testing.T) {
	result := New().CheckFileDescriptors()

	assert.Equal(t, "file_descriptors", result.Name)
	assert.NotEqual(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "minimum")
}

func TestExistingParent(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, dir, existingParent(dir))
	assert.Equal(t, dir, existingParent(filepath.Join(dir, "a", "b")))
}

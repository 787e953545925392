package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrap_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".agentctl")

	require.NoError(t, Bootstrap(root))

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestBootstrap_LeavesCurrentSchemaAlone(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("schema_version: 3\n"), 0o644))

	require.NoError(t, Bootstrap(root))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "schema_version: 3")
}

func TestBootstrap_ArchivesStaleSchema(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("schema_version: 1\n"), 0o644))

	require.NoError(t, Bootstrap(root))

	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err), "old config must have moved with the archived root")

	entries, err := os.ReadDir(filepath.Dir(root))
	require.NoError(t, err)
	foundArchive := false
	for _, e := range entries {
		if e.Name() != filepath.Base(root) && e.IsDir() {
			foundArchive = true
		}
	}
	assert.True(t, foundArchive, "expected an archived sibling directory")
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"project_summary", "project_summary"},
		{"Budget Justification", "Budget_Justification"},
		{"a/b c", "a_b_c"},
		{`what?: "this" <now>`, "what_this_now"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeFilename(tt.in), "SafeFilename(%q)", tt.in)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "sections", "drafts")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "nsf_config.yaml"), []byte("sections: []\n"), 0o644))

	got, err := FindProjectRoot(nested, nil)
	require.NoError(t, err)
	want, _ := filepath.Abs(root)
	assert.Equal(t, want, got)

	got, err = FindProjectRoot(nested, []string{"no-such-marker.txt"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBackupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "budget.yaml")

	got, err := BackupFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got, "missing file is returned unchanged")

	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	first, err := BackupFile(path)
	require.NoError(t, err)
	assert.Equal(t, path+".bak", first)

	second, err := BackupFile(path)
	require.NoError(t, err)
	assert.Equal(t, path+".bak.1", second)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "grants_data.json")

	require.NoError(t, WriteFileAtomic(path, []byte("{}")))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
	assert.True(t, IsDir(filepath.Dir(path)))
	assert.True(t, Exists(path))
}

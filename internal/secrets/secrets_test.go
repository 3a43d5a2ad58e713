// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, KeyGSA, "  DEMO_KEY  \n")
				writeFile(t, dir, KeyCrossref, "pi@university.edu\n")
				return dir
			},
			want: map[string]string{
				KeyGSA:      "DEMO_KEY",
				KeyCrossref: "pi@university.edu",
			},
		},
		{
			name: "missing directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files, dotfiles, and directories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, KeyGSA, "k")
				writeFile(t, dir, "empty", "")
				writeFile(t, dir, "blank", " \n\t ")
				writeFile(t, dir, ".gitkeep", "x")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
				return dir
			},
			want: map[string]string{KeyGSA: "k"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can read files without permission bits")
	}
	dir := t.TempDir()
	writeFile(t, dir, KeyGSA, "value123")
	bad := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(bad, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(bad, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "value123", got[KeyGSA])
	assert.NotContains(t, got, "bad-key")
}

func TestResolve(t *testing.T) {
	s := map[string]string{KeyGSA: "from-file"}

	t.Setenv(EnvGSA, "")
	assert.Equal(t, "from-file", Resolve(s, KeyGSA, EnvGSA))

	t.Setenv(EnvGSA, "from-env")
	assert.Equal(t, "from-env", Resolve(s, KeyGSA, EnvGSA))

	assert.Empty(t, Resolve(nil, KeyCrossref, "GRANT_ENGINE_UNSET_VAR"))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
